// Package api serves the checker's thin read-only HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aversant/checker/internal/repository"
)

const maxTargetResults = 3

// Server wraps HTTP serving of the search and event-history endpoints.
type Server struct {
	httpServer *http.Server
	store      *repository.Store
	archive    *repository.EventArchive // optional
	logger     *zap.Logger
}

// New creates a configured HTTP server. archive may be nil; the events
// endpoint then reports the archive as disabled.
func New(addr string, store *repository.Store, archive *repository.EventArchive, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		store:   store,
		archive: archive,
		logger:  logger,
	}
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/targets", s.handleTargets)
	mux.HandleFunc("/api/events", s.handleEvents)
	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTargets looks up known metric names by substring. The search
// parameter is required; results are capped at three names.
func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if !r.URL.Query().Has("search") {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "search parameter is required"})
		return
	}
	search := r.URL.Query().Get("search")

	targets, err := s.store.GetTargets(r.Context())
	if err != nil {
		s.logger.Error("Failed to get targets", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get targets"})
		return
	}

	matched := []string{}
	for _, target := range targets {
		if strings.Contains(target, search) {
			matched = append(matched, target)
			if len(matched) == maxTargetResults {
				break
			}
		}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"list": matched})
}

// handleEvents returns archived events for one trigger, newest first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.archive == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event archive is disabled"})
		return
	}
	triggerID := r.URL.Query().Get("trigger")
	if triggerID == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "trigger parameter is required"})
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	events, err := s.archive.ListEvents(r.Context(), triggerID, limit)
	if err != nil {
		s.logger.Error("Failed to list events",
			zap.String("trigger_id", triggerID),
			zap.Error(err),
		)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list events"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"list": events})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
