// Package service wires the checker's collaborators together and
// drives the periodic check loop.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/aversant/checker/internal/api"
	"github.com/aversant/checker/internal/checker"
	"github.com/aversant/checker/internal/config"
	"github.com/aversant/checker/internal/expression"
	"github.com/aversant/checker/internal/repository"
	"github.com/aversant/checker/internal/source"
)

// Service owns the long-lived resources: Redis and Postgres
// connections, the checker, the API server and the poll loop.
type Service struct {
	config      *config.Config
	logger      *zap.Logger
	redisClient *redis.Client
	db          *sql.DB // nil when the archive is disabled

	store   *repository.Store
	archive *repository.EventArchive
	checker *checker.Checker
	api     *api.Server

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New connects the collaborators and builds the checker.
func New(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	store := repository.NewStore(redisClient, logger)

	var db *sql.DB
	var archive *repository.EventArchive
	if cfg.Database.Enabled {
		var err error
		db, err = sql.Open("postgres", cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		archive = repository.NewEventArchive(db, logger)
	}

	var src source.Source
	switch cfg.Source.Mode {
	case "graphite":
		src = source.NewGraphiteSource(
			cfg.Source.GraphiteURL,
			time.Duration(cfg.Source.TimeoutSeconds)*time.Second,
			logger,
		)
	default:
		src = source.NewLocalSource(store, int64(cfg.Source.StepSeconds), logger)
	}

	check := checker.New(
		store,
		src,
		expression.NewEvaluator(),
		archive,
		int64(cfg.Checker.MetricsTTLSeconds),
		logger,
	)

	return &Service{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		db:          db,
		store:       store,
		archive:     archive,
		checker:     check,
		api:         api.New(cfg.API.Addr, store, archive, logger),
		inFlight:    make(map[string]struct{}),
	}, nil
}

// Start runs the API server and the check loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting checker service",
		zap.String("api_addr", s.config.API.Addr),
		zap.String("source_mode", s.config.Source.Mode),
		zap.Int("interval", s.config.Checker.IntervalSeconds),
	)

	apiErr := make(chan error, 1)
	go func() {
		if err := s.api.Start(); err != nil {
			apiErr <- err
		}
	}()

	ticker := time.NewTicker(time.Duration(s.config.Checker.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	s.checkAll(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Check loop stopped")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.api.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("Failed to shut down API server", zap.Error(err))
			}
			return nil
		case err := <-apiErr:
			return fmt.Errorf("api server failed: %w", err)
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

// checkAll runs one pass over all known triggers with a bounded worker
// pool. A trigger still being checked from a previous pass is skipped:
// at most one concurrent invocation per trigger ID.
func (s *Service) checkAll(ctx context.Context) {
	ids, err := s.store.GetTriggerIDs(ctx)
	if err != nil {
		s.logger.Error("Failed to get trigger ids", zap.Error(err))
		return
	}

	sem := make(chan struct{}, s.config.Checker.Workers)
	var wg sync.WaitGroup
	for _, id := range ids {
		if !s.acquire(id) {
			continue
		}
		select {
		case <-ctx.Done():
			s.release(id)
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(triggerID string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer s.release(triggerID)

			opts := checker.CheckOptions{CacheTTL: int64(s.config.Checker.CacheTTLSeconds)}
			if err := s.checker.Check(ctx, triggerID, opts); err != nil {
				s.logger.Error("Trigger check failed",
					zap.String("trigger_id", triggerID),
					zap.Error(err),
				)
			}
		}(id)
	}
	wg.Wait()
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// Stop closes the long-lived connections.
func (s *Service) Stop() error {
	s.logger.Info("Stopping checker service")
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
	return nil
}
