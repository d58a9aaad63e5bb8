package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aversant/checker/internal/models"
)

// EventArchive is an optional append-only PostgreSQL archive of pushed
// events (the Redis queue is drained by the notifier; the archive keeps
// history for the API and audits).
type EventArchive struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventArchive creates an archive over an established connection.
func NewEventArchive(db *sql.DB, logger *zap.Logger) *EventArchive {
	return &EventArchive{
		db:     db,
		logger: logger,
	}
}

// ArchivedEvent is one stored event row.
type ArchivedEvent struct {
	ID        string
	Event     models.Event
	CreatedAt time.Time
}

// CreateEvent inserts one event row and returns its generated ID.
func (a *EventArchive) CreateEvent(ctx context.Context, event *models.Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event is required")
	}
	if event.TriggerID == "" {
		return "", fmt.Errorf("trigger_id is required")
	}

	query := `
		INSERT INTO trigger_events (
			event_id,
			trigger_id,
			metric,
			state,
			old_state,
			value,
			event_ts,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	id := uuid.New().String()
	var metric sql.NullString
	if event.Metric != "" {
		metric = sql.NullString{String: event.Metric, Valid: true}
	}
	var value sql.NullFloat64
	if event.Value != nil {
		value = sql.NullFloat64{Float64: *event.Value, Valid: true}
	}

	_, err := a.db.ExecContext(ctx, query,
		id,
		event.TriggerID,
		metric,
		string(event.State),
		string(event.OldState),
		value,
		event.Timestamp,
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	return id, nil
}

// ListEvents returns the most recent archived events for a trigger,
// newest first.
func (a *EventArchive) ListEvents(ctx context.Context, triggerID string, limit int) ([]*ArchivedEvent, error) {
	if triggerID == "" {
		return nil, fmt.Errorf("trigger_id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			event_id,
			trigger_id,
			metric,
			state,
			old_state,
			value,
			event_ts,
			created_at
		FROM trigger_events
		WHERE trigger_id = $1
		ORDER BY event_ts DESC
		LIMIT $2
	`

	rows, err := a.db.QueryContext(ctx, query, triggerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []*ArchivedEvent{}
	for rows.Next() {
		var archived ArchivedEvent
		var state, oldState string
		var metric sql.NullString
		var value sql.NullFloat64

		err := rows.Scan(
			&archived.ID,
			&archived.Event.TriggerID,
			&metric,
			&state,
			&oldState,
			&value,
			&archived.Event.Timestamp,
			&archived.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		archived.Event.State = models.State(state)
		archived.Event.OldState = models.State(oldState)
		if metric.Valid {
			archived.Event.Metric = metric.String
		}
		if value.Valid {
			archived.Event.Value = &value.Float64
		}
		events = append(events, &archived)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
