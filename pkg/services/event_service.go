package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warden-ci/warden/pkg/models"
)

// EventService reads and prunes the persisted event stream. Writes happen
// in the events publisher, which pairs the insert with a pg_notify in one
// transaction.
type EventService struct {
	db *sql.DB
}

// NewEventService creates a new EventService.
func NewEventService(db *sql.DB) *EventService {
	if db == nil {
		panic("NewEventService: db must not be nil")
	}
	return &EventService{db: db}
}

// GetEventsSince retrieves channel events with an ID greater than sinceID,
// oldest first, capped at limit. Used for SSE catch-up after a reconnect;
// callers pass one more than they need to detect overflow.
func (s *EventService) GetEventsSince(ctx context.Context, channel string, sinceID int64, limit int) ([]*models.Event, error) {
	if channel == "" {
		return nil, NewValidationError("channel", "channel is required")
	}
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repository_id, item_id, channel, event_type, payload, created_at
		FROM events
		WHERE channel = $1 AND id > $2
		ORDER BY id
		LIMIT $3`, channel, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent retrieves the newest events for a repository, newest first.
func (s *EventService) ListRecent(ctx context.Context, repositoryID string, limit int) ([]*models.Event, error) {
	if repositoryID == "" {
		return nil, NewValidationError("repository_id", "repository id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repository_id, item_id, channel, event_type, payload, created_at
		FROM events
		WHERE repository_id = $1
		ORDER BY id DESC
		LIMIT $2`, repositoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// DeleteOlderThan removes events created before the cutoff. Used by the
// retention cleanup loop.
func (s *EventService) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	writeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(writeCtx,
		`DELETE FROM events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return rows, nil
}

func scanEvents(rows *sql.Rows) ([]*models.Event, error) {
	var events []*models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.RepositoryID, &e.ItemID, &e.Channel,
			&e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
