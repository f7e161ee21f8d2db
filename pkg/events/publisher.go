package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/warden-ci/warden/pkg/models"
)

// Publisher publishes events for SSE delivery. Persistent events are stored
// in the events table then broadcast via NOTIFY; transient events are
// broadcast via NOTIFY only.
//
// Publishing is best-effort by contract: callers log returned errors and
// carry on, and every method is a no-op on a nil Publisher, so a pipeline
// never stalls on event delivery.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a new Publisher. The db parameter should be the
// *sql.DB from database.Client.DB().
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// Notify persists an event and broadcasts it on the repository channel and
// the global channel in a single transaction, so the row and the
// notification commit atomically.
func (p *Publisher) Notify(ctx context.Context, repositoryID, itemID, eventType string, payload any) error {
	if p == nil || p.db == nil {
		return nil
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return p.persistAndNotify(ctx, repositoryID, itemID, eventType, payloadJSON)
}

// NotifyTransient broadcasts an event on the repository channel and the
// global channel without persisting it. Lost on disconnect.
func (p *Publisher) NotifyTransient(ctx context.Context, repositoryID, eventType string, payload any) error {
	if p == nil || p.db == nil {
		return nil
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return p.notifyOnly(ctx, repositoryID, payloadJSON)
}

// --- Typed helpers ---

// PublishWorkflowStatus publishes a workflow.status event for the
// workflow's current state.
func (p *Publisher) PublishWorkflowStatus(ctx context.Context, w *models.Workflow) error {
	if p == nil || w == nil {
		return nil
	}
	return p.Notify(ctx, w.RepositoryID, w.ID, EventTypeWorkflowStatus, WorkflowStatusPayload{
		Type:         EventTypeWorkflowStatus,
		WorkflowID:   w.ID,
		RepositoryID: w.RepositoryID,
		PRNumber:     w.PRNumber,
		Status:       w.Status,
		Error:        w.Error,
		Timestamp:    eventTimestamp(),
	})
}

// PublishAgentCompleted publishes an agent.completed event after an agent
// run, successful or not.
func (p *Publisher) PublishAgentCompleted(ctx context.Context, w *models.Workflow, agent string, success bool, agentErr string, latencyMs int64) error {
	if p == nil || w == nil {
		return nil
	}
	return p.Notify(ctx, w.RepositoryID, w.ID, EventTypeAgentCompleted, AgentCompletedPayload{
		Type:         EventTypeAgentCompleted,
		WorkflowID:   w.ID,
		RepositoryID: w.RepositoryID,
		Agent:        agent,
		Success:      success,
		Error:        agentErr,
		LatencyMs:    latencyMs,
		Timestamp:    eventTimestamp(),
	})
}

// PublishAgentProgress broadcasts an agent.progress transient event.
func (p *Publisher) PublishAgentProgress(ctx context.Context, w *models.Workflow, agent, message string) error {
	if p == nil || w == nil {
		return nil
	}
	return p.NotifyTransient(ctx, w.RepositoryID, EventTypeAgentProgress, AgentProgressPayload{
		Type:         EventTypeAgentProgress,
		WorkflowID:   w.ID,
		RepositoryID: w.RepositoryID,
		Agent:        agent,
		Message:      message,
		Timestamp:    eventTimestamp(),
	})
}

// PublishQueueItemStatus publishes a queue.item_status event for the item's
// current state and position.
func (p *Publisher) PublishQueueItemStatus(ctx context.Context, item *models.QueueItem) error {
	if p == nil || item == nil {
		return nil
	}
	return p.Notify(ctx, item.RepositoryID, strconv.Itoa(item.PRNumber), EventTypeQueueItemStatus, QueueItemStatusPayload{
		Type:         EventTypeQueueItemStatus,
		RepositoryID: item.RepositoryID,
		PRNumber:     item.PRNumber,
		Status:       item.Status,
		Position:     item.Position,
		Reason:       item.Reason,
		Timestamp:    eventTimestamp(),
	})
}

// PublishRemediationProgress publishes a remediation.progress event.
func (p *Publisher) PublishRemediationProgress(ctx context.Context, w *models.Workflow, status, phase string, applied, skipped, failed int) error {
	if p == nil || w == nil {
		return nil
	}
	return p.Notify(ctx, w.RepositoryID, w.ID, EventTypeRemediationProgress, RemediationProgressPayload{
		Type:         EventTypeRemediationProgress,
		WorkflowID:   w.ID,
		RepositoryID: w.RepositoryID,
		Status:       status,
		Phase:        phase,
		Applied:      applied,
		Skipped:      skipped,
		Failed:       failed,
		Timestamp:    eventTimestamp(),
	})
}

// --- Internal core methods ---

// persistAndNotify persists a pre-marshaled event and broadcasts it via
// NOTIFY in a single transaction. pg_notify is transactional, held until
// COMMIT, so subscribers never see an event whose row did not land.
func (p *Publisher) persistAndNotify(ctx context.Context, repositoryID, itemID, eventType string, payloadJSON []byte) error {
	channel := RepositoryChannel(repositoryID)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin event transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (repository_id, item_id, channel, event_type, payload)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		repositoryID, itemID, channel, eventType, string(payloadJSON),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	// The NOTIFY payload carries db_event_id so SSE clients can track their
	// catch-up position.
	notifyPayload, err := injectDBEventIDAndTruncate(payloadJSON, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, GlobalChannel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}
	return nil
}

// notifyOnly broadcasts a pre-marshaled event via NOTIFY without persisting.
func (p *Publisher) notifyOnly(ctx context.Context, repositoryID string, payloadJSON []byte) error {
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`,
		RepositoryChannel(repositoryID), notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`,
		GlobalChannel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// --- Internal helpers ---

func eventTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// injectDBEventIDAndTruncate adds db_event_id to the JSON payload for NOTIFY
// delivery and applies truncation if the result exceeds PostgreSQL's limit.
func injectDBEventIDAndTruncate(payloadJSON []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = dbEventID

	enriched, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched NOTIFY payload: %w", err)
	}
	return truncateIfNeeded(string(enriched))
}

// truncateIfNeeded returns the payload as-is if it fits within PostgreSQL's
// 8000-byte NOTIFY limit, otherwise a minimal truncation envelope with only
// routing fields.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

// buildTruncatedPayload extracts the routing fields a client needs to fetch
// the complete event over REST.
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type         string `json:"type"`
		WorkflowID   string `json:"workflow_id"`
		RepositoryID string `json:"repository_id"`
		DBEventID    *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":          routing.Type,
		"workflow_id":   routing.WorkflowID,
		"repository_id": routing.RepositoryID,
		"truncated":     true,
	}
	if routing.DBEventID != nil {
		truncated["db_event_id"] = *routing.DBEventID
	}

	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
