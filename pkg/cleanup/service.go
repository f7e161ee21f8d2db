// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/warden-ci/warden/pkg/config"
)

// WorkflowStore deletes aged terminal workflows. Satisfied by
// *services.WorkflowService.
type WorkflowStore interface {
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventStore deletes aged event rows. Satisfied by *services.EventService.
type EventStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces retention policies:
//   - Deletes terminal workflows, and via cascade their artifacts and
//     review comments, past the retention window
//   - Removes event rows past their retention
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config    *config.RetentionConfig
	workflows WorkflowStore
	events    EventStore

	cancel context.CancelFunc
	done   chan struct{}

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates a cleanup service. A nil cfg uses the defaults.
func NewService(cfg *config.RetentionConfig, workflows WorkflowStore, events EventStore) *Service {
	if cfg == nil {
		cfg = config.DefaultRetentionConfig()
	}
	return &Service{
		config:    cfg,
		workflows: workflows,
		events:    events,
		now:       time.Now,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"workflow_retention_days", s.config.WorkflowRetentionDays,
		"event_retention", s.config.EventRetention,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.deleteOldWorkflows(ctx)
	s.deleteOldEvents(ctx)
}

func (s *Service) deleteOldWorkflows(ctx context.Context) {
	days := s.config.WorkflowRetentionDays
	if days <= 0 {
		return
	}
	cutoff := s.now().AddDate(0, 0, -days)

	count, err := s.workflows.DeleteTerminalOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: workflow cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old workflows", "count", count)
	}
}

func (s *Service) deleteOldEvents(ctx context.Context) {
	if s.config.EventRetention <= 0 {
		return
	}
	cutoff := s.now().Add(-s.config.EventRetention)

	count, err := s.events.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: event cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: cleaned up old events", "count", count)
	}
}
