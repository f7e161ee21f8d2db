package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/warden-ci/warden/pkg/config"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/services"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// Worker is a single pool worker that polls for and processes workflows.
type Worker struct {
	id        string
	podID     string
	workflows WorkflowStore
	config    *config.OrchestratorConfig
	executor  WorkflowExecutor
	pool      WorkflowRegistry
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// Health tracking
	mu                 sync.RWMutex
	status             WorkerStatus
	currentWorkflowID  string
	workflowsProcessed int
	lastActivity       time.Time
}

// WorkflowRegistry is the subset of WorkerPool used by Worker for
// cancellation registration.
type WorkflowRegistry interface {
	RegisterWorkflow(workflowID string, cancel context.CancelFunc)
	UnregisterWorkflow(workflowID string)
}

// NewWorker creates a pool worker.
func NewWorker(id, podID string, workflows WorkflowStore, cfg *config.OrchestratorConfig,
	executor WorkflowExecutor, pool WorkflowRegistry) *Worker {

	return &Worker{
		id:           id,
		podID:        podID,
		workflows:    workflows,
		config:       cfg,
		executor:     executor,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                 w.id,
		Status:             string(w.status),
		CurrentWorkflowID:  w.currentWorkflowID,
		WorkflowsProcessed: w.workflowsProcessed,
		LastActivity:       w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoWorkflowsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing workflow", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks capacity, claims a workflow, and processes it.
// The executor settles the terminal status itself; a failed workflow is a
// normal outcome here, not a polling error.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	// 1. Check global capacity (best-effort; racy with concurrent workers
	//    but bounded by WorkerCount and mitigated by poll jitter).
	counts, err := w.workflows.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("checking active workflows: %w", err)
	}
	if activeWorkflowCount(counts) >= w.config.MaxConcurrentWorkflows {
		return ErrAtCapacity
	}

	// 2. Claim the next pending workflow.
	claimed, err := w.workflows.ClaimNextWorkflow(ctx, w.id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return ErrNoWorkflowsAvailable
		}
		return fmt.Errorf("claiming workflow: %w", err)
	}

	log := slog.With("workflow_id", claimed.ID, "worker_id", w.id)
	log.Info("Workflow claimed", "repo", claimed.Owner+"/"+claimed.Repo, "pr", claimed.PRNumber)

	w.setStatus(WorkerStatusWorking, claimed.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	// 3. Workflow context with the end-to-end timeout.
	workflowCtx, cancelWorkflow := context.WithTimeout(ctx, w.config.WorkflowTimeout)
	defer cancelWorkflow()

	// 4. Register the cancel function for API-triggered cancellation.
	w.pool.RegisterWorkflow(claimed.ID, cancelWorkflow)
	defer w.pool.UnregisterWorkflow(claimed.ID)

	// 5. Sustain the claim while the executor runs.
	heartbeatCtx, cancelHeartbeat := context.WithCancel(workflowCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, claimed.ID, cancelWorkflow)

	// 6. Execute.
	if err := w.executor.Run(workflowCtx, claimed.ID); err != nil {
		log.Warn("Workflow run ended with error", "error", err)
	} else {
		log.Info("Workflow run complete")
	}
	cancelHeartbeat()

	w.mu.Lock()
	w.workflowsProcessed++
	w.mu.Unlock()

	return nil
}

// runHeartbeat periodically renews the claim for orphan detection. Losing
// the claim cancels the run: the workflow has been requeued and another
// worker may already own it.
func (w *Worker) runHeartbeat(ctx context.Context, workflowID string, cancelRun context.CancelFunc) {
	ticker := time.NewTicker(w.heartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.workflows.Heartbeat(ctx, workflowID, w.id)
			if err == nil {
				continue
			}
			if errors.Is(err, services.ErrStateConflict) {
				slog.Warn("Workflow claim lost, cancelling run",
					"workflow_id", workflowID, "worker_id", w.id)
				cancelRun()
				return
			}
			slog.Warn("Heartbeat update failed", "workflow_id", workflowID, "error", err)
		}
	}
}

// heartbeatInterval keeps several beats inside the orphan threshold so a
// healthy worker is never mistaken for a dead one.
func (w *Worker) heartbeatInterval() time.Duration {
	interval := w.config.OrphanThreshold / 4
	if interval <= 0 {
		interval = time.Second
	}
	return interval
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int63n(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, workflowID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentWorkflowID = workflowID
	w.lastActivity = time.Now()
}

// activeWorkflowCount sums the in-flight statuses from a CountByStatus
// result.
func activeWorkflowCount(counts map[models.WorkflowStatus]int) int {
	total := 0
	for status, n := range counts {
		if status.IsInFlight() {
			total += n
		}
	}
	return total
}
