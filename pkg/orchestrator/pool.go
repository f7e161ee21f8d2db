package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warden-ci/warden/pkg/config"
	"github.com/warden-ci/warden/pkg/models"
)

// WorkerPool manages a pool of workflow workers.
type WorkerPool struct {
	podID     string
	workflows WorkflowStore
	config    *config.OrchestratorConfig
	executor  WorkflowExecutor
	workers   []*Worker
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// Workflow cancel registry: workflow_id → cancel function
	activeWorkflows map[string]context.CancelFunc
	mu              sync.RWMutex
	started         bool

	// Orphan recovery state
	orphans orphanState
}

// NewWorkerPool creates a worker pool.
func NewWorkerPool(podID string, workflows WorkflowStore, cfg *config.OrchestratorConfig, executor WorkflowExecutor) *WorkerPool {
	return &WorkerPool{
		podID:           podID,
		workflows:       workflows,
		config:          cfg,
		executor:        executor,
		workers:         make([]*Worker, 0, cfg.WorkerCount),
		stopCh:          make(chan struct{}),
		activeWorkflows: make(map[string]context.CancelFunc),
	}
}

// Start requeues workflows this pod abandoned in a previous run, then
// spawns the worker goroutines and the orphan recovery loop.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	if err := p.recoverStartupOrphans(ctx); err != nil {
		return err
	}

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.workflows, p.config, p.executor, p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	// Start orphan recovery
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanRecovery(ctx)
	}()

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current workflows before exiting (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	// Log active workflows
	active := p.getActiveWorkflowIDs()
	if len(active) > 0 {
		slog.Info("Waiting for active workflows to complete",
			"count", len(active),
			"workflow_ids", active)
	}

	// Signal all workers to stop (they finish current workflows)
	for _, worker := range p.workers {
		worker.Stop()
	}

	// Signal orphan recovery to stop
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// RegisterWorkflow stores a cancel function for manual cancellation.
func (p *WorkerPool) RegisterWorkflow(workflowID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeWorkflows[workflowID] = cancel
}

// UnregisterWorkflow removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterWorkflow(workflowID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeWorkflows, workflowID)
}

// CancelWorkflow triggers context cancellation for a workflow on this pod.
// Returns true if the workflow was found and cancelled on this pod.
func (p *WorkerPool) CancelWorkflow(workflowID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeWorkflows[workflowID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := p.workflows.CountByStatus(ctx)
	if err != nil {
		slog.Error("Failed to query workflow counts for health check",
			"pod_id", p.podID,
			"error", err)
	}

	queueDepth := counts[models.WorkflowStatusPending]
	activeWorkflows := activeWorkflowCount(counts)

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	// DB errors affect health status - if we can't reach the DB, we're not healthy
	dbHealthy := err == nil
	isHealthy := len(p.workers) > 0 && activeWorkflows <= p.config.MaxConcurrentWorkflows && dbHealthy

	p.orphans.mu.Lock()
	lastOrphanScan := p.orphans.lastScan
	orphansRecovered := p.orphans.recovered
	p.orphans.mu.Unlock()

	var dbError string
	if err != nil {
		dbError = fmt.Sprintf("workflow count query failed: %v", err)
	}

	return &PoolHealth{
		IsHealthy:        isHealthy,
		DBReachable:      dbHealthy,
		DBError:          dbError,
		PodID:            p.podID,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ActiveWorkflows:  activeWorkflows,
		MaxConcurrent:    p.config.MaxConcurrentWorkflows,
		QueueDepth:       queueDepth,
		StatusCounts:     counts,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastOrphanScan,
		OrphansRecovered: orphansRecovered,
	}
}

// getActiveWorkflowIDs returns IDs of currently processing workflows (for logging).
func (p *WorkerPool) getActiveWorkflowIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.activeWorkflows))
	for id := range p.activeWorkflows {
		ids = append(ids, id)
	}
	return ids
}
