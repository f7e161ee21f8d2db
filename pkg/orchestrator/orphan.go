package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// orphanState tracks orphan recovery metrics (thread-safe).
type orphanState struct {
	mu        sync.Mutex
	lastScan  time.Time
	recovered int
}

// runOrphanRecovery periodically requeues workflows whose claims went
// stale. All pods run this independently; the reset is idempotent.
func (p *WorkerPool) runOrphanRecovery(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.requeueStaleWorkflows(ctx); err != nil {
				slog.Error("Orphan recovery failed", "error", err)
			}
		}
	}
}

// requeueStaleWorkflows resets in-flight workflows with stale heartbeats
// back to pending so another worker can pick them up. Unlike a terminal
// abort, the requeued workflow reruns from the top and its artifacts are
// overwritten by upsert.
func (p *WorkerPool) requeueStaleWorkflows(ctx context.Context) error {
	requeued, err := p.workflows.RequeueStale(ctx, p.config.OrphanThreshold)
	if err != nil {
		return fmt.Errorf("requeue stale workflows: %w", err)
	}

	if requeued > 0 {
		slog.Warn("Requeued orphaned workflows",
			"count", requeued, "threshold", p.config.OrphanThreshold)
	}

	p.orphans.mu.Lock()
	p.orphans.lastScan = time.Now()
	p.orphans.recovered += int(requeued)
	p.orphans.mu.Unlock()

	return nil
}

// recoverStartupOrphans requeues workflows still claimed by this pod's
// workers from a previous run. Called once before the workers start
// polling, so a restarted pod cannot race its own leftovers.
func (p *WorkerPool) recoverStartupOrphans(ctx context.Context) error {
	requeued, err := p.workflows.RequeueByWorkerPrefix(ctx, p.podID)
	if err != nil {
		return fmt.Errorf("recover startup orphans: %w", err)
	}
	if requeued > 0 {
		slog.Warn("Requeued workflows abandoned by a previous run",
			"pod_id", p.podID, "count", requeued)
	}
	return nil
}
