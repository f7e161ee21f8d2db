package mergequeue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warden-ci/warden/pkg/config"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
	"github.com/warden-ci/warden/pkg/services"
)

// reasonMaxWait marks items parked because they sat in the queue longer
// than the policy allows.
const reasonMaxWait = "max wait time exceeded"

// processTimeout bounds a single asynchronous processing run.
const processTimeout = 5 * time.Minute

// Manager owns the merge queue lifecycle: enqueueing, ordering, gating and
// merging. One Manager serves every repository; per-repository state is
// isolated by key.
type Manager struct {
	store    Store
	provider Provider
	events   EventSink
	settings *config.MergeQueueSettings

	// mu guards locks, inFlight and stopped.
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	inFlight map[string]bool
	stopped  bool

	pollCancel context.CancelFunc
	wg         sync.WaitGroup

	// now is swappable in tests.
	now func() time.Time
}

// NewManager creates a merge queue manager.
func NewManager(store Store, prov Provider, sink EventSink, settings *config.MergeQueueSettings) *Manager {
	return &Manager{
		store:    store,
		provider: prov,
		events:   sink,
		settings: settings,
		locks:    make(map[string]*sync.Mutex),
		inFlight: make(map[string]bool),
		now:      time.Now,
	}
}

// Start launches the background poll loop that runs a gating pass over
// every repository with queued items at the configured interval.
func (m *Manager) Start(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	m.pollCancel = cancel

	m.wg.Add(1)
	go m.pollLoop(pollCtx)

	slog.Info("Merge queue manager started", "poll_interval", m.settings.PollInterval)
}

// Stop cancels the poll loop and waits for in-flight processing runs.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	if m.pollCancel != nil {
		m.pollCancel()
	}
	m.wg.Wait()
	slog.Info("Merge queue manager stopped")
}

func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.settings.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.processAll(ctx)
		}
	}
}

// processAll runs one gating pass for every repository that currently has
// a queue.
func (m *Manager) processAll(ctx context.Context) {
	repos, err := m.store.Repositories(ctx)
	if err != nil {
		slog.Error("Failed to enumerate merge queues", "error", err)
		return
	}
	for _, repositoryID := range repos {
		if ctx.Err() != nil {
			return
		}
		if err := m.Process(ctx, repositoryID); err != nil {
			slog.Error("Merge queue processing failed", "repository_id", repositoryID, "error", err)
		}
	}
}

// Enqueue adds a pull request to a repository's queue, recomputes
// positions and triggers an asynchronous processing run. A pull request
// already queued is rejected with services.ErrAlreadyExists.
func (m *Manager) Enqueue(ctx context.Context, repositoryID string, req *models.EnqueueRequest) (*models.QueueItem, error) {
	if err := validateEnqueue(req); err != nil {
		return nil, err
	}
	policy := m.settings.PolicyFor(repositoryID)
	if !policy.Enabled {
		return nil, services.NewValidationError("repository_id", "merge queue is disabled for this repository")
	}

	lock := m.repoLock(repositoryID)
	lock.Lock()

	existing, err := m.store.Range(ctx, repositoryID)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	for _, it := range existing {
		if it.PRNumber == req.PRNumber {
			lock.Unlock()
			return nil, fmt.Errorf("pr %d already queued in %s: %w", req.PRNumber, repositoryID, services.ErrAlreadyExists)
		}
	}

	now := m.now().UTC()
	item := &models.QueueItem{
		RepositoryID: repositoryID,
		PRNumber:     req.PRNumber,
		Owner:        req.Owner,
		Repo:         req.Repo,
		Title:        req.Title,
		Author:       req.Author,
		BaseBranch:   req.BaseBranch,
		HeadBranch:   req.HeadBranch,
		HeadSHA:      req.HeadSHA,
		Status:       models.QueueItemStatusQueued,
		Priority:     req.Priority,
		AddedAt:      now,
	}
	if err := m.store.Add(ctx, repositoryID, item, insertionScore(now, req.Priority)); err != nil {
		lock.Unlock()
		return nil, err
	}
	if err := m.recomputePositions(ctx, repositoryID); err != nil {
		lock.Unlock()
		return nil, err
	}
	item, err = m.findQueued(ctx, repositoryID, req.PRNumber)
	lock.Unlock()
	if err != nil {
		return nil, err
	}

	slog.Info("Enqueued pull request",
		"repository_id", repositoryID,
		"pr_number", item.PRNumber,
		"priority", item.Priority,
		"position", item.Position)

	m.TriggerProcess(repositoryID)
	return item, nil
}

// Dequeue removes a pull request from the queue and recomputes positions.
func (m *Manager) Dequeue(ctx context.Context, repositoryID string, prNumber int) error {
	lock := m.repoLock(repositoryID)
	lock.Lock()

	item, err := m.findQueued(ctx, repositoryID, prNumber)
	if err != nil {
		lock.Unlock()
		return err
	}
	if _, err := m.store.Remove(ctx, repositoryID, prNumber); err != nil {
		lock.Unlock()
		return err
	}
	err = m.recomputePositions(ctx, repositoryID)
	lock.Unlock()
	if err != nil {
		return err
	}

	// Position 0 marks the published rendition as no longer queued.
	item.Position = 0
	m.publish(ctx, item)

	slog.Info("Dequeued pull request", "repository_id", repositoryID, "pr_number", prNumber)
	return nil
}

// List returns a repository's queue in position order.
func (m *Manager) List(ctx context.Context, repositoryID string) ([]*models.QueueItem, error) {
	return m.store.Range(ctx, repositoryID)
}

// Get returns one queued item.
func (m *Manager) Get(ctx context.Context, repositoryID string, prNumber int) (*models.QueueItem, error) {
	return m.findQueued(ctx, repositoryID, prNumber)
}

// SetPriority re-scores a queued item with a new priority, keeping its
// original arrival time, and recomputes positions.
func (m *Manager) SetPriority(ctx context.Context, repositoryID string, prNumber, priority int) (*models.QueueItem, error) {
	lock := m.repoLock(repositoryID)
	lock.Lock()
	defer lock.Unlock()

	item, err := m.findQueued(ctx, repositoryID, prNumber)
	if err != nil {
		return nil, err
	}
	if item.Priority == priority {
		return item, nil
	}
	before := item.Position

	item.Priority = priority
	if _, err := m.store.Remove(ctx, repositoryID, prNumber); err != nil {
		return nil, err
	}
	if err := m.store.Add(ctx, repositoryID, item, insertionScore(item.AddedAt, priority)); err != nil {
		return nil, err
	}
	if err := m.recomputePositions(ctx, repositoryID); err != nil {
		return nil, err
	}

	item, err = m.findQueued(ctx, repositoryID, prNumber)
	if err != nil {
		return nil, err
	}
	// recomputePositions already published the item if it moved.
	if item.Position == before {
		m.publish(ctx, item)
	}

	slog.Info("Changed queue priority",
		"repository_id", repositoryID,
		"pr_number", prNumber,
		"priority", priority,
		"position", item.Position)
	return item, nil
}

// TriggerProcess starts an asynchronous processing run for a repository.
// No-op on a stopped manager or when a run is already in flight.
func (m *Manager) TriggerProcess(repositoryID string) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := m.Process(ctx, repositoryID); err != nil {
			slog.Error("Merge queue processing failed", "repository_id", repositoryID, "error", err)
		}
	}()
}

// Process runs one gating pass over a repository's queue. Single-flight
// per repository: a call while another run for the same repository is
// active returns immediately. Runs for different repositories proceed
// concurrently. After an item leaves the queue the pass restarts against
// the new head.
func (m *Manager) Process(ctx context.Context, repositoryID string) error {
	policy := m.settings.PolicyFor(repositoryID)
	if !policy.Enabled {
		return nil
	}
	if !m.tryBeginProcess(repositoryID) {
		return nil
	}
	defer m.endProcess(repositoryID)

	for {
		progress, err := m.processBatch(ctx, repositoryID, policy)
		if err != nil {
			return err
		}
		if !progress {
			return nil
		}
	}
}

// processBatch advances up to batchSize head items through the gates in
// position order. Failed items stay queued for an operator and are passed
// over when selecting the batch. Returns true when an item left the
// queue, so the caller re-runs against the new head.
func (m *Manager) processBatch(ctx context.Context, repositoryID string, policy config.QueuePolicy) (bool, error) {
	lock := m.repoLock(repositoryID)
	lock.Lock()
	items, err := m.store.Range(ctx, repositoryID)
	lock.Unlock()
	if err != nil {
		return false, err
	}

	batchSize := policy.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	batch := make([]int, 0, batchSize)
	for _, item := range items {
		if item.Status.IsTerminal() {
			continue
		}
		batch = append(batch, item.PRNumber)
		if len(batch) >= batchSize {
			break
		}
	}

	progress := false
	for _, prNumber := range batch {
		if ctx.Err() != nil {
			return progress, ctx.Err()
		}
		left, err := m.processItem(ctx, repositoryID, policy, prNumber)
		if errors.Is(err, services.ErrNotFound) {
			// The item was dequeued underneath the run.
			continue
		}
		if err != nil {
			return progress, err
		}
		if left {
			progress = true
		}
	}
	return progress, nil
}

// processItem advances one queue item through the gates. Returns true when
// the item left the queue, merged or no longer open.
func (m *Manager) processItem(ctx context.Context, repositoryID string, policy config.QueuePolicy, prNumber int) (bool, error) {
	lock := m.repoLock(repositoryID)
	lock.Lock()
	item, err := m.findQueued(ctx, repositoryID, prNumber)
	lock.Unlock()
	if err != nil {
		return false, err
	}

	// Items past the wait bound park for an operator instead of retrying
	// forever. Re-blocking an already parked item would only repeat the
	// same event.
	if policy.MaxWaitTime > 0 && m.now().Sub(item.AddedAt) > policy.MaxWaitTime {
		if item.Status == models.QueueItemStatusBlocked && item.Reason == reasonMaxWait {
			return false, nil
		}
		return false, m.setStatus(ctx, item, models.QueueItemStatusBlocked, reasonMaxWait)
	}

	// Every pass re-enters through checking; a ready item never moves to
	// blocked without being re-checked first.
	if err := m.setStatus(ctx, item, models.QueueItemStatusChecking, ""); err != nil {
		return false, err
	}

	pr, err := m.provider.GetPullRequest(ctx, item.Owner, item.Repo, item.PRNumber)
	if err != nil {
		return false, m.gateError(ctx, item, "pull request lookup", err)
	}
	if pr.State != "open" {
		slog.Info("Removing closed pull request from merge queue",
			"repository_id", repositoryID, "pr_number", item.PRNumber, "merged", pr.Merged)
		return true, m.removeItem(ctx, item)
	}

	// Pushes since enqueue move the head pointer; gate against the
	// current one.
	item.Title = pr.Title
	item.HeadSHA = pr.HeadSHA
	item.HeadBranch = pr.HeadBranch
	item.BaseBranch = pr.BaseBranch

	if pr.Draft {
		return false, m.setStatus(ctx, item, models.QueueItemStatusBlocked, "pull request is a draft")
	}

	if policy.RequireChecks {
		combined, err := m.provider.GetCombinedStatus(ctx, item.Owner, item.Repo, pr.HeadSHA)
		if err != nil {
			return false, m.gateError(ctx, item, "combined status", err)
		}
		runs, err := m.provider.GetCheckRuns(ctx, item.Owner, item.Repo, pr.HeadSHA)
		if err != nil {
			return false, m.gateError(ctx, item, "check runs", err)
		}
		if ok, reason := checksPassing(combined, runs); !ok {
			return false, m.setStatus(ctx, item, models.QueueItemStatusBlocked, reason)
		}
	}

	if policy.RequireApprovals > 0 {
		reviews, err := m.provider.GetReviews(ctx, item.Owner, item.Repo, item.PRNumber)
		if err != nil {
			return false, m.gateError(ctx, item, "reviews", err)
		}
		if ok, reason := approvalsSatisfied(reviews, policy.RequireApprovals); !ok {
			return false, m.setStatus(ctx, item, models.QueueItemStatusBlocked, reason)
		}
	}

	if policy.RequireUpToDate {
		cmp, err := m.provider.CompareBranches(ctx, item.Owner, item.Repo, pr.BaseBranch, pr.HeadBranch)
		if err != nil {
			return false, m.gateError(ctx, item, "branch comparison", err)
		}
		if cmp.BehindBy > 0 {
			if !policy.AutoResolveConflicts {
				return false, m.setStatus(ctx, item, models.QueueItemStatusBlocked,
					fmt.Sprintf("behind base branch by %d commits", cmp.BehindBy))
			}
			return false, m.updateBranch(ctx, item)
		}
	}

	if policy.CheckConflicts {
		lock.Lock()
		peers, err := m.store.Range(ctx, repositoryID)
		lock.Unlock()
		if err != nil {
			return false, err
		}
		conflicts, err := m.conflictingPeers(ctx, item, peers)
		if err != nil {
			return false, m.gateError(ctx, item, "conflict detection", err)
		}
		if len(conflicts) > 0 {
			if policy.AutoResolveConflicts {
				return false, m.updateBranch(ctx, item)
			}
			item.ConflictsWith = conflicts
			return false, m.setStatus(ctx, item, models.QueueItemStatusConflicted,
				fmt.Sprintf("overlapping changes with %d queued pull request(s)", len(conflicts)))
		}
	}

	checksPassedAt := m.now().UTC()
	item.ChecksPassedAt = &checksPassedAt
	if err := m.setStatus(ctx, item, models.QueueItemStatusReady, ""); err != nil {
		return false, err
	}
	if !policy.AutoMergeEnabled {
		return false, nil
	}

	if err := m.setStatus(ctx, item, models.QueueItemStatusMerging, ""); err != nil {
		return false, err
	}
	sha, err := m.provider.MergePullRequest(ctx, item.Owner, item.Repo, item.PRNumber, string(policy.MergeMethod))
	if err != nil {
		slog.Error("Merge attempt failed",
			"repository_id", repositoryID, "pr_number", item.PRNumber, "error", err)
		return false, m.setStatus(ctx, item, models.QueueItemStatusFailed, "merge failed: "+err.Error())
	}

	mergedAt := m.now().UTC()
	item.MergedAt = &mergedAt
	if err := m.setStatus(ctx, item, models.QueueItemStatusMerged, ""); err != nil {
		return false, err
	}
	slog.Info("Merged pull request from queue",
		"repository_id", repositoryID, "pr_number", item.PRNumber, "sha", sha)
	return true, m.removeItem(ctx, item)
}

// conflictingPeers returns pr numbers of ahead-of-queue peers on the same
// base branch whose diffs overlap the item's diff. Peer diffs come through
// the provider's per-sha cache, so a stable queue costs one listing each.
func (m *Manager) conflictingPeers(ctx context.Context, item *models.QueueItem, peers []*models.QueueItem) ([]int, error) {
	itemDiff, err := m.provider.GetPullRequestDiff(ctx, item.Owner, item.Repo, item.PRNumber)
	if err != nil {
		return nil, err
	}

	var conflicts []int
	for _, peer := range peers {
		if peer.PRNumber == item.PRNumber || peer.Position >= item.Position || peer.BaseBranch != item.BaseBranch {
			continue
		}
		peerDiff, err := m.provider.GetPullRequestDiff(ctx, peer.Owner, peer.Repo, peer.PRNumber)
		if err != nil {
			return nil, err
		}
		if diffsConflict(itemDiff, peerDiff) {
			conflicts = append(conflicts, peer.PRNumber)
		}
	}
	return conflicts, nil
}

// updateBranch asks the provider to merge base into the head branch. On
// success the item returns to queued and requalifies on the next run; an
// update that hits a merge conflict parks the item for an operator.
func (m *Manager) updateBranch(ctx context.Context, item *models.QueueItem) error {
	if err := m.provider.UpdateBranch(ctx, item.Owner, item.Repo, item.PRNumber); err != nil {
		if errors.Is(err, provider.ErrMergeConflict) {
			return m.setStatus(ctx, item, models.QueueItemStatusBlocked, "branch update hit a merge conflict")
		}
		return m.gateError(ctx, item, "branch update", err)
	}
	return m.setStatus(ctx, item, models.QueueItemStatusQueued, "branch update triggered")
}

// gateError handles a gate evaluation failure conservatively: the item
// returns to queued at its position and the next run retries.
func (m *Manager) gateError(ctx context.Context, item *models.QueueItem, gate string, err error) error {
	slog.Warn("Merge queue gate evaluation failed",
		"repository_id", item.RepositoryID,
		"pr_number", item.PRNumber,
		"gate", gate,
		"error", err)
	return m.setStatus(ctx, item, models.QueueItemStatusQueued, "")
}

// setStatus persists a status transition and publishes it. The conflict
// list only survives a transition into conflicted.
func (m *Manager) setStatus(ctx context.Context, item *models.QueueItem, status models.QueueItemStatus, reason string) error {
	item.Status = status
	item.Reason = reason
	if status != models.QueueItemStatusConflicted {
		item.ConflictsWith = nil
	}

	lock := m.repoLock(item.RepositoryID)
	lock.Lock()
	err := m.store.Replace(ctx, item.RepositoryID, item.PRNumber, item)
	lock.Unlock()
	if err != nil {
		return err
	}

	m.publish(ctx, item)
	return nil
}

// removeItem deletes an item and recomputes peer positions.
func (m *Manager) removeItem(ctx context.Context, item *models.QueueItem) error {
	lock := m.repoLock(item.RepositoryID)
	lock.Lock()
	defer lock.Unlock()
	if _, err := m.store.Remove(ctx, item.RepositoryID, item.PRNumber); err != nil {
		return err
	}
	return m.recomputePositions(ctx, item.RepositoryID)
}

// recomputePositions assigns dense 1..N positions in score order, writing
// back and publishing only the items whose position changed. Caller must
// hold the repository lock.
func (m *Manager) recomputePositions(ctx context.Context, repositoryID string) error {
	scored, err := m.store.RangeWithScores(ctx, repositoryID)
	if err != nil {
		return err
	}
	for i, entry := range scored {
		want := i + 1
		if entry.Item.Position == want {
			continue
		}
		entry.Item.Position = want
		if err := m.store.Replace(ctx, repositoryID, entry.Item.PRNumber, entry.Item); err != nil {
			return err
		}
		m.publish(ctx, entry.Item)
	}
	return nil
}

// findQueued returns the stored item for a pull request. Caller holds the
// repository lock when the result feeds a write.
func (m *Manager) findQueued(ctx context.Context, repositoryID string, prNumber int) (*models.QueueItem, error) {
	items, err := m.store.Range(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.PRNumber == prNumber {
			return item, nil
		}
	}
	return nil, fmt.Errorf("pr %d not queued in %s: %w", prNumber, repositoryID, services.ErrNotFound)
}

// publish emits a queue.item_status event. Best-effort: failures are
// logged and never affect the transition.
func (m *Manager) publish(ctx context.Context, item *models.QueueItem) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishQueueItemStatus(ctx, item); err != nil {
		slog.Warn("Failed to publish queue item event",
			"repository_id", item.RepositoryID,
			"pr_number", item.PRNumber,
			"error", err)
	}
}

// repoLock returns the mutex serializing state mutations for one
// repository, creating it on first use.
func (m *Manager) repoLock(repositoryID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[repositoryID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[repositoryID] = lock
	}
	return lock
}

// tryBeginProcess marks a repository as processing. Returns false when a
// run is already in flight.
func (m *Manager) tryBeginProcess(repositoryID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[repositoryID] {
		return false
	}
	m.inFlight[repositoryID] = true
	return true
}

func (m *Manager) endProcess(repositoryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, repositoryID)
}

func validateEnqueue(req *models.EnqueueRequest) error {
	if req == nil {
		return services.NewValidationError("request", "request body is required")
	}
	if req.PRNumber <= 0 {
		return services.NewValidationError("pr_number", "pr_number must be positive")
	}
	if req.Owner == "" {
		return services.NewValidationError("owner", "owner is required")
	}
	if req.Repo == "" {
		return services.NewValidationError("repo", "repo is required")
	}
	if req.BaseBranch == "" {
		return services.NewValidationError("base_branch", "base_branch is required")
	}
	return nil
}
