// Package mergequeue manages per-repository merge queues: ordered sets of
// pull requests advancing through gating checks toward an automated merge.
//
// Queue state lives in Redis, one sorted set per repository, with the
// insertion score encoding priority and arrival time so a score-ascending
// scan yields processing order directly. Processing is single-flight per
// repository while runs for different repositories proceed concurrently,
// and every read-modify-write section is serialized by a per-repository
// lock so API mutations never interleave with a gating pass.
package mergequeue

import (
	"context"
	"time"

	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
)

// Store is the queue persistence surface. Implementations keep each
// repository's items in score-ascending order and swap stored members
// atomically.
type Store interface {
	// Add inserts an item with the given ordering score.
	Add(ctx context.Context, repositoryID string, item *models.QueueItem, score float64) error

	// Remove deletes the item for a pull request. Missing items are not an
	// error; the bool reports whether something was removed.
	Remove(ctx context.Context, repositoryID string, prNumber int) (bool, error)

	// Range returns all items in score-ascending order.
	Range(ctx context.Context, repositoryID string) ([]*models.QueueItem, error)

	// RangeWithScores returns all items with their scores, score-ascending.
	RangeWithScores(ctx context.Context, repositoryID string) ([]ScoredItem, error)

	// Replace atomically swaps the stored member for a pull request with a
	// new rendition at its existing score. Returns services.ErrNotFound
	// when the item is no longer queued.
	Replace(ctx context.Context, repositoryID string, prNumber int, item *models.QueueItem) error

	// Repositories lists repository IDs that currently have queued items.
	Repositories(ctx context.Context) ([]string, error)
}

// ScoredItem pairs a queue item with its ordering score.
type ScoredItem struct {
	Item  *models.QueueItem
	Score float64
}

// Provider is the forge surface the queue needs for gate evaluation,
// branch updates and merging. Satisfied by *provider.Client.
type Provider interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*provider.PullRequest, error)
	GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (*provider.Diff, error)
	GetCombinedStatus(ctx context.Context, owner, repo, sha string) (*provider.CombinedStatus, error)
	GetCheckRuns(ctx context.Context, owner, repo, sha string) ([]provider.CheckRun, error)
	GetReviews(ctx context.Context, owner, repo string, number int) ([]provider.Review, error)
	CompareBranches(ctx context.Context, owner, repo, base, head string) (*provider.BranchComparison, error)
	UpdateBranch(ctx context.Context, owner, repo string, number int) error
	MergePullRequest(ctx context.Context, owner, repo string, number int, method string) (string, error)
}

// EventSink publishes queue observability events. Satisfied by
// *events.Publisher. Publishes are best-effort and never block a
// transition.
type EventSink interface {
	PublishQueueItemStatus(ctx context.Context, item *models.QueueItem) error
}

// insertionScore computes the ordering score for an item: arrival time in
// epoch milliseconds minus one million per priority point, so higher
// priority sorts ahead of anything added around the same time.
func insertionScore(addedAt time.Time, priority int) float64 {
	return float64(addedAt.UnixMilli() - int64(priority)*1_000_000)
}
