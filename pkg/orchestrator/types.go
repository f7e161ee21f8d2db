// Package orchestrator drives pull request workflows through the staged
// review pipeline. A pool of workers claims pending workflows from the
// database and hands each one to an executor that runs analysis, the
// parallel agent phase, synthesis, and publication.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
)

// Sentinel errors for pool operations.
var (
	// ErrNoWorkflowsAvailable indicates no pending workflows are waiting.
	ErrNoWorkflowsAvailable = errors.New("no workflows available")

	// ErrAtCapacity indicates the global concurrent workflow limit has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// WorkflowExecutor is the interface for workflow processing.
//
// The executor owns the ENTIRE workflow lifecycle internally: stage
// transitions, artifact persistence, publication, and the terminal status.
// The worker only handles claiming, heartbeat, and cancellation
// registration.
type WorkflowExecutor interface {
	Run(ctx context.Context, workflowID string) error
}

// WorkflowStore is the workflow persistence surface the orchestrator
// depends on. Satisfied by *services.WorkflowService.
type WorkflowStore interface {
	GetWorkflowWithSettings(ctx context.Context, workflowID string) (*models.WorkflowWithSettings, error)
	UpdateWorkflowStatus(ctx context.Context, workflowID string, status models.WorkflowStatus) error
	SetCheckRunID(ctx context.Context, workflowID string, checkRunID int64) error
	MarkWorkflowCompleted(ctx context.Context, workflowID string) error
	MarkWorkflowFailed(ctx context.Context, workflowID, reason string) error
	ClaimNextWorkflow(ctx context.Context, workerID string) (*models.Workflow, error)
	Heartbeat(ctx context.Context, workflowID, workerID string) error
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
	RequeueByWorkerPrefix(ctx context.Context, podID string) (int64, error)
	CountByStatus(ctx context.Context) (map[models.WorkflowStatus]int, error)
}

// ArtifactStore persists stage artifacts. Satisfied by
// *services.ArtifactService.
type ArtifactStore interface {
	SaveAnalysis(ctx context.Context, analysis *models.Analysis) error
	SaveReviewComments(ctx context.Context, workflowID string, comments []models.ReviewComment) error
	SaveGeneratedTests(ctx context.Context, tests *models.GeneratedTests) error
	SaveDocUpdates(ctx context.Context, docs *models.DocUpdates) error
	SaveSynthesis(ctx context.Context, synthesis *models.Synthesis) error
	UpdateReviewCommentStatuses(ctx context.Context, commentIDs []string, status models.CommentStatus) error
}

// Provider is the forge surface the executor needs. Satisfied by
// *provider.Client.
type Provider interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*provider.PullRequest, error)
	GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (*provider.Diff, error)
	CreateCheckRun(ctx context.Context, owner, repo, sha, name string) (int64, error)
	CompleteCheckRun(ctx context.Context, owner, repo string, id int64, conclusion, title, summary string) error
	PostSummaryComment(ctx context.Context, owner, repo string, number int, body string) error
	PostReviewComments(ctx context.Context, owner, repo string, number int, sha string,
		comments []models.ReviewComment, threshold models.Severity) ([]models.ReviewComment, error)
}

// EventSink publishes observability events. Satisfied by
// *events.Publisher. Every publish is best-effort; failures are logged
// and never affect the workflow outcome.
type EventSink interface {
	PublishWorkflowStatus(ctx context.Context, w *models.Workflow) error
	PublishAgentCompleted(ctx context.Context, w *models.Workflow, agent string, success bool, agentErr string, latencyMs int64) error
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool                          `json:"is_healthy"`
	DBReachable      bool                          `json:"db_reachable"`
	DBError          string                        `json:"db_error,omitempty"`
	PodID            string                        `json:"pod_id"`
	ActiveWorkers    int                           `json:"active_workers"`
	TotalWorkers     int                           `json:"total_workers"`
	ActiveWorkflows  int                           `json:"active_workflows"`
	MaxConcurrent    int                           `json:"max_concurrent"`
	QueueDepth       int                           `json:"queue_depth"`
	StatusCounts     map[models.WorkflowStatus]int `json:"status_counts,omitempty"`
	WorkerStats      []WorkerHealth                `json:"worker_stats"`
	LastOrphanScan   time.Time                     `json:"last_orphan_scan"`
	OrphansRecovered int                           `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID                 string    `json:"id"`
	Status             string    `json:"status"` // "idle" or "working"
	CurrentWorkflowID  string    `json:"current_workflow_id,omitempty"`
	WorkflowsProcessed int       `json:"workflows_processed"`
	LastActivity       time.Time `json:"last_activity"`
}
