package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warden-ci/warden/pkg/models"
)

// workflowColumns is the canonical select list scanned by scanWorkflow.
const workflowColumns = `id, repository_id, pr_number, owner, repo, head_sha, installation_id,
	status, check_run_id, author, title, base_branch, head_branch, error, worker_id,
	created_at, started_at, completed_at`

// WorkflowService handles workflow lifecycle persistence. One row per
// (repository, PR); re-submitted PR events requeue settled rows instead of
// creating duplicates.
type WorkflowService struct {
	db *sql.DB
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(db *sql.DB) *WorkflowService {
	if db == nil {
		panic("NewWorkflowService: db must not be nil")
	}
	return &WorkflowService{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		w           models.Workflow
		workerID    sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&w.ID, &w.RepositoryID, &w.PRNumber, &w.Owner, &w.Repo, &w.HeadSHA, &w.InstallationID,
		&w.Status, &w.CheckRunID, &w.Author, &w.Title, &w.BaseBranch, &w.HeadBranch, &w.Error, &workerID,
		&w.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	w.WorkerID = workerID.String
	if startedAt.Valid {
		w.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		w.CompletedAt = &completedAt.Time
	}
	return &w, nil
}

// CreateWorkflow creates a pending workflow for a PR event. A second event
// for the same PR while a run is pending or in flight returns
// ErrAlreadyExists; after the previous run settled, the row is requeued
// (status reset to pending, claim and artifact pointers cleared) in the
// same statement.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, req models.CreateWorkflowRequest) (*models.Workflow, error) {
	ev := req.Event
	if ev.RepositoryID == "" {
		return nil, NewValidationError("repository_id", "repository id is required")
	}
	if ev.PRNumber <= 0 {
		return nil, NewValidationError("pr_number", "pr number must be positive")
	}
	if ev.Owner == "" || ev.Repo == "" {
		return nil, NewValidationError("repository", "owner and repo are required")
	}
	if ev.HeadSHA == "" {
		return nil, NewValidationError("head_sha", "head sha is required")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO workflows (id, repository_id, pr_number, owner, repo, head_sha, installation_id,
			status, author, title, base_branch, head_branch)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9, $10, $11)
		ON CONFLICT (repository_id, pr_number) DO UPDATE SET
			status = 'pending',
			head_sha = EXCLUDED.head_sha,
			installation_id = EXCLUDED.installation_id,
			author = EXCLUDED.author,
			title = EXCLUDED.title,
			base_branch = EXCLUDED.base_branch,
			head_branch = EXCLUDED.head_branch,
			check_run_id = 0,
			error = '',
			worker_id = NULL,
			heartbeat_at = NULL,
			started_at = NULL,
			completed_at = NULL
		WHERE workflows.status IN ('completed', 'failed')
		RETURNING `+workflowColumns,
		uuid.New().String(), ev.RepositoryID, ev.PRNumber, ev.Owner, ev.Repo, ev.HeadSHA, ev.InstallationID,
		req.Author, req.Title, req.BaseBranch, req.HeadBranch,
	)

	workflow, err := scanWorkflow(row)
	if err != nil {
		// No row back means the conflict target exists and is not settled.
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow for %s#%d: %w", ev.RepositoryID, ev.PRNumber, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}
	return workflow, nil
}

// GetWorkflow retrieves a workflow by ID.
func (s *WorkflowService) GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	if workflowID == "" {
		return nil, NewValidationError("workflow_id", "workflow id is required")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, workflowID)
	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return workflow, nil
}

// GetWorkflowByPR retrieves a workflow by its (repository, PR) identity.
func (s *WorkflowService) GetWorkflowByPR(ctx context.Context, repositoryID string, prNumber int) (*models.Workflow, error) {
	if repositoryID == "" {
		return nil, NewValidationError("repository_id", "repository id is required")
	}
	if prNumber <= 0 {
		return nil, NewValidationError("pr_number", "pr number must be positive")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE repository_id = $1 AND pr_number = $2`,
		repositoryID, prNumber)
	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow for %s#%d: %w", repositoryID, prNumber, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get workflow by pr: %w", err)
	}
	return workflow, nil
}

// GetWorkflowWithSettings retrieves a workflow joined with its repository
// settings. Repositories without a settings row get the defaults.
func (s *WorkflowService) GetWorkflowWithSettings(ctx context.Context, workflowID string) (*models.WorkflowWithSettings, error) {
	if workflowID == "" {
		return nil, NewValidationError("workflow_id", "workflow id is required")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT w.id, w.repository_id, w.pr_number, w.owner, w.repo, w.head_sha, w.installation_id,
			w.status, w.check_run_id, w.author, w.title, w.base_branch, w.head_branch, w.error, w.worker_id,
			w.created_at, w.started_at, w.completed_at,
			rs.review_enabled, rs.test_generation_enabled, rs.doc_updates_enabled, rs.severity_threshold
		FROM workflows w
		LEFT JOIN repository_settings rs ON rs.repository_id = w.repository_id
		WHERE w.id = $1`, workflowID)

	var (
		w           models.Workflow
		workerID    sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
		review      sql.NullBool
		testGen     sql.NullBool
		docUpdates  sql.NullBool
		threshold   sql.NullString
	)
	err := row.Scan(
		&w.ID, &w.RepositoryID, &w.PRNumber, &w.Owner, &w.Repo, &w.HeadSHA, &w.InstallationID,
		&w.Status, &w.CheckRunID, &w.Author, &w.Title, &w.BaseBranch, &w.HeadBranch, &w.Error, &workerID,
		&w.CreatedAt, &startedAt, &completedAt,
		&review, &testGen, &docUpdates, &threshold,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get workflow with settings: %w", err)
	}
	w.WorkerID = workerID.String
	if startedAt.Valid {
		w.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		w.CompletedAt = &completedAt.Time
	}

	settings := models.DefaultRepositorySettings(w.RepositoryID)
	if review.Valid {
		settings.ReviewEnabled = review.Bool
		settings.TestGenerationEnabled = testGen.Bool
		settings.DocUpdatesEnabled = docUpdates.Bool
		settings.SeverityThreshold = models.Severity(threshold.String)
	}

	return &models.WorkflowWithSettings{Workflow: w, Settings: settings}, nil
}

// UpdateWorkflowStatus sets the workflow status. Entering analysis stamps
// StartedAt if it was never set.
func (s *WorkflowService) UpdateWorkflowStatus(ctx context.Context, workflowID string, status models.WorkflowStatus) error {
	if workflowID == "" {
		return NewValidationError("workflow_id", "workflow id is required")
	}
	if status == "" {
		return NewValidationError("status", "status is required")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET status = $2,
			started_at = CASE WHEN $2 = 'analyzing' AND started_at IS NULL THEN now() ELSE started_at END
		WHERE id = $1`, workflowID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update workflow status: %w", err)
	}
	return requireRowAffected(res, workflowID)
}

// SetCheckRunID stores the provider check-run identifier for the workflow.
func (s *WorkflowService) SetCheckRunID(ctx context.Context, workflowID string, checkRunID int64) error {
	if workflowID == "" {
		return NewValidationError("workflow_id", "workflow id is required")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET check_run_id = $2 WHERE id = $1`, workflowID, checkRunID)
	if err != nil {
		return fmt.Errorf("failed to set check run id: %w", err)
	}
	return requireRowAffected(res, workflowID)
}

// MarkWorkflowCompleted settles the workflow as completed. Runs on a
// detached write context so a cancelled run can still settle.
func (s *WorkflowService) MarkWorkflowCompleted(_ context.Context, workflowID string) error {
	if workflowID == "" {
		return NewValidationError("workflow_id", "workflow id is required")
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(writeCtx, `
		UPDATE workflows SET status = 'completed', completed_at = now(),
			worker_id = NULL, heartbeat_at = NULL
		WHERE id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to mark workflow completed: %w", err)
	}
	return requireRowAffected(res, workflowID)
}

// MarkWorkflowFailed settles the workflow as failed with a reason. Runs on
// a detached write context so a cancelled run can still settle.
func (s *WorkflowService) MarkWorkflowFailed(_ context.Context, workflowID, reason string) error {
	if workflowID == "" {
		return NewValidationError("workflow_id", "workflow id is required")
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(writeCtx, `
		UPDATE workflows SET status = 'failed', error = $2, completed_at = now(),
			worker_id = NULL, heartbeat_at = NULL
		WHERE id = $1`, workflowID, reason)
	if err != nil {
		return fmt.Errorf("failed to mark workflow failed: %w", err)
	}
	return requireRowAffected(res, workflowID)
}

// RequeueForAnalysis resets a settled workflow back to pending so the next
// claim re-runs the pipeline. Only terminal workflows can re-enter; a
// pending or in-flight workflow returns ErrStateConflict.
func (s *WorkflowService) RequeueForAnalysis(ctx context.Context, workflowID string) error {
	if workflowID == "" {
		return NewValidationError("workflow_id", "workflow id is required")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET status = 'pending', error = '',
			worker_id = NULL, heartbeat_at = NULL, started_at = NULL, completed_at = NULL
		WHERE id = $1 AND status IN ('completed', 'failed')`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to requeue workflow: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read requeue result: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Distinguish missing from not-yet-settled.
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM workflows WHERE id = $1`, workflowID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check workflow status: %w", err)
	}
	return fmt.Errorf("workflow %s is %s: %w", workflowID, status, ErrStateConflict)
}

// ClaimNextWorkflow atomically claims the oldest pending workflow for a
// worker using FOR UPDATE SKIP LOCKED. No pending work returns ErrNotFound.
func (s *WorkflowService) ClaimNextWorkflow(ctx context.Context, workerID string) (*models.Workflow, error) {
	if workerID == "" {
		return nil, NewValidationError("worker_id", "worker id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM workflows
		WHERE status = 'pending' AND worker_id IS NULL
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no pending workflows: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query pending workflow: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE workflows SET worker_id = $2, heartbeat_at = now()
		WHERE id = $1
		RETURNING `+workflowColumns, id, workerID)
	workflow, err := scanWorkflow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to claim workflow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return workflow, nil
}

// Heartbeat refreshes the claim timestamp. ErrStateConflict means the claim
// was lost (orphan recovery reassigned the workflow).
func (s *WorkflowService) Heartbeat(ctx context.Context, workflowID, workerID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET heartbeat_at = now() WHERE id = $1 AND worker_id = $2`,
		workflowID, workerID)
	if err != nil {
		return fmt.Errorf("failed to heartbeat workflow: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read heartbeat result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("claim on workflow %s lost: %w", workflowID, ErrStateConflict)
	}
	return nil
}

// RequeueStale resets claimed, non-terminal workflows whose heartbeat is
// older than the threshold. Returns the number of recovered workflows.
func (s *WorkflowService) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET status = 'pending', worker_id = NULL, heartbeat_at = NULL
		WHERE worker_id IS NOT NULL AND heartbeat_at < $1
			AND status NOT IN ('completed', 'failed')`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale workflows: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read requeue result: %w", err)
	}
	return rows, nil
}

// RequeueByWorkerPrefix resets non-terminal workflows claimed by workers of
// one pod, regardless of heartbeat age. Called once at startup so a
// restarted pod releases its previous claims immediately.
func (s *WorkflowService) RequeueByWorkerPrefix(ctx context.Context, podID string) (int64, error) {
	if podID == "" {
		return 0, NewValidationError("pod_id", "pod id is required")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET status = 'pending', worker_id = NULL, heartbeat_at = NULL
		WHERE worker_id LIKE $1 AND status NOT IN ('completed', 'failed')`,
		podID+"-%")
	if err != nil {
		return 0, fmt.Errorf("failed to requeue pod workflows: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read requeue result: %w", err)
	}
	return rows, nil
}

// CountByStatus returns workflow counts grouped by status, for health
// reporting and capacity checks.
func (s *WorkflowService) CountByStatus(ctx context.Context) (map[models.WorkflowStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM workflows GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count workflows: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.WorkflowStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan workflow count: %w", err)
		}
		counts[models.WorkflowStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflow counts: %w", err)
	}
	return counts, nil
}

// DeleteTerminalOlderThan removes terminal workflows settled before the
// cutoff. Artifacts cascade via foreign keys. Used by retention cleanup.
func (s *WorkflowService) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM workflows
		WHERE status IN ('completed', 'failed') AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old workflows: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return rows, nil
}

func requireRowAffected(res sql.Result, workflowID string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	return nil
}
