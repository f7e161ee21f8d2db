package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/warden-ci/warden/pkg/models"
)

// ArtifactService persists per-stage agent artifacts. Saves are idempotent
// per workflow: a re-run replaces the previous artifact instead of
// accumulating duplicates.
type ArtifactService struct {
	db *sql.DB
}

// NewArtifactService creates a new ArtifactService.
func NewArtifactService(db *sql.DB) *ArtifactService {
	if db == nil {
		panic("NewArtifactService: db must not be nil")
	}
	return &ArtifactService{db: db}
}

func marshalJSON(field string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", field, err)
	}
	return string(b), nil
}

// SaveAnalysis upserts the analyzer artifact for a workflow.
func (s *ArtifactService) SaveAnalysis(ctx context.Context, analysis *models.Analysis) error {
	if analysis == nil || analysis.WorkflowID == "" {
		return NewValidationError("workflow_id", "workflow id is required")
	}

	semanticChanges, err := marshalJSON("semantic_changes", orEmptySlice(analysis.SemanticChanges))
	if err != nil {
		return err
	}
	impactRadius, err := marshalJSON("impact_radius", analysis.ImpactRadius)
	if err != nil {
		return err
	}
	riskFactors, err := marshalJSON("risk_factors", orEmptySlice(analysis.RiskFactors))
	if err != nil {
		return err
	}
	reviewers, err := marshalJSON("suggested_reviewers", orEmptySlice(analysis.SuggestedReviewers))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_analyses (workflow_id, classification, risk, files_changed, additions,
			deletions, semantic_changes, impact_radius, risk_factors, suggested_reviewers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (workflow_id) DO UPDATE SET
			classification = EXCLUDED.classification,
			risk = EXCLUDED.risk,
			files_changed = EXCLUDED.files_changed,
			additions = EXCLUDED.additions,
			deletions = EXCLUDED.deletions,
			semantic_changes = EXCLUDED.semantic_changes,
			impact_radius = EXCLUDED.impact_radius,
			risk_factors = EXCLUDED.risk_factors,
			suggested_reviewers = EXCLUDED.suggested_reviewers,
			updated_at = now()`,
		analysis.WorkflowID, string(analysis.Classification), string(analysis.Risk),
		analysis.FilesChanged, analysis.Additions, analysis.Deletions,
		semanticChanges, impactRadius, riskFactors, reviewers,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// GetAnalysis retrieves the analyzer artifact for a workflow.
func (s *ArtifactService) GetAnalysis(ctx context.Context, workflowID string) (*models.Analysis, error) {
	if workflowID == "" {
		return nil, NewValidationError("workflow_id", "workflow id is required")
	}

	var (
		a               models.Analysis
		semanticChanges []byte
		impactRadius    []byte
		riskFactors     []byte
		reviewers       []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, classification, risk, files_changed, additions, deletions,
			semantic_changes, impact_radius, risk_factors, suggested_reviewers
		FROM workflow_analyses WHERE workflow_id = $1`, workflowID).Scan(
		&a.WorkflowID, &a.Classification, &a.Risk, &a.FilesChanged, &a.Additions, &a.Deletions,
		&semanticChanges, &impactRadius, &riskFactors, &reviewers,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("analysis for workflow %s: %w", workflowID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	if err := json.Unmarshal(semanticChanges, &a.SemanticChanges); err != nil {
		return nil, fmt.Errorf("failed to decode semantic changes: %w", err)
	}
	if err := json.Unmarshal(impactRadius, &a.ImpactRadius); err != nil {
		return nil, fmt.Errorf("failed to decode impact radius: %w", err)
	}
	if err := json.Unmarshal(riskFactors, &a.RiskFactors); err != nil {
		return nil, fmt.Errorf("failed to decode risk factors: %w", err)
	}
	if err := json.Unmarshal(reviewers, &a.SuggestedReviewers); err != nil {
		return nil, fmt.Errorf("failed to decode suggested reviewers: %w", err)
	}
	return &a, nil
}

// SaveReviewComments replaces the reviewer artifact for a workflow in one
// transaction. Incoming comment IDs are preserved when set so re-runs keep
// stable identities; missing IDs are generated.
func (s *ArtifactService) SaveReviewComments(ctx context.Context, workflowID string, comments []models.ReviewComment) error {
	if workflowID == "" {
		return NewValidationError("workflow_id", "workflow id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM review_comments WHERE workflow_id = $1`, workflowID); err != nil {
		return fmt.Errorf("failed to clear review comments: %w", err)
	}

	for i := range comments {
		c := comments[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.Status == "" {
			c.Status = models.CommentStatusPending
		}
		var originalCode, suggestedCode sql.NullString
		if c.Suggestion != nil {
			originalCode = sql.NullString{String: c.Suggestion.OriginalCode, Valid: true}
			suggestedCode = sql.NullString{String: c.Suggestion.SuggestedCode, Valid: true}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO review_comments (id, workflow_id, file, line, severity, category,
				message, original_code, suggested_code, confidence, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID, workflowID, c.File, c.Line, string(c.Severity), string(c.Category),
			c.Message, originalCode, suggestedCode, c.Confidence, string(c.Status),
		); err != nil {
			return fmt.Errorf("failed to insert review comment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review comments: %w", err)
	}
	return nil
}

// GetReviewComments retrieves the reviewer artifact ordered most severe
// first, then by file and line. An empty result is a valid artifact, not
// ErrNotFound: a clean review produces zero comments.
func (s *ArtifactService) GetReviewComments(ctx context.Context, workflowID string) ([]models.ReviewComment, error) {
	if workflowID == "" {
		return nil, NewValidationError("workflow_id", "workflow id is required")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, file, line, severity, category, message,
			original_code, suggested_code, confidence, status
		FROM review_comments
		WHERE workflow_id = $1
		ORDER BY CASE severity
				WHEN 'critical' THEN 0
				WHEN 'high' THEN 1
				WHEN 'medium' THEN 2
				WHEN 'low' THEN 3
				WHEN 'nitpick' THEN 4
				ELSE 5
			END, file, line`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review comments: %w", err)
	}
	defer rows.Close()

	var comments []models.ReviewComment
	for rows.Next() {
		var (
			c             models.ReviewComment
			originalCode  sql.NullString
			suggestedCode sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.WorkflowID, &c.File, &c.Line, &c.Severity, &c.Category,
			&c.Message, &originalCode, &suggestedCode, &c.Confidence, &c.Status); err != nil {
			return nil, fmt.Errorf("failed to scan review comment: %w", err)
		}
		if originalCode.Valid || suggestedCode.Valid {
			c.Suggestion = &models.Suggestion{
				OriginalCode:  originalCode.String,
				SuggestedCode: suggestedCode.String,
			}
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review comments: %w", err)
	}
	return comments, nil
}

// UpdateReviewCommentStatus records what happened to a single comment.
func (s *ArtifactService) UpdateReviewCommentStatus(ctx context.Context, commentID string, status models.CommentStatus) error {
	if commentID == "" {
		return NewValidationError("comment_id", "comment id is required")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE review_comments SET status = $2, updated_at = now() WHERE id = $1`,
		commentID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update review comment status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("review comment %s: %w", commentID, ErrNotFound)
	}
	return nil
}

// UpdateReviewCommentStatuses is the batch form of UpdateReviewCommentStatus.
func (s *ArtifactService) UpdateReviewCommentStatuses(ctx context.Context, commentIDs []string, status models.CommentStatus) error {
	if len(commentIDs) == 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE review_comments SET status = $2, updated_at = now() WHERE id = ANY($1)`,
		commentIDs, string(status))
	if err != nil {
		return fmt.Errorf("failed to update review comment statuses: %w", err)
	}
	return nil
}

// SaveGeneratedTests upserts the test generator artifact for a workflow.
func (s *ArtifactService) SaveGeneratedTests(ctx context.Context, tests *models.GeneratedTests) error {
	if tests == nil || tests.WorkflowID == "" {
		return NewValidationError("workflow_id", "workflow id is required")
	}

	files, err := marshalJSON("files", orEmptySlice(tests.Files))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO generated_tests (workflow_id, files, summary)
		VALUES ($1, $2, $3)
		ON CONFLICT (workflow_id) DO UPDATE SET
			files = EXCLUDED.files,
			summary = EXCLUDED.summary,
			updated_at = now()`,
		tests.WorkflowID, files, tests.Summary,
	)
	if err != nil {
		return fmt.Errorf("failed to save generated tests: %w", err)
	}
	return nil
}

// GetGeneratedTests retrieves the test generator artifact for a workflow.
func (s *ArtifactService) GetGeneratedTests(ctx context.Context, workflowID string) (*models.GeneratedTests, error) {
	if workflowID == "" {
		return nil, NewValidationError("workflow_id", "workflow id is required")
	}

	var (
		t     models.GeneratedTests
		files []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, files, summary FROM generated_tests WHERE workflow_id = $1`,
		workflowID).Scan(&t.WorkflowID, &files, &t.Summary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("generated tests for workflow %s: %w", workflowID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get generated tests: %w", err)
	}
	if err := json.Unmarshal(files, &t.Files); err != nil {
		return nil, fmt.Errorf("failed to decode test files: %w", err)
	}
	return &t, nil
}

// SaveDocUpdates upserts the doc updater artifact for a workflow.
func (s *ArtifactService) SaveDocUpdates(ctx context.Context, docs *models.DocUpdates) error {
	if docs == nil || docs.WorkflowID == "" {
		return NewValidationError("workflow_id", "workflow id is required")
	}

	updates, err := marshalJSON("updates", orEmptySlice(docs.Updates))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO doc_updates (workflow_id, updates, summary)
		VALUES ($1, $2, $3)
		ON CONFLICT (workflow_id) DO UPDATE SET
			updates = EXCLUDED.updates,
			summary = EXCLUDED.summary,
			updated_at = now()`,
		docs.WorkflowID, updates, docs.Summary,
	)
	if err != nil {
		return fmt.Errorf("failed to save doc updates: %w", err)
	}
	return nil
}

// GetDocUpdates retrieves the doc updater artifact for a workflow.
func (s *ArtifactService) GetDocUpdates(ctx context.Context, workflowID string) (*models.DocUpdates, error) {
	if workflowID == "" {
		return nil, NewValidationError("workflow_id", "workflow id is required")
	}

	var (
		d       models.DocUpdates
		updates []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, updates, summary FROM doc_updates WHERE workflow_id = $1`,
		workflowID).Scan(&d.WorkflowID, &updates, &d.Summary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("doc updates for workflow %s: %w", workflowID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get doc updates: %w", err)
	}
	if err := json.Unmarshal(updates, &d.Updates); err != nil {
		return nil, fmt.Errorf("failed to decode doc updates: %w", err)
	}
	return &d, nil
}

// SaveSynthesis upserts the synthesizer artifact for a workflow.
func (s *ArtifactService) SaveSynthesis(ctx context.Context, synthesis *models.Synthesis) error {
	if synthesis == nil || synthesis.WorkflowID == "" {
		return NewValidationError("workflow_id", "workflow id is required")
	}

	highlights, err := marshalJSON("highlights", orEmptySlice(synthesis.Highlights))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO syntheses (workflow_id, summary, recommendation, highlights)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workflow_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			recommendation = EXCLUDED.recommendation,
			highlights = EXCLUDED.highlights,
			updated_at = now()`,
		synthesis.WorkflowID, synthesis.Summary, string(synthesis.Recommendation), highlights,
	)
	if err != nil {
		return fmt.Errorf("failed to save synthesis: %w", err)
	}
	return nil
}

// GetSynthesis retrieves the synthesizer artifact for a workflow.
func (s *ArtifactService) GetSynthesis(ctx context.Context, workflowID string) (*models.Synthesis, error) {
	if workflowID == "" {
		return nil, NewValidationError("workflow_id", "workflow id is required")
	}

	var (
		syn        models.Synthesis
		highlights []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, summary, recommendation, highlights FROM syntheses WHERE workflow_id = $1`,
		workflowID).Scan(&syn.WorkflowID, &syn.Summary, &syn.Recommendation, &highlights)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("synthesis for workflow %s: %w", workflowID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get synthesis: %w", err)
	}
	if err := json.Unmarshal(highlights, &syn.Highlights); err != nil {
		return nil, fmt.Errorf("failed to decode highlights: %w", err)
	}
	return &syn, nil
}

// orEmptySlice keeps JSONB columns as [] instead of null for nil slices.
func orEmptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
