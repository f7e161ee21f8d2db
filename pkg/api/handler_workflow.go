package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/warden-ci/warden/pkg/services"
)

// getWorkflow handles GET /api/v1/workflows/:id. The response carries the
// workflow row plus a summary of whatever artifacts the pipeline has
// produced so far.
func (s *Server) getWorkflow(c *gin.Context) {
	workflowID := c.Param("id")
	workflow, err := s.deps.Workflows.GetWorkflow(c.Request.Context(), workflowID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, WorkflowDetailResponse{
		Workflow:  workflow,
		Artifacts: s.artifactSummary(c.Request.Context(), workflowID),
	})
}

// artifactSummary collects per-stage artifacts. Missing stages are normal
// for in-flight workflows; unexpected fetch errors degrade the summary
// instead of failing the request.
func (s *Server) artifactSummary(ctx context.Context, workflowID string) ArtifactSummary {
	var summary ArtifactSummary
	if s.deps.Artifacts == nil {
		return summary
	}

	warn := func(stage string, err error) {
		if err != nil && !errors.Is(err, services.ErrNotFound) {
			slog.Warn("Artifact lookup failed", "workflow_id", workflowID, "stage", stage, "error", err)
		}
	}

	analysis, err := s.deps.Artifacts.GetAnalysis(ctx, workflowID)
	warn("analysis", err)
	if err == nil {
		summary.Analysis = analysis
	}

	comments, err := s.deps.Artifacts.GetReviewComments(ctx, workflowID)
	warn("review", err)
	if err == nil {
		summary.ReviewCommentCount = len(comments)
	}

	tests, err := s.deps.Artifacts.GetGeneratedTests(ctx, workflowID)
	warn("tests", err)
	if err == nil {
		summary.GeneratedTests = tests
	}

	docs, err := s.deps.Artifacts.GetDocUpdates(ctx, workflowID)
	warn("docs", err)
	if err == nil {
		summary.DocUpdates = docs
	}

	synthesis, err := s.deps.Artifacts.GetSynthesis(ctx, workflowID)
	warn("synthesis", err)
	if err == nil {
		summary.Synthesis = synthesis
	}
	return summary
}

// getReviewComments handles GET /api/v1/workflows/:id/review.
func (s *Server) getReviewComments(c *gin.Context) {
	workflowID := c.Param("id")
	if _, err := s.deps.Workflows.GetWorkflow(c.Request.Context(), workflowID); err != nil {
		mapServiceError(c, err)
		return
	}
	comments, err := s.deps.Artifacts.GetReviewComments(c.Request.Context(), workflowID)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ReviewCommentsResponse{
		WorkflowID: workflowID,
		Comments:   comments,
		Count:      len(comments),
	})
}

// cancelWorkflow handles POST /api/v1/workflows/:id/cancel. Cancellation
// reaches only runs currently held by this instance's worker pool; a
// workflow that is not running answers 409.
func (s *Server) cancelWorkflow(c *gin.Context) {
	workflowID := c.Param("id")
	workflow, err := s.deps.Workflows.GetWorkflow(c.Request.Context(), workflowID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if s.deps.Pool == nil || !s.deps.Pool.CancelWorkflow(workflowID) {
		c.JSON(http.StatusConflict, gin.H{
			"error": fmt.Sprintf("workflow is not running (status %s)", workflow.Status),
		})
		return
	}
	slog.Info("Cancellation requested", "workflow_id", workflowID)
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": workflowID, "status": "cancelling"})
}
