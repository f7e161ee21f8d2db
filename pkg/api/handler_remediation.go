package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/warden-ci/warden/pkg/config"
	"github.com/warden-ci/warden/pkg/models"
)

// remediationConfigRequest is the request-level remediation config. Boolean
// fields are pointers so an absent field falls back to the server default
// while an explicit false stays false.
type remediationConfigRequest struct {
	AutoApplyThreshold  float64               `json:"auto_apply_threshold,omitempty"`
	IncludeSeverities   []models.Severity     `json:"include_severities,omitempty"`
	IncludeCategories   []models.Category     `json:"include_categories,omitempty"`
	SkipBreakingChanges *bool                 `json:"skip_breaking_changes,omitempty"`
	CommitStrategy      models.CommitStrategy `json:"commit_strategy,omitempty"`
	TriggerReanalysis   *bool                 `json:"trigger_reanalysis,omitempty"`
	DryRun              bool                  `json:"dry_run,omitempty"`
}

func (r remediationConfigRequest) validate() error {
	if r.AutoApplyThreshold < 0 || r.AutoApplyThreshold > 1 {
		return fmt.Errorf("auto_apply_threshold must be between 0 and 1")
	}
	for _, severity := range r.IncludeSeverities {
		if !severity.IsValid() {
			return fmt.Errorf("unknown severity %q", severity)
		}
	}
	for _, category := range r.IncludeCategories {
		if !category.IsValid() {
			return fmt.Errorf("unknown category %q", category)
		}
	}
	if r.CommitStrategy != "" && !r.CommitStrategy.IsValid() {
		return fmt.Errorf("unknown commit strategy %q", r.CommitStrategy)
	}
	return nil
}

func (r remediationConfigRequest) toConfig(defaults *config.RemediationSettings) models.RemediationConfig {
	if defaults == nil {
		defaults = config.DefaultRemediationSettings()
	}
	cfg := models.RemediationConfig{
		AutoApplyThreshold:  r.AutoApplyThreshold,
		IncludeSeverities:   r.IncludeSeverities,
		IncludeCategories:   r.IncludeCategories,
		SkipBreakingChanges: defaults.SkipBreakingChanges,
		CommitStrategy:      r.CommitStrategy,
		TriggerReanalysis:   defaults.TriggerReanalysis,
		DryRun:              r.DryRun,
	}
	if r.SkipBreakingChanges != nil {
		cfg.SkipBreakingChanges = *r.SkipBreakingChanges
	}
	if r.TriggerReanalysis != nil {
		cfg.TriggerReanalysis = *r.TriggerReanalysis
	}
	return cfg
}

// bindRemediationConfig reads the optional config body. An empty body means
// run with server defaults.
func (s *Server) bindRemediationConfig(c *gin.Context) (models.RemediationConfig, bool) {
	var req remediationConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return models.RemediationConfig{}, false
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return models.RemediationConfig{}, false
	}
	return req.toConfig(s.deps.RemediationDefaults), true
}

// planRemediation handles POST /api/v1/workflows/:id/remediation/plan.
// Plans are derived on demand and never stored.
func (s *Server) planRemediation(c *gin.Context) {
	cfg, ok := s.bindRemediationConfig(c)
	if !ok {
		return
	}
	plan, err := s.deps.Remediation.GeneratePlan(c.Request.Context(), c.Param("id"), cfg)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// executeRemediation handles POST /api/v1/workflows/:id/remediation/execute.
// The run is synchronous; the response reports applied, skipped, and failed
// fixes. Per-fix failures do not fail the request.
func (s *Server) executeRemediation(c *gin.Context) {
	cfg, ok := s.bindRemediationConfig(c)
	if !ok {
		return
	}
	workflowID := c.Param("id")
	result, err := s.deps.Remediation.Execute(c.Request.Context(), workflowID, cfg)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	slog.Info("Remediation run finished",
		"workflow_id", workflowID,
		"success", result.Success,
		"applied", len(result.Applied),
		"failed", len(result.Failed),
		"dry_run", result.DryRun)
	c.JSON(http.StatusOK, result)
}
