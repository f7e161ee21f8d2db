// Package remediation turns review findings into applied fixes. The engine
// derives a phased plan from a workflow's review comments, applies the
// auto-applicable phases to the pull request branch through the provider
// contents API, and optionally requeues the workflow for a fresh analysis.
//
// Runs are serialized per workflow because they mutate the same comment
// statuses and branch state; runs for different workflows are independent.
package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/warden-ci/warden/pkg/config"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
	"github.com/warden-ci/warden/pkg/services"
)

// WorkflowStore is the workflow surface the engine needs. Satisfied by
// *services.WorkflowService.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error)
	RequeueForAnalysis(ctx context.Context, workflowID string) error
}

// ArtifactStore supplies review comments and records fix application.
// Satisfied by *services.ArtifactService.
type ArtifactStore interface {
	GetReviewComments(ctx context.Context, workflowID string) ([]models.ReviewComment, error)
	UpdateReviewCommentStatuses(ctx context.Context, commentIDs []string, status models.CommentStatus) error
}

// Provider is the forge surface used to apply fixes. Satisfied by
// *provider.Client.
type Provider interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*provider.PullRequest, error)
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (*provider.FileContent, error)
	UpdateFile(ctx context.Context, owner, repo, path, branch, message, content, blobSHA string) (string, error)
}

// EventSink publishes remediation progress events. Satisfied by
// *events.Publisher. Publishes are best-effort.
type EventSink interface {
	PublishRemediationProgress(ctx context.Context, w *models.Workflow, status, phase string, applied, skipped, failed int) error
}

// Engine plans and executes remediation runs.
type Engine struct {
	workflows WorkflowStore
	artifacts ArtifactStore
	provider  Provider
	events    EventSink
	settings  *config.RemediationSettings

	// mu guards active, the per-workflow run registry.
	mu     sync.Mutex
	active map[string]bool
}

// NewEngine creates a remediation engine.
func NewEngine(workflows WorkflowStore, artifacts ArtifactStore, prov Provider, sink EventSink, settings *config.RemediationSettings) *Engine {
	if settings == nil {
		settings = config.DefaultRemediationSettings()
	}
	return &Engine{
		workflows: workflows,
		artifacts: artifacts,
		provider:  prov,
		events:    sink,
		settings:  settings,
		active:    make(map[string]bool),
	}
}

// GeneratePlan derives the phased remediation plan for a workflow's review
// findings without touching the branch.
func (e *Engine) GeneratePlan(ctx context.Context, workflowID string, cfg models.RemediationConfig) (*models.RemediationPlan, error) {
	if !e.settings.Enabled {
		return nil, fmt.Errorf("remediation is disabled: %w", services.ErrStateConflict)
	}
	cfg = e.settings.DefaultsFor(cfg)

	if _, err := e.workflows.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	comments, err := e.artifacts.GetReviewComments(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return buildPlan(workflowID, comments, cfg), nil
}

// Execute walks the plan's phases in order and applies every phase that
// can auto-apply. Per-fix failures never abort the run; a failed commit
// write aborts only its own phase. A dry run walks all phases and reports
// what a real run would do without committing anything.
//
// At most one run may execute per workflow; a concurrent call returns
// services.ErrStateConflict.
func (e *Engine) Execute(ctx context.Context, workflowID string, cfg models.RemediationConfig) (*models.RemediationResult, error) {
	if !e.settings.Enabled {
		return nil, fmt.Errorf("remediation is disabled: %w", services.ErrStateConflict)
	}
	cfg = e.settings.DefaultsFor(cfg)

	if !e.tryBegin(workflowID) {
		return nil, fmt.Errorf("remediation already running for workflow %s: %w", workflowID, services.ErrStateConflict)
	}
	defer e.endRun(workflowID)

	w, err := e.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	comments, err := e.artifacts.GetReviewComments(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	plan := buildPlan(workflowID, comments, cfg)
	suggestions := suggestionIndex(comments)

	headBranch := w.HeadBranch
	if headBranch == "" && !cfg.DryRun {
		pr, err := e.provider.GetPullRequest(ctx, w.Owner, w.Repo, w.PRNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve head branch for workflow %s: %w", workflowID, err)
		}
		headBranch = pr.HeadBranch
	}

	result := &models.RemediationResult{
		WorkflowID: workflowID,
		DryRun:     cfg.DryRun,
	}
	e.publish(ctx, w, "started", "", result)

	cancelled := false
	for _, phase := range plan.Phases {
		if ctx.Err() != nil {
			cancelled = true
		}
		switch {
		case cancelled:
			e.skipPhase(result, phase, "execution cancelled")
		case cfg.DryRun:
			if phase.CanAutoApply {
				result.Applied = append(result.Applied, phase.Fixes...)
			} else {
				e.skipPhase(result, phase, "")
			}
			result.PhasesCompleted++
		case !phase.CanAutoApply:
			e.skipPhase(result, phase, "")
			result.PhasesCompleted++
		default:
			e.applyPhase(ctx, w, headBranch, phase, cfg.CommitStrategy, suggestions, result)
		}
		if !cancelled {
			e.publish(ctx, w, "phase_completed", phase.Name, result)
		}
	}

	if cfg.TriggerReanalysis && len(result.Applied) > 0 && !cfg.DryRun {
		if err := e.workflows.RequeueForAnalysis(ctx, workflowID); err != nil {
			slog.Warn("Failed to requeue workflow for reanalysis",
				"workflow_id", workflowID, "error", err)
		} else {
			result.ReanalysisTriggered = true
		}
	}

	result.Success = len(result.Failed) == 0
	status := "completed"
	if !result.Success {
		status = "failed"
	}
	e.publish(ctx, w, status, "", result)

	slog.Info("Remediation run finished",
		"workflow_id", workflowID,
		"phases_completed", result.PhasesCompleted,
		"applied", len(result.Applied),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
		"dry_run", cfg.DryRun)
	return result, nil
}

// applyPhase applies one phase's fixes file by file. The contents API
// commits one file per call, so the commit strategy governs message
// grouping: single and per-phase stamp the phase message on every file
// commit, per-file describes each file's own fix. A failed commit write
// fails the remaining file groups and leaves the phase uncounted.
func (e *Engine) applyPhase(ctx context.Context, w *models.Workflow, headBranch string, phase models.RemediationPhase, strategy models.CommitStrategy, suggestions map[string]*models.Suggestion, result *models.RemediationResult) {
	groups, order := groupByFile(phase.Fixes)

	var appliedIDs []string
	aborted := false
	for _, file := range order {
		if aborted {
			for _, fix := range groups[file] {
				result.Failed = append(result.Failed, models.FailedFix{
					Fix: fix, Error: "phase aborted after commit failure",
				})
			}
			continue
		}

		content, err := e.provider.GetFileContent(ctx, w.Owner, w.Repo, file, headBranch)
		if err != nil {
			for _, fix := range groups[file] {
				result.Failed = append(result.Failed, models.FailedFix{
					Fix: fix, Error: fmt.Sprintf("failed to fetch %s: %v", file, err),
				})
			}
			continue
		}

		text := content.Content
		var applied []models.FixApplicability
		for _, fix := range groups[file] {
			suggestion := suggestions[fix.CommentID]
			if suggestion == nil {
				result.Failed = append(result.Failed, models.FailedFix{
					Fix: fix, Error: "suggestion not found",
				})
				continue
			}
			if !strings.Contains(text, suggestion.OriginalCode) {
				result.Failed = append(result.Failed, models.FailedFix{
					Fix: fix, Error: fmt.Sprintf("original code not found in %s", file),
				})
				continue
			}
			text = strings.Replace(text, suggestion.OriginalCode, suggestion.SuggestedCode, 1)
			applied = append(applied, fix)
		}
		if len(applied) == 0 {
			continue
		}

		message := commitMessage(strategy, phase, applied, file)
		sha, err := e.provider.UpdateFile(ctx, w.Owner, w.Repo, file, headBranch, message, text, content.SHA)
		if err != nil {
			slog.Error("Fix commit failed, aborting phase",
				"workflow_id", w.ID, "phase", phase.Name, "file", file, "error", err)
			for _, fix := range applied {
				result.Failed = append(result.Failed, models.FailedFix{
					Fix: fix, Error: fmt.Sprintf("failed to commit %s: %v", file, err),
				})
			}
			aborted = true
			continue
		}

		result.CommitShas = append(result.CommitShas, sha)
		result.Applied = append(result.Applied, applied...)
		for _, fix := range applied {
			appliedIDs = append(appliedIDs, fix.CommentID)
		}
	}

	// The branch already carries the fixes; a failed status write must not
	// turn them into failures.
	if len(appliedIDs) > 0 {
		if err := e.artifacts.UpdateReviewCommentStatuses(ctx, appliedIDs, models.CommentStatusFixApplied); err != nil {
			slog.Warn("Failed to mark comments fix_applied", "workflow_id", w.ID, "error", err)
		}
	}
	if !aborted {
		result.PhasesCompleted++
	}
}

// skipPhase records every fix of a phase as skipped. An explicit reason
// overrides the per-fix applicability reasons.
func (e *Engine) skipPhase(result *models.RemediationResult, phase models.RemediationPhase, reason string) {
	for _, fix := range phase.Fixes {
		result.Skipped = append(result.Skipped, models.SkippedFix{
			Fix:    fix,
			Reason: skipReason(phase, fix, reason),
		})
	}
}

func skipReason(phase models.RemediationPhase, fix models.FixApplicability, override string) string {
	if override != "" {
		return override
	}
	if phase.RequiresReview {
		return "phase requires human review"
	}
	if fix.Reason != "" {
		return fix.Reason
	}
	return "phase cannot auto-apply"
}

// commitMessage renders the message for one file write under the
// configured strategy.
func commitMessage(strategy models.CommitStrategy, phase models.RemediationPhase, applied []models.FixApplicability, file string) string {
	if strategy == models.CommitStrategyPerFile {
		return fmt.Sprintf("fix: %s %s", applied[0].Category, file)
	}
	return fmt.Sprintf("fix: apply %s fixes", phase.Name)
}

// groupByFile buckets fixes by file, preserving plan order within and
// across groups.
func groupByFile(fixes []models.FixApplicability) (map[string][]models.FixApplicability, []string) {
	groups := make(map[string][]models.FixApplicability)
	var order []string
	for _, fix := range fixes {
		if _, ok := groups[fix.File]; !ok {
			order = append(order, fix.File)
		}
		groups[fix.File] = append(groups[fix.File], fix)
	}
	return groups, order
}

// suggestionIndex maps comment IDs to their suggestions for fix application.
func suggestionIndex(comments []models.ReviewComment) map[string]*models.Suggestion {
	index := make(map[string]*models.Suggestion, len(comments))
	for i := range comments {
		if comments[i].Suggestion != nil {
			index[comments[i].ID] = comments[i].Suggestion
		}
	}
	return index
}

// publish emits a remediation.progress event. Best-effort: failures are
// logged and never affect the run.
func (e *Engine) publish(ctx context.Context, w *models.Workflow, status, phase string, result *models.RemediationResult) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishRemediationProgress(ctx, w, status, phase,
		len(result.Applied), len(result.Skipped), len(result.Failed)); err != nil {
		slog.Warn("Failed to publish remediation progress", "workflow_id", w.ID, "error", err)
	}
}

// tryBegin marks a workflow as running. Returns false when a run is
// already active.
func (e *Engine) tryBegin(workflowID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[workflowID] {
		return false
	}
	e.active[workflowID] = true
	return true
}

func (e *Engine) endRun(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, workflowID)
}
