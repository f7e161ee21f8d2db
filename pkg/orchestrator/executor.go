package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/warden-ci/warden/pkg/agent"
	"github.com/warden-ci/warden/pkg/config"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/services"
)

// checkRunName is the provider-side check run created for every workflow.
const checkRunName = "warden review"

// settleTimeout bounds terminal writes and publishes that run on a fresh
// background context after the run context has died.
const settleTimeout = 30 * time.Second

// Check run conclusions understood by the provider.
const (
	conclusionSuccess        = "success"
	conclusionFailure        = "failure"
	conclusionActionRequired = "action_required"
	conclusionCancelled      = "cancelled"
)

// Executor drives a single workflow through the staged pipeline.
//
// Run writes artifacts PROGRESSIVELY as stages finish, not at the end, so
// a crash mid-run loses at most the stage in flight. The executor keeps no
// state between runs; workflows may be processed concurrently.
type Executor struct {
	workflows    WorkflowStore
	artifacts    ArtifactStore
	provider     Provider
	events       EventSink
	agents       map[string]agent.Agent
	agentTimeout time.Duration
}

// pipelineAgents lists every agent the executor needs, in pipeline order.
var pipelineAgents = []string{
	agent.NameAnalyzer,
	agent.NameReviewer,
	agent.NameTestGenerator,
	agent.NameDocUpdater,
	agent.NameSynthesizer,
}

// NewExecutor builds the pipeline agents from the registry and wires the
// executor. events may be nil (event streaming disabled).
func NewExecutor(workflows WorkflowStore, artifacts ArtifactStore, prov Provider, events EventSink,
	registry *agent.Registry, deps agent.Deps, cfg *config.OrchestratorConfig) (*Executor, error) {

	agents := make(map[string]agent.Agent, len(pipelineAgents))
	for _, name := range pipelineAgents {
		a, err := registry.Create(name, deps)
		if err != nil {
			return nil, fmt.Errorf("build pipeline agents: %w", err)
		}
		agents[name] = a
	}

	return &Executor{
		workflows:    workflows,
		artifacts:    artifacts,
		provider:     prov,
		events:       events,
		agents:       agents,
		agentTimeout: cfg.AgentTimeout,
	}, nil
}

// Run processes one workflow to a terminal status and returns the fatal
// error when it failed, nil when it completed. Re-running a settled
// workflow is permitted (auto-remediation relies on it); stage artifacts
// are overwritten by upsert.
func (e *Executor) Run(ctx context.Context, workflowID string) error {
	// 1. Load the workflow and its repository settings.
	ws, err := e.workflows.GetWorkflowWithSettings(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	w := &ws.Workflow
	logger := slog.With("workflow_id", w.ID, "repo", w.Owner+"/"+w.Repo, "pr", w.PRNumber)

	// 2. Re-entry guard. A freshly claimed workflow is still pending here;
	// any in-flight status means another run owns it.
	if w.Status.IsInFlight() {
		return fmt.Errorf("workflow %s is already %s: %w", w.ID, w.Status, services.ErrStateConflict)
	}
	if err := e.transition(ctx, w, models.WorkflowStatusAnalyzing); err != nil {
		return e.fail(logger, w, err)
	}

	checkRunID, err := e.provider.CreateCheckRun(ctx, w.Owner, w.Repo, w.HeadSHA, checkRunName)
	if err != nil {
		// Non-fatal: the workflow proceeds without a check run and
		// publication skips the finalize step.
		logger.Warn("Failed to create check run", "error", err)
	} else {
		w.CheckRunID = checkRunID
		if err := e.workflows.SetCheckRunID(ctx, w.ID, checkRunID); err != nil {
			logger.Warn("Failed to store check run id", "check_run_id", checkRunID, "error", err)
		}
	}

	// 3. Fetch the pull request and diff. Every agent downstream needs both.
	pr, err := e.provider.GetPullRequest(ctx, w.Owner, w.Repo, w.PRNumber)
	if err != nil {
		return e.fail(logger, w, fmt.Errorf("fetch pull request: %w", err))
	}
	diff, err := e.provider.GetPullRequestDiff(ctx, w.Owner, w.Repo, w.PRNumber)
	if err != nil {
		return e.fail(logger, w, fmt.Errorf("fetch diff: %w", err))
	}

	// 4. Analysis. A failure here is fatal.
	res := e.invokeAgent(ctx, agent.NameAnalyzer, &agent.Input{PR: pr, Diff: diff, Settings: ws.Settings})
	e.publishAgentCompleted(ctx, w, agent.NameAnalyzer, res)
	if !res.Success {
		return e.fail(logger, w, fmt.Errorf("analyzer: %s", res.Error))
	}
	analysis, ok := res.Data.(*models.Analysis)
	if !ok || analysis == nil {
		return e.fail(logger, w, fmt.Errorf("analyzer returned unexpected payload %T", res.Data))
	}
	analysis.WorkflowID = w.ID
	if err := e.artifacts.SaveAnalysis(ctx, analysis); err != nil {
		return e.fail(logger, w, fmt.Errorf("save analysis: %w", err))
	}

	// 5. Parallel agent phase, under the status of the first enabled stage.
	var (
		review []models.ReviewComment
		tests  *models.GeneratedTests
		docs   *models.DocUpdates
	)
	if stages := enabledStages(ws.Settings); len(stages) > 0 {
		if err := e.transition(ctx, w, fanOutStatus(stages[0])); err != nil {
			return e.fail(logger, w, err)
		}
		review, tests, docs = e.runFanOut(ctx, logger, w, stages, &agent.Input{
			PR:       pr,
			Diff:     diff,
			Analysis: analysis,
			Settings: ws.Settings,
		})
	}

	// A cancel or timeout during the fan-out surfaces here, after every
	// stage agent has settled.
	if err := ctx.Err(); err != nil {
		return e.fail(logger, w, fmt.Errorf("workflow aborted: %w", err))
	}

	// 6. Synthesis. Absent stage artifacts are fine; a synthesizer failure
	// falls back to a default summary so publication always has a body.
	if err := e.transition(ctx, w, models.WorkflowStatusSynthesizing); err != nil {
		return e.fail(logger, w, err)
	}
	synthesis := e.synthesize(ctx, logger, w, &agent.Input{
		PR:       pr,
		Diff:     diff,
		Analysis: analysis,
		Review:   review,
		Tests:    tests,
		Docs:     docs,
		Settings: ws.Settings,
	}, analysis, review)

	// 7. Publication. Failures here are logged, never fatal.
	e.publish(ctx, logger, w, ws.Settings, analysis, synthesis, review)

	// 8. Terminal settle.
	if err := e.workflows.MarkWorkflowCompleted(ctx, w.ID); err != nil {
		return e.fail(logger, w, fmt.Errorf("mark workflow completed: %w", err))
	}
	w.Status = models.WorkflowStatusCompleted
	now := time.Now()
	w.CompletedAt = &now
	e.publishStatus(ctx, w)

	logger.Info("Workflow completed", "findings", len(review), "recommendation", synthesis.Recommendation)
	return nil
}

// indexedAgentResult carries one fan-out result back to the collector with
// its launch index so reporting order is deterministic.
type indexedAgentResult struct {
	index  int
	name   string
	result *agent.Result
}

// runFanOut executes the enabled stage agents concurrently and persists
// each successful artifact as it lands. Failures and timeouts leave the
// corresponding artifact absent; they never abort the workflow. The phase
// returns only when every agent has settled.
func (e *Executor) runFanOut(ctx context.Context, logger *slog.Logger, w *models.Workflow,
	stages []string, in *agent.Input) ([]models.ReviewComment, *models.GeneratedTests, *models.DocUpdates) {

	results := make(chan indexedAgentResult, len(stages))
	var wg sync.WaitGroup
	for i, name := range stages {
		wg.Add(1)
		go func(idx int, name string) {
			defer wg.Done()
			results <- indexedAgentResult{index: idx, name: name, result: e.invokeAgent(ctx, name, in)}
		}(i, name)
	}
	wg.Wait()
	close(results)

	collected := make([]indexedAgentResult, 0, len(stages))
	for r := range results {
		collected = append(collected, r)
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	var (
		review []models.ReviewComment
		tests  *models.GeneratedTests
		docs   *models.DocUpdates
	)
	for _, ir := range collected {
		res := ir.result
		e.publishAgentCompleted(ctx, w, ir.name, res)
		if !res.Success {
			logger.Warn("Stage agent failed, continuing without its artifact",
				"agent", ir.name, "reason", res.Error)
			continue
		}

		switch ir.name {
		case agent.NameReviewer:
			comments, ok := res.Data.([]models.ReviewComment)
			if !ok {
				logger.Warn("Reviewer returned an unexpected payload", "type", fmt.Sprintf("%T", res.Data))
				continue
			}
			if err := e.artifacts.SaveReviewComments(ctx, w.ID, comments); err != nil {
				logger.Warn("Failed to save review comments", "error", err)
			}
			review = comments
		case agent.NameTestGenerator:
			generated, ok := res.Data.(*models.GeneratedTests)
			if !ok || generated == nil {
				logger.Warn("Test generator returned an unexpected payload", "type", fmt.Sprintf("%T", res.Data))
				continue
			}
			generated.WorkflowID = w.ID
			if err := e.artifacts.SaveGeneratedTests(ctx, generated); err != nil {
				logger.Warn("Failed to save generated tests", "error", err)
			}
			tests = generated
		case agent.NameDocUpdater:
			updates, ok := res.Data.(*models.DocUpdates)
			if !ok || updates == nil {
				logger.Warn("Doc updater returned an unexpected payload", "type", fmt.Sprintf("%T", res.Data))
				continue
			}
			updates.WorkflowID = w.ID
			if err := e.artifacts.SaveDocUpdates(ctx, updates); err != nil {
				logger.Warn("Failed to save doc updates", "error", err)
			}
			docs = updates
		}
	}

	return review, tests, docs
}

// synthesize runs the synthesizer and persists its artifact, substituting
// a default summary when the agent fails. Persistence is best-effort.
func (e *Executor) synthesize(ctx context.Context, logger *slog.Logger, w *models.Workflow,
	in *agent.Input, analysis *models.Analysis, review []models.ReviewComment) *models.Synthesis {

	res := e.invokeAgent(ctx, agent.NameSynthesizer, in)
	e.publishAgentCompleted(ctx, w, agent.NameSynthesizer, res)

	synthesis, ok := res.Data.(*models.Synthesis)
	if !res.Success || !ok || synthesis == nil {
		logger.Warn("Synthesizer failed, falling back to a default summary", "reason", res.Error)
		synthesis = fallbackSynthesis(analysis, review)
	}
	synthesis.WorkflowID = w.ID
	if err := e.artifacts.SaveSynthesis(ctx, synthesis); err != nil {
		logger.Warn("Failed to save synthesis", "error", err)
	}
	return synthesis
}

// publish posts the summary comment, the threshold-filtered review
// comments, and the final check run conclusion.
func (e *Executor) publish(ctx context.Context, logger *slog.Logger, w *models.Workflow,
	settings models.RepositorySettings, analysis *models.Analysis, synthesis *models.Synthesis,
	review []models.ReviewComment) {

	body := summaryCommentBody(analysis, synthesis, review, settings.SeverityThreshold)
	if err := e.provider.PostSummaryComment(ctx, w.Owner, w.Repo, w.PRNumber, body); err != nil {
		logger.Warn("Failed to post summary comment", "error", err)
	}

	if len(review) > 0 {
		posted, err := e.provider.PostReviewComments(ctx, w.Owner, w.Repo, w.PRNumber, w.HeadSHA,
			review, settings.SeverityThreshold)
		if err != nil {
			logger.Warn("Failed to post review comments", "posted", len(posted), "error", err)
		}
		if len(posted) > 0 {
			ids := make([]string, len(posted))
			for i, c := range posted {
				ids[i] = c.ID
			}
			if err := e.artifacts.UpdateReviewCommentStatuses(ctx, ids, models.CommentStatusPosted); err != nil {
				logger.Warn("Failed to mark review comments posted", "error", err)
			}
		}
	}

	conclusion := checkConclusion(review)
	e.finalizeCheckRun(ctx, logger, w, conclusion, checkRunTitle(conclusion, review), synthesis.Summary)
}

// invokeAgent runs one agent under the per-agent timeout. A deadline hit
// is reported as a failure with reason "timeout" regardless of what the
// agent said; agents racing the deadline can report misleading results.
func (e *Executor) invokeAgent(ctx context.Context, name string, in *agent.Input) *agent.Result {
	agentCtx, cancel := context.WithTimeout(ctx, e.agentTimeout)
	defer cancel()

	res := e.agents[name].Execute(agentCtx, in)
	if res == nil {
		res = &agent.Result{Error: fmt.Sprintf("agent %s returned no result", name)}
	}
	if errors.Is(agentCtx.Err(), context.DeadlineExceeded) {
		res.Success = false
		res.Data = nil
		res.Error = "timeout"
	}
	return res
}

// transition moves the workflow to the given status and publishes the
// change. The DB write is authoritative; the event is best-effort.
func (e *Executor) transition(ctx context.Context, w *models.Workflow, status models.WorkflowStatus) error {
	if err := e.workflows.UpdateWorkflowStatus(ctx, w.ID, status); err != nil {
		return fmt.Errorf("transition workflow %s to %s: %w", w.ID, status, err)
	}
	w.Status = status
	e.publishStatus(ctx, w)
	return nil
}

// fail settles the workflow as failed, cancels its check run, and returns
// the cause. Terminal writes run on a background context so they survive
// run cancellation.
func (e *Executor) fail(logger *slog.Logger, w *models.Workflow, cause error) error {
	if err := e.workflows.MarkWorkflowFailed(context.Background(), w.ID, cause.Error()); err != nil {
		logger.Error("Failed to mark workflow failed", "cause", cause, "error", err)
	}
	w.Status = models.WorkflowStatusFailed
	w.Error = cause.Error()
	now := time.Now()
	w.CompletedAt = &now

	sctx, cancel := settleContext()
	defer cancel()
	e.finalizeCheckRun(sctx, logger, w, conclusionCancelled, "Workflow failed", cause.Error())
	e.publishStatus(sctx, w)

	logger.Error("Workflow failed", "error", cause)
	return cause
}

// finalizeCheckRun completes the check run if one was created. On success
// the local id is cleared (the stored one stays) so a later failure path
// cannot finalize the same run twice.
func (e *Executor) finalizeCheckRun(ctx context.Context, logger *slog.Logger, w *models.Workflow,
	conclusion, title, summary string) {

	if w.CheckRunID == 0 {
		return
	}
	if err := e.provider.CompleteCheckRun(ctx, w.Owner, w.Repo, w.CheckRunID, conclusion, title, summary); err != nil {
		logger.Warn("Failed to finalize check run",
			"check_run_id", w.CheckRunID, "conclusion", conclusion, "error", err)
		return
	}
	w.CheckRunID = 0
}

func (e *Executor) publishStatus(ctx context.Context, w *models.Workflow) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishWorkflowStatus(ctx, w); err != nil {
		slog.Warn("Failed to publish workflow status", "workflow_id", w.ID, "status", w.Status, "error", err)
	}
}

func (e *Executor) publishAgentCompleted(ctx context.Context, w *models.Workflow, name string, res *agent.Result) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishAgentCompleted(ctx, w, name, res.Success, res.Error, res.LatencyMs); err != nil {
		slog.Warn("Failed to publish agent completion", "workflow_id", w.ID, "agent", name, "error", err)
	}
}

// settleContext returns a short-lived background context for terminal
// writes, which must proceed even when the run context is cancelled.
func settleContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), settleTimeout)
}

// enabledStages returns the stage agents enabled by repository settings,
// in pipeline order.
func enabledStages(settings models.RepositorySettings) []string {
	var names []string
	if settings.ReviewEnabled {
		names = append(names, agent.NameReviewer)
	}
	if settings.TestGenerationEnabled {
		names = append(names, agent.NameTestGenerator)
	}
	if settings.DocUpdatesEnabled {
		names = append(names, agent.NameDocUpdater)
	}
	return names
}

// fanOutStatus picks the workflow status shown while the parallel phase
// runs: the status of the first enabled stage.
func fanOutStatus(first string) models.WorkflowStatus {
	switch first {
	case agent.NameTestGenerator:
		return models.WorkflowStatusGeneratingTests
	case agent.NameDocUpdater:
		return models.WorkflowStatusUpdatingDocs
	default:
		return models.WorkflowStatusReviewing
	}
}

// checkConclusion derives the check run conclusion from the review
// findings: any critical finding fails the check, any high finding asks
// for action, anything else passes.
func checkConclusion(review []models.ReviewComment) string {
	conclusion := conclusionSuccess
	for _, c := range review {
		switch c.Severity {
		case models.SeverityCritical:
			return conclusionFailure
		case models.SeverityHigh:
			conclusion = conclusionActionRequired
		}
	}
	return conclusion
}
