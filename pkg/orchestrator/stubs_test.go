package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warden-ci/warden/pkg/agent"
	"github.com/warden-ci/warden/pkg/config"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
	"github.com/warden-ci/warden/pkg/services"
)

// stubStore is an in-memory WorkflowStore shared by the executor, worker
// and pool tests.
type stubStore struct {
	mu sync.Mutex

	workflow *models.WorkflowWithSettings
	getErr   error

	statuses   []models.WorkflowStatus
	updateErr  error
	checkRunID int64
	completed  bool
	failed     bool
	failReason string

	pending  []*models.Workflow
	claims   int
	claimErr error

	counts   map[models.WorkflowStatus]int
	countErr error

	heartbeats   int
	heartbeatErr error

	requeued    int64
	requeueErr  error
	staleCalls  int
	prefixCalls []string
}

func (s *stubStore) GetWorkflowWithSettings(_ context.Context, workflowID string) (*models.WorkflowWithSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.workflow == nil {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, services.ErrNotFound)
	}
	copied := *s.workflow
	return &copied, nil
}

func (s *stubStore) UpdateWorkflowStatus(_ context.Context, _ string, status models.WorkflowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *stubStore) SetCheckRunID(_ context.Context, _ string, checkRunID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkRunID = checkRunID
	return nil
}

func (s *stubStore) MarkWorkflowCompleted(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	return nil
}

func (s *stubStore) MarkWorkflowFailed(_ context.Context, _ string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
	s.failReason = reason
	return nil
}

func (s *stubStore) ClaimNextWorkflow(_ context.Context, workerID string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims++
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if len(s.pending) == 0 {
		return nil, fmt.Errorf("no pending workflows: %w", services.ErrNotFound)
	}
	claimed := s.pending[0]
	s.pending = s.pending[1:]
	claimed.WorkerID = workerID
	return claimed, nil
}

func (s *stubStore) Heartbeat(_ context.Context, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats++
	return s.heartbeatErr
}

func (s *stubStore) RequeueStale(_ context.Context, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleCalls++
	return s.requeued, s.requeueErr
}

func (s *stubStore) RequeueByWorkerPrefix(_ context.Context, podID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixCalls = append(s.prefixCalls, podID)
	return s.requeued, s.requeueErr
}

func (s *stubStore) CountByStatus(_ context.Context) (map[models.WorkflowStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return nil, s.countErr
	}
	if s.counts == nil {
		return map[models.WorkflowStatus]int{}, nil
	}
	return s.counts, nil
}

func (s *stubStore) claimCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims
}

func (s *stubStore) heartbeatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeats
}

func (s *stubStore) recordedStatuses() []models.WorkflowStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.WorkflowStatus(nil), s.statuses...)
}

// stubArtifacts records every persisted artifact.
type stubArtifacts struct {
	mu sync.Mutex

	analysis    *models.Analysis
	analysisErr error
	comments    []models.ReviewComment
	tests       *models.GeneratedTests
	docs        *models.DocUpdates
	synthesis   *models.Synthesis
	statusIDs   []string
	statusSet   models.CommentStatus
}

func (a *stubArtifacts) SaveAnalysis(_ context.Context, analysis *models.Analysis) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.analysisErr != nil {
		return a.analysisErr
	}
	a.analysis = analysis
	return nil
}

func (a *stubArtifacts) SaveReviewComments(_ context.Context, _ string, comments []models.ReviewComment) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.comments = comments
	return nil
}

func (a *stubArtifacts) SaveGeneratedTests(_ context.Context, tests *models.GeneratedTests) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tests = tests
	return nil
}

func (a *stubArtifacts) SaveDocUpdates(_ context.Context, docs *models.DocUpdates) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.docs = docs
	return nil
}

func (a *stubArtifacts) SaveSynthesis(_ context.Context, synthesis *models.Synthesis) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.synthesis = synthesis
	return nil
}

func (a *stubArtifacts) UpdateReviewCommentStatuses(_ context.Context, commentIDs []string, status models.CommentStatus) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusIDs = commentIDs
	a.statusSet = status
	return nil
}

// completedCheck records one CompleteCheckRun call.
type completedCheck struct {
	id         int64
	conclusion string
	title      string
	summary    string
}

// stubProvider returns canned PR data and records everything published.
type stubProvider struct {
	mu sync.Mutex

	pr      *provider.PullRequest
	diff    *provider.Diff
	prErr   error
	diffErr error

	checkRunID int64
	createErr  error

	completed   []completedCheck
	completeErr error

	summaries  []string
	summaryErr error

	posted  []models.ReviewComment
	postErr error
}

func (p *stubProvider) GetPullRequest(_ context.Context, _, _ string, _ int) (*provider.PullRequest, error) {
	if p.prErr != nil {
		return nil, p.prErr
	}
	return p.pr, nil
}

func (p *stubProvider) GetPullRequestDiff(_ context.Context, _, _ string, _ int) (*provider.Diff, error) {
	if p.diffErr != nil {
		return nil, p.diffErr
	}
	return p.diff, nil
}

func (p *stubProvider) CreateCheckRun(_ context.Context, _, _, _, _ string) (int64, error) {
	if p.createErr != nil {
		return 0, p.createErr
	}
	return p.checkRunID, nil
}

func (p *stubProvider) CompleteCheckRun(_ context.Context, _, _ string, id int64, conclusion, title, summary string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completeErr != nil {
		return p.completeErr
	}
	p.completed = append(p.completed, completedCheck{id: id, conclusion: conclusion, title: title, summary: summary})
	return nil
}

func (p *stubProvider) PostSummaryComment(_ context.Context, _, _ string, _ int, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.summaryErr != nil {
		return p.summaryErr
	}
	p.summaries = append(p.summaries, body)
	return nil
}

func (p *stubProvider) PostReviewComments(_ context.Context, _, _ string, _ int, _ string,
	comments []models.ReviewComment, threshold models.Severity) ([]models.ReviewComment, error) {

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.postErr != nil {
		return nil, p.postErr
	}
	for _, c := range comments {
		if c.Severity.MeetsThreshold(threshold) {
			p.posted = append(p.posted, c)
		}
	}
	return p.posted, nil
}

// agentEvent records one PublishAgentCompleted call.
type agentEvent struct {
	name    string
	success bool
	err     string
}

// stubSink records published events.
type stubSink struct {
	mu       sync.Mutex
	statuses []models.WorkflowStatus
	agents   []agentEvent
}

func (s *stubSink) PublishWorkflowStatus(_ context.Context, w *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, w.Status)
	return nil
}

func (s *stubSink) PublishAgentCompleted(_ context.Context, _ *models.Workflow, name string, success bool, agentErr string, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = append(s.agents, agentEvent{name: name, success: success, err: agentErr})
	return nil
}

func (s *stubSink) agentEvents() []agentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agentEvent(nil), s.agents...)
}

// agentFunc is a canned agent behavior for tests.
type agentFunc func(ctx context.Context, in *agent.Input) *agent.Result

// stubAgent satisfies agent.Agent with a canned function.
type stubAgent struct {
	name string
	fn   agentFunc
}

func (s stubAgent) Name() string { return s.name }

func (s stubAgent) Execute(ctx context.Context, in *agent.Input) *agent.Result {
	return s.fn(ctx, in)
}

// recordingExecutor satisfies WorkflowExecutor for worker and pool tests.
type recordingExecutor struct {
	mu      sync.Mutex
	ids     []string
	ctxErrs []error
	err     error

	// When set, Run blocks until the run context is cancelled.
	blockUntilCancel bool
}

func (r *recordingExecutor) Run(ctx context.Context, workflowID string) error {
	if r.blockUntilCancel {
		<-ctx.Done()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, workflowID)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return r.err
}

func (r *recordingExecutor) processed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// stubRegistry satisfies WorkflowRegistry for worker tests run outside a
// real pool.
type stubRegistry struct {
	mu         sync.Mutex
	registered []string
}

func (r *stubRegistry) RegisterWorkflow(workflowID string, _ context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, workflowID)
}

func (r *stubRegistry) UnregisterWorkflow(string) {}

func testOrchestratorConfig() *config.OrchestratorConfig {
	return &config.OrchestratorConfig{
		WorkerCount:             1,
		MaxConcurrentWorkflows:  2,
		PollInterval:            10 * time.Millisecond,
		PollIntervalJitter:      0,
		AgentTimeout:            time.Second,
		WorkflowTimeout:         5 * time.Second,
		GracefulShutdownTimeout: time.Second,
		OrphanDetectionInterval: time.Minute,
		OrphanThreshold:         time.Minute,
	}
}

func testWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:           "wf-1",
		RepositoryID: "octo/demo",
		PRNumber:     7,
		Owner:        "octo",
		Repo:         "demo",
		HeadSHA:      "abc123",
		Status:       models.WorkflowStatusPending,
		Author:       "octocat",
		Title:        "Add retry backoff",
		BaseBranch:   "main",
		HeadBranch:   "feature/backoff",
		CreatedAt:    time.Now(),
	}
}

func testWorkflowWithSettings() *models.WorkflowWithSettings {
	return &models.WorkflowWithSettings{
		Workflow: *testWorkflow(),
		Settings: models.DefaultRepositorySettings("octo/demo"),
	}
}

func testPR() *provider.PullRequest {
	return &provider.PullRequest{
		Number:       7,
		Title:        "Add retry backoff",
		Author:       "octocat",
		State:        "open",
		HeadSHA:      "abc123",
		HeadBranch:   "feature/backoff",
		BaseBranch:   "main",
		Additions:    10,
		Deletions:    2,
		ChangedFiles: 1,
	}
}

func testDiff() *provider.Diff {
	return &provider.Diff{
		Files: []provider.DiffFile{{
			Filename:  "pkg/retry/backoff.go",
			Status:    "modified",
			Additions: 10,
			Deletions: 2,
			Patch:     "@@ -1,3 +1,10 @@\n+func Backoff(attempt int) time.Duration {",
		}},
		TotalAdditions: 10,
		TotalDeletions: 2,
	}
}

func testReviewComments() []models.ReviewComment {
	return []models.ReviewComment{
		{
			ID:         "rc-1",
			WorkflowID: "wf-1",
			File:       "pkg/retry/backoff.go",
			Line:       4,
			Severity:   models.SeverityHigh,
			Category:   models.CategoryBug,
			Message:    "attempt 0 produces a zero delay and a busy loop",
			Confidence: 0.9,
			Status:     models.CommentStatusPending,
		},
		{
			ID:         "rc-2",
			WorkflowID: "wf-1",
			File:       "pkg/retry/backoff.go",
			Line:       9,
			Severity:   models.SeverityMedium,
			Category:   models.CategoryStyle,
			Message:    "name the exported constant",
			Confidence: 0.6,
			Status:     models.CommentStatusPending,
		},
	}
}

// executorFixture wires an Executor against stubs and counts agent calls.
type executorFixture struct {
	store *stubStore
	arts  *stubArtifacts
	prov  *stubProvider
	sink  *stubSink
	exec  *Executor

	mu    sync.Mutex
	calls map[string]int
}

// newExecutorFixture builds a fixture where every agent succeeds with a
// canned artifact. Overrides replace individual agent behaviors.
func newExecutorFixture(overrides map[string]agentFunc) *executorFixture {
	fix := &executorFixture{
		store: &stubStore{workflow: testWorkflowWithSettings()},
		arts:  &stubArtifacts{},
		prov:  &stubProvider{pr: testPR(), diff: testDiff(), checkRunID: 777},
		sink:  &stubSink{},
		calls: map[string]int{},
	}

	agents := make(map[string]agent.Agent, len(pipelineAgents))
	for _, name := range pipelineAgents {
		fn, ok := overrides[name]
		if !ok {
			fn = defaultAgentBehavior(name)
		}
		agents[name] = stubAgent{name: name, fn: fix.counting(name, fn)}
	}

	fix.exec = &Executor{
		workflows:    fix.store,
		artifacts:    fix.arts,
		provider:     fix.prov,
		events:       fix.sink,
		agents:       agents,
		agentTimeout: 250 * time.Millisecond,
	}
	return fix
}

func (f *executorFixture) counting(name string, fn agentFunc) agentFunc {
	return func(ctx context.Context, in *agent.Input) *agent.Result {
		f.mu.Lock()
		f.calls[name]++
		f.mu.Unlock()
		return fn(ctx, in)
	}
}

func (f *executorFixture) agentCalls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func defaultAgentBehavior(name string) agentFunc {
	switch name {
	case agent.NameAnalyzer:
		return func(context.Context, *agent.Input) *agent.Result {
			return &agent.Result{Success: true, Data: &models.Analysis{
				Classification: models.ClassificationFeature,
				Risk:           models.RiskMedium,
				FilesChanged:   1,
				Additions:      10,
				Deletions:      2,
			}}
		}
	case agent.NameReviewer:
		return func(context.Context, *agent.Input) *agent.Result {
			return &agent.Result{Success: true, Data: testReviewComments()}
		}
	case agent.NameTestGenerator:
		return func(context.Context, *agent.Input) *agent.Result {
			return &agent.Result{Success: true, Data: &models.GeneratedTests{
				Files:   []models.TestFile{{Path: "pkg/retry/backoff_test.go", Content: "package retry", Framework: "go test"}},
				Summary: "one regression test",
			}}
		}
	case agent.NameDocUpdater:
		return func(context.Context, *agent.Input) *agent.Result {
			return &agent.Result{Success: true, Data: &models.DocUpdates{
				Updates: []models.DocUpdate{{File: "README.md", Section: "Retries", Content: "Backoff doubles per attempt."}},
				Summary: "documented the backoff",
			}}
		}
	default:
		return func(context.Context, *agent.Input) *agent.Result {
			return &agent.Result{Success: true, Data: &models.Synthesis{
				Summary:        "Solid change with one blocking concern.",
				Recommendation: models.RecommendationRequestChanges,
				Highlights:     []string{"busy loop on attempt 0"},
			}}
		}
	}
}
