package api

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warden-ci/warden/pkg/database"
	"github.com/warden-ci/warden/pkg/llm"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/orchestrator"
	"github.com/warden-ci/warden/pkg/services"
)

type stubWorkflows struct {
	mu        sync.Mutex
	workflow  *models.Workflow
	created   []models.CreateWorkflowRequest
	createErr error
	getErr    error
}

func (s *stubWorkflows) CreateWorkflow(_ context.Context, req models.CreateWorkflowRequest) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, req)
	return &models.Workflow{
		ID:           "wf-new",
		RepositoryID: req.Event.RepositoryID,
		PRNumber:     req.Event.PRNumber,
		Status:       models.WorkflowStatusPending,
		Author:       req.Author,
	}, nil
}

func (s *stubWorkflows) GetWorkflow(_ context.Context, workflowID string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.workflow == nil || s.workflow.ID != workflowID {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, services.ErrNotFound)
	}
	copied := *s.workflow
	return &copied, nil
}

func (s *stubWorkflows) createdRequests() []models.CreateWorkflowRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CreateWorkflowRequest(nil), s.created...)
}

type stubArtifacts struct {
	analysis  *models.Analysis
	comments  []models.ReviewComment
	tests     *models.GeneratedTests
	docs      *models.DocUpdates
	synthesis *models.Synthesis
	err       error
}

func (s *stubArtifacts) GetAnalysis(context.Context, string) (*models.Analysis, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.analysis == nil {
		return nil, services.ErrNotFound
	}
	return s.analysis, nil
}

func (s *stubArtifacts) GetReviewComments(context.Context, string) ([]models.ReviewComment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.comments, nil
}

func (s *stubArtifacts) GetGeneratedTests(context.Context, string) (*models.GeneratedTests, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.tests == nil {
		return nil, services.ErrNotFound
	}
	return s.tests, nil
}

func (s *stubArtifacts) GetDocUpdates(context.Context, string) (*models.DocUpdates, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.docs == nil {
		return nil, services.ErrNotFound
	}
	return s.docs, nil
}

func (s *stubArtifacts) GetSynthesis(context.Context, string) (*models.Synthesis, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.synthesis == nil {
		return nil, services.ErrNotFound
	}
	return s.synthesis, nil
}

type stubQueue struct {
	mu       sync.Mutex
	items    []*models.QueueItem
	enqueued []*models.EnqueueRequest
	dequeued []int
	gotRepo  string
	err      error
}

func (s *stubQueue) Enqueue(_ context.Context, repositoryID string, req *models.EnqueueRequest) (*models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotRepo = repositoryID
	if s.err != nil {
		return nil, s.err
	}
	s.enqueued = append(s.enqueued, req)
	return &models.QueueItem{
		RepositoryID: repositoryID,
		PRNumber:     req.PRNumber,
		Status:       models.QueueItemStatusQueued,
		Position:     len(s.enqueued),
		Priority:     req.Priority,
	}, nil
}

func (s *stubQueue) Dequeue(_ context.Context, repositoryID string, prNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotRepo = repositoryID
	if s.err != nil {
		return s.err
	}
	s.dequeued = append(s.dequeued, prNumber)
	return nil
}

func (s *stubQueue) List(_ context.Context, repositoryID string) ([]*models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotRepo = repositoryID
	if s.err != nil {
		return nil, s.err
	}
	return append([]*models.QueueItem(nil), s.items...), nil
}

func (s *stubQueue) Get(_ context.Context, repositoryID string, prNumber int) (*models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotRepo = repositoryID
	if s.err != nil {
		return nil, s.err
	}
	for _, item := range s.items {
		if item.PRNumber == prNumber {
			copied := *item
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("queue item %s#%d: %w", repositoryID, prNumber, services.ErrNotFound)
}

func (s *stubQueue) SetPriority(_ context.Context, repositoryID string, prNumber, priority int) (*models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotRepo = repositoryID
	if s.err != nil {
		return nil, s.err
	}
	for _, item := range s.items {
		if item.PRNumber == prNumber {
			item.Priority = priority
			copied := *item
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("queue item %s#%d: %w", repositoryID, prNumber, services.ErrNotFound)
}

type stubRemediator struct {
	plan    *models.RemediationPlan
	result  *models.RemediationResult
	planErr error
	execErr error
	gotCfg  *models.RemediationConfig
}

func (s *stubRemediator) GeneratePlan(_ context.Context, workflowID string, cfg models.RemediationConfig) (*models.RemediationPlan, error) {
	s.gotCfg = &cfg
	if s.planErr != nil {
		return nil, s.planErr
	}
	if s.plan != nil {
		return s.plan, nil
	}
	return &models.RemediationPlan{WorkflowID: workflowID}, nil
}

func (s *stubRemediator) Execute(_ context.Context, workflowID string, cfg models.RemediationConfig) (*models.RemediationResult, error) {
	s.gotCfg = &cfg
	if s.execErr != nil {
		return nil, s.execErr
	}
	if s.result != nil {
		return s.result, nil
	}
	return &models.RemediationResult{WorkflowID: workflowID, Success: true, DryRun: cfg.DryRun}, nil
}

type stubSessions struct {
	mu        sync.Mutex
	sessions  map[string]*models.ChatSession
	appendErr error
}

func newStubSessions() *stubSessions {
	return &stubSessions{sessions: make(map[string]*models.ChatSession)}
}

func (s *stubSessions) Create(_ context.Context, workflowID, user string, contextSnapshot map[string]string) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := &models.ChatSession{
		ID:           fmt.Sprintf("sess-%d", len(s.sessions)+1),
		WorkflowID:   workflowID,
		User:         user,
		Context:      contextSnapshot,
		CreatedAt:    time.Now().UTC(),
		LastActivity: time.Now().UTC(),
	}
	s.sessions[session.ID] = session
	copied := *session
	return &copied, nil
}

func (s *stubSessions) Get(_ context.Context, id string) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("chat session %s: %w", id, services.ErrNotFound)
	}
	copied := *session
	copied.Messages = append([]models.ChatMessage(nil), session.Messages...)
	return &copied, nil
}

func (s *stubSessions) AppendMessage(_ context.Context, id string, role models.ChatRole, content string) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(content) == "" {
		return nil, services.NewValidationError("content", "content is required")
	}
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("chat session %s: %w", id, services.ErrNotFound)
	}
	session.Messages = append(session.Messages, models.ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	session.LastActivity = time.Now().UTC()
	copied := *session
	copied.Messages = append([]models.ChatMessage(nil), session.Messages...)
	return &copied, nil
}

func (s *stubSessions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("chat session %s: %w", id, services.ErrNotFound)
	}
	delete(s.sessions, id)
	return nil
}

func (s *stubSessions) Keys(context.Context, string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *stubSessions) messages(id string) []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return append([]models.ChatMessage(nil), session.Messages...)
}

type stubReplyStream struct {
	chunks []string
	idx    int
	err    error
	closed bool
}

func (s *stubReplyStream) Recv() (llm.Chunk, error) {
	if s.idx < len(s.chunks) {
		chunk := llm.Chunk{Delta: s.chunks[s.idx]}
		s.idx++
		return chunk, nil
	}
	if s.err != nil {
		return llm.Chunk{}, s.err
	}
	return llm.Chunk{}, io.EOF
}

func (s *stubReplyStream) Content() string {
	return strings.Join(s.chunks[:s.idx], "")
}

func (s *stubReplyStream) Close() error {
	s.closed = true
	return nil
}

type stubCompleter struct {
	stream   *stubReplyStream
	startErr error
	messages []llm.Message
}

func (s *stubCompleter) Stream(_ context.Context, messages []llm.Message, _ llm.CallOptions) (ReplyStream, error) {
	s.messages = messages
	if s.startErr != nil {
		return nil, s.startErr
	}
	return s.stream, nil
}

type stubPool struct {
	mu        sync.Mutex
	cancelled []string
	running   bool
	health    *orchestrator.PoolHealth
}

func (s *stubPool) CancelWorkflow(workflowID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, workflowID)
	return s.running
}

func (s *stubPool) Health() *orchestrator.PoolHealth {
	if s.health != nil {
		return s.health
	}
	return &orchestrator.PoolHealth{IsHealthy: true}
}

type stubDB struct {
	status *database.HealthStatus
	err    error
}

func (s *stubDB) Health(context.Context) (*database.HealthStatus, error) {
	if s.status != nil {
		return s.status, s.err
	}
	return &database.HealthStatus{Status: "healthy"}, s.err
}

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if s.err != nil {
		cmd.SetErr(s.err)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

type stubEventReader struct {
	events     []*models.Event
	err        error
	gotChannel string
	gotSince   int64
}

func (s *stubEventReader) GetEventsSince(_ context.Context, channel string, sinceID int64, _ int) ([]*models.Event, error) {
	s.gotChannel = channel
	s.gotSince = sinceID
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.Event
	for _, ev := range s.events {
		if ev.ID > sinceID {
			out = append(out, ev)
		}
	}
	return out, nil
}
