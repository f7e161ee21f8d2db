// Package api implements the HTTP surface: pull request event intake, the
// SSE event stream, workflow and merge queue inspection, remediation
// triggers, and conversational sessions.
//
// Handlers depend on narrow interfaces declared here and satisfied by the
// concrete services, so tests exercise the full routing and encoding stack
// against in-memory stubs.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/warden-ci/warden/pkg/config"
	"github.com/warden-ci/warden/pkg/database"
	"github.com/warden-ci/warden/pkg/events"
	"github.com/warden-ci/warden/pkg/llm"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/orchestrator"
)

// WorkflowReader is the workflow surface the API depends on. Satisfied by
// *services.WorkflowService.
type WorkflowReader interface {
	CreateWorkflow(ctx context.Context, req models.CreateWorkflowRequest) (*models.Workflow, error)
	GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error)
}

// ArtifactReader serves stage artifacts for workflow detail views. Satisfied
// by *services.ArtifactService.
type ArtifactReader interface {
	GetAnalysis(ctx context.Context, workflowID string) (*models.Analysis, error)
	GetReviewComments(ctx context.Context, workflowID string) ([]models.ReviewComment, error)
	GetGeneratedTests(ctx context.Context, workflowID string) (*models.GeneratedTests, error)
	GetDocUpdates(ctx context.Context, workflowID string) (*models.DocUpdates, error)
	GetSynthesis(ctx context.Context, workflowID string) (*models.Synthesis, error)
}

// QueueManager is the merge queue surface. Satisfied by *mergequeue.Manager.
type QueueManager interface {
	Enqueue(ctx context.Context, repositoryID string, req *models.EnqueueRequest) (*models.QueueItem, error)
	Dequeue(ctx context.Context, repositoryID string, prNumber int) error
	List(ctx context.Context, repositoryID string) ([]*models.QueueItem, error)
	Get(ctx context.Context, repositoryID string, prNumber int) (*models.QueueItem, error)
	SetPriority(ctx context.Context, repositoryID string, prNumber, priority int) (*models.QueueItem, error)
}

// Remediator plans and executes fix application runs. Satisfied by
// *remediation.Engine.
type Remediator interface {
	GeneratePlan(ctx context.Context, workflowID string, cfg models.RemediationConfig) (*models.RemediationPlan, error)
	Execute(ctx context.Context, workflowID string, cfg models.RemediationConfig) (*models.RemediationResult, error)
}

// SessionStore is the conversation session surface. Satisfied by
// *session.Store.
type SessionStore interface {
	Create(ctx context.Context, workflowID, user string, contextSnapshot map[string]string) (*models.ChatSession, error)
	Get(ctx context.Context, id string) (*models.ChatSession, error)
	AppendMessage(ctx context.Context, id string, role models.ChatRole, content string) (*models.ChatSession, error)
	Delete(ctx context.Context, id string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// ReplyStream delivers one streamed model reply. Satisfied by *llm.Stream.
type ReplyStream interface {
	Recv() (llm.Chunk, error)
	Content() string
	Close() error
}

// Completer starts streamed assistant replies for chat sessions.
type Completer interface {
	Stream(ctx context.Context, messages []llm.Message, opts llm.CallOptions) (ReplyStream, error)
}

// LLMCompleter adapts *llm.Client to the Completer interface.
type LLMCompleter struct {
	Client *llm.Client
}

func (c LLMCompleter) Stream(ctx context.Context, messages []llm.Message, opts llm.CallOptions) (ReplyStream, error) {
	return c.Client.Stream(ctx, messages, opts)
}

// Pool is the worker pool surface: cancellation and health. Satisfied by
// *orchestrator.WorkerPool.
type Pool interface {
	CancelWorkflow(workflowID string) bool
	Health() *orchestrator.PoolHealth
}

// DatabaseHealth reports database reachability. Satisfied by *database.Client.
type DatabaseHealth interface {
	Health(ctx context.Context) (*database.HealthStatus, error)
}

// RedisPinger verifies the session store connection. Satisfied by
// *redis.Client.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// EventReader replays persisted events for SSE catch-up. Satisfied by
// *services.EventService.
type EventReader interface {
	GetEventsSince(ctx context.Context, channel string, sinceID int64, limit int) ([]*models.Event, error)
}

// Deps bundles the collaborators the server exposes over HTTP. Optional
// subsystems (chat completion, event streaming) may be nil; their endpoints
// answer 503.
type Deps struct {
	Workflows           WorkflowReader
	Artifacts           ArtifactReader
	Queue               QueueManager
	Remediation         Remediator
	RemediationDefaults *config.RemediationSettings
	Sessions            SessionStore
	Completer           Completer
	Pool                Pool
	DB                  DatabaseHealth
	Redis               RedisPinger
	Events              EventReader
	Subscriptions       *events.SubscriptionManager
}

// Server is the HTTP API server.
type Server struct {
	cfg  *config.ServerConfig
	deps Deps

	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the router with all routes registered. Start must be
// called to begin serving.
func NewServer(cfg *config.ServerConfig, deps Deps) *Server {
	if cfg == nil {
		cfg = &config.ServerConfig{ListenAddr: ":8080"}
	}
	s := &Server{cfg: cfg, deps: deps}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	// Repository IDs ("owner/repo") arrive percent-encoded in path segments.
	router.UseRawPath = true
	router.UnescapePathValues = true
	router.Use(gin.Recovery(), requestLogger(), securityHeaders(), corsMiddleware(s.cfg.AllowedOrigins))

	v1 := router.Group("/api/v1")
	v1.GET("/health", s.health)

	secured := v1.Group("")
	if token := s.cfg.AuthToken(); token != "" {
		secured.Use(bearerAuth(token))
	}

	secured.POST("/events/pull-request", s.intakePullRequestEvent)
	secured.GET("/events/stream", s.streamEvents)

	workflows := secured.Group("/workflows")
	workflows.GET("/:id", s.getWorkflow)
	workflows.GET("/:id/review", s.getReviewComments)
	workflows.POST("/:id/cancel", s.cancelWorkflow)
	workflows.POST("/:id/remediation/plan", s.planRemediation)
	workflows.POST("/:id/remediation/execute", s.executeRemediation)

	queue := secured.Group("/repositories/:repositoryID/queue")
	queue.GET("", s.listQueue)
	queue.POST("", s.enqueuePullRequest)
	queue.GET("/:prNumber", s.getQueueItem)
	queue.DELETE("/:prNumber", s.dequeuePullRequest)
	queue.PATCH("/:prNumber/priority", s.setQueuePriority)

	chat := secured.Group("/chat/sessions")
	chat.POST("", s.createChatSession)
	chat.GET("", s.listChatSessions)
	chat.GET("/:id", s.getChatSession)
	chat.DELETE("/:id", s.deleteChatSession)
	chat.POST("/:id/messages", s.postChatMessage)

	return router
}

// Handler exposes the configured router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("API server listening", "addr", s.cfg.ListenAddr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
