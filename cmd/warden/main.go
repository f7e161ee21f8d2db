// Warden server — receives pull request events, drives the staged analysis
// pipeline, manages per-repository merge queues, and serves the HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/warden-ci/warden/pkg/agent"
	"github.com/warden-ci/warden/pkg/api"
	"github.com/warden-ci/warden/pkg/cleanup"
	"github.com/warden-ci/warden/pkg/config"
	"github.com/warden-ci/warden/pkg/database"
	"github.com/warden-ci/warden/pkg/events"
	"github.com/warden-ci/warden/pkg/llm"
	"github.com/warden-ci/warden/pkg/masking"
	"github.com/warden-ci/warden/pkg/mergequeue"
	"github.com/warden-ci/warden/pkg/orchestrator"
	"github.com/warden-ci/warden/pkg/provider"
	"github.com/warden-ci/warden/pkg/remediation"
	"github.com/warden-ci/warden/pkg/services"
	"github.com/warden-ci/warden/pkg/session"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	podID := resolvePodID()
	slog.Info("Starting warden", "pod_id", podID, "config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database (runs embedded migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Domain services; requeue workflows a previous replica with this
	// pod id left mid-flight
	workflowService := services.NewWorkflowService(dbClient.DB())
	artifactService := services.NewArtifactService(dbClient.DB())
	eventService := services.NewEventService(dbClient.DB())

	if requeued, err := workflowService.RequeueByWorkerPrefix(ctx, podID); err != nil {
		slog.Error("Failed to requeue orphaned workflows", "error", err)
		// Non-fatal — the orphan scanner picks them up later
	} else if requeued > 0 {
		slog.Info("Requeued orphaned workflows", "count", requeued)
	}
	slog.Info("Services initialized")

	// 4. Connect Redis (merge queue state and chat sessions)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password(),
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()
	slog.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	// 5. Provider, masking, and model clients
	providerClient := provider.NewClient(cfg.GitHub)
	masker := masking.NewService(cfg.Masking)
	llmClient, err := llm.NewFromConfig(cfg.Anthropic)
	if err != nil {
		slog.Error("Failed to initialize model client", "error", err)
		os.Exit(1)
	}

	// 6. Streaming infrastructure: persisted events fan out through
	// Postgres NOTIFY to a dedicated LISTEN connection
	publisher := events.NewPublisher(dbClient.DB())
	subscriptions := events.NewSubscriptionManager(0)
	listener := events.NewNotifyListener(dbConfig.DSN(), subscriptions)
	if err := listener.Start(ctx); err != nil {
		slog.Error("Failed to start notify listener", "error", err)
		os.Exit(1)
	}
	defer listener.Stop(ctx)
	subscriptions.SetListener(listener)
	slog.Info("Event streaming initialized")

	// 7. Pipeline agents and the worker pool
	registry := agent.DefaultRegistry()
	executor, err := orchestrator.NewExecutor(workflowService, artifactService, providerClient, publisher,
		registry, agent.Deps{LLM: llmClient, Masker: masker}, cfg.Orchestrator)
	if err != nil {
		slog.Error("Failed to build workflow executor", "error", err)
		os.Exit(1)
	}

	pool := orchestrator.NewWorkerPool(podID, workflowService, cfg.Orchestrator, executor)
	if err := pool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		os.Exit(1)
	}

	// 8. Merge queue manager
	queueManager := mergequeue.NewManager(mergequeue.NewRedisStore(rdb), providerClient, publisher, cfg.MergeQueue)
	queueManager.Start(ctx)
	slog.Info("Merge queue manager started")

	// 9. Remediation engine and chat session store
	engine := remediation.NewEngine(workflowService, artifactService, providerClient, publisher, cfg.Remediation)
	sessionStore := session.NewStore(rdb, cfg.Sessions)

	// 10. Retention sweeper
	retention := cleanup.NewService(cfg.Retention, workflowService, eventService)
	retention.Start(ctx)

	// 11. HTTP server (non-blocking)
	httpServer := api.NewServer(cfg.Server, api.Deps{
		Workflows:           workflowService,
		Artifacts:           artifactService,
		Queue:               queueManager,
		Remediation:         engine,
		RemediationDefaults: cfg.Remediation,
		Sessions:            sessionStore,
		Completer:           api.LLMCompleter{Client: llmClient},
		Pool:                pool,
		DB:                  dbClient,
		Redis:               rdb,
		Events:              eventService,
		Subscriptions:       subscriptions,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Warden started successfully",
		"pod_id", podID,
		"workers", cfg.Orchestrator.WorkerCount,
		"listen_addr", cfg.Server.ListenAddr)

	// 12. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 13. Graceful shutdown: drain active workflows first
	poolShutdownCtx, poolCancel := context.WithTimeout(ctx, cfg.Orchestrator.GracefulShutdownTimeout)
	defer poolCancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-poolShutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded — unfinished workflows will be requeued on restart")
	}

	queueManager.Stop()
	retention.Stop()

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
