package config

import "time"

// OrchestratorConfig contains worker pool configuration.
// These values control how workflows are polled, claimed, and processed.
type OrchestratorConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and processes workflows.
	WorkerCount int

	// MaxConcurrentWorkflows is the global limit of concurrent workflows being
	// processed across ALL replicas/pods. Enforced by database COUNT(*) check.
	MaxConcurrentWorkflows int

	// PollInterval is the base interval for checking pending workflows.
	PollInterval time.Duration

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration

	// AgentTimeout bounds a single agent invocation, including the
	// parallel test-generation and doc-update calls.
	AgentTimeout time.Duration

	// WorkflowTimeout is the maximum time a workflow can be processed
	// end to end.
	WorkflowTimeout time.Duration

	// GracefulShutdownTimeout is the max time to wait for active workflows
	// to complete during shutdown. Should match WorkflowTimeout.
	GracefulShutdownTimeout time.Duration

	// OrphanDetectionInterval is how often to scan for orphaned workflows.
	OrphanDetectionInterval time.Duration

	// OrphanThreshold is how long a workflow can go without a heartbeat
	// before it is considered orphaned.
	OrphanThreshold time.Duration
}

// DefaultOrchestratorConfig returns the built-in orchestrator defaults.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		WorkerCount:             5,
		MaxConcurrentWorkflows:  5,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		AgentTimeout:            5 * time.Minute,
		WorkflowTimeout:         15 * time.Minute,
		GracefulShutdownTimeout: 15 * time.Minute,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
	}
}

// OrchestratorYAMLConfig is the YAML-facing shape of OrchestratorConfig.
// Durations are strings ("90s", "5m") parsed during resolution.
type OrchestratorYAMLConfig struct {
	WorkerCount             int    `yaml:"worker_count,omitempty"`
	MaxConcurrentWorkflows  int    `yaml:"max_concurrent_workflows,omitempty"`
	PollInterval            string `yaml:"poll_interval,omitempty"`
	PollIntervalJitter      string `yaml:"poll_interval_jitter,omitempty"`
	AgentTimeout            string `yaml:"agent_timeout,omitempty"`
	WorkflowTimeout         string `yaml:"workflow_timeout,omitempty"`
	GracefulShutdownTimeout string `yaml:"graceful_shutdown_timeout,omitempty"`
	OrphanDetectionInterval string `yaml:"orphan_detection_interval,omitempty"`
	OrphanThreshold         string `yaml:"orphan_threshold,omitempty"`
}
