package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// EventRetention is the maximum age of event rows before deletion.
	// Live subscribers consume events within seconds; retained rows only
	// serve SSE catch-up after reconnects.
	EventRetention time.Duration

	// WorkflowRetentionDays is how many days to keep terminal workflows
	// and their artifacts before deletion. Zero disables workflow cleanup.
	WorkflowRetentionDays int

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		EventRetention:        7 * 24 * time.Hour,
		WorkflowRetentionDays: 90,
		CleanupInterval:       1 * time.Hour,
	}
}

// RetentionYAMLConfig is the YAML-facing shape of RetentionConfig.
// Durations are strings ("168h") parsed during resolution.
type RetentionYAMLConfig struct {
	EventRetention        string `yaml:"event_retention,omitempty"`
	WorkflowRetentionDays *int   `yaml:"workflow_retention_days,omitempty"`
	CleanupInterval       string `yaml:"cleanup_interval,omitempty"`
}
