package config

import (
	"fmt"
	"regexp"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateOrchestrator(); err != nil {
		return fmt.Errorf("orchestrator validation failed: %w", err)
	}

	if err := v.validateMergeQueue(); err != nil {
		return fmt.Errorf("merge queue validation failed: %w", err)
	}

	if err := v.validateRemediation(); err != nil {
		return fmt.Errorf("remediation validation failed: %w", err)
	}

	if err := v.validateSessions(); err != nil {
		return fmt.Errorf("sessions validation failed: %w", err)
	}

	if err := v.validateMasking(); err != nil {
		return fmt.Errorf("masking validation failed: %w", err)
	}

	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateOrchestrator() error {
	o := v.cfg.Orchestrator
	if o.WorkerCount < 1 {
		return NewValidationError("orchestrator", "", "worker_count", fmt.Errorf("must be at least 1"))
	}
	if o.MaxConcurrentWorkflows < 1 {
		return NewValidationError("orchestrator", "", "max_concurrent_workflows", fmt.Errorf("must be at least 1"))
	}
	if o.PollInterval <= 0 {
		return NewValidationError("orchestrator", "", "poll_interval", fmt.Errorf("must be positive"))
	}
	if o.PollIntervalJitter < 0 {
		return NewValidationError("orchestrator", "", "poll_interval_jitter", fmt.Errorf("must not be negative"))
	}
	if o.AgentTimeout <= 0 {
		return NewValidationError("orchestrator", "", "agent_timeout", fmt.Errorf("must be positive"))
	}
	if o.WorkflowTimeout < o.AgentTimeout {
		return NewValidationError("orchestrator", "", "workflow_timeout",
			fmt.Errorf("must be at least agent_timeout (%s)", o.AgentTimeout))
	}
	if o.OrphanDetectionInterval <= 0 {
		return NewValidationError("orchestrator", "", "orphan_detection_interval", fmt.Errorf("must be positive"))
	}
	if o.OrphanThreshold <= 0 {
		return NewValidationError("orchestrator", "", "orphan_threshold", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *ConfigValidator) validateMergeQueue() error {
	mq := v.cfg.MergeQueue
	if mq.PollInterval <= 0 {
		return NewValidationError("merge_queue", "", "poll_interval", fmt.Errorf("must be positive"))
	}
	if err := v.validatePolicyOverride("defaults", &mq.Defaults); err != nil {
		return err
	}
	for repositoryID := range mq.Repositories {
		override := mq.Repositories[repositoryID]
		if err := v.validatePolicyOverride(repositoryID, &override); err != nil {
			return err
		}
	}
	return nil
}

func (v *ConfigValidator) validatePolicyOverride(id string, o *QueuePolicyOverride) error {
	if o.RequireApprovals != nil && *o.RequireApprovals < 0 {
		return NewValidationError("merge_queue", id, "require_approvals", fmt.Errorf("must not be negative"))
	}
	if o.MergeMethod != nil {
		if policy := o.apply(DefaultQueuePolicy()); !policy.MergeMethod.IsValid() {
			return NewValidationError("merge_queue", id, "merge_method",
				fmt.Errorf("invalid method: %s (must be merge, squash, or rebase)", *o.MergeMethod))
		}
	}
	if o.BatchSize != nil && *o.BatchSize < 1 {
		return NewValidationError("merge_queue", id, "batch_size", fmt.Errorf("must be at least 1"))
	}
	if o.MaxWaitTimeMinutes != nil && *o.MaxWaitTimeMinutes < 1 {
		return NewValidationError("merge_queue", id, "max_wait_time_minutes", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *ConfigValidator) validateRemediation() error {
	r := v.cfg.Remediation
	if r.AutoApplyThreshold <= 0 || r.AutoApplyThreshold > 1 {
		return NewValidationError("remediation", "", "auto_apply_threshold",
			fmt.Errorf("must be in (0, 1], got %g", r.AutoApplyThreshold))
	}
	if !r.CommitStrategy.IsValid() {
		return NewValidationError("remediation", "", "commit_strategy",
			fmt.Errorf("invalid strategy: %s (must be single, per-phase, or per-file)", r.CommitStrategy))
	}
	return nil
}

func (v *ConfigValidator) validateSessions() error {
	s := v.cfg.Sessions
	if s.TTL <= 0 {
		return NewValidationError("sessions", "", "ttl", fmt.Errorf("must be positive"))
	}
	if s.MaxMessages < 1 {
		return NewValidationError("sessions", "", "max_messages", fmt.Errorf("must be at least 1"))
	}
	if s.MaxContentLength < 1 {
		return NewValidationError("sessions", "", "max_content_length", fmt.Errorf("must be at least 1"))
	}
	return nil
}

// validateMasking compiles every custom pattern so a bad regex fails at
// startup rather than on the first masked diff. Built-in pattern names are
// resolved by the masking service itself.
func (v *ConfigValidator) validateMasking() error {
	m := v.cfg.Masking
	if !m.Enabled {
		return nil
	}
	seen := make(map[string]bool, len(m.CustomPatterns))
	for _, p := range m.CustomPatterns {
		if p.Name == "" {
			return NewValidationError("masking", "", "custom_patterns", fmt.Errorf("%w: pattern name", ErrMissingRequiredField))
		}
		if seen[p.Name] {
			return NewValidationError("masking", p.Name, "custom_patterns", fmt.Errorf("duplicate pattern name"))
		}
		seen[p.Name] = true
		if p.Pattern == "" {
			return NewValidationError("masking", p.Name, "pattern", ErrMissingRequiredField)
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return NewValidationError("masking", p.Name, "pattern", fmt.Errorf("%w: %v", ErrInvalidValue, err))
		}
		if p.Replacement == "" {
			return NewValidationError("masking", p.Name, "replacement", ErrMissingRequiredField)
		}
	}
	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention
	if r.EventRetention <= 0 {
		return NewValidationError("retention", "", "event_retention", fmt.Errorf("must be positive"))
	}
	if r.WorkflowRetentionDays < 0 {
		return NewValidationError("retention", "", "workflow_retention_days", fmt.Errorf("must not be negative"))
	}
	if r.CleanupInterval <= 0 {
		return NewValidationError("retention", "", "cleanup_interval", fmt.Errorf("must be positive"))
	}
	return nil
}
