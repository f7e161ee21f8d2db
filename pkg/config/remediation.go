package config

import "github.com/warden-ci/warden/pkg/models"

// RemediationSettings provides the server-side defaults for remediation
// runs. A request may override any of these per invocation; absent request
// fields fall back to the values here.
type RemediationSettings struct {
	// Enabled gates the remediation API. When false the endpoints return
	// a conflict instead of planning or executing fixes.
	Enabled bool

	// AutoApplyThreshold is the minimum confidence a suggested fix needs
	// before it may be applied without human review.
	AutoApplyThreshold float64

	// CommitStrategy is the default grouping of fix commits.
	CommitStrategy models.CommitStrategy

	// TriggerReanalysis requeues the workflow for a fresh analysis after
	// at least one fix was applied.
	TriggerReanalysis bool

	// SkipBreakingChanges excludes fixes flagged as breaking from plans.
	SkipBreakingChanges bool
}

// DefaultRemediationSettings returns the built-in remediation defaults.
func DefaultRemediationSettings() *RemediationSettings {
	return &RemediationSettings{
		Enabled:             true,
		AutoApplyThreshold:  0.8,
		CommitStrategy:      models.CommitStrategySingle,
		TriggerReanalysis:   true,
		SkipBreakingChanges: true,
	}
}

// DefaultsFor fills the unset fields of a request-level remediation config
// from the server defaults.
func (s *RemediationSettings) DefaultsFor(cfg models.RemediationConfig) models.RemediationConfig {
	if cfg.AutoApplyThreshold <= 0 {
		cfg.AutoApplyThreshold = s.AutoApplyThreshold
	}
	if cfg.CommitStrategy == "" {
		cfg.CommitStrategy = s.CommitStrategy
	}
	return cfg
}

// RemediationYAMLConfig is the YAML-facing shape of RemediationSettings.
type RemediationYAMLConfig struct {
	Enabled             *bool    `yaml:"enabled,omitempty"`
	AutoApplyThreshold  *float64 `yaml:"auto_apply_threshold,omitempty"`
	CommitStrategy      string   `yaml:"commit_strategy,omitempty"`
	TriggerReanalysis   *bool    `yaml:"trigger_reanalysis,omitempty"`
	SkipBreakingChanges *bool    `yaml:"skip_breaking_changes,omitempty"`
}
