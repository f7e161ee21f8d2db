package config

// Config is the umbrella configuration object returned by Initialize()
// and used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	Server       *ServerConfig
	GitHub       *GitHubConfig
	Anthropic    *AnthropicConfig
	Redis        *RedisConfig
	Orchestrator *OrchestratorConfig
	MergeQueue   *MergeQueueSettings
	Remediation  *RemediationSettings
	Sessions     *SessionsConfig
	Masking      *MaskingSettings
	Retention    *RetentionConfig
}

// Stats contains statistics about loaded configuration
type Stats struct {
	RepositoryPolicies int
	MaskingPatterns    int
	Workers            int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.MergeQueue != nil {
		s.RepositoryPolicies = len(c.MergeQueue.Repositories)
	}
	if c.Masking != nil {
		s.MaskingPatterns = len(c.Masking.ActivePatternNames())
	}
	if c.Orchestrator != nil {
		s.Workers = c.Orchestrator.WorkerCount
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// PolicyFor returns the effective merge-queue policy for a repository,
// layering the per-repository override on top of the configured defaults.
// This is a convenience method that wraps MergeQueue.PolicyFor().
func (c *Config) PolicyFor(repositoryID string) QueuePolicy {
	return c.MergeQueue.PolicyFor(repositoryID)
}
