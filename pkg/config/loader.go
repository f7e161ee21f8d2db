package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/warden-ci/warden/pkg/models"
)

// WardenYAMLConfig represents the complete warden.yaml file structure.
// Every section is optional; missing sections fall back to built-in
// defaults so a minimal deployment needs no config file at all.
type WardenYAMLConfig struct {
	Server       *ServerYAMLConfig       `yaml:"server"`
	GitHub       *GitHubYAMLConfig       `yaml:"github"`
	Anthropic    *AnthropicYAMLConfig    `yaml:"anthropic"`
	Redis        *RedisYAMLConfig        `yaml:"redis"`
	Orchestrator *OrchestratorYAMLConfig `yaml:"orchestrator"`
	MergeQueue   *MergeQueueYAMLConfig   `yaml:"merge_queue"`
	Remediation  *RemediationYAMLConfig  `yaml:"remediation"`
	Sessions     *SessionsYAMLConfig     `yaml:"sessions"`
	Masking      *MaskingYAMLConfig      `yaml:"masking"`
	Retention    *RetentionYAMLConfig    `yaml:"retention"`
}

// ServerYAMLConfig holds HTTP server settings from YAML.
type ServerYAMLConfig struct {
	ListenAddr     string   `yaml:"listen_addr,omitempty"`
	DashboardURL   string   `yaml:"dashboard_url,omitempty"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	AuthTokenEnv   string   `yaml:"auth_token_env,omitempty"`
}

// GitHubYAMLConfig holds GitHub integration settings from YAML.
type GitHubYAMLConfig struct {
	BaseURL          string `yaml:"base_url,omitempty"`
	TokenEnv         string `yaml:"token_env,omitempty"` // Defaults to "GITHUB_TOKEN" if omitted
	WebhookSecretEnv string `yaml:"webhook_secret_env,omitempty"`
	RequestTimeout   string `yaml:"request_timeout,omitempty"`
	DiffCacheTTL     string `yaml:"diff_cache_ttl,omitempty"`
}

// AnthropicYAMLConfig holds Anthropic API settings from YAML.
type AnthropicYAMLConfig struct {
	Model          string `yaml:"model,omitempty"`
	APIKeyEnv      string `yaml:"api_key_env,omitempty"` // Defaults to "ANTHROPIC_API_KEY" if omitted
	BaseURL        string `yaml:"base_url,omitempty"`
	MaxTokens      int64  `yaml:"max_tokens,omitempty"`
	RequestTimeout string `yaml:"request_timeout,omitempty"`
}

// RedisYAMLConfig holds Redis connection settings from YAML.
type RedisYAMLConfig struct {
	Addr        string `yaml:"addr,omitempty"`
	PasswordEnv string `yaml:"password_env,omitempty"`
	DB          int    `yaml:"db,omitempty"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load warden.yaml from configDir (missing file = all defaults)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Resolve each section against built-in defaults
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"repository_policies", stats.RepositoryPolicies,
		"masking_patterns", stats.MaskingPatterns,
		"workers", stats.Workers)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	raw, err := loader.loadWardenYAML()
	if err != nil {
		return nil, NewLoadError("warden.yaml", err)
	}

	serverCfg := resolveServerConfig(raw.Server)
	githubCfg, err := resolveGitHubConfig(raw.GitHub)
	if err != nil {
		return nil, NewLoadError("warden.yaml", err)
	}
	anthropicCfg, err := resolveAnthropicConfig(raw.Anthropic)
	if err != nil {
		return nil, NewLoadError("warden.yaml", err)
	}
	redisCfg := resolveRedisConfig(raw.Redis)
	orchestratorCfg, err := resolveOrchestratorConfig(raw.Orchestrator)
	if err != nil {
		return nil, NewLoadError("warden.yaml", err)
	}
	mergeQueueCfg, err := resolveMergeQueueSettings(raw.MergeQueue)
	if err != nil {
		return nil, NewLoadError("warden.yaml", err)
	}
	remediationCfg := resolveRemediationSettings(raw.Remediation)
	sessionsCfg, err := resolveSessionsConfig(raw.Sessions)
	if err != nil {
		return nil, NewLoadError("warden.yaml", err)
	}
	maskingCfg := resolveMaskingSettings(raw.Masking)
	retentionCfg, err := resolveRetentionConfig(raw.Retention)
	if err != nil {
		return nil, NewLoadError("warden.yaml", err)
	}

	return &Config{
		configDir:    configDir,
		Server:       serverCfg,
		GitHub:       githubCfg,
		Anthropic:    anthropicCfg,
		Redis:        redisCfg,
		Orchestrator: orchestratorCfg,
		MergeQueue:   mergeQueueCfg,
		Remediation:  remediationCfg,
		Sessions:     sessionsCfg,
		Masking:      maskingCfg,
		Retention:    retentionCfg,
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	// Parse YAML
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadWardenYAML() (*WardenYAMLConfig, error) {
	var config WardenYAMLConfig

	err := l.loadYAML("warden.yaml", &config)
	if err == nil {
		return &config, nil
	}
	// A missing file is fine: every section has built-in defaults and
	// secrets arrive via environment variables.
	if errors.Is(err, ErrConfigNotFound) {
		slog.Warn("No warden.yaml found, using built-in defaults",
			"config_dir", l.configDir)
		return &WardenYAMLConfig{}, nil
	}
	return nil, err
}

// parseDuration parses an optional duration string, returning the fallback
// when the string is empty.
func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidValue, field, err)
	}
	return d, nil
}

// resolveServerConfig resolves HTTP server configuration, applying defaults.
func resolveServerConfig(raw *ServerYAMLConfig) *ServerConfig {
	cfg := &ServerConfig{
		ListenAddr: ":8080",
	}
	if raw == nil {
		return cfg
	}
	if raw.ListenAddr != "" {
		cfg.ListenAddr = raw.ListenAddr
	}
	cfg.DashboardURL = raw.DashboardURL
	cfg.AllowedOrigins = raw.AllowedOrigins
	cfg.AuthTokenEnv = raw.AuthTokenEnv
	return cfg
}

// resolveGitHubConfig resolves GitHub configuration, applying defaults.
func resolveGitHubConfig(raw *GitHubYAMLConfig) (*GitHubConfig, error) {
	cfg := &GitHubConfig{
		BaseURL:          "https://api.github.com",
		TokenEnv:         "GITHUB_TOKEN",
		WebhookSecretEnv: "GITHUB_WEBHOOK_SECRET",
		RequestTimeout:   30 * time.Second,
		DiffCacheTTL:     5 * time.Minute,
	}
	if raw == nil {
		return cfg, nil
	}
	if raw.BaseURL != "" {
		cfg.BaseURL = raw.BaseURL
	}
	if raw.TokenEnv != "" {
		cfg.TokenEnv = raw.TokenEnv
	}
	if raw.WebhookSecretEnv != "" {
		cfg.WebhookSecretEnv = raw.WebhookSecretEnv
	}
	var err error
	if cfg.RequestTimeout, err = parseDuration("github.request_timeout", raw.RequestTimeout, cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if cfg.DiffCacheTTL, err = parseDuration("github.diff_cache_ttl", raw.DiffCacheTTL, cfg.DiffCacheTTL); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveAnthropicConfig resolves Anthropic API configuration, applying defaults.
func resolveAnthropicConfig(raw *AnthropicYAMLConfig) (*AnthropicConfig, error) {
	cfg := &AnthropicConfig{
		Model:          "claude-sonnet-4-20250514",
		APIKeyEnv:      "ANTHROPIC_API_KEY",
		MaxTokens:      8192,
		RequestTimeout: 2 * time.Minute,
	}
	if raw == nil {
		return cfg, nil
	}
	if raw.Model != "" {
		cfg.Model = raw.Model
	}
	if raw.APIKeyEnv != "" {
		cfg.APIKeyEnv = raw.APIKeyEnv
	}
	cfg.BaseURL = raw.BaseURL
	if raw.MaxTokens > 0 {
		cfg.MaxTokens = raw.MaxTokens
	}
	var err error
	if cfg.RequestTimeout, err = parseDuration("anthropic.request_timeout", raw.RequestTimeout, cfg.RequestTimeout); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveRedisConfig resolves Redis configuration, applying defaults.
func resolveRedisConfig(raw *RedisYAMLConfig) *RedisConfig {
	cfg := &RedisConfig{
		Addr:        "localhost:6379",
		PasswordEnv: "REDIS_PASSWORD",
	}
	if raw == nil {
		return cfg
	}
	if raw.Addr != "" {
		cfg.Addr = raw.Addr
	}
	if raw.PasswordEnv != "" {
		cfg.PasswordEnv = raw.PasswordEnv
	}
	cfg.DB = raw.DB
	return cfg
}

// resolveOrchestratorConfig resolves worker pool configuration by parsing
// the YAML durations and merging non-zero values onto the built-in defaults.
func resolveOrchestratorConfig(raw *OrchestratorYAMLConfig) (*OrchestratorConfig, error) {
	cfg := DefaultOrchestratorConfig()
	if raw == nil {
		return cfg, nil
	}

	parsed := &OrchestratorConfig{
		WorkerCount:            raw.WorkerCount,
		MaxConcurrentWorkflows: raw.MaxConcurrentWorkflows,
	}
	var err error
	if parsed.PollInterval, err = parseDuration("orchestrator.poll_interval", raw.PollInterval, 0); err != nil {
		return nil, err
	}
	if parsed.PollIntervalJitter, err = parseDuration("orchestrator.poll_interval_jitter", raw.PollIntervalJitter, 0); err != nil {
		return nil, err
	}
	if parsed.AgentTimeout, err = parseDuration("orchestrator.agent_timeout", raw.AgentTimeout, 0); err != nil {
		return nil, err
	}
	if parsed.WorkflowTimeout, err = parseDuration("orchestrator.workflow_timeout", raw.WorkflowTimeout, 0); err != nil {
		return nil, err
	}
	if parsed.GracefulShutdownTimeout, err = parseDuration("orchestrator.graceful_shutdown_timeout", raw.GracefulShutdownTimeout, 0); err != nil {
		return nil, err
	}
	if parsed.OrphanDetectionInterval, err = parseDuration("orchestrator.orphan_detection_interval", raw.OrphanDetectionInterval, 0); err != nil {
		return nil, err
	}
	if parsed.OrphanThreshold, err = parseDuration("orchestrator.orphan_threshold", raw.OrphanThreshold, 0); err != nil {
		return nil, err
	}

	// Merge user-provided values into defaults (non-zero values override)
	if err := mergo.Merge(cfg, parsed, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge orchestrator config: %w", err)
	}
	return cfg, nil
}

// resolveMergeQueueSettings resolves merge-queue configuration. Policy
// layering itself happens later, per repository, via PolicyFor.
func resolveMergeQueueSettings(raw *MergeQueueYAMLConfig) (*MergeQueueSettings, error) {
	cfg := &MergeQueueSettings{
		PollInterval: 30 * time.Second,
		Repositories: make(map[string]QueuePolicyOverride),
	}
	if raw == nil {
		return cfg, nil
	}
	var err error
	if cfg.PollInterval, err = parseDuration("merge_queue.poll_interval", raw.PollInterval, cfg.PollInterval); err != nil {
		return nil, err
	}
	if raw.Defaults != nil {
		cfg.Defaults = *raw.Defaults
	}
	for id, override := range raw.Repositories {
		cfg.Repositories[id] = override
	}
	return cfg, nil
}

// resolveRemediationSettings resolves remediation defaults.
func resolveRemediationSettings(raw *RemediationYAMLConfig) *RemediationSettings {
	cfg := DefaultRemediationSettings()
	if raw == nil {
		return cfg
	}
	if raw.Enabled != nil {
		cfg.Enabled = *raw.Enabled
	}
	if raw.AutoApplyThreshold != nil {
		cfg.AutoApplyThreshold = *raw.AutoApplyThreshold
	}
	if raw.CommitStrategy != "" {
		cfg.CommitStrategy = models.CommitStrategy(raw.CommitStrategy)
	}
	if raw.TriggerReanalysis != nil {
		cfg.TriggerReanalysis = *raw.TriggerReanalysis
	}
	if raw.SkipBreakingChanges != nil {
		cfg.SkipBreakingChanges = *raw.SkipBreakingChanges
	}
	return cfg
}

// resolveSessionsConfig resolves session store configuration.
func resolveSessionsConfig(raw *SessionsYAMLConfig) (*SessionsConfig, error) {
	cfg := DefaultSessionsConfig()
	if raw == nil {
		return cfg, nil
	}
	var err error
	if cfg.TTL, err = parseDuration("sessions.ttl", raw.TTL, cfg.TTL); err != nil {
		return nil, err
	}
	if raw.MaxMessages > 0 {
		cfg.MaxMessages = raw.MaxMessages
	}
	if raw.MaxContentLength > 0 {
		cfg.MaxContentLength = raw.MaxContentLength
	}
	return cfg, nil
}

// resolveMaskingSettings resolves masking configuration.
func resolveMaskingSettings(raw *MaskingYAMLConfig) *MaskingSettings {
	cfg := DefaultMaskingSettings()
	if raw == nil {
		return cfg
	}
	if raw.Enabled != nil {
		cfg.Enabled = *raw.Enabled
	}
	if len(raw.BuiltinPatterns) > 0 {
		cfg.BuiltinPatterns = raw.BuiltinPatterns
	}
	cfg.CustomPatterns = raw.CustomPatterns
	return cfg
}

// resolveRetentionConfig resolves retention configuration.
func resolveRetentionConfig(raw *RetentionYAMLConfig) (*RetentionConfig, error) {
	cfg := DefaultRetentionConfig()
	if raw == nil {
		return cfg, nil
	}
	var err error
	if cfg.EventRetention, err = parseDuration("retention.event_retention", raw.EventRetention, cfg.EventRetention); err != nil {
		return nil, err
	}
	if raw.WorkflowRetentionDays != nil {
		cfg.WorkflowRetentionDays = *raw.WorkflowRetentionDays
	}
	if cfg.CleanupInterval, err = parseDuration("retention.cleanup_interval", raw.CleanupInterval, cfg.CleanupInterval); err != nil {
		return nil, err
	}
	return cfg, nil
}
