package config

import (
	"os"
	"time"
)

// GitHubConfig holds resolved GitHub integration configuration.
type GitHubConfig struct {
	BaseURL          string        // API base URL (default: "https://api.github.com")
	TokenEnv         string        // Env var name containing the token (default: "GITHUB_TOKEN")
	WebhookSecretEnv string        // Env var name containing the webhook secret (default: "GITHUB_WEBHOOK_SECRET")
	RequestTimeout   time.Duration // Per-request timeout (default: 30s)
	DiffCacheTTL     time.Duration // How long fetched diffs stay cached (default: 5m)
}

// Token reads the configured token environment variable.
func (c *GitHubConfig) Token() string {
	return os.Getenv(c.TokenEnv)
}

// WebhookSecret reads the configured webhook secret environment variable.
func (c *GitHubConfig) WebhookSecret() string {
	return os.Getenv(c.WebhookSecretEnv)
}
