package config

import (
	"os"
	"time"
)

// AnthropicConfig holds resolved Anthropic API configuration. All agents
// share one provider; per-agent model overrides were considered and
// rejected to keep prompt/token budgeting predictable.
type AnthropicConfig struct {
	Model          string        // Model name (default: "claude-sonnet-4-20250514")
	APIKeyEnv      string        // Env var name for the API key (default: "ANTHROPIC_API_KEY")
	BaseURL        string        // Optional custom endpoint
	MaxTokens      int64         // Maximum tokens per completion (default: 8192)
	RequestTimeout time.Duration // Per-call timeout (default: 2m)
}

// APIKey reads the configured API key environment variable.
func (c *AnthropicConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}
