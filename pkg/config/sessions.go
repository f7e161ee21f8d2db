package config

import "time"

// SessionsConfig controls the Redis-backed conversation session store.
type SessionsConfig struct {
	// TTL is the sliding idle expiry for a session. Every read refreshes it.
	TTL time.Duration

	// MaxMessages bounds the conversation history kept per session. Older
	// messages are dropped from the front when the bound is exceeded.
	MaxMessages int

	// MaxContentLength bounds a single message body in bytes.
	MaxContentLength int
}

// DefaultSessionsConfig returns the built-in session store defaults.
func DefaultSessionsConfig() *SessionsConfig {
	return &SessionsConfig{
		TTL:              30 * time.Minute,
		MaxMessages:      20,
		MaxContentLength: 100_000,
	}
}

// SessionsYAMLConfig is the YAML-facing shape of SessionsConfig.
// Durations are strings ("30m") parsed during resolution.
type SessionsYAMLConfig struct {
	TTL              string `yaml:"ttl,omitempty"`
	MaxMessages      int    `yaml:"max_messages,omitempty"`
	MaxContentLength int    `yaml:"max_content_length,omitempty"`
}
