package config

import "os"

// ServerConfig holds resolved HTTP server configuration.
type ServerConfig struct {
	ListenAddr     string   // Address the API server binds to (default: ":8080")
	DashboardURL   string   // Dashboard base URL used in check-run and comment links
	AllowedOrigins []string // Additional CORS origins for the dashboard and SSE clients
	AuthTokenEnv   string   // Env var name for the static API bearer token; empty disables auth
}

// AuthToken reads the configured bearer token environment variable.
// Empty means the API runs without authentication.
func (c *ServerConfig) AuthToken() string {
	if c.AuthTokenEnv == "" {
		return ""
	}
	return os.Getenv(c.AuthTokenEnv)
}
