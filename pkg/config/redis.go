package config

import "os"

// RedisConfig holds resolved Redis connection configuration. Redis backs
// the merge-queue store and the chat session store.
type RedisConfig struct {
	Addr        string // host:port (default: "localhost:6379")
	PasswordEnv string // Env var name for the password (default: "REDIS_PASSWORD")
	DB          int    // Logical database number
}

// Password reads the configured password environment variable.
func (c *RedisConfig) Password() string {
	return os.Getenv(c.PasswordEnv)
}
