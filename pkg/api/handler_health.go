package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/warden-ci/warden/pkg/version"
)

const healthCheckTimeout = 5 * time.Second

// health handles GET /api/v1/health. The endpoint is unauthenticated so
// load balancers can probe it. Any failing dependency flips the overall
// status and the response code to 503; per-dependency detail stays in the
// body either way.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	resp := gin.H{
		"status":  "healthy",
		"version": version.Full(),
	}
	healthy := true

	if s.deps.DB != nil {
		status, err := s.deps.DB.Health(ctx)
		resp["database"] = status
		if err != nil {
			healthy = false
		}
	}
	if s.deps.Redis != nil {
		if err := s.deps.Redis.Ping(ctx).Err(); err != nil {
			resp["redis"] = gin.H{"status": "unhealthy", "error": err.Error()}
			healthy = false
		} else {
			resp["redis"] = gin.H{"status": "healthy"}
		}
	}
	if s.deps.Pool != nil {
		pool := s.deps.Pool.Health()
		resp["pool"] = pool
		if !pool.IsHealthy {
			healthy = false
		}
	}
	if s.deps.Subscriptions != nil {
		resp["sse_subscriptions"] = s.deps.Subscriptions.ActiveSubscriptions()
	}

	if !healthy {
		resp["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
