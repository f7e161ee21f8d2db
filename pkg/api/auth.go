package api

import "github.com/gin-gonic/gin"

// authorHeaders are checked in priority order when attributing a request to
// a user. Reverse proxies in front of the API populate these.
var authorHeaders = []string{
	"X-Forwarded-User",
	"X-Forwarded-Email",
	"X-Remote-User",
}

// extractAuthor returns the identity of the requesting user, falling back
// to a generic name when no proxy header is present.
func extractAuthor(c *gin.Context) string {
	for _, header := range authorHeaders {
		if value := c.GetHeader(header); value != "" {
			return value
		}
	}
	return "api-client"
}
