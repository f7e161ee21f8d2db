package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/warden-ci/warden/pkg/models"
)

// prNumberParam parses the :prNumber segment. Writes the 400 itself so
// handlers just bail on !ok.
func prNumberParam(c *gin.Context) (int, bool) {
	number, err := strconv.Atoi(c.Param("prNumber"))
	if err != nil || number <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pr number must be a positive integer"})
		return 0, false
	}
	return number, true
}

// listQueue handles GET /api/v1/repositories/:repositoryID/queue.
func (s *Server) listQueue(c *gin.Context) {
	repositoryID := c.Param("repositoryID")
	items, err := s.deps.Queue.List(c.Request.Context(), repositoryID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, QueueListResponse{
		RepositoryID: repositoryID,
		Items:        items,
		Count:        len(items),
	})
}

// enqueuePullRequest handles POST /api/v1/repositories/:repositoryID/queue.
func (s *Server) enqueuePullRequest(c *gin.Context) {
	repositoryID := c.Param("repositoryID")
	var req models.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	item, err := s.deps.Queue.Enqueue(c.Request.Context(), repositoryID, &req)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// getQueueItem handles GET /api/v1/repositories/:repositoryID/queue/:prNumber.
func (s *Server) getQueueItem(c *gin.Context) {
	prNumber, ok := prNumberParam(c)
	if !ok {
		return
	}
	item, err := s.deps.Queue.Get(c.Request.Context(), c.Param("repositoryID"), prNumber)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// dequeuePullRequest handles DELETE /api/v1/repositories/:repositoryID/queue/:prNumber.
func (s *Server) dequeuePullRequest(c *gin.Context) {
	prNumber, ok := prNumberParam(c)
	if !ok {
		return
	}
	if err := s.deps.Queue.Dequeue(c.Request.Context(), c.Param("repositoryID"), prNumber); err != nil {
		mapServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// setPriorityRequest uses a pointer so an absent priority is rejected
// rather than silently treated as zero.
type setPriorityRequest struct {
	Priority *int `json:"priority"`
}

// setQueuePriority handles PATCH /api/v1/repositories/:repositoryID/queue/:prNumber/priority.
func (s *Server) setQueuePriority(c *gin.Context) {
	prNumber, ok := prNumberParam(c)
	if !ok {
		return
	}
	var req setPriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Priority == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priority is required"})
		return
	}
	item, err := s.deps.Queue.SetPriority(c.Request.Context(), c.Param("repositoryID"), prNumber, *req.Priority)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
