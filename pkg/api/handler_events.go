package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/warden-ci/warden/pkg/events"
	"github.com/warden-ci/warden/pkg/models"
)

const (
	// sseHeartbeatInterval keeps idle streams alive through proxies.
	sseHeartbeatInterval = 30 * time.Second

	// catchUpLimit bounds how many persisted events one reconnect replays.
	catchUpLimit = 500
)

// pullRequestEventRequest is the intake payload. The provider event fields
// are embedded; the remaining fields enrich the workflow row.
type pullRequestEventRequest struct {
	models.PREvent
	Action     string `json:"action,omitempty"`
	Author     string `json:"author,omitempty"`
	Title      string `json:"title,omitempty"`
	BaseBranch string `json:"base_branch,omitempty"`
	HeadBranch string `json:"head_branch,omitempty"`
}

// workflowTriggering reports whether a PR action starts a pipeline run.
// Other actions (closed, labeled, ...) are acknowledged and dropped.
func workflowTriggering(action string) bool {
	switch action {
	case "", "opened", "synchronize", "reopened", "ready_for_review":
		return true
	}
	return false
}

// intakePullRequestEvent handles POST /api/v1/events/pull-request.
// A new or requeued workflow answers 202 with its id; a duplicate event for
// a PR that is still being processed answers 409.
func (s *Server) intakePullRequestEvent(c *gin.Context) {
	var req pullRequestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if !workflowTriggering(req.Action) {
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored", "action": req.Action})
		return
	}

	author := req.Author
	if author == "" {
		author = extractAuthor(c)
	}
	workflow, err := s.deps.Workflows.CreateWorkflow(c.Request.Context(), models.CreateWorkflowRequest{
		Event:      req.PREvent,
		Author:     author,
		Title:      req.Title,
		BaseBranch: req.BaseBranch,
		HeadBranch: req.HeadBranch,
	})
	if err != nil {
		mapServiceError(c, err)
		return
	}

	slog.Info("Accepted pull request event",
		"workflow_id", workflow.ID,
		"repository_id", workflow.RepositoryID,
		"pr_number", workflow.PRNumber)
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": workflow.ID, "status": workflow.Status})
}

// streamEvents handles GET /api/v1/events/stream. It bridges one
// repository's notification channel onto an SSE response. A since_id query
// parameter or Last-Event-ID header replays persisted events first so
// reconnecting clients never miss transitions.
func (s *Server) streamEvents(c *gin.Context) {
	repositoryID := c.Query("repository_id")
	if repositoryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repository_id is required"})
		return
	}
	if s.deps.Subscriptions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event streaming is not available"})
		return
	}
	channel := events.RepositoryChannel(repositoryID)

	sub, err := s.deps.Subscriptions.Subscribe(c.Request.Context(), channel)
	if err != nil {
		slog.Error("SSE subscribe failed", "channel", channel, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}
	defer s.deps.Subscriptions.Unsubscribe(sub)

	beginSSE(c)
	if err := s.replayEvents(c, channel); err != nil {
		slog.Warn("SSE catch-up failed", "channel", channel, "error", err)
	}
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.C:
			if !ok {
				// Listener shut down or the subscriber fell too far behind.
				return
			}
			writeSSE(c.Writer, sseEvent{Event: "message", Data: string(payload)})
			c.Writer.Flush()
		case <-heartbeat.C:
			writeSSEComment(c.Writer, "heartbeat")
			c.Writer.Flush()
		}
	}
}

// replayEvents writes persisted events newer than the client's last seen id.
// The id: field lets EventSource resume from the right place next time.
func (s *Server) replayEvents(c *gin.Context, channel string) error {
	sinceID, ok := sinceEventID(c)
	if !ok || s.deps.Events == nil {
		return nil
	}
	stored, err := s.deps.Events.GetEventsSince(c.Request.Context(), channel, sinceID, catchUpLimit)
	if err != nil {
		return err
	}
	for _, ev := range stored {
		writeSSE(c.Writer, sseEvent{
			ID:    strconv.FormatInt(ev.ID, 10),
			Event: ev.EventType,
			Data:  string(ev.Payload),
		})
	}
	return nil
}

// sinceEventID resolves the client's replay cursor. The query parameter
// wins over the Last-Event-ID header set by EventSource reconnects.
func sinceEventID(c *gin.Context) (int64, bool) {
	raw := c.Query("since_id")
	if raw == "" {
		raw = c.GetHeader("Last-Event-ID")
	}
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
