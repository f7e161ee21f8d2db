package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/warden-ci/warden/pkg/llm"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/services"
)

// createChatSession handles POST /api/v1/chat/sessions. The workflow must
// exist; the session is attributed to the proxied user identity.
func (s *Server) createChatSession(c *gin.Context) {
	var req models.CreateChatSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.WorkflowID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workflow_id is required"})
		return
	}
	if _, err := s.deps.Workflows.GetWorkflow(c.Request.Context(), req.WorkflowID); err != nil {
		mapServiceError(c, err)
		return
	}

	session, err := s.deps.Sessions.Create(c.Request.Context(), req.WorkflowID, extractAuthor(c), req.Context)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// listChatSessions handles GET /api/v1/chat/sessions. Only the requesting
// user's sessions are listed. Sessions can expire between the key scan and
// the read, so missing ones are skipped.
func (s *Server) listChatSessions(c *gin.Context) {
	user := extractAuthor(c)
	ids, err := s.deps.Sessions.Keys(c.Request.Context(), "")
	if err != nil {
		mapServiceError(c, err)
		return
	}

	sessions := make([]*models.ChatSession, 0, len(ids))
	for _, id := range ids {
		session, err := s.deps.Sessions.Get(c.Request.Context(), id)
		if err != nil {
			if !errors.Is(err, services.ErrNotFound) {
				slog.Warn("Session read failed during listing", "session_id", id, "error", err)
			}
			continue
		}
		if session.User == user {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	c.JSON(http.StatusOK, SessionListResponse{Sessions: sessions, Count: len(sessions)})
}

// getChatSession handles GET /api/v1/chat/sessions/:id.
func (s *Server) getChatSession(c *gin.Context) {
	session, err := s.deps.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// deleteChatSession handles DELETE /api/v1/chat/sessions/:id.
func (s *Server) deleteChatSession(c *gin.Context) {
	if err := s.deps.Sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		mapServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// postChatMessage handles POST /api/v1/chat/sessions/:id/messages. The user
// message is stored first, then the assistant reply streams back as SSE
// delta events and is appended to the session once complete.
func (s *Server) postChatMessage(c *gin.Context) {
	sessionID := c.Param("id")
	var req models.AddChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if s.deps.Completer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat reply generation is not available"})
		return
	}

	session, err := s.deps.Sessions.AppendMessage(c.Request.Context(), sessionID, models.ChatRoleUser, req.Content)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	stream, err := s.deps.Completer.Stream(c.Request.Context(), chatMessages(session), llm.CallOptions{})
	if err != nil {
		slog.Error("Chat completion failed to start", "session_id", sessionID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to start model reply"})
		return
	}
	defer stream.Close()

	beginSSE(c)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("Chat stream failed", "session_id", sessionID, "error", err)
			writeSSE(c.Writer, sseEvent{Event: "error", Data: "model reply failed"})
			c.Writer.Flush()
			return
		}
		writeSSE(c.Writer, sseEvent{Event: "delta", Data: chunk.Delta})
		c.Writer.Flush()
	}

	// The stream already reached the client; a failed history write must
	// not retract the reply.
	reply := stream.Content()
	if _, err := s.deps.Sessions.AppendMessage(c.Request.Context(), sessionID, models.ChatRoleAssistant, reply); err != nil {
		slog.Warn("Failed to store assistant reply", "session_id", sessionID, "error", err)
	}

	done, _ := json.Marshal(models.ChatMessage{
		Role:      models.ChatRoleAssistant,
		Content:   reply,
		Timestamp: time.Now().UTC(),
	})
	writeSSE(c.Writer, sseEvent{Event: "done", Data: string(done)})
	c.Writer.Flush()
}

// chatMessages renders a session for the model: a system prompt built from
// the context snapshot, then the bounded history.
func chatMessages(session *models.ChatSession) []llm.Message {
	messages := make([]llm.Message, 0, len(session.Messages)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: chatSystemPrompt(session)})
	for _, msg := range session.Messages {
		role := llm.RoleUser
		if msg.Role == models.ChatRoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: msg.Content})
	}
	return messages
}

// chatSystemPrompt grounds the assistant in the session's PR context.
// Context keys are sorted so the prompt is stable across turns.
func chatSystemPrompt(session *models.ChatSession) string {
	var b strings.Builder
	b.WriteString("You are a code review assistant answering questions about one pull request.\n")
	fmt.Fprintf(&b, "Workflow: %s\n", session.WorkflowID)
	if len(session.Context) > 0 {
		b.WriteString("Context:\n")
		keys := make([]string, 0, len(session.Context))
		for key := range session.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", key, session.Context[key])
		}
	}
	b.WriteString("Answer from the conversation and context; say so when the context does not cover a question.")
	return b.String()
}
