// Package models contains request/response models and business domain types.
package models

import "time"

// ChatRole identifies who authored a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn in a PR conversation session.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSession is the TTL-cached conversation state for live PR chat.
// History is bounded; the store discards the oldest messages on overflow.
type ChatSession struct {
	ID           string            `json:"id"`
	WorkflowID   string            `json:"workflow_id"`
	User         string            `json:"user"`
	Messages     []ChatMessage     `json:"messages"`
	Context      map[string]string `json:"context,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
}

// CreateChatSessionRequest contains fields for opening a conversation session.
type CreateChatSessionRequest struct {
	WorkflowID string            `json:"workflow_id"`
	Context    map[string]string `json:"context,omitempty"`
}

// AddChatMessageRequest contains fields for posting a user message.
type AddChatMessageRequest struct {
	Content string `json:"content"`
}
