package events

import "github.com/warden-ci/warden/pkg/models"

// WorkflowStatusPayload is the payload for workflow.status events.
type WorkflowStatusPayload struct {
	Type         string                `json:"type"` // always EventTypeWorkflowStatus
	WorkflowID   string                `json:"workflow_id"`
	RepositoryID string                `json:"repository_id"`
	PRNumber     int                   `json:"pr_number"`
	Status       models.WorkflowStatus `json:"status"`
	Error        string                `json:"error,omitempty"` // failure reason, set on failed
	Timestamp    string                `json:"timestamp"`       // RFC3339Nano
}

// AgentCompletedPayload is the payload for agent.completed events.
type AgentCompletedPayload struct {
	Type         string `json:"type"` // always EventTypeAgentCompleted
	WorkflowID   string `json:"workflow_id"`
	RepositoryID string `json:"repository_id"`
	Agent        string `json:"agent"` // registry name, e.g. "reviewer"
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	LatencyMs    int64  `json:"latency_ms"`
	Timestamp    string `json:"timestamp"` // RFC3339Nano
}

// AgentProgressPayload is the payload for agent.progress transient events.
// High frequency, never persisted.
type AgentProgressPayload struct {
	Type         string `json:"type"` // always EventTypeAgentProgress
	WorkflowID   string `json:"workflow_id"`
	RepositoryID string `json:"repository_id"`
	Agent        string `json:"agent"`
	Message      string `json:"message,omitempty"`
	Timestamp    string `json:"timestamp"` // RFC3339Nano
}

// QueueItemStatusPayload is the payload for queue.item_status events.
type QueueItemStatusPayload struct {
	Type         string                 `json:"type"` // always EventTypeQueueItemStatus
	RepositoryID string                 `json:"repository_id"`
	PRNumber     int                    `json:"pr_number"`
	Status       models.QueueItemStatus `json:"status"`
	Position     int                    `json:"position"`
	Reason       string                 `json:"reason,omitempty"` // set on blocked, conflicted, failed
	Timestamp    string                 `json:"timestamp"`        // RFC3339Nano
}

// RemediationProgressPayload is the payload for remediation.progress events.
type RemediationProgressPayload struct {
	Type         string `json:"type"` // always EventTypeRemediationProgress
	WorkflowID   string `json:"workflow_id"`
	RepositoryID string `json:"repository_id"`
	Status       string `json:"status"` // planning, applying, completed, failed
	Phase        string `json:"phase,omitempty"`
	Applied      int    `json:"applied"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	Timestamp    string `json:"timestamp"` // RFC3339Nano
}
