// Package events provides real-time event delivery via Server-Sent Events
// and PostgreSQL NOTIFY/LISTEN for cross-pod distribution.
//
// Every pod publishes by writing an event row and firing pg_notify in one
// transaction, so the insert and the notification commit atomically. A
// dedicated LISTEN connection per pod receives notifications for every
// channel with at least one local subscriber and fans them out to the SSE
// streams through the SubscriptionManager.
//
// Channels:
//
//	repo:{repository_id}  all events for one repository
//	repos                 mirror of every event, for dashboard feeds
//
// Persistent event types are stored in the events table before NOTIFY, so
// an SSE client that reconnects can catch up from its Last-Event-ID via the
// events API. Transient event types (agent progress) are NOTIFY-only and
// lost on disconnect.
//
// NOTIFY payloads carry a db_event_id field injected at publish time; the
// SSE bridge uses it as the event id. Payloads that would exceed
// PostgreSQL's 8000-byte NOTIFY limit are replaced by a truncation envelope
// holding only routing fields, and clients fetch the full row over REST.
package events

// Persistent event types (stored in DB + NOTIFY).
const (
	// EventTypeWorkflowStatus fires on every workflow status transition.
	EventTypeWorkflowStatus = "workflow.status"

	// EventTypeAgentCompleted fires when a pipeline agent finishes,
	// successfully or not.
	EventTypeAgentCompleted = "agent.completed"

	// EventTypeQueueItemStatus fires on every merge-queue item transition,
	// including position changes after a reorder.
	EventTypeQueueItemStatus = "queue.item_status"

	// EventTypeRemediationProgress fires as a remediation run moves through
	// its phases.
	EventTypeRemediationProgress = "remediation.progress"
)

// Transient event types (NOTIFY only, no DB persistence).
const (
	// EventTypeAgentProgress is the high-frequency heartbeat of a running
	// agent. Ephemeral, lost on disconnect.
	EventTypeAgentProgress = "agent.progress"
)

// GlobalChannel receives a copy of every notification. Dashboard feeds
// subscribe here instead of one channel per repository.
const GlobalChannel = "repos"

// RepositoryChannel returns the channel name for one repository's events.
// Format: "repo:{repository_id}"
func RepositoryChannel(repositoryID string) string {
	return "repo:" + repositoryID
}
