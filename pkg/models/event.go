package models

import (
	"encoding/json"
	"time"
)

// Event is one persisted observability event row. Events are written
// best-effort alongside a pg_notify on the repository channel.
type Event struct {
	ID           int64           `json:"id"`
	RepositoryID string          `json:"repository_id"`
	ItemID       string          `json:"item_id"`
	Channel      string          `json:"channel"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"created_at"`
}
