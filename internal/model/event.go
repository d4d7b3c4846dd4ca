package model

import (
	"encoding/json"
	"time"
)

// Event is one entry in a request's durable audit trail. Every lifecycle
// mutation (creation, decision, timeout) records one, alongside the
// best-effort bus publish.
type Event struct {
	ID        int64           `json:"id"`
	Topic     string          `json:"topic"`
	RequestID string          `json:"request_id"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
