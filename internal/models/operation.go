package models

import (
	"encoding/json"
	"time"
)

// Operation is a queued edit waiting to be replayed against a host.
// The payload is stored verbatim.
type Operation struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	HostID     string          `json:"host_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
