package models

import (
	"encoding/json"
	"time"
)

// RemoteDocument is a document fetched from a team host.
// Version is nil for entries written before hosts reported versions.
type RemoteDocument struct {
	ID      string          `json:"id"`
	Title   string          `json:"title,omitempty"`
	Version *int64          `json:"version,omitempty"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// CacheEntry is the index row kept for one cached remote document.
type CacheEntry struct {
	ID            string    `json:"id"`
	CachedAt      time.Time `json:"cached_at"`
	ServerVersion *int64    `json:"server_version,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	HostID        string    `json:"host_id"`
}
