package api

import (
	"encoding/json"
	"time"

	"docvault/internal/models"
)

// Dismiss tells a UI how an error notice should go away.
type Dismiss string

const (
	DismissAuto   Dismiss = "auto"
	DismissManual Dismiss = "manual"
)

// ErrorBody describes a failed call.
type ErrorBody struct {
	Kind      string  `json:"kind"`
	Message   string  `json:"message"`
	Code      int     `json:"code,omitempty"`
	Retryable bool    `json:"retryable"`
	Dismiss   Dismiss `json:"dismiss,omitempty"`
}

// Result is the envelope of every JSON response.
type Result[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// OK wraps data in a successful result.
func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Failure wraps body in a failed result.
func Failure(body ErrorBody) Result[any] {
	return Result[any]{Error: &body}
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Available bool   `json:"available"`
}

// InfoResponse is returned by GET /v1/info.
type InfoResponse struct {
	Version          string `json:"version"`
	SchemaVersion    int    `json:"schema_version"`
	DataDir          string `json:"data_dir"`
	BlobBackend      string `json:"blob_backend"`
	Blobs            int    `json:"blobs"`
	Documents        int    `json:"documents"`
	CachedDocuments  int    `json:"cached_documents"`
	QueuedOperations int    `json:"queued_operations"`
}

// StorageStats is returned by GET /v1/blobs/stats.
type StorageStats struct {
	Used        int64   `json:"used"`
	Available   int64   `json:"available"`
	PercentUsed float64 `json:"percent_used"`
	BlobCount   int     `json:"blob_count"`
	BlobBytes   int64   `json:"blob_bytes"`
}

// BlobUploadResponse is returned by POST /v1/blobs.
type BlobUploadResponse struct {
	ID   string      `json:"id"`
	Blob models.Blob `json:"blob"`
}

// RecountResponse is returned by POST /v1/blobs/recount.
type RecountResponse struct {
	Updated int `json:"updated"`
}

// GCRequest selects what a collection may delete.
type GCRequest struct {
	IncludeIcons      bool `json:"include_icons,omitempty"`
	RespectUsageCount bool `json:"respect_usage_count,omitempty"`
	FullRescan        bool `json:"full_rescan,omitempty"`
	BatchSize         int  `json:"batch_size,omitempty"`
}

// GCPreviewResponse lists what a collection would delete.
type GCPreviewResponse struct {
	Blobs      []models.Blob `json:"blobs"`
	Count      int           `json:"count"`
	TotalBytes int64         `json:"total_bytes"`
}

// GCRunResponse summarizes a collection.
type GCRunResponse struct {
	BlobsDeleted     int   `json:"blobs_deleted"`
	BytesFreed       int64 `json:"bytes_freed"`
	Failed           int   `json:"failed"`
	Candidates       int   `json:"candidates"`
	DocumentsScanned int   `json:"documents_scanned"`
	CacheHits        int   `json:"cache_hits"`
	DurationMS       int64 `json:"duration_ms"`
}

// CacheStats is returned by GET /v1/cache/stats.
type CacheStats struct {
	Entries        int        `json:"entries"`
	TotalSize      int64      `json:"total_size"`
	MaxSize        int64      `json:"max_size"`
	MaxEntries     int        `json:"max_entries"`
	Evictions      int64      `json:"evictions"`
	OldestCachedAt *time.Time `json:"oldest_cached_at,omitempty"`
	NewestCachedAt *time.Time `json:"newest_cached_at,omitempty"`
}

// RemovedResponse reports how many items a clear removed.
type RemovedResponse struct {
	Removed int `json:"removed"`
}

// QueueAddRequest enqueues one operation.
type QueueAddRequest struct {
	ID         string          `json:"id,omitempty"`
	DocumentID string          `json:"document_id"`
	HostID     string          `json:"host_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// CountResponse carries a single count.
type CountResponse struct {
	Count int `json:"count"`
}
