package models

import (
	"strings"
	"time"
)

// Blob is an immutable content object keyed by the SHA-256 of its bytes.
//
// UsageCount is a display hint only. Reachability from documents decides
// whether a blob may be deleted.
type Blob struct {
	ID           string    `json:"id"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	OriginalName string    `json:"original_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UsageCount   int64     `json:"usage_count"`
}

// IsIcon reports whether the blob belongs to the icon subtype that garbage
// collection skips unless asked otherwise.
func (b Blob) IsIcon() bool {
	if IsIconMimeType(b.MimeType) {
		return true
	}
	return strings.HasPrefix(b.OriginalName, IconNamePrefix)
}

// BlobRefPrefix marks a blob reference inside document content.
const BlobRefPrefix = "blob:"

// BlobRef formats a reference to id that documents can embed.
func BlobRef(id string) string {
	return BlobRefPrefix + id
}
