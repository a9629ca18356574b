package models

import (
	"encoding/json"
	"time"
)

// DocumentInfo is one row of a corpus listing.
type DocumentInfo struct {
	ID         string    `json:"id"`
	Title      string    `json:"title,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
	SizeBytes  int64     `json:"size_bytes"`
}

// DocumentRefs is the set of blob ids a document cites.
type DocumentRefs struct {
	DocumentID string   `json:"document_id"`
	BlobIDs    []string `json:"blob_ids"`
}

// Document is a locally stored document.
type Document struct {
	ID       string          `json:"id"`
	Title    string          `json:"title,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
	BlobRefs []string        `json:"blob_refs,omitempty"`
}
