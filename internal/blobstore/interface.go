package blobstore

import (
	"context"
)

// Content store backends.
const (
	BackendSQLite   = "sqlite"
	BackendLocalCAS = "local_cas"
)

// ContentStore is the byte-storage abstraction behind Store.
// Keys are lowercase hex SHA-256 digests.
type ContentStore interface {
	Put(ctx context.Context, id string, data []byte) error
	// Get returns nil, nil when no content is stored for id.
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}
