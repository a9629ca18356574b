package store

import (
	"context"

	"docvault/internal/models"
)

// BlobMetaStore persists blob metadata rows keyed by content digest.
type BlobMetaStore interface {
	// CreateBlob inserts blob unless a row with its id exists. It reports
	// whether a new row was written.
	CreateBlob(ctx context.Context, blob *models.Blob) (bool, error)
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	ListBlobs(ctx context.Context) ([]models.Blob, error)
	DeleteBlob(ctx context.Context, id string) error
	// AdjustUsageCount adds delta to the usage count, flooring at zero.
	// It reports false when no row exists.
	AdjustUsageCount(ctx context.Context, id string, delta int64) (bool, error)
	SetUsageCount(ctx context.Context, id string, count int64) (bool, error)
	BlobUsage(ctx context.Context) (BlobUsage, error)
}

// BlobContentStore persists blob bytes keyed by content digest.
type BlobContentStore interface {
	PutBlobContent(ctx context.Context, id string, data []byte) error
	GetBlobContent(ctx context.Context, id string) ([]byte, error)
	HasBlobContent(ctx context.Context, id string) (bool, error)
	DeleteBlobContent(ctx context.Context, id string) error
	ListBlobContentIDs(ctx context.Context) ([]string, error)
}

// OperationStore persists queued sync operations.
type OperationStore interface {
	SaveOperation(ctx context.Context, op *models.Operation) error
	SaveOperations(ctx context.Context, ops []models.Operation) error
	GetOperation(ctx context.Context, id string) (*models.Operation, error)
	ListOperations(ctx context.Context, filter OperationFilter) ([]models.Operation, error)
	CountOperations(ctx context.Context, filter OperationFilter) (int, error)
	DeleteOperation(ctx context.Context, id string) (bool, error)
	DeleteOperations(ctx context.Context, ids []string) (int, error)
	DeleteOperationsWhere(ctx context.Context, filter OperationFilter) (int, error)
}

// OfflineStore persists encoded offline document payloads.
type OfflineStore interface {
	PutOfflinePayload(ctx context.Context, id string, payload []byte) error
	GetOfflinePayload(ctx context.Context, id string) ([]byte, error)
	DeleteOfflinePayload(ctx context.Context, id string) error
	DeleteOfflinePayloads(ctx context.Context, ids []string) (int, error)
	ListOfflinePayloadIDs(ctx context.Context) ([]string, error)
	ClearOfflinePayloads(ctx context.Context) (int, error)
}

var (
	_ BlobMetaStore    = (*Store)(nil)
	_ BlobContentStore = (*Store)(nil)
	_ OperationStore   = (*Store)(nil)
	_ OfflineStore     = (*Store)(nil)
)
