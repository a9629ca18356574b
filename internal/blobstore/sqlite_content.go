package blobstore

import (
	"context"
	"fmt"

	"docvault/internal/store"
)

// SQLiteContent keeps blob bytes in the blob_content table next to the metadata.
type SQLiteContent struct {
	st store.BlobContentStore
}

// NewSQLiteContent wraps a content table.
func NewSQLiteContent(st store.BlobContentStore) (*SQLiteContent, error) {
	if st == nil {
		return nil, fmt.Errorf("content table is required")
	}
	return &SQLiteContent{st: st}, nil
}

func (c *SQLiteContent) Put(ctx context.Context, id string, data []byte) error {
	return c.st.PutBlobContent(ctx, id, data)
}

func (c *SQLiteContent) Get(ctx context.Context, id string) ([]byte, error) {
	return c.st.GetBlobContent(ctx, id)
}

func (c *SQLiteContent) Delete(ctx context.Context, id string) error {
	return c.st.DeleteBlobContent(ctx, id)
}

func (c *SQLiteContent) List(ctx context.Context) ([]string, error) {
	return c.st.ListBlobContentIDs(ctx)
}
