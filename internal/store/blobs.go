package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"docvault/internal/models"
)

const blobColumns = "id, mime_type, size_bytes, original_name, created_at, usage_count"

// BlobUsage summarizes stored blob metadata.
type BlobUsage struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"total_bytes"`
}

// CreateBlob inserts one metadata row if no row with the same id exists.
func (s *Store) CreateBlob(ctx context.Context, blob *models.Blob) (bool, error) {
	if blob == nil {
		return false, fmt.Errorf("blob is required")
	}
	blob.ID = strings.ToLower(strings.TrimSpace(blob.ID))
	if blob.ID == "" {
		return false, fmt.Errorf("blob id is required")
	}
	if blob.SizeBytes < 0 {
		return false, fmt.Errorf("size_bytes must be >= 0")
	}
	if blob.UsageCount < 0 {
		blob.UsageCount = 0
	}
	if strings.TrimSpace(blob.MimeType) == "" {
		blob.MimeType = models.DefaultMimeType
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO blobs (`+blobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, blob.ID, blob.MimeType, blob.SizeBytes, nullIfEmpty(blob.OriginalName), formatTime(blob.CreatedAt), blob.UsageCount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetBlob returns one blob by id, or nil when absent.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id)
	return scanBlob(row)
}

// ListBlobs lists every blob ordered by creation time.
func (s *Store) ListBlobs(ctx context.Context) ([]models.Blob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+blobColumns+` FROM blobs ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob == nil {
			continue
		}
		blobs = append(blobs, *blob)
	}
	return blobs, rows.Err()
}

// DeleteBlob deletes one metadata row.
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", id)
	return err
}

// AdjustUsageCount adds delta to usage_count without going below zero.
func (s *Store) AdjustUsageCount(ctx context.Context, id string, delta int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE blobs SET usage_count = MAX(0, usage_count + ?) WHERE id = ?
	`, delta, id)
	if err != nil {
		return false, err
	}
	return rowsChanged(res)
}

// SetUsageCount overwrites usage_count.
func (s *Store) SetUsageCount(ctx context.Context, id string, count int64) (bool, error) {
	if count < 0 {
		count = 0
	}
	res, err := s.db.ExecContext(ctx, "UPDATE blobs SET usage_count = ? WHERE id = ?", count, id)
	if err != nil {
		return false, err
	}
	return rowsChanged(res)
}

// BlobUsage returns the number of blobs and the sum of their sizes.
func (s *Store) BlobUsage(ctx context.Context) (BlobUsage, error) {
	var usage BlobUsage
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM blobs").Scan(&usage.Count, &usage.TotalBytes)
	return usage, err
}

// PutBlobContent stores bytes for id, replacing any existing row.
func (s *Store) PutBlobContent(ctx context.Context, id string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blob_content (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data
	`, id, data)
	return err
}

// GetBlobContent returns stored bytes, or nil when absent.
func (s *Store) GetBlobContent(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM blob_content WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// HasBlobContent reports whether bytes are stored for id.
func (s *Store) HasBlobContent(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM blob_content WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteBlobContent deletes stored bytes for id.
func (s *Store) DeleteBlobContent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM blob_content WHERE id = ?", id)
	return err
}

// ListBlobContentIDs lists every id with stored bytes.
func (s *Store) ListBlobContentIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, "SELECT id FROM blob_content ORDER BY id ASC")
}

func (s *Store) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func rowsChanged(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	var (
		blob         models.Blob
		originalName sql.NullString
		createdAt    string
	)
	if err := scanner.Scan(&blob.ID, &blob.MimeType, &blob.SizeBytes, &originalName, &createdAt, &blob.UsageCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsedCreated
	if originalName.Valid {
		blob.OriginalName = originalName.String
	}
	return &blob, nil
}
