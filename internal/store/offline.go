package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PutOfflinePayload stores an encoded document payload, replacing any prior one.
func (s *Store) PutOfflinePayload(ctx context.Context, id string, payload []byte) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("document id is required")
	}
	if payload == nil {
		payload = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO offline_documents (id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, id, payload, formatTime(time.Now()))
	return err
}

// GetOfflinePayload returns the stored payload, or nil when absent.
func (s *Store) GetOfflinePayload(ctx context.Context, id string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM offline_documents WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// DeleteOfflinePayload deletes one payload.
func (s *Store) DeleteOfflinePayload(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM offline_documents WHERE id = ?", id)
	return err
}

// DeleteOfflinePayloads deletes ids in one statement and returns how many existed.
func (s *Store) DeleteOfflinePayloads(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM offline_documents WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListOfflinePayloadIDs lists every document id with a stored payload.
func (s *Store) ListOfflinePayloadIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, "SELECT id FROM offline_documents ORDER BY id ASC")
}

// ClearOfflinePayloads deletes every payload.
func (s *Store) ClearOfflinePayloads(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM offline_documents")
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
