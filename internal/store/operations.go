package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"docvault/internal/models"
)

const operationColumns = "id, document_id, host_id, timestamp, type, payload"

// OperationFilter scopes operation queries. Empty fields match everything.
type OperationFilter struct {
	HostID     string
	DocumentID string
}

func (f OperationFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.HostID != "" {
		clauses = append(clauses, "host_id = ?")
		args = append(args, f.HostID)
	}
	if f.DocumentID != "" {
		clauses = append(clauses, "document_id = ?")
		args = append(args, f.DocumentID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// SaveOperation upserts one operation keyed by id.
func (s *Store) SaveOperation(ctx context.Context, op *models.Operation) error {
	if op == nil {
		return fmt.Errorf("operation is required")
	}
	return upsertOperation(ctx, s.db, op)
}

// SaveOperations upserts all ops in one transaction.
func (s *Store) SaveOperations(ctx context.Context, ops []models.Operation) (err error) {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i := range ops {
		if err := upsertOperation(ctx, tx, &ops[i]); err != nil {
			return fmt.Errorf("save operation %s: %w", ops[i].ID, err)
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertOperation(ctx context.Context, db execer, op *models.Operation) error {
	if strings.TrimSpace(op.ID) == "" {
		return fmt.Errorf("operation id is required")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO queued_operations (`+operationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  document_id = excluded.document_id,
		  host_id = excluded.host_id,
		  timestamp = excluded.timestamp,
		  type = excluded.type,
		  payload = excluded.payload
	`, op.ID, op.DocumentID, op.HostID, formatTime(op.Timestamp), op.Type, []byte(op.Payload))
	return err
}

// GetOperation returns one operation by id, or nil when absent.
func (s *Store) GetOperation(ctx context.Context, id string) (*models.Operation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM queued_operations WHERE id = ?`, id)
	return scanOperation(row)
}

// ListOperations lists operations matching filter ordered by timestamp then id.
func (s *Store) ListOperations(ctx context.Context, filter OperationFilter) ([]models.Operation, error) {
	where, args := filter.where()
	rows, err := s.db.QueryContext(ctx, `SELECT `+operationColumns+` FROM queued_operations`+where+` ORDER BY timestamp ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ops := []models.Operation{}
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		if op == nil {
			continue
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

// CountOperations counts operations matching filter.
func (s *Store) CountOperations(ctx context.Context, filter OperationFilter) (int, error) {
	where, args := filter.where()
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queued_operations"+where, args...).Scan(&count)
	return count, err
}

// DeleteOperation deletes one operation and reports whether it existed.
func (s *Store) DeleteOperation(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM queued_operations WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	return rowsChanged(res)
}

// DeleteOperations deletes ids in one transaction and returns how many existed.
func (s *Store) DeleteOperations(ctx context.Context, ids []string) (_ int, err error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM queued_operations WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// DeleteOperationsWhere deletes every operation matching filter.
// An empty filter clears the table.
func (s *Store) DeleteOperationsWhere(ctx context.Context, filter OperationFilter) (int, error) {
	where, args := filter.where()
	res, err := s.db.ExecContext(ctx, "DELETE FROM queued_operations"+where, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanOperation(scanner interface {
	Scan(dest ...any) error
}) (*models.Operation, error) {
	var (
		op        models.Operation
		timestamp string
		payload   []byte
	)
	if err := scanner.Scan(&op.ID, &op.DocumentID, &op.HostID, &timestamp, &op.Type, &payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := parseTime(timestamp)
	if err != nil {
		return nil, err
	}
	op.Timestamp = parsed
	if len(payload) > 0 {
		op.Payload = payload
	}
	return &op, nil
}
