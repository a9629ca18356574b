// Package syncqueue durably stores edits made while a team host is
// unreachable until they can be replayed. Operations are opaque: the queue
// keys them by id, document and host and never interprets the payload.
package syncqueue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"docvault/internal/metrics"
	"docvault/internal/models"
	"docvault/internal/store"
	"docvault/internal/vaulterr"
)

// Options wires a Queue.
type Options struct {
	Store   store.OperationStore
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Queue is the sync queue store.
type Queue struct {
	store   store.OperationStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a queue.
func New(opts Options) (*Queue, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("operation store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		store:   opts.Store,
		metrics: opts.Metrics,
		logger:  opts.Logger.With("component", "syncqueue"),
		now:     opts.Now,
	}, nil
}

// prepare fills in a missing id and timestamp and checks required fields.
func (q *Queue) prepare(op models.Operation) (models.Operation, error) {
	if strings.TrimSpace(op.ID) == "" {
		op.ID = uuid.NewString()
	}
	if strings.TrimSpace(op.DocumentID) == "" {
		return op, vaulterr.Invalid("queue operation", fmt.Errorf("document id is required"))
	}
	if strings.TrimSpace(op.HostID) == "" {
		return op, vaulterr.Invalid("queue operation", fmt.Errorf("host id is required"))
	}
	if strings.TrimSpace(op.Type) == "" {
		return op, vaulterr.Invalid("queue operation", fmt.Errorf("operation type is required"))
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = q.now()
	}
	op.Timestamp = op.Timestamp.UTC()
	return op, nil
}

// Save stores op, overwriting any operation with the same id. It returns
// the operation as stored.
func (q *Queue) Save(ctx context.Context, op models.Operation) (models.Operation, error) {
	op, err := q.prepare(op)
	if err != nil {
		return op, err
	}
	if err := q.store.SaveOperation(ctx, &op); err != nil {
		return op, vaulterr.Storage("save operation", err)
	}
	q.logger.Debug("operation queued", "id", op.ID, "document", op.DocumentID, "host", op.HostID, "type", op.Type)
	q.refreshDepth(ctx)
	return op, nil
}

// SaveAll stores ops in one transaction: either all land or none do.
func (q *Queue) SaveAll(ctx context.Context, ops []models.Operation) ([]models.Operation, error) {
	prepared := make([]models.Operation, 0, len(ops))
	for _, op := range ops {
		p, err := q.prepare(op)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}
	if len(prepared) == 0 {
		return prepared, nil
	}
	if err := q.store.SaveOperations(ctx, prepared); err != nil {
		return nil, vaulterr.Storage("save operations", err)
	}
	q.logger.Debug("operations queued", "count", len(prepared))
	q.refreshDepth(ctx)
	return prepared, nil
}

// Load returns one operation, or nil, nil when absent.
func (q *Queue) Load(ctx context.Context, id string) (*models.Operation, error) {
	op, err := q.store.GetOperation(ctx, id)
	if err != nil {
		return nil, vaulterr.Storage("load operation", err)
	}
	return op, nil
}

// LoadAll lists every queued operation ordered by timestamp.
func (q *Queue) LoadAll(ctx context.Context) ([]models.Operation, error) {
	return q.list(ctx, store.OperationFilter{})
}

// LoadByHost lists the operations pending for hostID.
func (q *Queue) LoadByHost(ctx context.Context, hostID string) ([]models.Operation, error) {
	if strings.TrimSpace(hostID) == "" {
		return nil, vaulterr.Invalid("load operations", fmt.Errorf("host id is required"))
	}
	return q.list(ctx, store.OperationFilter{HostID: hostID})
}

// LoadByDocument lists the operations pending for documentID.
func (q *Queue) LoadByDocument(ctx context.Context, documentID string) ([]models.Operation, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, vaulterr.Invalid("load operations", fmt.Errorf("document id is required"))
	}
	return q.list(ctx, store.OperationFilter{DocumentID: documentID})
}

func (q *Queue) list(ctx context.Context, filter store.OperationFilter) ([]models.Operation, error) {
	ops, err := q.store.ListOperations(ctx, filter)
	if err != nil {
		return nil, vaulterr.Storage("list operations", err)
	}
	if ops == nil {
		ops = []models.Operation{}
	}
	return ops, nil
}

// Remove deletes one operation. Unknown ids are not an error.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if _, err := q.store.DeleteOperation(ctx, id); err != nil {
		return vaulterr.Storage("remove operation", err)
	}
	q.refreshDepth(ctx)
	return nil
}

// RemoveAll deletes ids in one transaction and returns how many existed.
func (q *Queue) RemoveAll(ctx context.Context, ids []string) (int, error) {
	n, err := q.store.DeleteOperations(ctx, ids)
	if err != nil {
		return 0, vaulterr.Storage("remove operations", err)
	}
	q.refreshDepth(ctx)
	return n, nil
}

// ClearByHost deletes every operation for hostID.
func (q *Queue) ClearByHost(ctx context.Context, hostID string) (int, error) {
	if strings.TrimSpace(hostID) == "" {
		return 0, vaulterr.Invalid("clear operations", fmt.Errorf("host id is required"))
	}
	return q.clear(ctx, store.OperationFilter{HostID: hostID})
}

// ClearByDocument deletes every operation for documentID.
func (q *Queue) ClearByDocument(ctx context.Context, documentID string) (int, error) {
	if strings.TrimSpace(documentID) == "" {
		return 0, vaulterr.Invalid("clear operations", fmt.Errorf("document id is required"))
	}
	return q.clear(ctx, store.OperationFilter{DocumentID: documentID})
}

// ClearAll empties the queue.
func (q *Queue) ClearAll(ctx context.Context) (int, error) {
	return q.clear(ctx, store.OperationFilter{})
}

func (q *Queue) clear(ctx context.Context, filter store.OperationFilter) (int, error) {
	n, err := q.store.DeleteOperationsWhere(ctx, filter)
	if err != nil {
		return 0, vaulterr.Storage("clear operations", err)
	}
	if n > 0 {
		q.logger.Info("operations cleared", "host", filter.HostID, "document", filter.DocumentID, "count", n)
	}
	q.refreshDepth(ctx)
	return n, nil
}

// Count returns the number of queued operations.
func (q *Queue) Count(ctx context.Context) (int, error) {
	return q.count(ctx, store.OperationFilter{})
}

// CountByHost returns the number of operations queued for hostID.
func (q *Queue) CountByHost(ctx context.Context, hostID string) (int, error) {
	return q.count(ctx, store.OperationFilter{HostID: hostID})
}

func (q *Queue) count(ctx context.Context, filter store.OperationFilter) (int, error) {
	n, err := q.store.CountOperations(ctx, filter)
	if err != nil {
		return 0, vaulterr.Storage("count operations", err)
	}
	return n, nil
}

func (q *Queue) refreshDepth(ctx context.Context) {
	if q.metrics == nil {
		return
	}
	n, err := q.store.CountOperations(ctx, store.OperationFilter{})
	if err != nil {
		q.logger.Warn("count operations for metrics", "error", err)
		return
	}
	q.metrics.SetQueueDepth(n)
}
