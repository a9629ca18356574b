// Package blobstore implements the content-addressed blob store: bytes are
// keyed by their SHA-256 digest so identical content is stored once.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"docvault/internal/metrics"
	"docvault/internal/models"
	"docvault/internal/quota"
	"docvault/internal/store"
	"docvault/internal/vaulterr"
)

// StorageStats reports pool usage as seen by the quota estimator.
type StorageStats struct {
	Used        int64   `json:"used"`
	Available   int64   `json:"available"`
	PercentUsed float64 `json:"percent_used"`
	BlobCount   int     `json:"blob_count"`
	BlobBytes   int64   `json:"blob_bytes"`
}

// Options wires a Store.
type Options struct {
	Meta      store.BlobMetaStore
	Content   ContentStore
	Estimator quota.Estimator
	Guard     quota.Guard
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Store composes blob metadata, content and the quota guard.
type Store struct {
	meta      store.BlobMetaStore
	content   ContentStore
	estimator quota.Estimator
	guard     quota.Guard
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	// mu makes the dedup lookup and the insert one step for this process.
	mu sync.Mutex
}

// New creates a blob store.
func New(opts Options) (*Store, error) {
	if opts.Meta == nil {
		return nil, fmt.Errorf("blob metadata store is required")
	}
	if opts.Content == nil {
		return nil, fmt.Errorf("blob content store is required")
	}
	if opts.Estimator == nil {
		opts.Estimator = quota.Fixed{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		meta:      opts.Meta,
		content:   opts.Content,
		estimator: opts.Estimator,
		guard:     opts.Guard,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "blobstore"),
		now:       opts.Now,
	}, nil
}

// ComputeID returns the content address of data.
func ComputeID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Save stores data and returns its content id. The MIME type is detected
// from name and content.
func (s *Store) Save(ctx context.Context, data []byte, name string) (string, error) {
	return s.SaveWithType(ctx, data, name, "")
}

// SaveWithType stores data with an explicit MIME type. Saving content that
// already exists bumps its usage count and returns the existing id without
// consulting the quota.
func (s *Store) SaveWithType(ctx context.Context, data []byte, name, mimeType string) (string, error) {
	id := ComputeID(data)
	size := int64(len(data))

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.meta.GetBlob(ctx, id)
	if err != nil {
		s.metrics.RecordBlobSave(metrics.SaveFailed, size)
		return "", vaulterr.Storage("look up blob", err)
	}
	if existing != nil {
		bumped, err := s.meta.AdjustUsageCount(ctx, id, 1)
		if err != nil {
			s.metrics.RecordBlobSave(metrics.SaveFailed, size)
			return "", vaulterr.Storage("increment usage count", err)
		}
		if bumped {
			s.metrics.RecordBlobSave(metrics.SaveDeduplicated, size)
			s.logger.Debug("blob deduplicated", "id", id, "name", name)
			return id, nil
		}
		// Deleted between lookup and increment (a GC sweep from another
		// process); store it again.
		s.logger.Debug("deduplicated blob vanished, storing again", "id", id)
	}

	est, err := s.estimator.Estimate(ctx)
	if err != nil {
		// Without an estimate the write proceeds; the host fails it if space runs out.
		s.logger.Warn("storage estimate unavailable", "error", err)
		est = quota.Estimate{}
	}
	if err := s.guard.Check(est, size); err != nil {
		s.metrics.RecordBlobSave(metrics.SaveQuotaRejected, size)
		s.logger.Warn("blob rejected by quota", "size", size, "used", est.UsedBytes, "available", est.AvailableBytes)
		return "", err
	}

	if strings.TrimSpace(mimeType) == "" {
		mimeType = DetectMimeType(name, data)
	}
	if err := s.content.Put(ctx, id, data); err != nil {
		s.metrics.RecordBlobSave(metrics.SaveFailed, size)
		return "", vaulterr.Storage("store blob content", err)
	}

	blob := &models.Blob{
		ID:           id,
		MimeType:     models.NormalizeMimeType(mimeType),
		SizeBytes:    size,
		OriginalName: name,
		CreatedAt:    s.now().UTC(),
		UsageCount:   1,
	}
	created, err := s.meta.CreateBlob(ctx, blob)
	if err != nil {
		if delErr := s.content.Delete(ctx, id); delErr != nil {
			s.logger.Warn("remove content after failed metadata insert", "id", id, "error", delErr)
		}
		s.metrics.RecordBlobSave(metrics.SaveFailed, size)
		return "", vaulterr.Storage("store blob metadata", err)
	}
	if !created {
		// Another writer on the same database got there first.
		if _, err := s.meta.AdjustUsageCount(ctx, id, 1); err != nil {
			return "", vaulterr.Storage("increment usage count", err)
		}
		s.metrics.RecordBlobSave(metrics.SaveDeduplicated, size)
		return id, nil
	}

	s.metrics.RecordBlobSave(metrics.SaveStored, size)
	s.logger.Debug("blob stored", "id", id, "size", size, "mime_type", blob.MimeType)
	return id, nil
}

// Load returns blob bytes, or nil, nil when the blob is unknown.
func (s *Store) Load(ctx context.Context, id string) ([]byte, error) {
	if !models.IsValidBlobID(id) {
		return nil, nil
	}
	data, err := s.content.Get(ctx, id)
	if err != nil {
		return nil, vaulterr.Storage("load blob", err)
	}
	return data, nil
}

// Delete removes metadata and content. It does not look at usage counts;
// callers decide whether the blob is safe to remove.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !models.IsValidBlobID(id) {
		return vaulterr.Invalid("delete blob", fmt.Errorf("invalid blob id %q", id))
	}
	if err := s.meta.DeleteBlob(ctx, id); err != nil {
		return vaulterr.Storage("delete blob metadata", err)
	}
	if err := s.content.Delete(ctx, id); err != nil {
		return vaulterr.Storage("delete blob content", err)
	}
	s.metrics.RecordBlobDeleted()
	s.logger.Debug("blob deleted", "id", id)
	return nil
}

// GetMetadata returns metadata for id, or nil, nil when unknown.
func (s *Store) GetMetadata(ctx context.Context, id string) (*models.Blob, error) {
	if !models.IsValidBlobID(id) {
		return nil, nil
	}
	blob, err := s.meta.GetBlob(ctx, id)
	if err != nil {
		return nil, vaulterr.Storage("get blob metadata", err)
	}
	return blob, nil
}

// ListAll returns metadata for every stored blob.
func (s *Store) ListAll(ctx context.Context) ([]models.Blob, error) {
	blobs, err := s.meta.ListBlobs(ctx)
	if err != nil {
		return nil, vaulterr.Storage("list blobs", err)
	}
	return blobs, nil
}

// GetStorageStats reports pool usage and blob totals.
func (s *Store) GetStorageStats(ctx context.Context) (StorageStats, error) {
	est, err := s.estimator.Estimate(ctx)
	if err != nil {
		return StorageStats{}, vaulterr.Storage("estimate storage", err)
	}
	usage, err := s.meta.BlobUsage(ctx)
	if err != nil {
		return StorageStats{}, vaulterr.Storage("sum blob sizes", err)
	}
	s.metrics.UpdateStorage(est.UsedBytes, est.AvailableBytes)
	return StorageStats{
		Used:        est.UsedBytes,
		Available:   est.AvailableBytes,
		PercentUsed: est.PercentUsed(),
		BlobCount:   usage.Count,
		BlobBytes:   usage.TotalBytes,
	}, nil
}

// IncrementUsageCount adds one to the display counter. Unknown ids are ignored.
func (s *Store) IncrementUsageCount(ctx context.Context, id string) error {
	return s.adjust(ctx, id, 1)
}

// DecrementUsageCount subtracts one, never going below zero.
func (s *Store) DecrementUsageCount(ctx context.Context, id string) error {
	return s.adjust(ctx, id, -1)
}

func (s *Store) adjust(ctx context.Context, id string, delta int64) error {
	ok, err := s.meta.AdjustUsageCount(ctx, id, delta)
	if err != nil {
		return vaulterr.Storage("adjust usage count", err)
	}
	if !ok {
		s.logger.Debug("usage count change for unknown blob", "id", id, "delta", delta)
	}
	return nil
}

// SetUsageCount overwrites the display counter.
func (s *Store) SetUsageCount(ctx context.Context, id string, count int64) error {
	if _, err := s.meta.SetUsageCount(ctx, id, count); err != nil {
		return vaulterr.Storage("set usage count", err)
	}
	return nil
}

// PruneOrphanContent deletes content that has no metadata row, left behind
// when a delete removed metadata but failed on content.
func (s *Store) PruneOrphanContent(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.content.List(ctx)
	if err != nil {
		return 0, vaulterr.Storage("list blob content", err)
	}
	pruned := 0
	for _, id := range ids {
		blob, err := s.meta.GetBlob(ctx, id)
		if err != nil {
			return pruned, vaulterr.Storage("look up blob", err)
		}
		if blob != nil {
			continue
		}
		if err := s.content.Delete(ctx, id); err != nil {
			s.logger.Warn("prune orphan content failed", "id", id, "error", err)
			continue
		}
		pruned++
	}
	if pruned > 0 {
		s.logger.Info("pruned orphan blob content", "count", pruned)
	}
	return pruned, nil
}
