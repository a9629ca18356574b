// Package gc reclaims blobs that no document references, using mark and
// sweep over the document corpus with an incremental per-document
// reference cache.
package gc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"docvault/internal/atomicfile"
	"docvault/internal/metrics"
	"docvault/internal/models"
	"docvault/internal/vaulterr"
)

const defaultBatchSize = 10

// Phase names a stage of a collection run for progress reporting.
type Phase string

const (
	PhaseScanning Phase = "scanning"
	PhaseDeleting Phase = "deleting"
)

// ProgressFunc receives progress updates. current counts from 1.
type ProgressFunc func(phase Phase, current, total int)

// Corpus lists and loads documents.
type Corpus interface {
	ListDocuments(ctx context.Context) ([]models.DocumentInfo, error)
	// LoadDocument returns nil, nil when the document no longer exists.
	LoadDocument(ctx context.Context, id string) (*models.DocumentRefs, error)
}

// BlobStore is the part of the blob store the collector needs.
type BlobStore interface {
	ListAll(ctx context.Context) ([]models.Blob, error)
	Delete(ctx context.Context, id string) error
	SetUsageCount(ctx context.Context, id string, count int64) error
}

// Options controls one run.
type Options struct {
	// IncludeIcons also collects unreferenced icon blobs.
	IncludeIcons bool
	// FullRescan reloads every document instead of trusting the cache.
	FullRescan bool
	// RespectUsageCount keeps unreferenced blobs whose usage count is positive.
	RespectUsageCount bool
	BatchSize         int
	OnProgress        ProgressFunc
}

// Result summarizes a collection run.
type Result struct {
	BlobsDeleted     int           `json:"blobs_deleted"`
	BytesFreed       int64         `json:"bytes_freed"`
	Failed           int           `json:"failed"`
	Candidates       int           `json:"candidates"`
	DocumentsScanned int           `json:"documents_scanned"`
	CacheHits        int           `json:"cache_hits"`
	Duration         time.Duration `json:"duration"`
}

// Config wires a Collector.
type Config struct {
	Corpus Corpus
	Blobs  BlobStore
	// Writer and CachePath persist the reference cache between processes.
	// Both are optional.
	Writer    *atomicfile.Writer
	CachePath string
	BatchSize int
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Collector runs mark and sweep passes. Runs are serialized.
type Collector struct {
	corpus    Corpus
	blobs     BlobStore
	writer    *atomicfile.Writer
	cachePath string
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]refCacheEntry
}

// New creates a collector.
func New(cfg Config) (*Collector, error) {
	if cfg.Corpus == nil {
		return nil, fmt.Errorf("document corpus is required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Collector{
		corpus:    cfg.Corpus,
		blobs:     cfg.Blobs,
		writer:    cfg.Writer,
		cachePath: cfg.CachePath,
		batchSize: cfg.BatchSize,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With("component", "gc"),
		cache:     map[string]refCacheEntry{},
	}, nil
}

// CollectGarbage deletes every unreachable blob allowed by opts. Failed
// deletions are counted and do not stop the run.
func (c *Collector) CollectGarbage(ctx context.Context, opts Options) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	result, err := c.collect(ctx, opts)
	result.Duration = time.Since(start)
	c.metrics.RecordGC(err, result.BytesFreed, result.Failed, result.Duration)
	if err != nil {
		c.logger.Error("garbage collection failed", "error", err, "deleted", result.BlobsDeleted)
		return result, err
	}
	c.logger.Info("garbage collection finished",
		"deleted", result.BlobsDeleted,
		"bytes_freed", result.BytesFreed,
		"failed", result.Failed,
		"documents", result.DocumentsScanned,
		"cache_hits", result.CacheHits,
		"duration", result.Duration)
	return result, nil
}

func (c *Collector) collect(ctx context.Context, opts Options) (Result, error) {
	var result Result
	scan, err := c.mark(ctx, opts)
	if err != nil {
		return result, err
	}
	result.DocumentsScanned = scan.documents
	result.CacheHits = scan.cacheHits

	orphans, err := c.orphans(ctx, scan.reachable, opts)
	if err != nil {
		return result, err
	}
	result.Candidates = len(orphans)

	c.persistCache()

	deleted, freed, failed, err := c.sweep(ctx, orphans, opts)
	result.BlobsDeleted = deleted
	result.BytesFreed = freed
	result.Failed = failed
	return result, err
}

// GetOrphanedBlobs lists what CollectGarbage would delete without deleting.
func (c *Collector) GetOrphanedBlobs(ctx context.Context, opts Options) ([]models.Blob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	scan, err := c.mark(ctx, opts)
	if err != nil {
		return nil, err
	}
	orphans, err := c.orphans(ctx, scan.reachable, opts)
	if err != nil {
		return nil, err
	}
	c.persistCache()
	return orphans, nil
}

// GetOrphanedSize sums the sizes of the blobs GetOrphanedBlobs returns.
func (c *Collector) GetOrphanedSize(ctx context.Context, opts Options) (int64, error) {
	orphans, err := c.GetOrphanedBlobs(ctx, opts)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, blob := range orphans {
		total += blob.SizeBytes
	}
	return total, nil
}

// RecalculateUsageCounts sets each blob's usage count to the number of
// documents referencing it and returns how many counts changed.
func (c *Collector) RecalculateUsageCounts(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	scan, err := c.mark(ctx, Options{FullRescan: true})
	if err != nil {
		return 0, err
	}
	blobs, err := c.blobs.ListAll(ctx)
	if err != nil {
		return 0, vaulterr.Storage("list blobs", err)
	}
	c.persistCache()

	updated := 0
	for _, blob := range blobs {
		want := int64(scan.reachable[blob.ID])
		if blob.UsageCount == want {
			continue
		}
		if err := c.blobs.SetUsageCount(ctx, blob.ID, want); err != nil {
			return updated, err
		}
		updated++
	}
	c.logger.Info("usage counts recalculated", "blobs", len(blobs), "updated", updated)
	return updated, nil
}

type markResult struct {
	// reachable maps blob id to the number of documents citing it.
	reachable map[string]int
	documents int
	cacheHits int
}

func (c *Collector) mark(ctx context.Context, opts Options) (markResult, error) {
	docs, err := c.corpus.ListDocuments(ctx)
	if err != nil {
		return markResult{}, vaulterr.Storage("list documents", err)
	}

	res := markResult{reachable: map[string]int{}, documents: len(docs)}
	present := make(map[string]struct{}, len(docs))
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return markResult{}, err
		}
		progress(opts.OnProgress, PhaseScanning, i+1, len(docs))
		present[doc.ID] = struct{}{}

		if entry, ok := c.cache[doc.ID]; ok && !opts.FullRescan && entry.valid(doc) {
			res.cacheHits++
			addRefs(res.reachable, entry.BlobIDs)
			continue
		}

		refs, err := c.corpus.LoadDocument(ctx, doc.ID)
		if err != nil {
			// An unreadable document could hide references; sweeping now would be unsafe.
			return markResult{}, vaulterr.Storage("load document "+doc.ID, err)
		}
		if refs == nil {
			delete(c.cache, doc.ID)
			delete(present, doc.ID)
			continue
		}
		c.cache[doc.ID] = refCacheEntry{
			DocumentID:         doc.ID,
			BlobIDs:            refs.BlobIDs,
			DocumentModifiedAt: doc.ModifiedAt,
			DocumentSize:       doc.SizeBytes,
		}
		addRefs(res.reachable, refs.BlobIDs)
	}

	for id := range c.cache {
		if _, ok := present[id]; !ok {
			delete(c.cache, id)
		}
	}
	c.metrics.RecordGCCacheHits(res.cacheHits)
	return res, nil
}

func addRefs(reachable map[string]int, ids []string) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		reachable[id]++
	}
}

func (c *Collector) orphans(ctx context.Context, reachable map[string]int, opts Options) ([]models.Blob, error) {
	blobs, err := c.blobs.ListAll(ctx)
	if err != nil {
		return nil, vaulterr.Storage("list blobs", err)
	}
	var out []models.Blob
	for _, blob := range blobs {
		if _, ok := reachable[blob.ID]; ok {
			continue
		}
		if blob.IsIcon() && !opts.IncludeIcons {
			continue
		}
		if opts.RespectUsageCount && blob.UsageCount > 0 {
			continue
		}
		out = append(out, blob)
	}
	return out, nil
}

// sweep deletes orphans batch by batch, each batch concurrently.
func (c *Collector) sweep(ctx context.Context, orphans []models.Blob, opts Options) (int, int64, int, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = c.batchSize
	}

	var (
		deleted atomic.Int64
		freed   atomic.Int64
		failed  atomic.Int64
	)
	for start := 0; start < len(orphans); start += batchSize {
		if err := ctx.Err(); err != nil {
			return int(deleted.Load()), freed.Load(), int(failed.Load()), err
		}
		end := min(start+batchSize, len(orphans))

		var g errgroup.Group
		for _, blob := range orphans[start:end] {
			g.Go(func() error {
				if err := c.blobs.Delete(ctx, blob.ID); err != nil {
					failed.Add(1)
					c.logger.Warn("delete orphan failed", "id", blob.ID, "error", err)
					return nil
				}
				deleted.Add(1)
				freed.Add(blob.SizeBytes)
				return nil
			})
		}
		_ = g.Wait()
		progress(opts.OnProgress, PhaseDeleting, end, len(orphans))
	}
	return int(deleted.Load()), freed.Load(), int(failed.Load()), nil
}

func progress(fn ProgressFunc, phase Phase, current, total int) {
	if fn != nil {
		fn(phase, current, total)
	}
}
