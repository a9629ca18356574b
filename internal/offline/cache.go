// Package offline keeps last-known-good copies of team documents so they
// stay readable while the host is unreachable.
//
// Payloads live in the byte store; a small JSON index (id, cached time,
// server version, size, host) is persisted beside it through the atomic
// writer so listing and statistics never decode payloads. Capacity is
// bounded by bytes and entries, evicting the oldest CachedAt first.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"docvault/internal/atomicfile"
	"docvault/internal/metrics"
	"docvault/internal/models"
	"docvault/internal/store"
	"docvault/internal/vaulterr"
)

const (
	DefaultMaxBytes   int64 = 50 << 20
	DefaultMaxEntries       = 100
	DefaultIndexPath        = "offline/index.json"

	indexFormatVersion = 1
)

// Options wires a Cache.
type Options struct {
	Payloads store.OfflineStore
	// Writer persists the index. Without one the index lives in memory only.
	Writer     *atomicfile.Writer
	IndexPath  string
	MaxBytes   int64
	MaxEntries int
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Stats summarizes the cache.
type Stats struct {
	Entries        int        `json:"entries"`
	TotalSize      int64      `json:"total_size"`
	MaxSize        int64      `json:"max_size"`
	MaxEntries     int        `json:"max_entries"`
	Evictions      int64      `json:"evictions"`
	OldestCachedAt *time.Time `json:"oldest_cached_at,omitempty"`
	NewestCachedAt *time.Time `json:"newest_cached_at,omitempty"`
}

type indexFile struct {
	Version int                 `json:"version"`
	Entries []models.CacheEntry `json:"entries"`
}

// Cache is the offline document cache. All methods are safe for concurrent use.
type Cache struct {
	payloads   store.OfflineStore
	writer     *atomicfile.Writer
	indexPath  string
	maxBytes   int64
	maxEntries int
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
	codec      *codec

	mu        sync.Mutex
	entries   map[string]models.CacheEntry
	totalSize int64
	evictions int64
}

// Open loads the index and reconciles it against the stored payloads.
func Open(ctx context.Context, opts Options) (*Cache, error) {
	if opts.Payloads == nil {
		return nil, fmt.Errorf("offline payload store is required")
	}
	if strings.TrimSpace(opts.IndexPath) == "" {
		opts.IndexPath = DefaultIndexPath
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Cache{
		payloads:   opts.Payloads,
		writer:     opts.Writer,
		indexPath:  opts.IndexPath,
		maxBytes:   opts.MaxBytes,
		maxEntries: opts.MaxEntries,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With("component", "offline"),
		now:        opts.Now,
		codec:      newCodec(),
		entries:    map[string]models.CacheEntry{},
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	if err := c.reconcile(ctx); err != nil {
		return nil, err
	}
	c.evictWhile(ctx, func() bool {
		return c.totalSize > c.maxBytes || len(c.entries) > c.maxEntries
	})
	c.persistIndex()
	c.updateMetrics()
	return c, nil
}

// Put caches doc for hostID, replacing any earlier copy. It evicts the
// oldest entries until the new one fits.
func (c *Cache) Put(ctx context.Context, doc models.RemoteDocument, hostID string) error {
	if err := models.ValidateDocumentID(doc.ID); err != nil {
		return vaulterr.Invalid("cache document", err)
	}
	payload, err := c.codec.encode(doc)
	if err != nil {
		return vaulterr.Invalid("cache document", err)
	}
	size := int64(len(payload))
	if size > c.maxBytes {
		return vaulterr.Quota("cache document", fmt.Errorf("document %s is %d bytes, cache holds at most %d", doc.ID, size, c.maxBytes))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A replaced entry does not count against the space it is about to free.
	old, replacing := c.entries[doc.ID]
	if replacing {
		delete(c.entries, doc.ID)
		c.totalSize -= old.SizeBytes
	}
	c.evictWhile(ctx, func() bool {
		return c.totalSize+size > c.maxBytes || len(c.entries) >= c.maxEntries
	})

	if err := c.payloads.PutOfflinePayload(ctx, doc.ID, payload); err != nil {
		// The previous payload is still stored; keep serving it.
		if replacing {
			c.entries[doc.ID] = old
			c.totalSize += old.SizeBytes
		}
		c.persistIndex()
		c.updateMetrics()
		return vaulterr.Storage("store offline payload", err)
	}
	c.entries[doc.ID] = models.CacheEntry{
		ID:            doc.ID,
		CachedAt:      c.now().UTC(),
		ServerVersion: copyVersion(doc.Version),
		SizeBytes:     size,
		HostID:        hostID,
	}
	c.totalSize += size
	c.persistIndex()
	c.updateMetrics()
	c.logger.Debug("document cached", "id", doc.ID, "host", hostID, "size", size)
	return nil
}

// Get returns the cached document, or nil, nil when it is not cached.
// A hit refreshes the entry's CachedAt so it is evicted later.
func (c *Cache) Get(ctx context.Context, id string) (*models.RemoteDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, nil
	}
	payload, err := c.payloads.GetOfflinePayload(ctx, id)
	if err != nil {
		return nil, vaulterr.Storage("load offline payload", err)
	}
	if payload == nil {
		c.logger.Warn("index entry without payload", "id", id)
		c.dropEntry(id)
		c.persistIndex()
		c.updateMetrics()
		return nil, nil
	}
	doc, err := c.codec.decode(payload)
	if err != nil {
		return nil, vaulterr.Validation("decode offline payload "+id, err)
	}
	entry.CachedAt = c.now().UTC()
	c.entries[id] = entry
	c.persistIndex()
	return &doc, nil
}

// Has reports whether id is cached.
func (c *Cache) Has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// Remove drops id from the cache. Unknown ids are ignored.
func (c *Cache) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.payloads.DeleteOfflinePayload(ctx, id); err != nil {
		return vaulterr.Storage("remove offline payload", err)
	}
	if _, ok := c.entries[id]; !ok {
		return nil
	}
	c.dropEntry(id)
	c.persistIndex()
	c.updateMetrics()
	return nil
}

// GetCachedIDs lists cached document ids in sorted order.
func (c *Cache) GetCachedIDs() []string {
	return c.ids(func(models.CacheEntry) bool { return true })
}

// GetCachedIDsForHost lists the ids cached for hostID.
func (c *Cache) GetCachedIDsForHost(hostID string) []string {
	return c.ids(func(e models.CacheEntry) bool { return e.HostID == hostID })
}

func (c *Cache) ids(keep func(models.CacheEntry) bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for id, entry := range c.entries {
		if keep(entry) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Entries returns a snapshot of the index, oldest first.
func (c *Cache) Entries() []models.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedEntries()
}

// Entry returns the index row for id.
func (c *Cache) Entry(id string) (models.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	return entry, ok
}

// ClearForHost removes every entry cached for hostID and returns how many.
func (c *Cache) ClearForHost(ctx context.Context, hostID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	for id, entry := range c.entries {
		if entry.HostID == hostID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if _, err := c.payloads.DeleteOfflinePayloads(ctx, ids); err != nil {
		return 0, vaulterr.Storage("clear offline payloads", err)
	}
	for _, id := range ids {
		c.dropEntry(id)
	}
	c.persistIndex()
	c.updateMetrics()
	c.logger.Info("cleared host from offline cache", "host", hostID, "count", len(ids))
	return len(ids), nil
}

// ClearAll empties the cache.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.payloads.ClearOfflinePayloads(ctx); err != nil {
		return vaulterr.Storage("clear offline payloads", err)
	}
	c.entries = map[string]models.CacheEntry{}
	c.totalSize = 0
	c.persistIndex()
	c.updateMetrics()
	return nil
}

// IsStale reports whether the cached copy of id is older than
// serverVersion. Uncached ids and entries without a recorded version are
// stale.
func (c *Cache) IsStale(id string, serverVersion int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok || entry.ServerVersion == nil {
		return true
	}
	return *entry.ServerVersion < serverVersion
}

// GetStats reports sizes, bounds and eviction totals.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := Stats{
		Entries:    len(c.entries),
		TotalSize:  c.totalSize,
		MaxSize:    c.maxBytes,
		MaxEntries: c.maxEntries,
		Evictions:  c.evictions,
	}
	for _, entry := range c.entries {
		at := entry.CachedAt
		if stats.OldestCachedAt == nil || at.Before(*stats.OldestCachedAt) {
			stats.OldestCachedAt = &at
		}
		if stats.NewestCachedAt == nil || at.After(*stats.NewestCachedAt) {
			stats.NewestCachedAt = &at
		}
	}
	return stats
}

// PreloadAll decodes every cached document. Entries that cannot be read
// are logged and skipped.
func (c *Cache) PreloadAll(ctx context.Context) (map[string]models.RemoteDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]models.RemoteDocument, len(c.entries))
	for id := range c.entries {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		payload, err := c.payloads.GetOfflinePayload(ctx, id)
		if err != nil {
			c.logger.Warn("preload offline payload", "id", id, "error", err)
			continue
		}
		if payload == nil {
			continue
		}
		doc, err := c.codec.decode(payload)
		if err != nil {
			c.logger.Warn("decode offline payload", "id", id, "error", err)
			continue
		}
		out[id] = doc
	}
	return out, nil
}

// IsAvailable reports whether the payload store answers.
func (c *Cache) IsAvailable(ctx context.Context) bool {
	if p, ok := c.payloads.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx) == nil
	}
	_, err := c.payloads.ListOfflinePayloadIDs(ctx)
	return err == nil
}

// evictWhile removes the oldest entries while over returns true. A failed
// payload delete is logged; the row still leaves the index and the orphaned
// payload is dropped by the next reconcile.
func (c *Cache) evictWhile(ctx context.Context, over func() bool) {
	if !over() {
		return
	}
	for _, entry := range c.sortedEntries() {
		if !over() {
			return
		}
		if err := c.payloads.DeleteOfflinePayload(ctx, entry.ID); err != nil {
			c.logger.Warn("evict offline payload", "id", entry.ID, "error", err)
		}
		c.dropEntry(entry.ID)
		c.evictions++
		c.metrics.RecordEviction()
		c.logger.Info("evicted cached document", "id", entry.ID, "host", entry.HostID, "size", entry.SizeBytes, "cached_at", entry.CachedAt)
	}
}

func (c *Cache) sortedEntries() []models.CacheEntry {
	out := make([]models.CacheEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CachedAt.Equal(out[j].CachedAt) {
			return out[i].CachedAt.Before(out[j].CachedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Cache) dropEntry(id string) {
	if entry, ok := c.entries[id]; ok {
		c.totalSize -= entry.SizeBytes
		delete(c.entries, id)
	}
}

func (c *Cache) loadIndex() error {
	if c.writer == nil {
		return nil
	}
	data, err := c.writer.ReadFile(c.indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return vaulterr.Storage("read offline index", err)
	}
	var file indexFile
	if err := json.Unmarshal(data, &file); err != nil || file.Version != indexFormatVersion {
		// Payloads without index rows are dropped by reconcile.
		c.logger.Warn("discarding unreadable offline index", "path", c.indexPath, "error", err)
		return nil
	}
	for _, entry := range file.Entries {
		if entry.ID == "" {
			continue
		}
		c.entries[entry.ID] = entry
		c.totalSize += entry.SizeBytes
	}
	return nil
}

// reconcile drops index rows without payload and payload rows without index row.
func (c *Cache) reconcile(ctx context.Context) error {
	ids, err := c.payloads.ListOfflinePayloadIDs(ctx)
	if err != nil {
		return vaulterr.Unavailable("list offline payloads", err)
	}
	stored := make(map[string]struct{}, len(ids))
	var orphans []string
	for _, id := range ids {
		stored[id] = struct{}{}
		if _, ok := c.entries[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	missing := 0
	for id := range c.entries {
		if _, ok := stored[id]; !ok {
			c.dropEntry(id)
			missing++
		}
	}
	if len(orphans) > 0 {
		if _, err := c.payloads.DeleteOfflinePayloads(ctx, orphans); err != nil {
			c.logger.Warn("drop unindexed offline payloads", "count", len(orphans), "error", err)
		}
	}
	if missing > 0 || len(orphans) > 0 {
		c.logger.Info("offline cache reconciled", "missing_payloads", missing, "unindexed_payloads", len(orphans))
	}
	return nil
}

func (c *Cache) persistIndex() {
	if c.writer == nil {
		return
	}
	file := indexFile{Version: indexFormatVersion, Entries: c.sortedEntries()}
	if res := c.writer.WriteJSON(c.indexPath, file, atomicfile.Options{}); res.Err != nil {
		c.logger.Warn("persist offline index", "path", c.indexPath, "error", res.Err)
	}
}

func (c *Cache) updateMetrics() {
	c.metrics.UpdateOffline(len(c.entries), c.totalSize)
}

func copyVersion(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
