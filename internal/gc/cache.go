package gc

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
	"time"

	"docvault/internal/atomicfile"
	"docvault/internal/models"
	"docvault/internal/vaulterr"
)

const cacheFormatVersion = 1

// refCacheEntry is valid while the document's modification time and size
// are both unchanged. Size catches rewrites within one mtime tick on
// filesystems with coarse timestamps.
type refCacheEntry struct {
	DocumentID         string    `json:"document_id"`
	BlobIDs            []string  `json:"blob_ids"`
	DocumentModifiedAt time.Time `json:"document_modified_at"`
	DocumentSize       int64     `json:"document_size"`
}

func (e refCacheEntry) valid(doc models.DocumentInfo) bool {
	return e.DocumentModifiedAt.Equal(doc.ModifiedAt) && e.DocumentSize == doc.SizeBytes
}

type cacheFile struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Entries []refCacheEntry `json:"entries"`
}

// ClearCache forgets every cached reference list. The persisted copy, if
// any, is rewritten empty.
func (c *Collector) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = map[string]refCacheEntry{}
	c.persistCache()
}

// CacheSize returns the number of cached documents.
func (c *Collector) CacheSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// LoadCache reads the persisted reference cache. A missing file is not an
// error; an unreadable one is discarded since the cache only saves work.
func (c *Collector) LoadCache() error {
	if c.writer == nil || c.cachePath == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.writer.ReadFile(c.cachePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return vaulterr.Storage("read reference cache", err)
	}
	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil || file.Version != cacheFormatVersion {
		c.logger.Warn("discarding unreadable reference cache", "path", c.cachePath, "error", err)
		return nil
	}
	cache := make(map[string]refCacheEntry, len(file.Entries))
	for _, entry := range file.Entries {
		if entry.DocumentID == "" {
			continue
		}
		cache[entry.DocumentID] = entry
	}
	c.cache = cache
	return nil
}

// SaveCache writes the reference cache through the atomic writer.
func (c *Collector) SaveCache() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveCacheLocked()
}

func (c *Collector) saveCacheLocked() error {
	if c.writer == nil || c.cachePath == "" {
		return nil
	}
	file := cacheFile{Version: cacheFormatVersion, SavedAt: time.Now().UTC(), Entries: make([]refCacheEntry, 0, len(c.cache))}
	for _, entry := range c.cache {
		file.Entries = append(file.Entries, entry)
	}
	sort.Slice(file.Entries, func(i, j int) bool { return file.Entries[i].DocumentID < file.Entries[j].DocumentID })
	return c.writer.WriteJSON(c.cachePath, file, atomicfile.Options{}).Err
}

func (c *Collector) persistCache() {
	if err := c.saveCacheLocked(); err != nil {
		c.logger.Warn("persist reference cache", "path", c.cachePath, "error", err)
	}
}
