// Package docstore keeps documents as JSON files written through the atomic
// writer, and serves them to the garbage collector as its corpus.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"docvault/internal/atomicfile"
	"docvault/internal/models"
	"docvault/internal/vaulterr"
)

const (
	DefaultDir = "documents"
	docExt     = ".json"
)

var blobRefPattern = regexp.MustCompile(`blob:([0-9a-f]{64})`)

// Options configures how documents are written.
type Options struct {
	Dir      string
	Validate bool
	Backup   bool
}

// Store is a directory of <id>.json documents.
type Store struct {
	w      *atomicfile.Writer
	dir    string
	write  atomicfile.Options
	logger *slog.Logger
}

// New creates a document store in opts.Dir (default "documents") on w.
func New(w *atomicfile.Writer, opts Options, logger *slog.Logger) (*Store, error) {
	if w == nil {
		return nil, fmt.Errorf("document writer is required")
	}
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := w.FS().MkdirAll(dir, 0o755); err != nil {
		return nil, vaulterr.Storage("create document directory", err)
	}
	return &Store{
		w:      w,
		dir:    dir,
		write:  atomicfile.Options{Validate: opts.Validate, Backup: opts.Backup},
		logger: logger.With("component", "docstore"),
	}, nil
}

func (s *Store) path(id string) string {
	return path.Join(s.dir, id+docExt)
}

// Save writes doc atomically, replacing any previous version.
func (s *Store) Save(ctx context.Context, doc models.Document) error {
	if err := models.ValidateDocumentID(doc.ID); err != nil {
		return vaulterr.Invalid("save document", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	refs := make([]string, 0, len(doc.BlobRefs))
	for _, ref := range doc.BlobRefs {
		id, err := models.ParseBlobID(ref)
		if err != nil {
			return vaulterr.Invalid("save document", err)
		}
		refs = append(refs, id)
	}
	doc.BlobRefs = refs
	res := s.w.WriteJSON(s.path(doc.ID), doc, s.write)
	if res.Err != nil {
		return res.Err
	}
	s.logger.Debug("document saved", "id", doc.ID, "bytes", res.BytesWritten)
	return nil
}

// Get returns the document, or nil, nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*models.Document, error) {
	data, err := s.read(ctx, id)
	if err != nil || data == nil {
		return nil, err
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, vaulterr.Validation("parse document "+id, err)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	return &doc, nil
}

func (s *Store) read(ctx context.Context, id string) ([]byte, error) {
	if err := models.ValidateDocumentID(id); err != nil {
		return nil, vaulterr.Invalid("read document", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.w.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, vaulterr.Storage("read document "+id, err)
	}
	return data, nil
}

// Delete removes the document file. A backup, if any, is kept for Restore.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := models.ValidateDocumentID(id); err != nil {
		return vaulterr.Invalid("delete document", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.w.Remove(s.path(id))
}

// Restore puts the backup of id back in place.
func (s *Store) Restore(ctx context.Context, id string) error {
	if err := models.ValidateDocumentID(id); err != nil {
		return vaulterr.Invalid("restore document", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.w.RestoreFromBackup(s.path(id), atomicfile.DefaultBackupSuffix)
}

// ListDocuments lists committed documents with their file modification
// times and sizes.
func (s *Store) ListDocuments(ctx context.Context) ([]models.DocumentInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.w.FS().ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []models.DocumentInfo{}, nil
	}
	if err != nil {
		return nil, vaulterr.Storage("list documents", err)
	}

	docs := make([]models.DocumentInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, docExt) {
			continue
		}
		id := strings.TrimSuffix(name, docExt)
		if models.ValidateDocumentID(id) != nil {
			continue
		}
		docs = append(docs, models.DocumentInfo{
			ID:         id,
			ModifiedAt: entry.ModTime().UTC(),
			SizeBytes:  entry.Size(),
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// LoadDocument returns the blob references of id, or nil, nil when the
// document vanished. References come from blob_refs and from any
// "blob:<digest>" found in the file. A file that no longer parses is still
// scanned so its references stay reachable.
func (s *Store) LoadDocument(ctx context.Context, id string) (*models.DocumentRefs, error) {
	data, err := s.read(ctx, id)
	if err != nil || data == nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("document does not parse, scanning raw content", "id", id, "error", err)
	} else {
		for _, ref := range doc.BlobRefs {
			if blobID, err := models.ParseBlobID(ref); err == nil {
				seen[blobID] = struct{}{}
			}
		}
	}
	for _, m := range blobRefPattern.FindAllSubmatch(data, -1) {
		seen[string(m[1])] = struct{}{}
	}

	refs := &models.DocumentRefs{DocumentID: id, BlobIDs: make([]string, 0, len(seen))}
	for blobID := range seen {
		refs.BlobIDs = append(refs.BlobIDs, blobID)
	}
	sort.Strings(refs.BlobIDs)
	return refs, nil
}

// Recover discards temp files left by interrupted writes.
func (s *Store) Recover(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.w.CleanupStaleTempFiles(s.dir, atomicfile.DefaultTempSuffix)
}
