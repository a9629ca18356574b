// Package atomicfile writes files so that the destination holds either the
// complete old content or the complete new content, never a partial write.
//
// Every write goes to target+TempSuffix first, is optionally read back and
// compared, and is then renamed over the target. A temp file left behind by
// a crash is treated as evidence of an interrupted write and discarded on
// recovery; the last committed version always wins.
package atomicfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"docvault/internal/vaulterr"
)

const (
	DefaultTempSuffix   = ".tmp"
	DefaultBackupSuffix = ".bak"
	defaultPerm         = 0o644
	defaultDirPerm      = 0o755
)

// Options controls one atomic write.
type Options struct {
	// Validate reads the temp file back and compares it byte for byte before commit.
	Validate bool
	// TempSuffix defaults to ".tmp".
	TempSuffix string
	// Backup renames an existing target aside before commit. Best effort.
	Backup bool
	// BackupSuffix defaults to ".bak".
	BackupSuffix string
	Perm         os.FileMode
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.TempSuffix) == "" {
		o.TempSuffix = DefaultTempSuffix
	}
	if strings.TrimSpace(o.BackupSuffix) == "" {
		o.BackupSuffix = DefaultBackupSuffix
	}
	if o.Perm == 0 {
		o.Perm = defaultPerm
	}
	return o
}

// Result reports the outcome of one write.
type Result struct {
	Success      bool
	BytesWritten int64
	Err          error
}

func failed(err error) Result {
	return Result{Err: err}
}

// Writer performs atomic writes against a host filesystem.
type Writer struct {
	fs     billy.Filesystem
	logger *slog.Logger
}

// New creates a Writer over fs.
func New(fs billy.Filesystem, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{fs: fs, logger: logger.With("component", "atomicfile")}
}

// NewOS creates a Writer rooted at an OS directory.
func NewOS(root string, logger *slog.Logger) (*Writer, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("atomic writer root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, defaultDirPerm); err != nil {
		return nil, err
	}
	return New(osfs.New(abs), logger), nil
}

// FS returns the underlying filesystem.
func (w *Writer) FS() billy.Filesystem {
	return w.fs
}

// WriteText atomically writes a string.
func (w *Writer) WriteText(path, content string, opts Options) Result {
	return w.write(path, []byte(content), opts)
}

// WriteJSON serializes v and writes it through the text path.
func (w *Writer) WriteJSON(path string, v any, opts Options) Result {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return failed(vaulterr.Invalid("marshal json", err))
	}
	return w.WriteText(path, string(data), opts)
}

// WriteBinary atomically writes raw bytes.
func (w *Writer) WriteBinary(path string, content []byte, opts Options) Result {
	return w.write(path, content, opts)
}

func (w *Writer) write(path string, content []byte, opts Options) Result {
	path = strings.TrimSpace(path)
	if path == "" {
		return failed(vaulterr.Invalid("atomic write", fmt.Errorf("target path is required")))
	}
	opts = opts.withDefaults()
	tmpPath := path + opts.TempSuffix

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := w.fs.MkdirAll(dir, defaultDirPerm); err != nil {
			return failed(vaulterr.Storage("create parent directory", err))
		}
	}

	n, err := w.writeTemp(tmpPath, content, opts.Perm)
	if err != nil {
		w.discard(tmpPath)
		return failed(vaulterr.Storage("write temp file", err))
	}

	if opts.Validate {
		got, err := util.ReadFile(w.fs, tmpPath)
		if err != nil {
			w.discard(tmpPath)
			return failed(vaulterr.Storage("read back temp file", err))
		}
		if !bytes.Equal(got, content) {
			w.discard(tmpPath)
			return failed(vaulterr.Validation("validate "+path, fmt.Errorf("read back %d bytes that differ from the %d bytes written", len(got), len(content))))
		}
	}

	backupPath := path + opts.BackupSuffix
	backedUp := opts.Backup && w.backup(path, backupPath)

	if err := w.fs.Rename(tmpPath, path); err != nil {
		w.discard(tmpPath)
		if backedUp {
			w.rollback(path, backupPath)
		}
		return failed(vaulterr.Storage("commit "+path, err))
	}
	return Result{Success: true, BytesWritten: n}
}

func (w *Writer) writeTemp(tmpPath string, content []byte, perm os.FileMode) (int64, error) {
	f, err := w.fs.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}
	n, err := f.Write(content)
	if err == nil && n != len(content) {
		err = io.ErrShortWrite
	}
	if err != nil {
		_ = f.Close()
		return int64(n), err
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			_ = f.Close()
			return int64(n), err
		}
	}
	if err := f.Close(); err != nil {
		return int64(n), err
	}
	return int64(n), nil
}

// backup reports whether the target was moved aside. A failed backup never
// blocks the main write.
func (w *Writer) backup(path, backupPath string) bool {
	if _, err := w.fs.Stat(path); err != nil {
		return false
	}
	if err := w.fs.Rename(path, backupPath); err != nil {
		w.logger.Warn("backup before overwrite failed", "path", path, "backup", backupPath, "error", err)
		return false
	}
	return true
}

// rollback puts the backup back in place after a failed commit.
func (w *Writer) rollback(path, backupPath string) {
	if err := w.fs.Rename(backupPath, path); err != nil {
		w.logger.Error("restore previous version after failed commit", "path", path, "backup", backupPath, "error", err)
	}
}

func (w *Writer) discard(tmpPath string) {
	if err := w.fs.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("remove temp file", "path", tmpPath, "error", err)
	}
}

// ReadFile returns the committed content of path.
func (w *Writer) ReadFile(path string) ([]byte, error) {
	return util.ReadFile(w.fs, path)
}

// Exists reports whether path exists.
func (w *Writer) Exists(path string) bool {
	_, err := w.fs.Stat(path)
	return err == nil
}

// Remove deletes path. Missing files are ignored.
func (w *Writer) Remove(path string) error {
	if err := w.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return vaulterr.Storage("remove "+path, err)
	}
	return nil
}

// CleanupStaleTempFiles removes every file in dir ending in suffix.
// It is meant to run at startup, before any writer is active.
func (w *Writer) CleanupStaleTempFiles(dir, suffix string) (int, error) {
	if strings.TrimSpace(suffix) == "" {
		suffix = DefaultTempSuffix
	}
	entries, err := w.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, vaulterr.Storage("list "+dir, err)
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		path := w.fs.Join(dir, entry.Name())
		if err := w.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove stale temp file %s: %w", path, err))
			continue
		}
		removed++
	}
	if removed > 0 {
		w.logger.Info("removed stale temp files", "dir", dir, "count", removed)
	}
	if len(errs) > 0 {
		return removed, vaulterr.Storage("cleanup "+dir, errors.Join(errs...))
	}
	return removed, nil
}

// RecoverInterruptedWrite discards a lingering temp file for path, keeping
// the last committed version. It reports whether a temp file was found.
func (w *Writer) RecoverInterruptedWrite(path, suffix string) (bool, error) {
	if strings.TrimSpace(suffix) == "" {
		suffix = DefaultTempSuffix
	}
	tmpPath := path + suffix
	if _, err := w.fs.Stat(tmpPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, vaulterr.Storage("stat "+tmpPath, err)
	}
	if err := w.fs.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, vaulterr.Storage("remove "+tmpPath, err)
	}
	w.logger.Warn("discarded interrupted write", "path", path, "temp", tmpPath)
	return true, nil
}

// RestoreFromBackup renames the backup of path back over path.
func (w *Writer) RestoreFromBackup(path, suffix string) error {
	if strings.TrimSpace(suffix) == "" {
		suffix = DefaultBackupSuffix
	}
	backupPath := path + suffix
	if _, err := w.fs.Stat(backupPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return vaulterr.NotFound("restore "+path, fmt.Errorf("no backup at %s", backupPath))
		}
		return vaulterr.Storage("stat "+backupPath, err)
	}
	if err := w.fs.Rename(backupPath, path); err != nil {
		return vaulterr.Storage("restore "+path, err)
	}
	w.logger.Info("restored from backup", "path", path)
	return nil
}
