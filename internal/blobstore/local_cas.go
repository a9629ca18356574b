package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"

	"docvault/internal/atomicfile"
	"docvault/internal/models"
)

const (
	casAlgorithmPrefix = "sha256"
)

// LocalCAS stores blob bytes in a content-addressed fan-out tree
// (sha256/aa/bb/<digest>) written through the atomic writer.
type LocalCAS struct {
	w        *atomicfile.Writer
	validate bool
}

// NewLocalCAS creates a local CAS over w. With validate set every write is
// read back before it is committed.
func NewLocalCAS(w *atomicfile.Writer, validate bool) (*LocalCAS, error) {
	if w == nil {
		return nil, fmt.Errorf("local cas writer is required")
	}
	return &LocalCAS{w: w, validate: validate}, nil
}

// Put stores data under the key derived from id. Existing content is kept.
func (c *LocalCAS) Put(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := casKeyFromDigest(id)
	if err != nil {
		return err
	}
	if c.w.Exists(key) {
		return nil
	}
	res := c.w.WriteBinary(key, data, atomicfile.Options{Validate: c.validate})
	return res.Err
}

// Get returns stored bytes, or nil when absent.
func (c *LocalCAS) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := casKeyFromDigest(id)
	if err != nil {
		return nil, err
	}
	data, err := c.w.ReadFile(key)
	if errors.Is(err, os.ErrNotExist) {
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

// Delete removes a blob object. Missing files are ignored.
func (c *LocalCAS) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := casKeyFromDigest(id)
	if err != nil {
		return err
	}
	return c.w.Remove(key)
}

// List walks the fan-out tree and returns every stored digest.
func (c *LocalCAS) List(ctx context.Context) ([]string, error) {
	fs := c.w.FS()
	var ids []string
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entries, err := fs.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if depth < 2 {
				if entry.IsDir() {
					if err := walk(path.Join(dir, entry.Name()), depth+1); err != nil {
						return err
					}
				}
				continue
			}
			if !entry.IsDir() && models.IsValidBlobID(entry.Name()) {
				ids = append(ids, entry.Name())
			}
		}
		return nil
	}
	if err := walk(casAlgorithmPrefix, 0); err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// CleanupTemp removes temp files left in the tree by interrupted writes.
func (c *LocalCAS) CleanupTemp(ctx context.Context) (int, error) {
	fs := c.w.FS()
	removed := 0
	first, err := fs.ReadDir(casAlgorithmPrefix)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for _, a := range first {
		if !a.IsDir() {
			continue
		}
		second, err := fs.ReadDir(path.Join(casAlgorithmPrefix, a.Name()))
		if err != nil {
			return removed, err
		}
		for _, b := range second {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			if !b.IsDir() {
				continue
			}
			n, err := c.w.CleanupStaleTempFiles(path.Join(casAlgorithmPrefix, a.Name(), b.Name()), atomicfile.DefaultTempSuffix)
			removed += n
			if err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

func casKeyFromDigest(digest string) (string, error) {
	if !models.IsValidBlobID(digest) {
		return "", fmt.Errorf("invalid blob id %q", digest)
	}
	return fmt.Sprintf("%s/%s/%s/%s", casAlgorithmPrefix, digest[0:2], digest[2:4], digest), nil
}
