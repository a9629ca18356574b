package vault

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"docvault/internal/config"
	"docvault/internal/gc"
	"docvault/internal/models"
	"docvault/internal/quota"
	"docvault/internal/vaulterr"
)

func testVault(t *testing.T, mutate func(*config.Config)) *Vault {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	if mutate != nil {
		mutate(&cfg)
	}
	v, err := New(Options{
		Config:    &cfg,
		Estimator: quota.Fixed{AvailableBytes: 1 << 30},
	})
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without config")
	}
	cfg := config.Default()
	if _, err := New(Options{Config: &cfg}); err == nil {
		t.Fatal("expected error without data dir")
	}
}

func TestOpenIsSharedAcrossConcurrentCallers(t *testing.T) {
	v := testVault(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*Components, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = v.Open(ctx)
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("open %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("expected all callers to share one set of components")
		}
	}
	if !v.IsAvailable(ctx) {
		t.Fatal("expected vault to be available")
	}
}

func TestOpenFailureIsRetried(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cfg := config.Default()
	cfg.DataDir = filepath.Join(blocker, "data")
	v, err := New(Options{Config: &cfg})
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	ctx := context.Background()

	if _, err := v.Open(ctx); !errors.Is(err, vaulterr.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if v.IsAvailable(ctx) {
		t.Fatal("expected vault to be unavailable")
	}

	if err := os.Remove(blocker); err != nil {
		t.Fatalf("remove blocker: %v", err)
	}
	if _, err := v.Open(ctx); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	_ = v.Close()
}

func TestEndToEndCollect(t *testing.T) {
	for _, backend := range []string{config.BlobBackendSQLite, config.BlobBackendLocalCAS} {
		t.Run(backend, func(t *testing.T) {
			v := testVault(t, func(c *config.Config) { c.Blobs.Backend = backend })
			ctx := context.Background()
			comps, err := v.Open(ctx)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if (comps.CAS != nil) != (backend == config.BlobBackendLocalCAS) {
				t.Fatalf("unexpected CAS wiring for %s", backend)
			}

			kept, err := comps.Blobs.Save(ctx, []byte("kept"), "kept.txt")
			if err != nil {
				t.Fatalf("save kept: %v", err)
			}
			orphan, err := comps.Blobs.Save(ctx, []byte("orphan"), "orphan.txt")
			if err != nil {
				t.Fatalf("save orphan: %v", err)
			}
			doc := models.Document{ID: "d1", Title: "D1", Body: json.RawMessage(`{}`), BlobRefs: []string{kept}}
			if err := comps.Documents.Save(ctx, doc); err != nil {
				t.Fatalf("save doc: %v", err)
			}

			res, err := comps.GC.CollectGarbage(ctx, gc.Options{})
			if err != nil {
				t.Fatalf("collect: %v", err)
			}
			if res.BlobsDeleted != 1 {
				t.Fatalf("expected 1 blob deleted, got %+v", res)
			}
			if meta, _ := comps.Blobs.GetMetadata(ctx, orphan); meta != nil {
				t.Fatal("expected orphan to be gone")
			}
			if meta, _ := comps.Blobs.GetMetadata(ctx, kept); meta == nil {
				t.Fatal("expected referenced blob to survive")
			}
		})
	}
}

func TestReopenKeepsState(t *testing.T) {
	v := testVault(t, nil)
	ctx := context.Background()
	comps, err := v.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	version := int64(2)
	if err := comps.Offline.Put(ctx, models.RemoteDocument{ID: "r1", Title: "R", Version: &version}, "host-a"); err != nil {
		t.Fatalf("cache put: %v", err)
	}
	if _, err := comps.Queue.Save(ctx, models.Operation{DocumentID: "r1", HostID: "host-a", Type: "update"}); err != nil {
		t.Fatalf("queue save: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	comps, err = v.Open(ctx)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !comps.Offline.Has("r1") {
		t.Fatal("expected cached document after reopen")
	}
	n, err := comps.Queue.CountByHost(ctx, "host-a")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 queued operation, got %d err=%v", n, err)
	}
}

func TestRecoverRemovesTempFiles(t *testing.T) {
	v := testVault(t, nil)
	ctx := context.Background()
	if _, err := v.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	dataDir := v.Config().DataDir
	for _, rel := range []string{"documents/a.json.tmp", "offline/index.json.tmp", "gc/refs.json.tmp"} {
		path := filepath.Join(dataDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("partial"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", rel, err)
		}
	}

	report, err := v.Recover(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if report.TempFilesRemoved != 3 {
		t.Fatalf("expected 3 temp files removed, got %+v", report)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "documents/a.json.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temp file removed, stat err=%v", err)
	}
}
