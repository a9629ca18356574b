package blobstore

import (
	"context"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"docvault/internal/atomicfile"
)

func testCAS(t *testing.T) (*LocalCAS, *atomicfile.Writer) {
	t.Helper()
	w := atomicfile.New(memfs.New(), nil)
	cas, err := NewLocalCAS(w, true)
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}
	return cas, w
}

func TestLocalCASPutGetDelete(t *testing.T) {
	cas, w := testCAS(t)
	ctx := context.Background()
	id := ComputeID([]byte("hello"))

	if err := cas.Put(ctx, id, []byte("hello")); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := cas.Put(ctx, id, []byte("hello")); err != nil {
		t.Fatalf("put second: %v", err)
	}
	key := "sha256/" + id[0:2] + "/" + id[2:4] + "/" + id
	if !w.Exists(key) {
		t.Fatalf("expected content at %s", key)
	}

	data, err := cas.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", string(data))
	}

	ids, err := cas.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected [%s], got %v", id, ids)
	}

	if err := cas.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := cas.Delete(ctx, id); err != nil {
		t.Fatalf("delete missing should be noop: %v", err)
	}
	data, err = cas.Get(ctx, id)
	if err != nil || data != nil {
		t.Fatalf("expected nil, nil after delete, got %v, %v", data, err)
	}
}

func TestLocalCASRejectsInvalidKeys(t *testing.T) {
	cas, _ := testCAS(t)
	ctx := context.Background()
	for _, id := range []string{"", "../../etc/passwd", strings.Repeat("G", 64)} {
		if err := cas.Put(ctx, id, []byte("x")); err == nil {
			t.Fatalf("expected error for %q", id)
		}
	}
}

func TestLocalCASCleanupTemp(t *testing.T) {
	cas, w := testCAS(t)
	ctx := context.Background()
	id := ComputeID([]byte("a"))
	if err := cas.Put(ctx, id, []byte("a")); err != nil {
		t.Fatalf("put: %v", err)
	}
	tmp := "sha256/" + id[0:2] + "/" + id[2:4] + "/" + id + ".tmp"
	if err := util.WriteFile(w.FS(), tmp, []byte("partial"), 0o644); err != nil {
		t.Fatalf("seed temp: %v", err)
	}

	removed, err := cas.CleanupTemp(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 temp removed, got %d", removed)
	}
	ids, err := cas.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected committed content to survive, got %v", ids)
	}
}
