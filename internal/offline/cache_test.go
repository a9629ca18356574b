package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"docvault/internal/atomicfile"
	"docvault/internal/metrics"
	"docvault/internal/models"
	"docvault/internal/store"
	"docvault/internal/vaulterr"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "offline.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testCache(t *testing.T, st *store.Store, w *atomicfile.Writer, opts Options) *Cache {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts.Payloads = st
	opts.Writer = w
	if opts.Now == nil {
		opts.Now = clock.now
	}
	c, err := Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	return c
}

func version(v int64) *int64 {
	return &v
}

func doc(id string, v *int64, body string) models.RemoteDocument {
	return models.RemoteDocument{ID: id, Title: strings.ToUpper(id), Version: v, Body: json.RawMessage(body)}
}

func TestPutGetRoundTrip(t *testing.T) {
	st := testStore(t)
	c := testCache(t, st, atomicfile.New(memfs.New(), nil), Options{})
	ctx := context.Background()

	if err := c.Put(ctx, doc("d1", version(3), `{"text":"hello"}`), "host-a"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !c.Has("d1") || c.Has("d2") {
		t.Fatal("unexpected Has results")
	}
	got, err := c.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Title != "D1" || *got.Version != 3 || string(got.Body) != `{"text":"hello"}` {
		t.Fatalf("unexpected document %+v", got)
	}

	missing, err := c.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for unknown id, got %+v, %v", missing, err)
	}

	if err := c.Remove(ctx, "d1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if c.Has("d1") {
		t.Fatal("expected d1 removed")
	}
	if err := c.Remove(ctx, "d1"); err != nil {
		t.Fatalf("remove twice: %v", err)
	}
}

func TestPayloadIsCompressed(t *testing.T) {
	st := testStore(t)
	c := testCache(t, st, nil, Options{})
	ctx := context.Background()
	body := fmt.Sprintf(`{"text":%q}`, strings.Repeat("abcdefgh", 2048))

	if err := c.Put(ctx, doc("big", version(1), body), "host-a"); err != nil {
		t.Fatalf("put: %v", err)
	}
	payload, err := st.GetOfflinePayload(ctx, "big")
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(payload) >= len(body) {
		t.Fatalf("expected compressed payload, got %d bytes for %d byte body", len(payload), len(body))
	}
	entry, ok := c.Entry("big")
	if !ok || entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("expected size %d recorded, got %+v", len(payload), entry)
	}
}

func TestEvictionKeepsBounds(t *testing.T) {
	st := testStore(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := testCache(t, st, nil, Options{MaxEntries: 3, Metrics: m})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("doc-%d", i)
		if err := c.Put(ctx, doc(id, version(1), `{}`), "host-a"); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
		stats := c.GetStats()
		if stats.Entries > 3 || stats.TotalSize > stats.MaxSize {
			t.Fatalf("bounds violated after %s: %+v", id, stats)
		}
	}

	ids := c.GetCachedIDs()
	if strings.Join(ids, ",") != "doc-3,doc-4,doc-5" {
		t.Fatalf("expected newest three kept, got %v", ids)
	}
	if stats := c.GetStats(); stats.Evictions != 3 {
		t.Fatalf("expected 3 evictions, got %d", stats.Evictions)
	}
	if got := testutil.ToFloat64(m.OfflineEvictions); got != 3 {
		t.Fatalf("expected eviction metric 3, got %v", got)
	}
	stored, _ := st.ListOfflinePayloadIDs(ctx)
	if len(stored) != 3 {
		t.Fatalf("expected evicted payloads deleted, got %v", stored)
	}
}

func TestEvictionBySize(t *testing.T) {
	st := testStore(t)
	c := testCache(t, st, nil, Options{})
	ctx := context.Background()

	if err := c.Put(ctx, doc("z", nil, `{}`), "h"); err != nil {
		t.Fatalf("probe: %v", err)
	}
	entry, _ := c.Entry("z")
	if err := c.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	// Room for two entries of the probe size.
	small := testCache(t, st, nil, Options{MaxBytes: entry.SizeBytes*2 + 1})
	for _, id := range []string{"a", "b", "c"} {
		if err := small.Put(ctx, doc(id, nil, `{}`), "h"); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	if ids := small.GetCachedIDs(); strings.Join(ids, ",") != "b,c" {
		t.Fatalf("expected oldest evicted, got %v", ids)
	}
	if stats := small.GetStats(); stats.TotalSize > stats.MaxSize {
		t.Fatalf("size bound violated: %+v", stats)
	}
}

func TestGetRefreshesRecency(t *testing.T) {
	st := testStore(t)
	c := testCache(t, st, nil, Options{MaxEntries: 2})
	ctx := context.Background()

	_ = c.Put(ctx, doc("old", nil, `{}`), "h")
	_ = c.Put(ctx, doc("new", nil, `{}`), "h")
	if _, err := c.Get(ctx, "old"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := c.Put(ctx, doc("third", nil, `{}`), "h"); err != nil {
		t.Fatalf("put third: %v", err)
	}
	if ids := c.GetCachedIDs(); strings.Join(ids, ",") != "old,third" {
		t.Fatalf("expected recently read entry kept, got %v", ids)
	}
}

func TestRejectsEntryLargerThanCache(t *testing.T) {
	st := testStore(t)
	c := testCache(t, st, nil, Options{MaxBytes: 16})
	err := c.Put(context.Background(), doc("huge", nil, `{"x":"0123456789abcdef0123456789abcdef"}`), "h")
	if !errors.Is(err, vaulterr.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if c.Has("huge") {
		t.Fatal("expected oversized entry rejected")
	}
}

func TestReplacingEntryDoesNotEvictOthers(t *testing.T) {
	st := testStore(t)
	c := testCache(t, st, nil, Options{MaxEntries: 2})
	ctx := context.Background()

	_ = c.Put(ctx, doc("a", version(1), `{}`), "h")
	_ = c.Put(ctx, doc("b", version(1), `{}`), "h")
	if err := c.Put(ctx, doc("b", version(2), `{}`), "h"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if ids := c.GetCachedIDs(); strings.Join(ids, ",") != "a,b" {
		t.Fatalf("expected both entries kept, got %v", ids)
	}
	if stats := c.GetStats(); stats.Evictions != 0 {
		t.Fatalf("expected no evictions, got %d", stats.Evictions)
	}
}

type failingPayloads struct {
	*store.Store
	failPut bool
}

func (f *failingPayloads) PutOfflinePayload(ctx context.Context, id string, payload []byte) error {
	if f.failPut {
		return errors.New("disk full")
	}
	return f.Store.PutOfflinePayload(ctx, id, payload)
}

func TestFailedReplaceKeepsPreviousCopy(t *testing.T) {
	payloads := &failingPayloads{Store: testStore(t)}
	ctx := context.Background()
	c, err := Open(ctx, Options{Payloads: payloads})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}

	if err := c.Put(ctx, doc("a", version(1), `{"v":1}`), "h"); err != nil {
		t.Fatalf("put v1: %v", err)
	}
	before := c.GetStats().TotalSize

	payloads.failPut = true
	err = c.Put(ctx, doc("a", version(2), `{"v":2}`), "h")
	if !errors.Is(err, vaulterr.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}

	if !c.Has("a") {
		t.Fatal("expected previous copy to stay indexed")
	}
	if got := c.GetStats().TotalSize; got != before {
		t.Fatalf("expected total size %d, got %d", before, got)
	}
	got, err := c.Get(ctx, "a")
	if err != nil || got == nil {
		t.Fatalf("get previous copy: %v, %v", got, err)
	}
	if got.Version == nil || *got.Version != 1 {
		t.Fatalf("expected version 1, got %v", got.Version)
	}
	if c.IsStale("a", 1) {
		t.Fatal("expected previous copy to match server version 1")
	}
}

func TestIsStale(t *testing.T) {
	st := testStore(t)
	c := testCache(t, st, nil, Options{})
	ctx := context.Background()
	_ = c.Put(ctx, doc("versioned", version(5), `{}`), "h")
	_ = c.Put(ctx, doc("legacy", nil, `{}`), "h")

	tests := []struct {
		name    string
		id      string
		version int64
		want    bool
	}{
		{name: "not cached", id: "missing", version: 1, want: true},
		{name: "no recorded version", id: "legacy", version: 0, want: true},
		{name: "server newer", id: "versioned", version: 6, want: true},
		{name: "same version", id: "versioned", version: 5, want: false},
		{name: "server older", id: "versioned", version: 4, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsStale(tt.id, tt.version); got != tt.want {
				t.Fatalf("IsStale(%s, %d) = %v, want %v", tt.id, tt.version, got, tt.want)
			}
		})
	}
}

func TestHostScopedQueriesAndClear(t *testing.T) {
	st := testStore(t)
	c := testCache(t, st, nil, Options{})
	ctx := context.Background()
	_ = c.Put(ctx, doc("a1", nil, `{}`), "host-a")
	_ = c.Put(ctx, doc("a2", nil, `{}`), "host-a")
	_ = c.Put(ctx, doc("b1", nil, `{}`), "host-b")

	if ids := c.GetCachedIDsForHost("host-a"); strings.Join(ids, ",") != "a1,a2" {
		t.Fatalf("unexpected host-a ids %v", ids)
	}
	n, err := c.ClearForHost(ctx, "host-a")
	if err != nil || n != 2 {
		t.Fatalf("clear host: n=%d err=%v", n, err)
	}
	if ids := c.GetCachedIDs(); strings.Join(ids, ",") != "b1" {
		t.Fatalf("expected only b1 left, got %v", ids)
	}

	if err := c.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	if stats := c.GetStats(); stats.Entries != 0 || stats.TotalSize != 0 {
		t.Fatalf("expected empty cache, got %+v", stats)
	}
}

func TestPreloadAll(t *testing.T) {
	st := testStore(t)
	c := testCache(t, st, nil, Options{})
	ctx := context.Background()
	_ = c.Put(ctx, doc("a", version(1), `{"n":1}`), "h")
	_ = c.Put(ctx, doc("b", version(2), `{"n":2}`), "h")

	docs, err := c.PreloadAll(ctx)
	if err != nil {
		t.Fatalf("preload: %v", err)
	}
	if len(docs) != 2 || string(docs["b"].Body) != `{"n":2}` {
		t.Fatalf("unexpected preload %+v", docs)
	}
	if !c.IsAvailable(ctx) {
		t.Fatal("expected cache available")
	}
}

func TestIndexSurvivesReopenAndReconciles(t *testing.T) {
	st := testStore(t)
	w := atomicfile.New(memfs.New(), nil)
	ctx := context.Background()

	first := testCache(t, st, w, Options{})
	_ = first.Put(ctx, doc("kept", version(7), `{}`), "host-a")
	_ = first.Put(ctx, doc("lost", version(1), `{}`), "host-a")

	// One payload disappears and one appears without an index row.
	if err := st.DeleteOfflinePayload(ctx, "lost"); err != nil {
		t.Fatalf("delete payload: %v", err)
	}
	if err := st.PutOfflinePayload(ctx, "stray", []byte("x")); err != nil {
		t.Fatalf("put stray: %v", err)
	}

	second := testCache(t, st, w, Options{})
	if ids := second.GetCachedIDs(); strings.Join(ids, ",") != "kept" {
		t.Fatalf("expected only kept after reconcile, got %v", ids)
	}
	if second.IsStale("kept", 7) {
		t.Fatal("expected version to survive reopen")
	}
	stored, _ := st.ListOfflinePayloadIDs(ctx)
	if strings.Join(stored, ",") != "kept" {
		t.Fatalf("expected stray payload dropped, got %v", stored)
	}
}
