package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docvault/internal/api"
	"docvault/internal/config"
	"docvault/internal/models"
	"docvault/internal/store"
	"docvault/internal/vaulterr"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(logLevelEnvKey, "")
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.LogLevel = "error"
	cfg.Blobs.QuotaBytes = 1 << 30
	return &cfg
}

func runCLI(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	prevOut, prevFormatter := stdout, outputFormatter
	stdout = &buf
	t.Cleanup(func() {
		stdout = prevOut
		outputFormatter = prevFormatter
	})

	cmd := newRootCmd(cfg)
	cmd.SetArgs(args)
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return buf.String(), err
}

func mustRun(t *testing.T, cfg *config.Config, args ...string) string {
	t.Helper()
	out, err := runCLI(t, cfg, args...)
	if err != nil {
		t.Fatalf("docvault %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func putBlob(t *testing.T, cfg *config.Config, name, content string) string {
	t.Helper()
	out := mustRun(t, cfg, "blob", "put", writeTempFile(t, name, content))
	id, err := models.ParseBlobID(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parse blob ref %q: %v", out, err)
	}
	return id
}

func decodeOutput(t *testing.T, out string, dst any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), dst); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
}

func TestBlobPutShowAndGet(t *testing.T) {
	cfg := testConfig(t)
	id := putBlob(t, cfg, "notes.txt", "hello vault")

	var blob models.Blob
	decodeOutput(t, mustRun(t, cfg, "blob", "show", "--json", models.BlobRef(id)), &blob)
	if blob.ID != id || blob.OriginalName != "notes.txt" || blob.SizeBytes != int64(len("hello vault")) {
		t.Fatalf("unexpected blob metadata: %+v", blob)
	}

	if got := mustRun(t, cfg, "blob", "get", id); got != "hello vault" {
		t.Fatalf("expected blob bytes, got %q", got)
	}

	outPath := filepath.Join(t.TempDir(), "copy.txt")
	mustRun(t, cfg, "blob", "get", id, "-o", outPath)
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(data) != "hello vault" {
		t.Fatalf("expected copied bytes, got %q", data)
	}

	// Same bytes dedupe to the same id.
	if again := putBlob(t, cfg, "other.txt", "hello vault"); again != id {
		t.Fatalf("expected dedup to %s, got %s", id, again)
	}
}

func TestBlobShowMissingIsNotFound(t *testing.T) {
	cfg := testConfig(t)
	_, err := runCLI(t, cfg, "blob", "show", strings.Repeat("a", 64))
	if vaulterr.KindOf(err) != vaulterr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGCPreviewAndRunCollectOnlyOrphans(t *testing.T) {
	cfg := testConfig(t)
	kept := putBlob(t, cfg, "kept.txt", "referenced")
	orphan := putBlob(t, cfg, "orphan.txt", "unreferenced")
	mustRun(t, cfg, "doc", "put", "note-1", "--title", "Note", "--ref", models.BlobRef(kept))

	var preview api.GCPreviewResponse
	decodeOutput(t, mustRun(t, cfg, "gc", "preview", "--json"), &preview)
	if preview.Count != 1 || preview.Blobs[0].ID != orphan {
		t.Fatalf("expected only the orphan in preview, got %+v", preview)
	}

	var run api.GCRunResponse
	decodeOutput(t, mustRun(t, cfg, "gc", "run", "--json"), &run)
	if run.BlobsDeleted != 1 || run.BytesFreed != int64(len("unreferenced")) || run.DocumentsScanned != 1 {
		t.Fatalf("unexpected gc result: %+v", run)
	}

	var blobs []models.Blob
	decodeOutput(t, mustRun(t, cfg, "blob", "ls", "--json"), &blobs)
	if len(blobs) != 1 || blobs[0].ID != kept {
		t.Fatalf("expected only the kept blob to remain, got %+v", blobs)
	}
}

func TestGCRunSkipsIconsUnlessAsked(t *testing.T) {
	cfg := testConfig(t)
	icon := filepath.Join(t.TempDir(), "logo.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if err := os.WriteFile(icon, png, 0o644); err != nil {
		t.Fatalf("write icon: %v", err)
	}
	mustRun(t, cfg, "blob", "put", icon, "--name", models.IconNamePrefix+"logo.png")

	var run api.GCRunResponse
	decodeOutput(t, mustRun(t, cfg, "gc", "run", "--json"), &run)
	if run.BlobsDeleted != 0 {
		t.Fatalf("expected icons to be kept, got %+v", run)
	}
	decodeOutput(t, mustRun(t, cfg, "gc", "run", "--json", "--include-icons"), &run)
	if run.BlobsDeleted != 1 {
		t.Fatalf("expected icon to be collected, got %+v", run)
	}
}

func TestGCRejectsNegativeBatchSize(t *testing.T) {
	cfg := testConfig(t)
	if _, err := runCLI(t, cfg, "gc", "run", "--batch-size", "-1"); err == nil {
		t.Fatal("expected error for negative batch size")
	}
}

func TestBlobRemoveRefusesReferencedBlob(t *testing.T) {
	cfg := testConfig(t)
	id := putBlob(t, cfg, "a.txt", "in use")
	mustRun(t, cfg, "doc", "put", "doc-a", "--ref", id)

	_, err := runCLI(t, cfg, "blob", "rm", id)
	if vaulterr.KindOf(err) != vaulterr.KindInvalid {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	mustRun(t, cfg, "blob", "rm", "--force", id)
	var blobs []models.Blob
	decodeOutput(t, mustRun(t, cfg, "blob", "ls", "--json"), &blobs)
	if len(blobs) != 0 {
		t.Fatalf("expected no blobs after forced delete, got %d", len(blobs))
	}
}

func TestBlobRecountUsesReferences(t *testing.T) {
	cfg := testConfig(t)
	id := putBlob(t, cfg, "shared.txt", "shared")
	mustRun(t, cfg, "doc", "put", "doc-a", "--ref", id)
	mustRun(t, cfg, "doc", "put", "doc-b", "--ref", id)

	var resp struct {
		Updated int `json:"updated"`
	}
	decodeOutput(t, mustRun(t, cfg, "blob", "recount", "--json"), &resp)
	if resp.Updated != 1 {
		t.Fatalf("expected one updated count, got %d", resp.Updated)
	}

	var blob models.Blob
	decodeOutput(t, mustRun(t, cfg, "blob", "show", "--json", id), &blob)
	if blob.UsageCount != 2 {
		t.Fatalf("expected usage count 2, got %d", blob.UsageCount)
	}
}

func TestDocRemoveAndRestore(t *testing.T) {
	cfg := testConfig(t)
	body := writeTempFile(t, "body.json", `{"text":"first"}`)
	mustRun(t, cfg, "doc", "put", "plan", "--title", "v1", "--body", body)
	mustRun(t, cfg, "doc", "put", "plan", "--title", "v2")

	mustRun(t, cfg, "doc", "rm", "plan")
	if _, err := runCLI(t, cfg, "doc", "show", "plan"); vaulterr.KindOf(err) != vaulterr.KindNotFound {
		t.Fatalf("expected not found after rm, got %v", err)
	}

	mustRun(t, cfg, "doc", "restore", "plan")
	var shown struct {
		Document models.Document `json:"document"`
	}
	decodeOutput(t, mustRun(t, cfg, "doc", "show", "--json", "plan"), &shown)
	var compact bytes.Buffer
	if err := json.Compact(&compact, shown.Document.Body); err != nil {
		t.Fatalf("compact body: %v", err)
	}
	if shown.Document.Title != "v1" || compact.String() != `{"text":"first"}` {
		t.Fatalf("expected first version restored, got %+v", shown.Document)
	}
}

func TestDocumentBody(t *testing.T) {
	body, err := documentBody([]byte(" {\"a\":1}\n"))
	if err != nil || string(body) != `{"a":1}` {
		t.Fatalf("expected JSON body kept, got %q (%v)", body, err)
	}
	body, err = documentBody([]byte("plain text"))
	if err != nil || string(body) != `"plain text"` {
		t.Fatalf("expected text encoded as string, got %q (%v)", body, err)
	}
	body, err = documentBody([]byte("  "))
	if err != nil || body != nil {
		t.Fatalf("expected empty body, got %q (%v)", body, err)
	}
}

func TestQueueCommands(t *testing.T) {
	cfg := testConfig(t)
	first := strings.TrimSpace(mustRun(t, cfg, "queue", "add", "--document", "doc-1", "--host", "team-a", "--type", "update", "--payload", `{"title":"x"}`))
	if first == "" {
		t.Fatal("expected generated operation id")
	}
	mustRun(t, cfg, "queue", "add", "--document", "doc-2", "--host", "team-b", "--type", "delete")

	if got := strings.TrimSpace(mustRun(t, cfg, "queue", "count")); got != "2" {
		t.Fatalf("expected 2 queued, got %q", got)
	}
	if got := strings.TrimSpace(mustRun(t, cfg, "queue", "count", "--host", "team-a")); got != "1" {
		t.Fatalf("expected 1 queued for team-a, got %q", got)
	}

	var ops []models.Operation
	decodeOutput(t, mustRun(t, cfg, "queue", "ls", "--json", "--host", "team-a"), &ops)
	if len(ops) != 1 || ops[0].ID != first || !strings.Contains(string(ops[0].Payload), `"title"`) {
		t.Fatalf("unexpected team-a operations: %+v", ops)
	}

	if _, err := runCLI(t, cfg, "queue", "add", "--document", "doc-3", "--host", "team-a", "--type", "update", "--payload", "{"); err == nil {
		t.Fatal("expected invalid payload error")
	}

	var shown models.Operation
	decodeOutput(t, mustRun(t, cfg, "queue", "show", "--json", first), &shown)
	if shown.DocumentID != "doc-1" || shown.Type != "update" {
		t.Fatalf("unexpected operation: %+v", shown)
	}

	mustRun(t, cfg, "queue", "clear", "--host", "team-b")
	mustRun(t, cfg, "queue", "rm", first)
	if got := strings.TrimSpace(mustRun(t, cfg, "queue", "count")); got != "0" {
		t.Fatalf("expected empty queue, got %q", got)
	}
}

func TestCacheCommandsOnEmptyCache(t *testing.T) {
	cfg := testConfig(t)
	var entries []models.CacheEntry
	decodeOutput(t, mustRun(t, cfg, "cache", "ls", "--json"), &entries)
	if len(entries) != 0 {
		t.Fatalf("expected empty cache, got %+v", entries)
	}
	if _, err := runCLI(t, cfg, "cache", "show", "missing"); vaulterr.KindOf(err) != vaulterr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := runCLI(t, cfg, "cache", "clear", "--host", "h", "doc-1"); err == nil {
		t.Fatal("expected --host with ids to be rejected")
	}
	if got := strings.TrimSpace(mustRun(t, cfg, "cache", "stale", "doc-1", "3")); got != "true" {
		t.Fatalf("expected uncached document to be stale, got %q", got)
	}
	if _, err := runCLI(t, cfg, "cache", "stale", "doc-1", "v3"); err == nil {
		t.Fatal("expected invalid version error")
	}
	out := mustRun(t, cfg, "cache", "stats", "--yaml")
	if !strings.Contains(out, "entries: 0") || !strings.Contains(out, "max_entries: 100") {
		t.Fatalf("unexpected yaml stats: %q", out)
	}
}

func TestRecoverRemovesTempFiles(t *testing.T) {
	cfg := testConfig(t)
	mustRun(t, cfg, "doc", "put", "doc-1")
	stale := filepath.Join(cfg.DataDir, "documents", "doc-2.json.tmp")
	if err := os.WriteFile(stale, []byte("{"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	var report struct {
		TempFilesRemoved int `json:"temp_files_removed"`
	}
	decodeOutput(t, mustRun(t, cfg, "recover", "--json"), &report)
	if report.TempFilesRemoved != 1 {
		t.Fatalf("expected one temp file removed, got %d", report.TempFilesRemoved)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected temp file gone, stat err=%v", err)
	}
}

func TestMigrateAppliesAndInspects(t *testing.T) {
	cfg := testConfig(t)

	var before store.MigrationStatus
	decodeOutput(t, mustRun(t, cfg, "migrate", "--inspect", "--json"), &before)
	if before.CurrentVersion != 0 || len(before.Pending) == 0 {
		t.Fatalf("expected pending migrations on a fresh db, got %+v", before)
	}

	var after store.MigrationStatus
	decodeOutput(t, mustRun(t, cfg, "migrate", "--json"), &after)
	if after.CurrentVersion != after.AvailableVersion || len(after.Pending) != 0 {
		t.Fatalf("expected all migrations applied, got %+v", after)
	}
}

func TestConfigGet(t *testing.T) {
	cfg := testConfig(t)
	if got := strings.TrimSpace(mustRun(t, cfg, "config", "get", "blobs.backend")); got != config.BlobBackendSQLite {
		t.Fatalf("expected sqlite backend, got %q", got)
	}
	if _, err := runCLI(t, cfg, "config", "get", "nope"); err == nil {
		t.Fatal("expected unknown key error")
	}
}

func TestConfigSetWritesOverridePath(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	t.Setenv("DOCVAULT_CONFIG_DIR", dir)

	path := strings.TrimSpace(mustRun(t, cfg, "config", "path"))
	if filepath.Dir(path) != dir {
		t.Fatalf("expected config path inside %s, got %s", dir, path)
	}
	mustRun(t, cfg, "config", "set", "gc.batch_size", "25")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(data), "batch_size = 25") {
		t.Fatalf("expected batch_size in config, got %q", data)
	}
}

func TestInvalidLogLevelFlag(t *testing.T) {
	cfg := testConfig(t)
	if _, err := runCLI(t, cfg, "--log-level", "loud", "blob", "ls"); err == nil {
		t.Fatal("expected invalid --log-level error")
	}
}

func TestParseBlobIDsAcceptsRefs(t *testing.T) {
	digest := strings.Repeat("ab", 32)
	ids, err := parseBlobIDs([]string{digest, models.BlobRef(digest)})
	if err != nil {
		t.Fatalf("parse ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != digest || ids[1] != digest {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if _, err := parseBlobIDs([]string{"nope"}); err == nil {
		t.Fatal("expected error for malformed id")
	}
}
