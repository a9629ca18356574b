package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"docvault/internal/atomicfile"
	"docvault/internal/models"
	"docvault/internal/vaulterr"
)

func testDocStore(t *testing.T, opts Options) (*Store, *atomicfile.Writer) {
	t.Helper()
	w := atomicfile.New(osfs.New(t.TempDir()), nil)
	st, err := New(w, opts, nil)
	if err != nil {
		t.Fatalf("new docstore: %v", err)
	}
	return st, w
}

func TestSaveGetDelete(t *testing.T) {
	st, _ := testDocStore(t, Options{Validate: true})
	ctx := context.Background()

	doc := models.Document{ID: "notes", Title: "Notes", Body: json.RawMessage(`{"text":"hi"}`)}
	if err := st.Save(ctx, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.Get(ctx, "notes")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Title != "Notes" {
		t.Fatalf("unexpected document %+v", got)
	}

	if err := st.Delete(ctx, "notes"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = st.Get(ctx, "notes")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil after delete, got %v, %v", got, err)
	}

	if err := st.Save(ctx, models.Document{ID: "../escape"}); !errors.Is(err, vaulterr.ErrInvalid) {
		t.Fatalf("expected invalid id error, got %v", err)
	}
}

func TestListDocumentsSkipsScratchFiles(t *testing.T) {
	st, w := testDocStore(t, Options{})
	ctx := context.Background()
	for _, id := range []string{"b", "a"} {
		if err := st.Save(ctx, models.Document{ID: id}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	for _, name := range []string{"documents/c.json.tmp", "documents/a.json.bak", "documents/readme.txt"} {
		if err := util.WriteFile(w.FS(), name, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}

	docs, err := st.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "b" {
		t.Fatalf("unexpected listing %+v", docs)
	}
}

func TestLoadDocumentCollectsReferences(t *testing.T) {
	st, w := testDocStore(t, Options{})
	ctx := context.Background()
	explicit := strings.Repeat("a", 64)
	inline := strings.Repeat("b", 64)

	doc := models.Document{
		ID:       "doc",
		Body:     json.RawMessage(`{"blocks":[{"image":"blob:` + inline + `"},{"image":"blob:` + inline + `"}]}`),
		BlobRefs: []string{"blob:" + explicit},
	}
	if err := st.Save(ctx, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	refs, err := st.LoadDocument(ctx, "doc")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(refs.BlobIDs) != 2 || refs.BlobIDs[0] != explicit || refs.BlobIDs[1] != inline {
		t.Fatalf("unexpected refs %+v", refs.BlobIDs)
	}

	corrupt := `{"id":"broken","body":"blob:` + inline + `" trailing`
	if err := util.WriteFile(w.FS(), "documents/broken.json", []byte(corrupt), 0o644); err != nil {
		t.Fatalf("seed corrupt: %v", err)
	}
	refs, err = st.LoadDocument(ctx, "broken")
	if err != nil {
		t.Fatalf("load corrupt: %v", err)
	}
	if len(refs.BlobIDs) != 1 || refs.BlobIDs[0] != inline {
		t.Fatalf("expected raw scan to keep reference, got %+v", refs.BlobIDs)
	}

	missing, err := st.LoadDocument(ctx, "gone")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing doc, got %v, %v", missing, err)
	}
}

func TestBackupRestoreAndRecover(t *testing.T) {
	st, w := testDocStore(t, Options{Backup: true})
	ctx := context.Background()

	if err := st.Save(ctx, models.Document{ID: "d", Title: "v1"}); err != nil {
		t.Fatalf("save v1: %v", err)
	}
	if err := st.Save(ctx, models.Document{ID: "d", Title: "v2"}); err != nil {
		t.Fatalf("save v2: %v", err)
	}
	if err := st.Delete(ctx, "d"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Restore(ctx, "d"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, err := st.Get(ctx, "d")
	if err != nil || got == nil || got.Title != "v1" {
		t.Fatalf("expected restored v1, got %+v, %v", got, err)
	}

	if err := util.WriteFile(w.FS(), "documents/d.json.tmp", []byte("{"), 0o644); err != nil {
		t.Fatalf("seed temp: %v", err)
	}
	removed, err := st.Recover(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 temp removed, got %d", removed)
	}
}
