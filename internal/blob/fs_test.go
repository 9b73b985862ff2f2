package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFSStore(t *testing.T) *FilesystemStore {
	t.Helper()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	return store
}

func TestFilesystemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newFSStore(t)
	if store.Driver() != DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}

	info, err := store.Put(ctx, "evidence/g1/001/report.pdf", strings.NewReader("pdf-bytes"),
		PutOptions{ContentType: "application/pdf", Metadata: map[string]string{"actor": "mara"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 9 || info.ETag == "" {
		t.Fatalf("expected size and etag, got %+v", info)
	}

	if _, err := store.Put(ctx, "evidence/g1/001/report.pdf", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatalf("put must be create-only")
	}

	got, rc, err := store.Get(ctx, "evidence/g1/001/report.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "pdf-bytes" || got.ContentType != "application/pdf" || got.Metadata["actor"] != "mara" {
		t.Fatalf("unexpected content %q / %+v", data, got)
	}

	infos, err := store.List(ctx, "evidence/g1/")
	if err != nil || len(infos) != 1 {
		t.Fatalf("list: %v %+v", err, infos)
	}
}

func TestFilesystemPutDuplicateKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	store := newFSStore(t)

	if _, err := store.Put(ctx, "g1/photo.jpg", strings.NewReader("original"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "g1/photo.jpg", strings.NewReader("replacement"), PutOptions{}); err == nil {
		t.Fatalf("duplicate put must fail")
	}

	_, rc, err := store.Get(ctx, "g1/photo.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "original" {
		t.Fatalf("duplicate put must not replace content, got %q", data)
	}

	// The rejected write's temp file must not linger.
	entries, err := os.ReadDir(filepath.Join(store.root, "g1"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestFilesystemStoreRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	store := newFSStore(t)
	for _, key := range []string{"", "  ", "/abs/path", "../escape", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestFilesystemStoreHeadMissing(t *testing.T) {
	store := newFSStore(t)
	if _, err := store.Head(context.Background(), "nope"); err == nil {
		t.Fatalf("expected missing key error")
	}
}
