package reconcile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"imagestore/internal/gallery"
	"imagestore/internal/registry"
	"imagestore/pkg/domain"
)

func newTestReconciler(t *testing.T) (*Reconciler, *gallery.Manager, string) {
	t.Helper()
	root := t.TempDir()
	reg, err := registry.New(filepath.Join(root, "data", "galleries.json"))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	storageRoot := filepath.Join(root, "uploads")
	mgr, err := gallery.NewManager(reg, storageRoot, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return New(reg, storageRoot, nil), mgr, storageRoot
}

func seedOrphan(t *testing.T, storageRoot, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(storageRoot, name)
	if err := os.MkdirAll(filepath.Join(dir, "rejects"), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", name, err)
	}
	for file, content := range files {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644); err != nil {
			t.Fatalf("seed %s/%s: %v", name, file, err)
		}
	}
}

func TestScanFindsOnlyUnregisteredGalleryDirs(t *testing.T) {
	r, mgr, storageRoot := newTestReconciler(t)

	if _, err := mgr.Create("alice", "correct-horse", "Alice", true, true); err != nil {
		t.Fatalf("Create: %v", err)
	}
	seedOrphan(t, storageRoot, "gallery_deadbeef", map[string]string{
		"a.png": "aaaa", "b.png": "bb",
	})
	seedOrphan(t, storageRoot, "gallery_cafebabe", nil)
	// Non-prefixed directories are out of scope no matter what.
	if err := os.MkdirAll(filepath.Join(storageRoot, "lost+found"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	orphans, err := r.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(orphans) != 2 {
		t.Fatalf("found %d orphans, want 2: %+v", len(orphans), orphans)
	}
	if orphans[0].Name != "gallery_cafebabe" || orphans[1].Name != "gallery_deadbeef" {
		t.Fatalf("orphans not sorted by name: %+v", orphans)
	}
	if orphans[1].FileCount != 2 || orphans[1].TotalBytes != 6 {
		t.Fatalf("stats = %d files / %d bytes, want 2 / 6", orphans[1].FileCount, orphans[1].TotalBytes)
	}
}

func TestScanMissingStorageRoot(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.New(filepath.Join(root, "galleries.json"))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	r := New(reg, filepath.Join(root, "never-created"), nil)

	orphans, err := r.Scan()
	if err != nil || orphans != nil {
		t.Fatalf("Scan = %+v, %v; want nil, nil", orphans, err)
	}
}

func TestPurgeRequiresConfirmation(t *testing.T) {
	r, _, storageRoot := newTestReconciler(t)
	seedOrphan(t, storageRoot, "gallery_deadbeef", map[string]string{"a.png": "x"})

	if _, err := r.Purge(false); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("got %v, want ErrNotConfirmed", err)
	}
	if _, err := os.Stat(filepath.Join(storageRoot, "gallery_deadbeef")); err != nil {
		t.Fatalf("folder deleted without confirmation: %v", err)
	}
}

func TestPurgeDeletesOrphansAndSparesRegistered(t *testing.T) {
	r, mgr, storageRoot := newTestReconciler(t)

	g, err := mgr.Create("bob", "hunter2hunter2", "Bob", true, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	seedOrphan(t, storageRoot, "gallery_deadbeef", map[string]string{"a.png": "x"})

	result, err := r.Purge(true)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if result.Deleted != 1 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 1 deleted / 0 failed", result)
	}
	if len(result.Folders) != 1 || result.Folders[0].Status != "deleted" {
		t.Fatalf("folders = %+v", result.Folders)
	}
	if _, err := os.Stat(filepath.Join(storageRoot, "gallery_deadbeef")); !os.IsNotExist(err) {
		t.Fatalf("orphan survived purge: %v", err)
	}
	if _, err := os.Stat(mgr.Dir(g.ID)); err != nil {
		t.Fatalf("registered gallery dir removed: %v", err)
	}
}

func TestPurgeRescansBeforeDeleting(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.New(filepath.Join(root, "galleries.json"))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	storageRoot := filepath.Join(root, "uploads")
	r := New(reg, storageRoot, nil)

	seedOrphan(t, storageRoot, "gallery_deadbeef", map[string]string{"a.png": "x"})
	preview, err := r.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(preview) != 1 {
		t.Fatalf("preview = %+v, want one orphan", preview)
	}

	// The directory gains a registry record between preview and purge; the
	// fresh scan inside Purge must spare it.
	err = reg.Persist([]domain.Gallery{{
		ID:             "gallery_deadbeef",
		Username:       "carol",
		PasswordHash:   "$2a$10$notachecklessplaceholderhash",
		Name:           "Carol",
		CreatedAt:      time.Now(),
		AllowUploads:   true,
		AllowDownloads: true,
	}})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}

	result, err := r.Purge(true)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if result.Deleted != 0 || len(result.Folders) != 0 {
		t.Fatalf("result = %+v, want nothing purged", result)
	}
	if _, err := os.Stat(filepath.Join(storageRoot, "gallery_deadbeef")); err != nil {
		t.Fatalf("registered gallery dir removed: %v", err)
	}
}
