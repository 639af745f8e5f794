package gallery

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"imagestore/internal/registry"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()
	reg, err := registry.New(filepath.Join(root, "data", "galleries.json"))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	m, err := NewManager(reg, filepath.Join(root, "uploads"), nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestCreateProvisionsRecordAndDirectory(t *testing.T) {
	m := newTestManager(t)

	g, err := m.Create("alice", "secret123", "", true, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(g.ID, "gallery_") {
		t.Fatalf("id %q missing gallery_ prefix", g.ID)
	}
	if g.Name != "alice" {
		t.Fatalf("display name should default to username, got %q", g.Name)
	}
	if !g.AllowUploads || !g.AllowDownloads {
		t.Fatalf("toggles should default to true")
	}
	if info, err := os.Stat(m.Dir(g.ID)); err != nil || !info.IsDir() {
		t.Fatalf("upload directory missing: %v", err)
	}

	got, err := m.Get(g.ID)
	if err != nil {
		t.Fatalf("get after create: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("unexpected username %q", got.Username)
	}
	if got.PasswordHash == "" || got.PasswordHash == "secret123" {
		t.Fatalf("password must be stored hashed")
	}
}

func TestCreateRejectsInvalidUsernames(t *testing.T) {
	m := newTestManager(t)
	for _, username := range []string{"", "has space", "semi;colon", "../escape", "ünïcode"} {
		if _, err := m.Create(username, "pw", "", true, true); !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("username %q: expected ErrInvalidUsername, got %v", username, err)
		}
	}
}

func TestCreateDuplicateUsernameFails(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Create("alice", "pw1", "", true, true); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := m.Create("alice", "pw2", "", true, true); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	galleries, err := m.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(galleries) != 1 {
		t.Fatalf("duplicate create must not append a second record, got %d", len(galleries))
	}
	// Case differs, so this is a distinct username.
	if _, err := m.Create("Alice", "pw3", "", true, true); err != nil {
		t.Fatalf("case-different username should be accepted: %v", err)
	}
}

func TestUpdateMutatesOnlySuppliedFields(t *testing.T) {
	m := newTestManager(t)
	g, err := m.Create("alice", "pw", "Alice's Photos", true, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	allowUploads := false
	if err := m.Update(g.ID, UpdateParams{AllowUploads: &allowUploads}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := m.Get(g.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AllowUploads {
		t.Fatalf("allowUploads not updated")
	}
	if got.Name != "Alice's Photos" || !got.AllowDownloads {
		t.Fatalf("unrelated fields mutated: %+v", got)
	}

	name := "  Renamed  "
	if err := m.Update(g.ID, UpdateParams{Name: &name}); err != nil {
		t.Fatalf("update name: %v", err)
	}
	got, _ = m.Get(g.ID)
	if got.Name != "Renamed" {
		t.Fatalf("display name not trimmed: %q", got.Name)
	}

	if err := m.Update("gallery_missing", UpdateParams{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesRecordAndTree(t *testing.T) {
	m := newTestManager(t)
	g, err := m.Create("alice", "pw", "", true, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Populate the tree, including a rejects subdirectory.
	dir := m.Dir(g.ID)
	if err := os.MkdirAll(filepath.Join(dir, "rejects"), 0o755); err != nil {
		t.Fatalf("mkdir rejects: %v", err)
	}
	for _, p := range []string{"a.png", filepath.Join("rejects", "b.png")} {
		if err := os.WriteFile(filepath.Join(dir, p), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	outcome, err := m.Delete(g.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if outcome.Status != DeleteFull {
		t.Fatalf("expected full cleanup, got %+v", outcome)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("directory tree should be gone")
	}
	if _, err := m.Get(g.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Username is free for reuse.
	if _, err := m.Create("alice", "pw", "", true, true); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
}

func TestDeleteMissingGalleryFails(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Delete("gallery_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifyCredentials(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Create("alice", "secret123", "", true, true); err != nil {
		t.Fatalf("create: %v", err)
	}

	g, err := m.VerifyCredentials("alice", "secret123")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if g.PasswordHash != "" {
		t.Fatalf("password hash must be stripped from the returned record")
	}
	if g.Username != "alice" {
		t.Fatalf("unexpected username %q", g.Username)
	}

	if _, err := m.VerifyCredentials("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := m.VerifyCredentials("nobody", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	m := newTestManager(t)
	g, err := m.Create("alice", "old-pass", "", true, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.UpdatePassword(g.ID, "new-pass"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if _, err := m.VerifyCredentials("alice", "old-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working")
	}
	if _, err := m.VerifyCredentials("alice", "new-pass"); err != nil {
		t.Fatalf("new password: %v", err)
	}
}
