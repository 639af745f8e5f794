package session

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"imagestore/pkg/domain"
)

func galleryIdentity() domain.Identity {
	return domain.Identity{
		Kind:      domain.IdentityGallery,
		GalleryID: "gallery_deadbeef",
		Username:  "alice",
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	token, err := s.New(galleryIdentity(), time.Minute)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	got, err := s.Get(token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Kind != domain.IdentityGallery || got.GalleryID != "gallery_deadbeef" || got.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", got)
	}

	if err := s.Delete(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.Get(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected invalid session after delete, got: %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()

	token, err := s.New(galleryIdentity(), -time.Second)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := s.Get(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected expired session, got: %v", err)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	redis := miniredis.RunT(t)
	s := NewRedisStore(redis.Addr(), "")

	token, err := s.New(domain.Identity{Kind: domain.IdentityAdmin}, time.Minute)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	got, err := s.Get(token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.IsAdmin() {
		t.Fatalf("expected admin identity, got: %+v", got)
	}

	if err := s.Delete(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.Get(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected invalid session after delete, got: %v", err)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	redis := miniredis.RunT(t)
	s := NewRedisStore(redis.Addr(), "")

	token, err := s.New(galleryIdentity(), time.Minute)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	redis.FastForward(2 * time.Minute)
	if _, err := s.Get(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected expired session, got: %v", err)
	}
}

func TestTokensAreOpaqueAndUnique(t *testing.T) {
	s := NewMemoryStore()

	a, err := s.New(galleryIdentity(), time.Minute)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	b, err := s.New(galleryIdentity(), time.Minute)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if a == b {
		t.Fatal("expected unique tokens")
	}
	if len(a) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(a))
	}
}
