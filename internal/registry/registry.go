package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"imagestore/pkg/domain"
)

// ErrStorageUnavailable indicates the registry document exists but cannot be
// parsed. Callers that prefer availability may treat it as an empty registry.
var ErrStorageUnavailable = errors.New("gallery registry unavailable")

// Store persists the full list of gallery records as a single JSON document.
// Every call re-reads the backing file and every mutation rewrites it
// wholesale. There is no cache and no locking: concurrent writers can race
// and the last write wins.
type Store struct {
	path string
}

// New builds a Store and ensures the parent data directory exists.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the backing document location.
func (s *Store) Path() string {
	return s.path
}

// record is the persisted JSON shape. Boolean toggles are pointers so that
// records written before the toggles existed default to true on read.
type record struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Name           string `json:"name"`
	Created        int64  `json:"created"`
	UploadDir      string `json:"upload_dir"`
	AllowUploads   *bool  `json:"allow_uploads,omitempty"`
	AllowDownloads *bool  `json:"allow_downloads,omitempty"`
}

func (r record) toDomain() domain.Gallery {
	g := domain.Gallery{
		ID:             r.ID,
		Username:       r.Username,
		PasswordHash:   r.Password,
		Name:           r.Name,
		CreatedAt:      time.Unix(r.Created, 0).UTC(),
		UploadDir:      r.UploadDir,
		AllowUploads:   true,
		AllowDownloads: true,
	}
	if r.AllowUploads != nil {
		g.AllowUploads = *r.AllowUploads
	}
	if r.AllowDownloads != nil {
		g.AllowDownloads = *r.AllowDownloads
	}
	return g
}

func fromDomain(g domain.Gallery) record {
	allowUploads := g.AllowUploads
	allowDownloads := g.AllowDownloads
	return record{
		ID:             g.ID,
		Username:       g.Username,
		Password:       g.PasswordHash,
		Name:           g.Name,
		Created:        g.CreatedAt.Unix(),
		UploadDir:      g.UploadDir,
		AllowUploads:   &allowUploads,
		AllowDownloads: &allowDownloads,
	}
}

// List returns all gallery records in persisted order. A missing backing
// file yields an empty list; an unparseable file yields ErrStorageUnavailable.
func (s *Store) List() ([]domain.Gallery, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	galleries := make([]domain.Gallery, 0, len(records))
	for _, r := range records {
		galleries = append(galleries, r.toDomain())
	}
	return galleries, nil
}

// FindByID looks up a gallery by its id.
func (s *Store) FindByID(id string) (domain.Gallery, bool, error) {
	galleries, err := s.List()
	if err != nil {
		return domain.Gallery{}, false, err
	}
	for _, g := range galleries {
		if g.ID == id {
			return g, true, nil
		}
	}
	return domain.Gallery{}, false, nil
}

// FindByUsername looks up a gallery by its username (case-sensitive).
func (s *Store) FindByUsername(username string) (domain.Gallery, bool, error) {
	galleries, err := s.List()
	if err != nil {
		return domain.Gallery{}, false, err
	}
	for _, g := range galleries {
		if g.Username == username {
			return g, true, nil
		}
	}
	return domain.Gallery{}, false, nil
}

// Persist serializes the entire sequence and overwrites the backing document
// via a temp file and rename. The rename keeps a crashed write from leaving a
// truncated document, but persistence is still not transactional with any
// directory operation; callers sequence those around this call.
func (s *Store) Persist(galleries []domain.Gallery) error {
	records := make([]record, 0, len(galleries))
	for _, g := range galleries {
		records = append(records, fromDomain(g))
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}
