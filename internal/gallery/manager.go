package gallery

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"imagestore/internal/registry"
	"imagestore/pkg/auth"
	"imagestore/pkg/domain"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DeleteStatus tags the filesystem side of a gallery deletion. The registry
// entry is removed in every case; the status records whether disk cleanup
// kept up.
type DeleteStatus string

const (
	DeleteFull    DeleteStatus = "fully_deleted"
	DeletePartial DeleteStatus = "partially_deleted"
	DeleteFailed  DeleteStatus = "failed"
)

// DeleteOutcome reports what happened to the gallery's directory tree.
// Remaining lists paths still on disk when cleanup did not finish; the
// orphan reconciler is the designated repair mechanism for that drift.
type DeleteOutcome struct {
	Status    DeleteStatus `json:"status"`
	Remaining []string     `json:"remaining,omitempty"`
}

// UpdateParams carries the mutable gallery fields; nil means "leave as is".
type UpdateParams struct {
	Name           *string
	AllowUploads   *bool
	AllowDownloads *bool
}

// Manager owns gallery records and their backing directory trees. Record and
// directory mutations cannot be made transactional together, so create
// persists first and rolls the record back when the mkdir fails, while
// delete removes the record even when disk cleanup fails.
type Manager struct {
	registry    *registry.Store
	storageRoot string
	logger      *slog.Logger
}

// NewManager builds a Manager rooted at storageRoot and ensures the root
// directory exists.
func NewManager(reg *registry.Store, storageRoot string, logger *slog.Logger) (*Manager, error) {
	if strings.TrimSpace(storageRoot) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:    reg,
		storageRoot: storageRoot,
		logger:      logger.With("component", "gallery"),
	}, nil
}

// StorageRoot returns the directory that holds all gallery directories.
func (m *Manager) StorageRoot() string {
	return m.storageRoot
}

// Dir returns the on-disk directory for a gallery id. It is derived from the
// id alone so a doctored registry document cannot point outside the root.
func (m *Manager) Dir(galleryID string) string {
	return filepath.Join(m.storageRoot, galleryID)
}

// List returns all galleries in persisted order.
func (m *Manager) List() ([]domain.Gallery, error) {
	return m.registry.List()
}

// Get returns the gallery with the given id.
func (m *Manager) Get(id string) (domain.Gallery, error) {
	g, found, err := m.registry.FindByID(id)
	if err != nil {
		return domain.Gallery{}, err
	}
	if !found {
		return domain.Gallery{}, ErrNotFound
	}
	return g, nil
}

// Create provisions a new gallery: a registry record plus its upload
// directory. Username uniqueness is checked twice, once before the password
// hash and once right before the append, to narrow the read-modify-write
// race window on the shared document.
func (m *Manager) Create(username, password, name string, allowUploads, allowDownloads bool) (domain.Gallery, error) {
	username = strings.TrimSpace(username)
	if username == "" || !usernamePattern.MatchString(username) {
		return domain.Gallery{}, ErrInvalidUsername
	}
	if _, found, err := m.registry.FindByUsername(username); err != nil {
		return domain.Gallery{}, err
	} else if found {
		return domain.Gallery{}, ErrUsernameTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.Gallery{}, fmt.Errorf("hash password: %w", err)
	}

	id := newGalleryID()
	name = strings.TrimSpace(name)
	if name == "" {
		name = username
	}
	g := domain.Gallery{
		ID:             id,
		Username:       username,
		PasswordHash:   hash,
		Name:           name,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
		UploadDir:      uploadDirValue(m.storageRoot, id),
		AllowUploads:   allowUploads,
		AllowDownloads: allowDownloads,
	}

	// Fresh read plus second uniqueness check right before the append.
	galleries, err := m.registry.List()
	if err != nil {
		return domain.Gallery{}, err
	}
	for _, existing := range galleries {
		if existing.Username == username {
			return domain.Gallery{}, ErrUsernameTaken
		}
	}
	galleries = append(galleries, g)
	if err := m.registry.Persist(galleries); err != nil {
		return domain.Gallery{}, err
	}

	if err := os.MkdirAll(m.Dir(id), 0o755); err != nil {
		// Roll the record back so the registry never references storage
		// that does not exist.
		rollback := galleries[:len(galleries)-1]
		if persistErr := m.registry.Persist(rollback); persistErr != nil {
			m.logger.Error("rollback after mkdir failure failed",
				"gallery_id", id, "err", persistErr)
		}
		return domain.Gallery{}, fmt.Errorf("%w: %v", ErrDirectoryCreate, err)
	}

	m.logger.Info("gallery created", "gallery_id", id, "username", username)
	return g, nil
}

// Update mutates only the supplied fields and persists the whole registry.
func (m *Manager) Update(id string, params UpdateParams) error {
	galleries, err := m.registry.List()
	if err != nil {
		return err
	}
	for i := range galleries {
		if galleries[i].ID != id {
			continue
		}
		if params.Name != nil {
			galleries[i].Name = strings.TrimSpace(*params.Name)
		}
		if params.AllowUploads != nil {
			galleries[i].AllowUploads = *params.AllowUploads
		}
		if params.AllowDownloads != nil {
			galleries[i].AllowDownloads = *params.AllowDownloads
		}
		return m.registry.Persist(galleries)
	}
	return ErrNotFound
}

// UpdatePassword replaces the gallery's password hash.
func (m *Manager) UpdatePassword(id, newPassword string) error {
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	galleries, err := m.registry.List()
	if err != nil {
		return err
	}
	for i := range galleries {
		if galleries[i].ID == id {
			galleries[i].PasswordHash = hash
			return m.registry.Persist(galleries)
		}
	}
	return ErrNotFound
}

// Delete removes the gallery record and its directory tree. The record is
// removed even when directory cleanup fails, intentionally freeing the
// username for reuse; the outcome makes the drift explicit.
func (m *Manager) Delete(id string) (DeleteOutcome, error) {
	galleries, err := m.registry.List()
	if err != nil {
		return DeleteOutcome{Status: DeleteFailed}, err
	}
	idx := -1
	for i := range galleries {
		if galleries[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return DeleteOutcome{Status: DeleteFailed}, ErrNotFound
	}

	outcome := DeleteOutcome{Status: DeleteFull}
	dir := m.Dir(id)
	if _, err := os.Stat(dir); err == nil {
		if failedPath, err := removeTree(dir); err != nil {
			m.logger.Warn("gallery directory cleanup incomplete",
				"gallery_id", id, "path", failedPath, "err", err)
			outcome.Status = DeletePartial
			outcome.Remaining = []string{failedPath}
			if failedPath == dir {
				outcome.Status = DeleteFailed
			}
		}
	}

	galleries = append(galleries[:idx], galleries[idx+1:]...)
	if err := m.registry.Persist(galleries); err != nil {
		return outcome, err
	}
	m.logger.Info("gallery deleted", "gallery_id", id, "cleanup", string(outcome.Status))
	return outcome, nil
}

// VerifyCredentials checks a username/password pair and returns the record
// with the password hash stripped. Lookup failure and password mismatch are
// indistinguishable to the caller.
func (m *Manager) VerifyCredentials(username, password string) (domain.Gallery, error) {
	g, found, err := m.registry.FindByUsername(strings.TrimSpace(username))
	if err != nil {
		return domain.Gallery{}, err
	}
	if !found || !auth.CheckPassword(password, g.PasswordHash) {
		return domain.Gallery{}, ErrInvalidCredentials
	}
	g.PasswordHash = ""
	return g, nil
}

// removeTree deletes dir depth-first: all children of a directory are
// removed before the directory itself, and the walk aborts on the first
// failure. Returns the path that could not be removed.
func removeTree(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return dir, err
	}
	for _, entry := range entries {
		child := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if failed, err := removeTree(child); err != nil {
				return failed, err
			}
			continue
		}
		if err := os.Remove(child); err != nil {
			return child, err
		}
	}
	if err := os.Remove(dir); err != nil {
		return dir, err
	}
	return "", nil
}

// newGalleryID generates an id carrying the gallery_ directory prefix the
// orphan reconciler keys on.
func newGalleryID() string {
	return "gallery_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// uploadDirValue renders the persisted upload_dir value with forward slashes
// and a trailing separator, matching the registry document format.
func uploadDirValue(storageRoot, id string) string {
	return filepath.ToSlash(filepath.Join(filepath.Base(storageRoot), id)) + "/"
}
