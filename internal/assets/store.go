// Package assets moves individual image files between a gallery's active
// directory and its rejects/ subdirectory. Every operation re-resolves the
// gallery record and canonicalizes paths before touching the filesystem; a
// registry record with no backing directory is treated as not found.
package assets

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"imagestore/internal/gallery"
	"imagestore/pkg/domain"
)

// RejectsDirName is the per-gallery holding area for soft-removed images.
const RejectsDirName = "rejects"

var allowedTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// Store governs the location of asset files inside existing gallery
// directories.
type Store struct {
	galleries      *gallery.Manager
	maxUploadBytes int64
	maxBatchFiles  int
	logger         *slog.Logger
}

// NewStore wires the asset store to the gallery manager that owns the
// directories it operates in.
func NewStore(galleries *gallery.Manager, maxUploadBytes int64, maxBatchFiles int, logger *slog.Logger) *Store {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	if maxBatchFiles <= 0 {
		maxBatchFiles = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		galleries:      galleries,
		maxUploadBytes: maxUploadBytes,
		maxBatchFiles:  maxBatchFiles,
		logger:         logger.With("component", "assets"),
	}
}

// MaxBatchFiles returns the per-call upload cap.
func (s *Store) MaxBatchFiles() int {
	return s.maxBatchFiles
}

// galleryDir resolves the gallery record and its directory. A record whose
// directory is missing is orphaned and reported as not found.
func (s *Store) galleryDir(galleryID string) (domain.Gallery, string, error) {
	g, err := s.galleries.Get(galleryID)
	if err != nil {
		return domain.Gallery{}, "", err
	}
	dir := s.galleries.Dir(galleryID)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return domain.Gallery{}, "", gallery.ErrNotFound
	}
	return g, dir, nil
}

// Ingest validates and stores one uploaded image in the gallery's active
// directory. The file is written to a temp location first and moved into
// place with a rename, so a failed upload leaves no partial state. Name
// collisions are resolved with a numeric suffix.
func (s *Store) Ingest(galleryID string, r io.Reader, originalName, declaredType string) (domain.Asset, error) {
	g, dir, err := s.galleryDir(galleryID)
	if err != nil {
		return domain.Asset{}, err
	}
	if !g.AllowUploads {
		return domain.Asset{}, ErrUploadsDisabled
	}
	if _, ok := allowedTypes[strings.ToLower(strings.TrimSpace(declaredType))]; !ok {
		return domain.Asset{}, ErrInvalidType
	}

	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return domain.Asset{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	size, err := io.Copy(tmp, io.LimitReader(r, s.maxUploadBytes+1))
	if err != nil {
		cleanup()
		return domain.Asset{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if size > s.maxUploadBytes {
		cleanup()
		return domain.Asset{}, ErrTooLarge
	}

	// Content sniffing: the declared type is not trusted on its own.
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return domain.Asset{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if _, _, err := image.DecodeConfig(tmp); err != nil {
		cleanup()
		return domain.Asset{}, ErrInvalidImage
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return domain.Asset{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.Asset{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	base, ext := splitExt(filepath.Base(originalName))
	base = sanitizeBaseName(base)
	ext = strings.ToLower(ext)
	if ext == "" {
		ext = extensionForType(declaredType)
	}
	storedName := numericSuffixName(dir, base, ext)
	if err := os.Rename(tmpPath, filepath.Join(dir, storedName)); err != nil {
		os.Remove(tmpPath)
		return domain.Asset{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	s.logger.Info("asset ingested",
		"gallery_id", galleryID, "name", storedName, "size", size)
	return domain.Asset{
		Name:       storedName,
		State:      domain.AssetActive,
		SizeBytes:  size,
		ModifiedAt: time.Now().UTC(),
		URL:        downloadURL(storedName),
	}, nil
}

// BatchItem is one file in a batch upload.
type BatchItem struct {
	Name string
	MIME string
	Open func() (io.ReadCloser, error)
}

// IngestBatch processes up to MaxBatchFiles items independently and returns
// a partitioned result: per-file successes and per-file error strings. A
// batch is never all-or-nothing, and files written before a later failure
// stay written.
func (s *Store) IngestBatch(galleryID string, items []BatchItem) (domain.UploadResult, error) {
	if len(items) > s.maxBatchFiles {
		return domain.UploadResult{}, fmt.Errorf("%w: maximum %d files allowed per batch", ErrBatchTooLarge, s.maxBatchFiles)
	}
	var result domain.UploadResult
	for _, item := range items {
		rc, err := item.Open()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.Name, err))
			continue
		}
		asset, err := s.Ingest(galleryID, rc, item.Name, item.MIME)
		rc.Close()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.Name, err))
			continue
		}
		result.Uploaded = append(result.Uploaded, asset)
	}
	return result, nil
}

// Reject moves an active file into the gallery's rejects/ subdirectory,
// creating it when absent. A same-named file already in rejects/ triggers a
// timestamp-suffix rename; the returned name is the one actually stored.
func (s *Store) Reject(galleryID, fileName string) (string, error) {
	_, dir, err := s.galleryDir(galleryID)
	if err != nil {
		return "", err
	}
	name, err := cleanName(fileName)
	if err != nil {
		return "", err
	}
	src := filepath.Join(dir, name)
	if !fileExists(src) {
		return "", ErrFileNotFound
	}
	if err := ensureWithin(src, dir); err != nil {
		return "", err
	}

	rejectsDir := filepath.Join(dir, RejectsDirName)
	if err := os.MkdirAll(rejectsDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMoveFailed, err)
	}
	storedName := name
	if fileExists(filepath.Join(rejectsDir, storedName)) {
		storedName = timestampSuffixName(name)
	}
	if err := os.Rename(src, filepath.Join(rejectsDir, storedName)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMoveFailed, err)
	}
	s.logger.Info("asset rejected", "gallery_id", galleryID, "name", name, "stored_name", storedName)
	return storedName, nil
}

// Restore moves a rejected file back into the active directory. Lookup is
// permissive because reject's timestamp rename can desynchronize the name
// the caller remembers from the one stored; the fallback chain is, in
// order: exact name, sole file in rejects/, case-insensitive match, base
// name ignoring a trailing timestamp suffix. The file is restored under the
// requested name, with a timestamp suffix on collision.
func (s *Store) Restore(galleryID, fileName string) (string, error) {
	_, dir, err := s.galleryDir(galleryID)
	if err != nil {
		return "", err
	}
	requested, err := cleanName(fileName)
	if err != nil {
		return "", err
	}
	rejectsDir := filepath.Join(dir, RejectsDirName)
	if info, err := os.Stat(rejectsDir); err != nil || !info.IsDir() {
		return "", ErrFileNotFound
	}

	found := requested
	if !fileExists(filepath.Join(rejectsDir, requested)) {
		found, err = findRejected(rejectsDir, requested)
		if err != nil {
			return "", err
		}
	}
	src := filepath.Join(rejectsDir, found)
	if err := ensureWithin(src, rejectsDir); err != nil {
		return "", err
	}

	storedName := requested
	if fileExists(filepath.Join(dir, storedName)) {
		storedName = timestampSuffixName(requested)
	}
	if err := os.Rename(src, filepath.Join(dir, storedName)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMoveFailed, err)
	}
	s.logger.Info("asset restored", "gallery_id", galleryID, "name", found, "stored_name", storedName)
	return storedName, nil
}

// Delete unlinks a file from the active directory or, with an explicit
// rejects/ prefix on the locator, from the rejects subdirectory.
func (s *Store) Delete(galleryID, locator string) error {
	path, _, err := s.resolve(galleryID, locator)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	s.logger.Info("asset deleted", "gallery_id", galleryID, "locator", locator)
	return nil
}

// Resolve returns the canonical on-disk path for a containment-checked
// locator. Consumed by the download and archive collaborators.
func (s *Store) Resolve(galleryID, locator string) (string, error) {
	path, _, err := s.resolve(galleryID, locator)
	return path, err
}

func (s *Store) resolve(galleryID, locator string) (string, bool, error) {
	_, dir, err := s.galleryDir(galleryID)
	if err != nil {
		return "", false, err
	}
	locator = strings.TrimSpace(locator)
	rejected := strings.HasPrefix(locator, RejectsDirName+"/")
	if rejected {
		locator = strings.TrimPrefix(locator, RejectsDirName+"/")
	}
	name, err := cleanName(locator)
	if err != nil {
		return "", false, err
	}
	path := filepath.Join(dir, name)
	if rejected {
		path = filepath.Join(dir, RejectsDirName, name)
	}
	if !fileExists(path) {
		return "", false, ErrFileNotFound
	}
	if err := ensureWithin(path, dir); err != nil {
		return "", false, err
	}
	return path, rejected, nil
}

// List returns the gallery's active and rejected assets, sorted by name.
func (s *Store) List(galleryID string) (active, rejected []domain.Asset, err error) {
	_, dir, err := s.galleryDir(galleryID)
	if err != nil {
		return nil, nil, err
	}
	active, err = listDir(dir, domain.AssetActive)
	if err != nil {
		return nil, nil, err
	}
	rejectsDir := filepath.Join(dir, RejectsDirName)
	if info, statErr := os.Stat(rejectsDir); statErr == nil && info.IsDir() {
		rejected, err = listDir(rejectsDir, domain.AssetRejected)
		if err != nil {
			return nil, nil, err
		}
	}
	return active, rejected, nil
}

func listDir(dir string, state domain.AssetState) ([]domain.Asset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []domain.Asset
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		a := domain.Asset{
			Name:       entry.Name(),
			State:      state,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		}
		if state == domain.AssetActive {
			a.URL = downloadURL(entry.Name())
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// findRejected applies the restore fallback chain inside rejectsDir.
func findRejected(rejectsDir, requested string) (string, error) {
	entries, err := os.ReadDir(rejectsDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileNotFound, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 1 {
		return files[0], nil
	}
	for _, f := range files {
		if strings.EqualFold(f, requested) {
			return f, nil
		}
	}
	wantBase, wantExt := splitExt(requested)
	wantBase = stripTimestampSuffix(wantBase)
	for _, f := range files {
		base, ext := splitExt(f)
		if strings.EqualFold(stripTimestampSuffix(base), wantBase) && strings.EqualFold(ext, wantExt) {
			return f, nil
		}
	}
	return "", ErrFileNotFound
}

// cleanName reduces a caller-supplied name to a bare filename.
func cleanName(raw string) (string, error) {
	name := filepath.Base(strings.TrimSpace(raw))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", ErrAccessDenied
	}
	return name, nil
}

// ensureWithin canonicalizes both the candidate path and the root (resolving
// symlinks and dot segments) and verifies the candidate is a strict
// descendant of the root.
func ensureWithin(path, root string) error {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return ErrAccessDenied
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return ErrAccessDenied
	}
	rel, err := filepath.Rel(resolvedRoot, resolved)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ErrAccessDenied
	}
	return nil
}

func extensionForType(declaredType string) string {
	switch strings.ToLower(strings.TrimSpace(declaredType)) {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "jpg"
	}
}

func downloadURL(storedName string) string {
	return "/api/download?file=" + url.QueryEscape(storedName)
}
