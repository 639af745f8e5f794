// Package reconcile detects and removes storage directories that look like
// gallery directories but have no matching registry record. Orphans appear
// when a gallery delete removes the record but leaves files behind.
package reconcile

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imagestore/internal/registry"
	"imagestore/pkg/domain"
)

// ErrNotConfirmed is returned when a purge is requested without explicit
// confirmation.
var ErrNotConfirmed = fmt.Errorf("purge requires confirmation")

// galleryDirPrefix restricts the scan to directories this system provisions.
// Anything else under the storage root is never considered an orphan.
const galleryDirPrefix = "gallery_"

// Reconciler compares the storage root against the registry.
type Reconciler struct {
	registry    *registry.Store
	storageRoot string
	logger      *slog.Logger
}

func New(reg *registry.Store, storageRoot string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		registry:    reg,
		storageRoot: storageRoot,
		logger:      logger.With("component", "reconcile"),
	}
}

// Scan lists gallery-prefixed directories with no registry record, sorted by
// name. A missing storage root means there is nothing to reconcile.
func (r *Reconciler) Scan() ([]domain.OrphanFolder, error) {
	galleries, err := r.registry.List()
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	known := make(map[string]struct{}, len(galleries))
	for _, g := range galleries {
		known[g.ID] = struct{}{}
	}

	entries, err := os.ReadDir(r.storageRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read storage root: %w", err)
	}

	var orphans []domain.OrphanFolder
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), galleryDirPrefix) {
			continue
		}
		if _, ok := known[entry.Name()]; ok {
			continue
		}
		count, bytes := folderStats(filepath.Join(r.storageRoot, entry.Name()))
		orphans = append(orphans, domain.OrphanFolder{
			Name:       entry.Name(),
			FileCount:  count,
			TotalBytes: bytes,
		})
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].Name < orphans[j].Name })
	return orphans, nil
}

// Purge removes every orphaned directory. It re-scans immediately before
// deleting so that records created between a preview and the purge are never
// destroyed. Failures are reported per folder and do not stop the sweep.
func (r *Reconciler) Purge(confirmed bool) (domain.PurgeResult, error) {
	if !confirmed {
		return domain.PurgeResult{}, ErrNotConfirmed
	}
	orphans, err := r.Scan()
	if err != nil {
		return domain.PurgeResult{}, err
	}

	var result domain.PurgeResult
	for _, orphan := range orphans {
		folder := domain.PurgeFolderResult{Name: orphan.Name}
		if err := os.RemoveAll(filepath.Join(r.storageRoot, orphan.Name)); err != nil {
			folder.Status = "failed"
			folder.Message = err.Error()
			result.Failed++
			r.logger.Error("orphan purge failed", "folder", orphan.Name, "error", err)
		} else {
			folder.Status = "deleted"
			result.Deleted++
			r.logger.Info("orphan purged",
				"folder", orphan.Name, "files", orphan.FileCount, "bytes", orphan.TotalBytes)
		}
		result.Folders = append(result.Folders, folder)
	}
	return result, nil
}

// folderStats walks a directory tree counting regular files and their sizes.
// Unreadable entries are skipped rather than failing the scan.
func folderStats(dir string) (count int, total int64) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			count++
			total += info.Size()
		}
		return nil
	})
	return count, total
}
