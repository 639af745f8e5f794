// Package archive streams a selection of gallery images as a single ZIP
// download.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"imagestore/internal/assets"
)

// ErrNoFiles is returned when none of the requested files could be added.
var ErrNoFiles = errors.New("no valid files to archive")

// Builder assembles ZIP archives from asset files. Path resolution and
// containment checks are delegated to the asset store.
type Builder struct {
	assets *assets.Store
	logger *slog.Logger
}

func New(store *assets.Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{assets: store, logger: logger.With("component", "archive")}
}

// FileName returns a timestamped download name for a fresh archive.
func FileName() string {
	return fmt.Sprintf("images_%d.zip", time.Now().Unix())
}

// Write streams an archive of the named files to w. Files that are missing,
// denied, or unreadable are skipped and reported back; the archive fails
// only when nothing at all could be added. Entries are stored under their
// bare file names, deduplicated within the archive.
func (b *Builder) Write(w io.Writer, galleryID string, names []string) (added int, skipped []string, err error) {
	zw := zip.NewWriter(w)
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		path, resolveErr := b.assets.Resolve(galleryID, name)
		if resolveErr != nil {
			skipped = append(skipped, name)
			continue
		}
		entryName := filepath.Base(path)
		if _, dup := seen[entryName]; dup {
			skipped = append(skipped, name)
			continue
		}
		if addErr := addEntry(zw, path, entryName); addErr != nil {
			b.logger.Warn("archive entry failed",
				"gallery_id", galleryID, "name", entryName, "error", addErr)
			skipped = append(skipped, name)
			continue
		}
		seen[entryName] = struct{}{}
		added++
	}
	if added == 0 {
		// No entries were created, so nothing has been written to w yet;
		// skip Close to keep it that way and let the caller respond freely.
		return 0, skipped, ErrNoFiles
	}
	if err := zw.Close(); err != nil {
		return added, skipped, fmt.Errorf("finalize archive: %w", err)
	}
	b.logger.Info("archive written", "gallery_id", galleryID, "added", added, "skipped", len(skipped))
	return added, skipped, nil
}

func addEntry(zw *zip.Writer, path, entryName string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = entryName
	header.Method = zip.Deflate
	entry, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}
