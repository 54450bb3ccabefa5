package source

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"media-library/internal/filesystem"
	"media-library/internal/library"
	"media-library/internal/logging"
)

// photoExtensions and videoExtensions classify files by extension.
// Extensions are lowercase with the leading dot.
var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
}

// KindForExtension returns the media kind for a lowercase extension with
// leading dot, or false if the extension is not a supported media type.
func KindForExtension(ext string) (library.MediaKind, bool) {
	if photoExtensions[ext] {
		return library.KindPhoto, true
	}
	if videoExtensions[ext] {
		return library.KindVideo, true
	}
	return "", false
}

// DirSource enumerates media files under a root directory. The item id
// is the slash-separated path relative to the root; the fingerprint is
// derived from path, size and mtime so a rewrite of the bytes forces
// re-analysis without reading content during enumeration.
type DirSource struct {
	root       string
	skipHidden bool
	retry      filesystem.RetryConfig
}

// NewDirSource creates a filesystem asset source rooted at dir. Reads
// retry on NFS stale file handles since media volumes are typically
// network mounts.
func NewDirSource(dir string) *DirSource {
	return &DirSource{
		root:       dir,
		skipHidden: true,
		retry:      filesystem.DefaultRetryConfig(),
	}
}

// ListItems walks the root directory and returns every supported media
// file. Unreadable entries are skipped with a warning; the walk itself
// only fails if the root is inaccessible.
func (s *DirSource) ListItems(ctx context.Context) ([]AssetInfo, error) {
	var items []AssetInfo

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if path == s.root {
				return fmt.Errorf("failed to access source root: %w", err)
			}
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}

		if s.skipHidden && strings.HasPrefix(d.Name(), ".") && path != s.root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		kind, ok := KindForExtension(strings.ToLower(filepath.Ext(d.Name())))
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logging.Warn("Error getting info for %s: %v", path, err)
			return nil
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		id := filepath.ToSlash(relPath)

		items = append(items, AssetInfo{
			ID:          id,
			Fingerprint: Fingerprint(id, info.Size(), info.ModTime().Unix()),
			CreatedAt:   info.ModTime(),
			Kind:        kind,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// FetchContent reads the item's bytes. A missing file maps to
// library.ErrAssetUnavailable.
func (s *DirSource) FetchContent(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.root, filepath.FromSlash(id))
	data, err := filesystem.ReadFileWithRetry(path, s.retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", library.ErrAssetUnavailable, id)
		}
		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}
	return data, nil
}

// Fingerprint derives a stable content fingerprint from an item's id,
// size and modification time.
func Fingerprint(id string, size, mtime int64) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%d", id, size, mtime))
	return fmt.Sprintf("%x", sum[:16])
}
