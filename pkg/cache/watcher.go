package cache

import (
	"context"
	"errors"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// Watcher keeps a cache in sync with the backend it describes.
type Watcher interface {
	// CheckUpdate compares path against the backend and refreshes the
	// cache when it is stale. It reports whether an update was applied.
	CheckUpdate(ctx context.Context, path string) (bool, error)

	// CleanFolder drops cached children of path that no longer exist in
	// the backend.
	CleanFolder(ctx context.Context, path string) error
}

// BackendWatcher is the generic Watcher: a path needs an update when it is
// missing from the cache or the backend reports a newer mtime.
//
// Folders are scanned one level deep. Subfolders discovered during a scan
// are stored with SizeUnknown and a zero mtime, so the next CheckUpdate on
// them always rescans.
type BackendWatcher struct {
	backend storage.Backend
	cache   Cache
}

// NewWatcher creates the generic watcher for backend and its cache.
func NewWatcher(backend storage.Backend, cache Cache) *BackendWatcher {
	return &BackendWatcher{backend: backend, cache: cache}
}

func (w *BackendWatcher) CheckUpdate(ctx context.Context, path string) (bool, error) {
	cp, err := cleanPath("watcher.check_update", path)
	if err != nil {
		return false, err
	}

	cached, err := w.cache.Get(ctx, cp)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}

	info, err := w.backend.Stat(ctx, cp)
	if errors.Is(err, storage.ErrNotFound) {
		if cached == nil {
			return false, nil
		}
		logger.Debug("watcher %s: %q vanished from backend", w.cache.StorageID(), cp)
		if err := w.cache.Remove(ctx, cp); err != nil {
			return false, err
		}
		if cp != "" {
			if err := CorrectFolderSize(ctx, w.cache, storage.ParentPath(cp)); err != nil {
				return true, err
			}
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if cached != nil && cached.Type == info.Type && !info.MTime.After(cached.MTime) {
		return false, nil
	}

	if info.IsDir() {
		err = w.scanFolder(ctx, cp, info)
	} else {
		err = w.scanFile(ctx, cp, info, cached)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (w *BackendWatcher) scanFile(ctx context.Context, path string, info *storage.FileInfo, cached *Entry) error {
	if cached != nil && cached.IsDir() {
		// a folder was replaced by a file
		if err := w.cache.Remove(ctx, path); err != nil {
			return err
		}
	}

	err := w.cache.Put(ctx, Entry{
		Path:  path,
		Size:  info.Size,
		MTime: info.MTime,
		Type:  storage.TypeFile,
	})
	if err != nil {
		return err
	}
	if path == "" {
		return nil
	}
	return CorrectFolderSize(ctx, w.cache, storage.ParentPath(path))
}

func (w *BackendWatcher) scanFolder(ctx context.Context, path string, info *storage.FileInfo) error {
	children, err := w.backend.ReadDir(ctx, path)
	if err != nil {
		return err
	}

	for _, child := range children {
		childPath := storage.JoinPath(path, child.Name)
		entry := Entry{Path: childPath, Type: child.Type}

		if child.IsDir() {
			prev, err := w.cache.Get(ctx, childPath)
			switch {
			case err == nil && prev.IsDir():
				continue
			case err != nil && !errors.Is(err, storage.ErrNotFound):
				return err
			}
			entry.Size = SizeUnknown
		} else {
			entry.Size = child.Size
			entry.MTime = child.MTime
		}

		if err := w.cache.Put(ctx, entry); err != nil {
			return err
		}
	}

	err = w.cache.Put(ctx, Entry{
		Path:  path,
		Size:  SizeUnknown,
		MTime: info.MTime,
		Type:  storage.TypeDirectory,
	})
	if err != nil {
		return err
	}

	if err := w.removeVanished(ctx, path, children); err != nil {
		return err
	}
	return CorrectFolderSize(ctx, w.cache, path)
}

func (w *BackendWatcher) CleanFolder(ctx context.Context, path string) error {
	cp, err := cleanPath("watcher.clean_folder", path)
	if err != nil {
		return err
	}

	children, err := w.backend.ReadDir(ctx, cp)
	if errors.Is(err, storage.ErrNotFound) {
		// the folder itself is gone
		return w.cache.Remove(ctx, cp)
	}
	if err != nil {
		return err
	}
	return w.removeVanished(ctx, cp, children)
}

// removeVanished drops cached children of path absent from listing.
func (w *BackendWatcher) removeVanished(ctx context.Context, path string, listing []storage.FileInfo) error {
	present := make(map[string]struct{}, len(listing))
	for _, fi := range listing {
		present[storage.JoinPath(path, fi.Name)] = struct{}{}
	}

	cached, err := w.cache.Children(ctx, path)
	if err != nil {
		return err
	}
	for _, entry := range cached {
		if _, ok := present[entry.Path]; ok {
			continue
		}
		logger.Debug("watcher %s: dropping stale entry %q", w.cache.StorageID(), entry.Path)
		if err := w.cache.Remove(ctx, entry.Path); err != nil {
			return err
		}
	}
	return nil
}
