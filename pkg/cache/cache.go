// Package cache keeps per-storage file metadata (size, mtime, type) and the
// watchers that keep it in sync with the backend.
//
// Paths are backend-internal: no leading "/", "" is the storage root.
// Folder sizes are aggregates of their direct children; SizeUnknown marks a
// folder whose size cannot be computed yet.
package cache

import (
	"context"
	"time"

	"github.com/marmos91/dittovfs/pkg/storage"
)

// SizeUnknown marks an entry whose size has not been computed.
const SizeUnknown int64 = -1

// Entry is the cached metadata of one path.
type Entry struct {
	Path  string           `json:"path" yaml:"path"`
	Size  int64            `json:"size" yaml:"size"`
	MTime time.Time        `json:"mtime" yaml:"mtime"`
	Type  storage.FileType `json:"type" yaml:"type"`
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool {
	return e.Type == storage.TypeDirectory
}

// Cache stores entries of a single storage.
type Cache interface {
	// StorageID returns the id of the storage the cache belongs to.
	StorageID() string

	// Get returns the entry at path, or ErrNotFound.
	Get(ctx context.Context, path string) (*Entry, error)

	// Put inserts or replaces an entry.
	Put(ctx context.Context, entry Entry) error

	// Remove deletes the entry at path and everything below it.
	Remove(ctx context.Context, path string) error

	// Children returns the direct children of path sorted by path.
	Children(ctx context.Context, path string) ([]Entry, error)
}

func cleanPath(op, p string) (string, error) {
	cp, ok := storage.CleanPath(p)
	if !ok {
		return "", storage.Errorf(op, p, storage.ErrInvalidParameters, "path escapes storage root")
	}
	return cp, nil
}

// isChild reports whether p is a direct child of dir.
func isChild(dir, p string) bool {
	return p != dir && storage.ParentPath(p) == dir
}

// isBelow reports whether p is dir or lies below it.
func isBelow(dir, p string) bool {
	if dir == "" || p == dir {
		return true
	}
	return len(p) > len(dir) && p[:len(dir)] == dir && p[len(dir)] == '/'
}
