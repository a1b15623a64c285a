package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// SpaceUnknown is returned by FreeSpace when a backend cannot report how much
// space is left. Quota pre-flight checks are skipped for such paths.
const SpaceUnknown int64 = -1

// FileType distinguishes regular files from directories.
type FileType string

const (
	TypeFile      FileType = "file"
	TypeDirectory FileType = "dir"
)

// FileInfo describes a single entry of a backend.
type FileInfo struct {
	// Name is the base name of the entry ("" for the backend root)
	Name string

	// Size in bytes. Directories report the backend's notion of size,
	// which may be 0.
	Size int64

	// MTime is the last modification time
	MTime time.Time

	// Type is TypeFile or TypeDirectory
	Type FileType
}

// IsDir reports whether the entry is a directory.
func (fi *FileInfo) IsDir() bool {
	return fi.Type == TypeDirectory
}

// File is an open handle returned by Backend.Open.
//
// Writes to a handle are only guaranteed to be visible in the backend once
// Close returns without error. Backends without native random access hand
// out a WriteBackFile whose Close uploads the content.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// Aborter is implemented by handles that can drop their pending content
// instead of committing it. Abort releases the handle like Close does.
// Handles that wrap another one return ErrUnsupportedMode, without
// releasing anything, when the wrapped handle cannot abort.
type Aborter interface {
	Abort() error
}

// Abort discards the pending content of f when f supports it and closes f
// otherwise. discarded reports which of the two happened; when it is false
// whatever was written may have reached the backend.
func Abort(f File) (discarded bool, err error) {
	if a, ok := f.(Aborter); ok {
		err := a.Abort()
		if !errors.Is(err, ErrUnsupportedMode) {
			return true, err
		}
	}
	return false, f.Close()
}

// Backend is the capability set every storage medium (local disk, memory,
// S3, ...) implements.
//
// Paths are backend-internal: they never carry the mount point and are
// relative to the backend root. Both "" and "/" address the root; leading
// slashes are ignored.
//
// Error Handling:
// Failures are reported as *Error values wrapping one of the sentinel kinds
// declared in errors.go (ErrNotFound, ErrIO, ErrUnsupportedMode, ...).
// Operations a backend cannot perform fail with ErrUnsupportedMode.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Concurrent writes to the same path are last-close-wins.
type Backend interface {
	// ID returns a deterministic identifier unique to this backend
	// configuration, e.g. "amazon::bucket" or "local::/srv/data/".
	// Mounts hash ids longer than MaxIDLength before using them as keys.
	ID() string

	// Mkdir creates a single directory. The parent must exist.
	Mkdir(ctx context.Context, path string) error

	// Rmdir removes a directory and everything below it.
	Rmdir(ctx context.Context, path string) error

	// Unlink removes a regular file.
	Unlink(ctx context.Context, path string) error

	// Rename moves src to dst inside this backend, replacing dst.
	Rename(ctx context.Context, src, dst string) error

	// Stat returns information about path.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// Open opens path with the given mode. The caller must Close the
	// returned handle; closing is what persists writes.
	Open(ctx context.Context, path string, mode Mode) (File, error)

	// PutContents replaces the content of path and returns the number of
	// bytes stored.
	PutContents(ctx context.Context, path string, data []byte) (int, error)

	// GetContents returns the whole content of path.
	GetContents(ctx context.Context, path string) ([]byte, error)

	// IsDir reports whether path is an existing directory.
	IsDir(ctx context.Context, path string) (bool, error)

	// FileType returns the type of an existing path.
	FileType(ctx context.Context, path string) (FileType, error)

	// ReadDir lists the direct children of a directory, sorted by name.
	ReadDir(ctx context.Context, path string) ([]FileInfo, error)

	// FreeSpace returns the bytes available below path, or SpaceUnknown.
	FreeSpace(ctx context.Context, path string) (int64, error)
}
