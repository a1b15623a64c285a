// Package wrapper contains storage decorators applied to a mount's backend.
//
// A Wrapper receives the mount point and the current backend and returns a
// backend that adds behaviour on top of it: quotas, id hashing, throttling
// or instrumentation. Mounts apply wrappers in order, so the last wrapper is
// the outermost one.
package wrapper

import (
	"context"

	"github.com/marmos91/dittovfs/pkg/storage"
)

// Wrapper decorates the backend of the mount at mountPoint.
type Wrapper func(mountPoint string, b storage.Backend) storage.Backend

// Chain combines wrappers into one, applying them in order.
func Chain(wrappers ...Wrapper) Wrapper {
	return func(mountPoint string, b storage.Backend) storage.Backend {
		for _, w := range wrappers {
			if w != nil {
				b = w(mountPoint, b)
			}
		}
		return b
	}
}

// Unwrapper is implemented by decorators that expose the backend they wrap.
type Unwrapper interface {
	Unwrap() storage.Backend
}

// Innermost follows Unwrap until it reaches an undecorated backend.
func Innermost(b storage.Backend) storage.Backend {
	for {
		u, ok := b.(Unwrapper)
		if !ok {
			return b
		}
		b = u.Unwrap()
	}
}

// DirectoryUsage returns the total size of the files below path.
func DirectoryUsage(ctx context.Context, b storage.Backend, path string) (int64, error) {
	entries, err := b.ReadDir(ctx, path)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, e := range entries {
		child := storage.JoinPath(path, e.Name)
		if e.IsDir() {
			size, err := DirectoryUsage(ctx, b, child)
			if err != nil {
				return 0, err
			}
			total += size
			continue
		}
		total += e.Size
	}
	return total, nil
}
