package cache

import (
	"context"
	"strings"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// OwnerLocation is where a shared entry really lives: its path inside the
// owner's storage and the owner's cache.
type OwnerLocation struct {
	Path  string
	Cache Cache
}

// OwnerResolver maps the top-level entry of a shared mount back to its
// owner. It is a lookup only; the shared mount never holds the owner.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, topLevel string) (OwnerLocation, error)
}

// OwnerResolverFunc adapts a function to OwnerResolver.
type OwnerResolverFunc func(ctx context.Context, topLevel string) (OwnerLocation, error)

func (f OwnerResolverFunc) ResolveOwner(ctx context.Context, topLevel string) (OwnerLocation, error) {
	return f(ctx, topLevel)
}

// SharedWatcher watches a mount that exposes entries shared by another
// user. Changes are detected through the inner watcher of the recipient's
// view, but folder sizes are corrected in the owner's cache, since that is
// the tree the owner's quota and listings read.
type SharedWatcher struct {
	inner    Watcher
	resolver OwnerResolver
}

// NewSharedWatcher wraps inner with owner redirection through resolver.
func NewSharedWatcher(inner Watcher, resolver OwnerResolver) *SharedWatcher {
	return &SharedWatcher{inner: inner, resolver: resolver}
}

// CheckUpdate delegates to the inner watcher. When an update was applied to
// a non-root path, the size of the owner's parent folder of the shared
// top-level entry is recomputed.
//
// Failing to resolve the owner does not fail the check: the local update
// already happened, so the error is logged and true is returned.
func (w *SharedWatcher) CheckUpdate(ctx context.Context, path string) (bool, error) {
	updated, err := w.inner.CheckUpdate(ctx, path)
	if err != nil || !updated {
		return updated, err
	}

	cp, ok := storage.CleanPath(path)
	if !ok || cp == "" {
		return true, nil
	}

	topLevel, _, _ := strings.Cut(cp, "/")
	loc, err := w.resolver.ResolveOwner(ctx, topLevel)
	if err != nil {
		logger.Warn("shared watcher: cannot resolve owner of %q: %v", topLevel, err)
		return true, nil
	}
	if loc.Cache == nil {
		return true, nil
	}

	ownerPath, ok := storage.CleanPath(loc.Path)
	if !ok {
		logger.Warn("shared watcher: owner path %q of %q escapes its storage", loc.Path, topLevel)
		return true, nil
	}

	if err := CorrectFolderSize(ctx, loc.Cache, storage.ParentPath(ownerPath)); err != nil {
		return true, err
	}
	return true, nil
}

// CleanFolder delegates to the inner watcher; stale entries only live in
// the local cache.
func (w *SharedWatcher) CleanFolder(ctx context.Context, path string) error {
	return w.inner.CleanFolder(ctx, path)
}
