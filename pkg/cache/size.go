package cache

import (
	"context"
	"errors"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// CorrectFolderSize recomputes the size of the folder at path from its
// direct children and then walks up every ancestor until the root "".
//
// A folder whose children include an unknown size becomes unknown too.
// Paths that are missing from the cache or are not folders are skipped, but
// the walk still continues with their parent so aggregates stay consistent.
func CorrectFolderSize(ctx context.Context, c Cache, path string) error {
	cp, err := cleanPath("cache.correct_size", path)
	if err != nil {
		return err
	}

	for {
		if err := correctOne(ctx, c, cp); err != nil {
			return err
		}
		if cp == "" {
			return nil
		}
		cp = storage.ParentPath(cp)
	}
}

func correctOne(ctx context.Context, c Cache, path string) error {
	entry, err := c.Get(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return nil
	}

	children, err := c.Children(ctx, path)
	if err != nil {
		return err
	}

	var total int64
	for _, child := range children {
		if child.Size < 0 {
			total = SizeUnknown
			break
		}
		total += child.Size
	}

	if entry.Size == total {
		return nil
	}

	logger.Debug("cache %s: folder %q size %d -> %d", c.StorageID(), path, entry.Size, total)
	entry.Size = total
	return c.Put(ctx, *entry)
}
