package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/marmos91/dittovfs/pkg/storage"
)

// MemoryCache is an in-process Cache.
//
// Thread Safety:
// All methods are safe for concurrent use.
type MemoryCache struct {
	mu        sync.RWMutex
	storageID string
	entries   map[string]Entry
}

// NewMemoryCache creates an empty cache for storageID.
func NewMemoryCache(storageID string) *MemoryCache {
	return &MemoryCache{
		storageID: storageID,
		entries:   make(map[string]Entry),
	}
}

func (c *MemoryCache) StorageID() string {
	return c.storageID
}

func (c *MemoryCache) Get(ctx context.Context, path string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, err := cleanPath("cache.get", path)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[cp]
	if !ok {
		return nil, storage.NewError("cache.get", cp, storage.ErrNotFound, nil)
	}
	return &e, nil
}

func (c *MemoryCache) Put(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, err := cleanPath("cache.put", entry.Path)
	if err != nil {
		return err
	}
	entry.Path = cp

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cp] = entry
	return nil
}

func (c *MemoryCache) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, err := cleanPath("cache.remove", path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for p := range c.entries {
		if isBelow(cp, p) {
			delete(c.entries, p)
		}
	}
	return nil
}

func (c *MemoryCache) Children(ctx context.Context, path string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, err := cleanPath("cache.children", path)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var children []Entry
	for p, e := range c.entries {
		if isChild(cp, p) {
			children = append(children, e)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Path < children[j].Path })
	return children, nil
}
