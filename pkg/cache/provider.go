package cache

import (
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// Provider hands out one Cache per storage id, memoised.
//
// Thread Safety:
// All methods are safe for concurrent use.
type Provider struct {
	mu     sync.Mutex
	db     *badger.DB
	caches map[string]Cache
}

// NewMemoryProvider returns a Provider of MemoryCache instances.
func NewMemoryProvider() *Provider {
	return &Provider{caches: make(map[string]Cache)}
}

// NewBadgerProvider returns a Provider whose caches share db. The caller
// owns db.
func NewBadgerProvider(db *badger.DB) *Provider {
	return &Provider{db: db, caches: make(map[string]Cache)}
}

// For returns the cache of storageID.
func (p *Provider) For(storageID string) Cache {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.caches[storageID]; ok {
		return c
	}

	var c Cache
	if p.db != nil {
		c = NewBadgerCache(p.db, storageID)
	} else {
		c = NewMemoryCache(storageID)
	}
	p.caches[storageID] = c
	return c
}
