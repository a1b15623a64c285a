package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// Key Namespace
//
// Data Type        Prefix   Key Format                   Value Type
// ===================================================================
// File entries     "e:"     e:<storageID>\x00<path>      Entry (JSON)
// Storage ids      "sid:"   sid:<storageID>              numeric id (uint64 BE)
// Numeric ids      "sidn:"  sidn:<numericID>             storageID (bytes)
//
// Entries of one storage share the prefix "e:<storageID>\x00", and the
// children of a folder share "e:<storageID>\x00<folder>/", so listings and
// recursive removals are prefix scans. Storage ids may contain ':', hence
// the NUL separator.

func keyEntry(storageID, path string) []byte {
	return []byte("e:" + storageID + "\x00" + path)
}

// keyEntryPrefix returns the prefix of every key strictly below path.
func keyEntryPrefix(storageID, path string) []byte {
	if path == "" {
		return []byte("e:" + storageID + "\x00")
	}
	return []byte("e:" + storageID + "\x00" + path + "/")
}

// OpenBadger opens (or creates) a badger database for the cache.
//
// Parameters:
//   - dir: Database directory; ignored when inMemory is true
//   - inMemory: Keep everything in memory (tests, ephemeral servers)
func OpenBadger(dir string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache: %w", err)
	}
	return db, nil
}

// BadgerCache is a Cache persisted in a badger database. Several caches
// (one per storage) can share a database.
//
// Thread Safety:
// All methods are safe for concurrent use; badger transactions provide
// isolation.
type BadgerCache struct {
	db        *badger.DB
	storageID string
}

// NewBadgerCache creates a cache for storageID on db. The caller owns db.
func NewBadgerCache(db *badger.DB, storageID string) *BadgerCache {
	return &BadgerCache{db: db, storageID: storageID}
}

func (c *BadgerCache) StorageID() string {
	return c.storageID
}

func (c *BadgerCache) Get(ctx context.Context, path string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, err := cleanPath("cache.get", path)
	if err != nil {
		return nil, err
	}

	var entry Entry
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyEntry(c.storageID, cp))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.NewError("cache.get", cp, storage.ErrNotFound, nil)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, storage.IOError("cache.get", cp, err)
	}
	return &entry, nil
}

func (c *BadgerCache) Put(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, err := cleanPath("cache.put", entry.Path)
	if err != nil {
		return err
	}
	entry.Path = cp

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyEntry(c.storageID, cp), data)
	})
	if err != nil {
		return storage.IOError("cache.put", cp, err)
	}
	return nil
}

func (c *BadgerCache) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, err := cleanPath("cache.remove", path)
	if err != nil {
		return err
	}

	keys := [][]byte{keyEntry(c.storageID, cp)}
	err = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyEntryPrefix(c.storageID, cp)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return storage.IOError("cache.remove", cp, err)
	}

	// WriteBatch splits the deletes into as many transactions as needed
	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return storage.IOError("cache.remove", cp, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return storage.IOError("cache.remove", cp, err)
	}
	return nil
}

func (c *BadgerCache) Children(ctx context.Context, path string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, err := cleanPath("cache.children", path)
	if err != nil {
		return nil, err
	}

	prefix := keyEntryPrefix(c.storageID, cp)
	var children []Entry
	err = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			rest := string(item.Key()[len(prefix):])
			if rest == "" || strings.Contains(rest, "/") {
				continue
			}

			var entry Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			children = append(children, entry)
		}
		return nil
	})
	if err != nil {
		return nil, storage.IOError("cache.children", cp, err)
	}
	// badger iterates in key order, which is path order
	return children, nil
}
