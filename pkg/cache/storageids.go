package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// StorageIDs assigns stable numeric ids to storage ids. Long storage ids
// are hashed with storage.HashID before lookup, so the raw and the hashed
// form map to the same number.
type StorageIDs interface {
	// NumericID returns the number of storageID, assigning one on first use.
	NumericID(ctx context.Context, storageID string) (int64, error)

	// StorageID returns the storage id assigned to numericID, or ErrNotFound.
	StorageID(ctx context.Context, numericID int64) (string, error)
}

// MemoryStorageIDs is a process-local StorageIDs. Numbers start at 1.
type MemoryStorageIDs struct {
	mu      sync.RWMutex
	byID    map[string]int64
	byNum   map[int64]string
	counter int64
}

// NewMemoryStorageIDs creates an empty mapping.
func NewMemoryStorageIDs() *MemoryStorageIDs {
	return &MemoryStorageIDs{
		byID:  make(map[string]int64),
		byNum: make(map[int64]string),
	}
}

func (s *MemoryStorageIDs) NumericID(ctx context.Context, storageID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if storageID == "" {
		return 0, storage.Errorf("storage_ids.numeric", "", storage.ErrInvalidParameters, "empty storage id")
	}
	id := storage.HashID(storageID)

	s.mu.RLock()
	n, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		return n, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byID[id]; ok {
		return n, nil
	}
	s.counter++
	s.byID[id] = s.counter
	s.byNum[s.counter] = id
	return s.counter, nil
}

func (s *MemoryStorageIDs) StorageID(ctx context.Context, numericID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNum[numericID]
	if !ok {
		return "", storage.Errorf("storage_ids.lookup", strconv.FormatInt(numericID, 10), storage.ErrNotFound, "unknown numeric storage id")
	}
	return id, nil
}

// BadgerStorageIDs persists the mapping in badger so numbers survive
// restarts. Numbers come from a badger sequence and start at 1.
type BadgerStorageIDs struct {
	db  *badger.DB
	seq *badger.Sequence

	// serializes assignment so two callers never allocate for the same id
	mu sync.Mutex
}

// sequenceBandwidth is how many numbers the sequence leases at a time.
const sequenceBandwidth = 16

// NewBadgerStorageIDs opens the mapping stored in db. Call Close to release
// the sequence lease; the caller still owns db.
func NewBadgerStorageIDs(db *badger.DB) (*BadgerStorageIDs, error) {
	seq, err := db.GetSequence([]byte("seq:storage_ids"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage id sequence: %w", err)
	}
	return &BadgerStorageIDs{db: db, seq: seq}, nil
}

func keyStorageID(id string) []byte {
	return []byte("sid:" + id)
}

func keyNumericID(n int64) []byte {
	return []byte("sidn:" + strconv.FormatInt(n, 10))
}

func (s *BadgerStorageIDs) lookup(id string) (int64, bool, error) {
	var n int64
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyStorageID(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt numeric id for %q", id)
			}
			n = int64(binary.BigEndian.Uint64(val))
			found = true
			return nil
		})
	})
	return n, found, err
}

func (s *BadgerStorageIDs) NumericID(ctx context.Context, storageID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if storageID == "" {
		return 0, storage.Errorf("storage_ids.numeric", "", storage.ErrInvalidParameters, "empty storage id")
	}
	id := storage.HashID(storageID)

	if n, ok, err := s.lookup(id); err != nil {
		return 0, storage.IOError("storage_ids.numeric", id, err)
	} else if ok {
		return n, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok, err := s.lookup(id); err != nil {
		return 0, storage.IOError("storage_ids.numeric", id, err)
	} else if ok {
		return n, nil
	}

	next, err := s.seq.Next()
	if err != nil {
		return 0, storage.IOError("storage_ids.numeric", id, err)
	}
	// badger sequences start at 0
	n := int64(next) + 1

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keyStorageID(id), buf); err != nil {
			return err
		}
		return txn.Set(keyNumericID(n), []byte(id))
	})
	if err != nil {
		return 0, storage.IOError("storage_ids.numeric", id, err)
	}
	return n, nil
}

func (s *BadgerStorageIDs) StorageID(ctx context.Context, numericID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyNumericID(numericID))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id = string(val)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", storage.Errorf("storage_ids.lookup", strconv.FormatInt(numericID, 10), storage.ErrNotFound, "unknown numeric storage id")
	}
	if err != nil {
		return "", storage.IOError("storage_ids.lookup", strconv.FormatInt(numericID, 10), err)
	}
	return id, nil
}

// Close releases the unused part of the sequence lease.
func (s *BadgerStorageIDs) Close() error {
	return s.seq.Release()
}
