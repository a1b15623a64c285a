// Package quota enforces byte ceilings on open file handles.
//
// A Stream wraps a handle with a remaining-bytes budget. Writes beyond the
// budget are silently truncated: the caller sees a short write and must
// compare the returned count with the requested length to detect the
// cutoff. Streams live in a Registry so that a handle created in one
// context can be reopened by id in another (for example across a protocol
// boundary). Every view opened on the same id shares a single budget.
package quota

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// Handle is the source a Stream enforces a budget on.
type Handle interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// entry holds the shared state of one registered stream.
type entry struct {
	mu        sync.Mutex
	handle    Handle
	limit     int64
	remaining int64
	closed    bool
}

// Registry maps stream ids to their handles and budgets.
//
// Thread Safety:
// The map is guarded by its own mutex; each entry has a separate mutex so
// calls on the same id serialise while different ids proceed in parallel.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Wrap registers handle under a fresh id and returns a stream view.
func (r *Registry) Wrap(handle Handle, limit int64) (*Stream, error) {
	return r.Register(uuid.NewString(), handle, limit)
}

// Register stores handle under id with the given byte limit.
//
// A negative limit is treated as zero.
//
// Returns:
//   - *Stream: View on the new entry
//   - error: ErrInvalidParameters for an empty id, a nil handle or an id
//     already in use
func (r *Registry) Register(id string, handle Handle, limit int64) (*Stream, error) {
	if id == "" {
		return nil, storage.Errorf("quota.register", "", storage.ErrInvalidParameters, "stream id is required")
	}
	if handle == nil {
		return nil, storage.Errorf("quota.register", id, storage.ErrInvalidParameters, "handle is required")
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return nil, storage.Errorf("quota.register", id, storage.ErrInvalidParameters, "stream %q already registered", id)
	}

	e := &entry{handle: handle, limit: limit, remaining: limit}
	r.entries[id] = e
	return &Stream{id: id, registry: r, entry: e}, nil
}

// Open returns a new view on a registered stream.
func (r *Registry) Open(id string) (*Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, storage.NewError("quota.open", id, storage.ErrNotFound, nil)
	}
	return &Stream{id: id, registry: r, entry: e}, nil
}

// Remove deregisters id without closing its handle. Removing an unknown id
// is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of registered streams.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Clear closes every registered handle and empties the registry.
func (r *Registry) Clear() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	var errs []error
	for id, e := range entries {
		if err := e.close(); err != nil {
			errs = append(errs, fmt.Errorf("stream %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (e *entry) close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.handle.Close()
}

// Stream is a quota-limited view on a registered handle.
type Stream struct {
	id       string
	registry *Registry
	entry    *entry
}

var _ storage.File = (*Stream)(nil)

// ID returns the registry id of the stream.
func (s *Stream) ID() string {
	return s.id
}

// Remaining returns the bytes left in the budget.
func (s *Stream) Remaining() int64 {
	s.entry.mu.Lock()
	defer s.entry.mu.Unlock()
	return s.entry.remaining
}

// Write writes at most Remaining() bytes of p. A short count with a nil
// error means the quota was reached.
func (s *Stream) Write(p []byte) (int, error) {
	e := s.entry
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, storage.Errorf("fwrite", s.id, storage.ErrIO, "stream closed")
	}

	if int64(len(p)) > e.remaining {
		logger.Debug("quota stream %s: write truncated from %d to %d bytes", s.id, len(p), e.remaining)
		p = p[:e.remaining]
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := e.handle.Write(p)
	e.remaining = clamp(e.remaining-int64(n), e.limit)
	return n, err
}

// Read reads from the handle and charges the bytes read to the budget.
func (s *Stream) Read(p []byte) (int, error) {
	e := s.entry
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, storage.Errorf("fread", s.id, storage.ErrIO, "stream closed")
	}

	n, err := e.handle.Read(p)
	e.remaining = clamp(e.remaining-int64(n), e.limit)
	return n, err
}

// Seek moves the handle and adjusts the budget by the signed distance moved.
// Moving forward consumes budget, moving back restores it.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	e := s.entry
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, storage.Errorf("fseek", s.id, storage.ErrIO, "stream closed")
	}

	before, err := e.handle.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	after, err := e.handle.Seek(offset, whence)
	if err != nil {
		return after, err
	}

	e.remaining = clamp(subSaturating(e.remaining, after-before), e.limit)
	return after, nil
}

// Abort discards the pending content of the handle and deregisters the
// stream. It fails with ErrUnsupportedMode, leaving the stream open, when
// the handle cannot abort.
func (s *Stream) Abort() error {
	e := s.entry
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	a, ok := e.handle.(storage.Aborter)
	if !ok {
		return storage.NewError("fabort", s.id, storage.ErrUnsupportedMode, nil)
	}
	e.closed = true
	s.registry.Remove(s.id)
	return a.Abort()
}

// Close closes the handle and deregisters the stream. Closing an already
// closed stream is a no-op.
func (s *Stream) Close() error {
	s.registry.Remove(s.id)
	return s.entry.close()
}

// clamp bounds v to [0, limit].
func clamp(v, limit int64) int64 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

// subSaturating returns a-b without wrapping around.
func subSaturating(a, b int64) int64 {
	if b > 0 && a < math.MinInt64+b {
		return math.MinInt64
	}
	if b < 0 && a > math.MaxInt64+b {
		return math.MaxInt64
	}
	return a - b
}
