// Package mount binds mount points of the virtual filesystem to storage
// backends and resolves paths to the mount that covers them.
package mount

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/marmos91/dittovfs/pkg/storage"
	"github.com/marmos91/dittovfs/pkg/storage/wrapper"
)

// instanceClass is the class reported by mounts built around an existing
// backend instance.
const instanceClass = "instance"

// Mount binds one mount point to one backend configuration.
//
// The backend is created on first use of Storage or StorageID, wrapped with
// the configured wrappers and then kept for the lifetime of the mount. A
// failed construction is not remembered: the next call tries again.
//
// Thread Safety:
// All methods are safe for concurrent use. Concurrent first calls to
// Storage construct the backend exactly once.
type Mount struct {
	mountPoint string
	class      string
	args       []string
	factory    storage.Factory
	wrappers   []wrapper.Wrapper
	metrics    metrics.MountMetrics

	mu    sync.Mutex
	state atomic.Pointer[mountState]
}

// mountState is published atomically once the backend exists.
type mountState struct {
	backend   storage.Backend
	storageID string
}

type mountOptions struct {
	registry *storage.Registry
	wrappers []wrapper.Wrapper
	metrics  metrics.MountMetrics
}

// Option configures a Mount.
type Option func(*mountOptions)

// WithRegistry sets the backend registry used to resolve the class name.
func WithRegistry(r *storage.Registry) Option {
	return func(o *mountOptions) {
		o.registry = r
	}
}

// WithWrappers appends wrappers applied to the backend after construction.
func WithWrappers(w ...wrapper.Wrapper) Option {
	return func(o *mountOptions) {
		o.wrappers = append(o.wrappers, w...)
	}
}

// WithMetrics sets the metrics sink (nil = no-op).
func WithMetrics(m metrics.MountMetrics) Option {
	return func(o *mountOptions) {
		o.metrics = m
	}
}

// NewMount creates a mount whose backend is built lazily by the factory
// registered under class.
//
// Parameters:
//   - mountPoint: Absolute path, normalized with FormatPath
//   - class: Backend name looked up in the registry given by WithRegistry
//   - args: Arguments passed to the backend factory
//
// Returns:
//   - *Mount: The new mount (storage not created yet)
//   - error: ErrInvalidParameters when no registry is given or class is
//     not registered
func NewMount(mountPoint, class string, args []string, opts ...Option) (*Mount, error) {
	o := applyOptions(opts)

	if o.registry == nil {
		return nil, storage.Errorf("mount", mountPoint, storage.ErrInvalidParameters, "no backend registry configured")
	}
	factory, ok := o.registry.Lookup(class)
	if !ok {
		logger.Warn("Mount %s: unknown backend %q (known: %s)", FormatPath(mountPoint), class, strings.Join(o.registry.Names(), ", "))
		return nil, storage.Errorf("mount", mountPoint, storage.ErrInvalidParameters, "unknown backend %q", class)
	}

	return &Mount{
		mountPoint: FormatPath(mountPoint),
		class:      strings.ToLower(class),
		args:       append([]string(nil), args...),
		factory:    factory,
		wrappers:   o.wrappers,
		metrics:    metrics.OrNoop(o.metrics),
	}, nil
}

// NewMountWithBackend creates a mount around an existing backend. Wrappers
// are still applied on first use.
func NewMountWithBackend(mountPoint string, b storage.Backend, opts ...Option) *Mount {
	o := applyOptions(opts)
	return &Mount{
		mountPoint: FormatPath(mountPoint),
		class:      instanceClass,
		factory: func(context.Context, []string) (storage.Backend, error) {
			return b, nil
		},
		wrappers: o.wrappers,
		metrics:  metrics.OrNoop(o.metrics),
	}
}

func applyOptions(opts []Option) *mountOptions {
	o := &mountOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MountPoint returns the formatted mount point (always ends in "/").
func (m *Mount) MountPoint() string {
	return m.mountPoint
}

// Class returns the backend name.
func (m *Mount) Class() string {
	return m.class
}

// Arguments returns a copy of the backend arguments.
func (m *Mount) Arguments() []string {
	return append([]string(nil), m.args...)
}

// Initialized reports whether the backend has been created.
func (m *Mount) Initialized() bool {
	return m.state.Load() != nil
}

// Storage returns the mount's backend, creating it on first use.
//
// Returns ErrUnavailable when the backend cannot be constructed. The
// failure is logged and the next call retries.
func (m *Mount) Storage(ctx context.Context) (storage.Backend, error) {
	st, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	return st.backend, nil
}

// StorageID returns the id of the mount's backend, hashed with
// storage.HashID. Forces creation of the backend.
func (m *Mount) StorageID(ctx context.Context) (string, error) {
	st, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	return st.storageID, nil
}

func (m *Mount) load(ctx context.Context) (*mountState, error) {
	if st := m.state.Load(); st != nil {
		return st, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if st := m.state.Load(); st != nil {
		return st, nil
	}

	start := time.Now()
	b, err := m.factory(ctx, m.Arguments())
	m.metrics.RecordStorageInit(m.mountPoint, m.class, time.Since(start), err)
	if err != nil {
		logger.Error("Mount %s: failed to create %s storage: %v", m.mountPoint, m.class, err)
		return nil, storage.NewError("mount", m.mountPoint, storage.ErrUnavailable, err)
	}

	for _, w := range m.wrappers {
		if w != nil {
			b = w(m.mountPoint, b)
		}
	}

	st := &mountState{backend: b, storageID: storage.HashID(b.ID())}
	m.state.Store(st)
	logger.Debug("Mount %s: %s storage ready (id=%s)", m.mountPoint, m.class, st.storageID)
	return st, nil
}

// WrapStorage replaces the backend with w(mountPoint, backend), creating
// the backend first if needed. The storage id is not recomputed.
func (m *Mount) WrapStorage(ctx context.Context, w wrapper.Wrapper) error {
	if _, err := m.load(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state.Load()
	m.state.Store(&mountState{
		backend:   w(m.mountPoint, st.backend),
		storageID: st.storageID,
	})
	return nil
}

// InternalPath returns the part of an absolute path below the mount point,
// without leading or trailing slashes. The mount point itself maps to "".
//
// p is expected to be covered by the mount; otherwise its normalized form
// is returned relative to the root.
func (m *Mount) InternalPath(p string) string {
	formatted := FormatPath(p)
	if !strings.HasPrefix(formatted, m.mountPoint) {
		return strings.Trim(formatted, "/")
	}
	return strings.TrimSuffix(strings.TrimPrefix(formatted, m.mountPoint), "/")
}

