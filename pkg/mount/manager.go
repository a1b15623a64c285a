package mount

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/marmos91/dittovfs/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// IDResolver maps numeric storage ids to storage id strings.
type IDResolver interface {
	StorageID(ctx context.Context, numericID int64) (string, error)
}

// warmUpConcurrency bounds the number of backends created in parallel.
const warmUpConcurrency = 8

// Manager is the mount registry of one filesystem view.
//
// Mounts are keyed by their formatted mount point. Lookups take a read lock
// and may run concurrently; AddMount, RemoveMount and Clear are exclusive.
type Manager struct {
	mu       sync.RWMutex
	mounts   map[string]*Mount
	resolver IDResolver
	metrics  metrics.MountMetrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIDResolver sets the collaborator used by FindByNumericID.
func WithIDResolver(r IDResolver) ManagerOption {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithManagerMetrics sets the metrics sink (nil = no-op).
func WithManagerMetrics(mm metrics.MountMetrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mm
	}
}

// NewManager creates an empty registry.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{mounts: make(map[string]*Mount)}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics = metrics.OrNoop(m.metrics)
	return m
}

// AddMount registers mount under its mount point. A mount already
// registered at the same point is replaced.
func (m *Manager) AddMount(mount *Mount) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mounts[mount.MountPoint()]; exists {
		logger.Warn("Replacing mount at %s", mount.MountPoint())
	}
	m.mounts[mount.MountPoint()] = mount
	m.metrics.SetMounts(len(m.mounts))
}

// RemoveMount unregisters the mount at mountPoint. Returns false if there
// was none.
func (m *Manager) RemoveMount(mountPoint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := FormatPath(mountPoint)
	if _, ok := m.mounts[key]; !ok {
		return false
	}
	delete(m.mounts, key)
	m.metrics.SetMounts(len(m.mounts))
	return true
}

// Find returns the mount covering path, preferring the longest mount
// point. Returns nil when no mount covers path.
func (m *Manager) Find(path string) *Mount {
	formatted := FormatPath(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	found := m.mounts[formatted]
	if found == nil {
		for key, mount := range m.mounts {
			if strings.HasPrefix(formatted, key) && (found == nil || len(key) > len(found.MountPoint())) {
				found = mount
			}
		}
	}

	if found == nil {
		m.metrics.RecordResolution("")
		return nil
	}
	m.metrics.RecordResolution(found.MountPoint())
	return found
}

// FindIn returns the mounts nested below path (excluding a mount at path
// itself), sorted by mount point.
func (m *Manager) FindIn(path string) []*Mount {
	formatted := FormatPath(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Mount
	for key, mount := range m.mounts {
		if len(key) > len(formatted) && strings.HasPrefix(key, formatted) {
			result = append(result, mount)
		}
	}
	sortMounts(result)
	return result
}

// FindByStorageID returns the mounts whose storage id equals id. Long ids
// are hashed first, so the raw backend id matches too.
//
// Mounts whose storage cannot be created are skipped.
func (m *Manager) FindByStorageID(ctx context.Context, id string) []*Mount {
	id = storage.HashID(id)

	var result []*Mount
	for _, mount := range m.GetAll() {
		sid, err := mount.StorageID(ctx)
		if err != nil {
			logger.Debug("Skipping mount %s in storage id lookup: %v", mount.MountPoint(), err)
			continue
		}
		if sid == id {
			result = append(result, mount)
		}
	}
	return result
}

// FindByNumericID resolves a numeric storage id through the IDResolver and
// returns the matching mounts.
func (m *Manager) FindByNumericID(ctx context.Context, numericID int64) ([]*Mount, error) {
	if m.resolver == nil {
		return nil, storage.Errorf("find", fmt.Sprint(numericID), storage.ErrInvalidParameters, "no storage id resolver configured")
	}

	id, err := m.resolver.StorageID(ctx, numericID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve numeric storage id %d: %w", numericID, err)
	}
	return m.FindByStorageID(ctx, id), nil
}

// GetAll returns every mount, sorted by mount point.
func (m *Manager) GetAll() []*Mount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Mount, 0, len(m.mounts))
	for _, mount := range m.mounts {
		result = append(result, mount)
	}
	sortMounts(result)
	return result
}

// Len returns the number of registered mounts.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mounts)
}

// Clear removes every mount.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounts = make(map[string]*Mount)
	m.metrics.SetMounts(0)
}

// WarmUp creates the storage of every mount in parallel.
//
// A mount that fails is logged and stays registered (it retries on next
// use). The returned error joins all failures; it is nil when every
// backend came up.
func (m *Manager) WarmUp(ctx context.Context) error {
	mounts := m.GetAll()

	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmUpConcurrency)
	for _, mount := range mounts {
		g.Go(func() error {
			if _, err := mount.Storage(gctx); err != nil {
				logger.Warn("Mount %s unavailable: %v", mount.MountPoint(), err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", mount.MountPoint(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// Resolution is the result of resolving an absolute path.
type Resolution struct {
	Mount        *Mount
	Storage      storage.Backend
	InternalPath string
}

// Resolve finds the mount covering path and returns its storage and the
// path inside it.
//
// Returns ErrNotFound when no mount covers path, or the storage error when
// the backend cannot be created.
func (m *Manager) Resolve(ctx context.Context, path string) (*Resolution, error) {
	mount := m.Find(path)
	if mount == nil {
		return nil, storage.Errorf("resolve", path, storage.ErrNotFound, "no mount covers %q", path)
	}

	b, err := mount.Storage(ctx)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		Mount:        mount,
		Storage:      b,
		InternalPath: mount.InternalPath(path),
	}, nil
}

func sortMounts(mounts []*Mount) {
	sort.Slice(mounts, func(i, j int) bool {
		return mounts[i].MountPoint() < mounts[j].MountPoint()
	})
}
