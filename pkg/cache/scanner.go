package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/mount"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// Owner declares that a mount shows entries shared out of another mount:
// top-level entry X of the shared mount is Path/X in the owner's storage.
type Owner struct {
	MountPoint string
	Path       string
}

// ScanResult reports the outcome of Scanner.Scan.
type ScanResult struct {
	MountPoint   string `json:"mount_point" yaml:"mount_point"`
	InternalPath string `json:"internal_path" yaml:"internal_path"`
	Updated      bool   `json:"updated" yaml:"updated"`

	// Entry is the cached entry after the scan, nil when the path is gone
	Entry *Entry `json:"entry,omitempty" yaml:"entry,omitempty"`
}

// Scanner keeps the caches of a manager's mounts up to date on request.
//
// Each mount gets a BackendWatcher over its storage and the cache of its
// storage id. Mounts registered with an Owner get a SharedWatcher that also
// corrects the owner's folder sizes.
type Scanner struct {
	manager *mount.Manager
	caches  *Provider

	mu     sync.RWMutex
	owners map[string]Owner
}

// NewScanner creates a scanner over manager using caches from provider.
func NewScanner(manager *mount.Manager, provider *Provider) *Scanner {
	return &Scanner{manager: manager, caches: provider, owners: make(map[string]Owner)}
}

// SetOwner marks the mount at mountPoint as shared out of owner.
func (s *Scanner) SetOwner(mountPoint string, owner Owner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner.MountPoint = mount.FormatPath(owner.MountPoint)
	s.owners[mount.FormatPath(mountPoint)] = owner
}

func (s *Scanner) owner(mountPoint string) (Owner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[mountPoint]
	return o, ok
}

// Watcher returns the watcher and cache of m.
func (s *Scanner) Watcher(ctx context.Context, m *mount.Mount) (Watcher, Cache, error) {
	b, err := m.Storage(ctx)
	if err != nil {
		return nil, nil, err
	}
	id, err := m.StorageID(ctx)
	if err != nil {
		return nil, nil, err
	}
	c := s.caches.For(id)

	var w Watcher = NewWatcher(b, c)
	if owner, ok := s.owner(m.MountPoint()); ok {
		w = NewSharedWatcher(w, s.ownerResolver(owner))
	}
	return w, c, nil
}

func (s *Scanner) ownerResolver(owner Owner) OwnerResolver {
	return OwnerResolverFunc(func(ctx context.Context, topLevel string) (OwnerLocation, error) {
		var om *mount.Mount
		for _, m := range s.manager.GetAll() {
			if m.MountPoint() == owner.MountPoint {
				om = m
				break
			}
		}
		if om == nil {
			return OwnerLocation{}, storage.Errorf("owner", topLevel, storage.ErrNotFound, "owner mount %s is not registered", owner.MountPoint)
		}
		id, err := om.StorageID(ctx)
		if err != nil {
			return OwnerLocation{}, err
		}
		return OwnerLocation{
			Path:  storage.JoinPath(owner.Path, topLevel),
			Cache: s.caches.For(id),
		}, nil
	})
}

// Scan brings the cache entry of the absolute path p up to date.
func (s *Scanner) Scan(ctx context.Context, p string) (*ScanResult, error) {
	res, err := s.manager.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}

	w, c, err := s.Watcher(ctx, res.Mount)
	if err != nil {
		return nil, err
	}

	updated, err := w.CheckUpdate(ctx, res.InternalPath)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", p, err)
	}
	if updated {
		logger.Debug("Scan %s: cache of %s updated", p, c.StorageID())
	}

	result := &ScanResult{
		MountPoint:   res.Mount.MountPoint(),
		InternalPath: res.InternalPath,
		Updated:      updated,
	}
	entry, err := c.Get(ctx, res.InternalPath)
	switch {
	case err == nil:
		result.Entry = entry
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	return result, nil
}
