package config

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/internal/ratelimiter"
	"github.com/marmos91/dittovfs/pkg/cache"
	"github.com/marmos91/dittovfs/pkg/filesystem"
	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/marmos91/dittovfs/pkg/mount"
	"github.com/marmos91/dittovfs/pkg/quota"
	"github.com/marmos91/dittovfs/pkg/storage/wrapper"
)

// Runtime holds everything built from a configuration: the mount registry,
// the filesystem view over it, the cache scanner and their shared state.
type Runtime struct {
	Manager *mount.Manager
	View    *filesystem.View
	Scanner *cache.Scanner

	// IDs maps storage ids to numeric ids
	IDs cache.StorageIDs

	// Streams registers the quota streams of every mount
	Streams *quota.Registry

	db        *badger.DB
	badgerIDs *cache.BadgerStorageIDs
}

// NewRuntime builds the mount registry described by cfg.
//
// Mounts whose backend class is unknown are logged and skipped; backends
// are not created until first use (see mount.Manager.WarmUp).
//
// Parameters:
//   - cfg: A loaded and validated configuration
//   - mm: Mount metrics (nil = no-op)
//
// Returns:
//   - *Runtime: Call Close when done
//   - error: Cache database errors
func NewRuntime(cfg *Config, mm metrics.MountMetrics) (*Runtime, error) {
	mm = metrics.OrNoop(mm)
	rt := &Runtime{Streams: quota.NewRegistry()}

	var provider *cache.Provider
	switch cfg.Cache.Type {
	case "badger":
		db, err := cache.OpenBadger(cfg.Cache.Badger.Path, cfg.Cache.Badger.InMemory)
		if err != nil {
			return nil, err
		}
		ids, err := cache.NewBadgerStorageIDs(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		rt.db = db
		rt.badgerIDs = ids
		rt.IDs = ids
		provider = cache.NewBadgerProvider(db)
		logger.Info("Cache: badger at %s (in-memory=%v)", cfg.Cache.Badger.Path, cfg.Cache.Badger.InMemory)
	default:
		rt.IDs = cache.NewMemoryStorageIDs()
		provider = cache.NewMemoryProvider()
		logger.Info("Cache: memory")
	}

	rt.Manager = mount.NewManager(
		mount.WithIDResolver(rt.IDs),
		mount.WithManagerMetrics(mm),
	)
	rt.View = filesystem.New(rt.Manager)
	rt.Scanner = cache.NewScanner(rt.Manager, provider)

	registry, err := NewBackendRegistry(cfg.Storage)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	for _, mc := range cfg.Mounts {
		wrappers, err := rt.wrappersFor(mc, mm)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}

		m, err := mount.NewMount(mc.MountPoint, mc.Backend, mc.Arguments,
			mount.WithRegistry(registry),
			mount.WithWrappers(wrappers...),
			mount.WithMetrics(mm),
		)
		if err != nil {
			logger.Error("Skipping mount %s: %v", mc.MountPoint, err)
			continue
		}
		rt.Manager.AddMount(m)

		if mc.Owner != nil {
			rt.Scanner.SetOwner(mc.MountPoint, cache.Owner{
				MountPoint: mc.Owner.MountPoint,
				Path:       mc.Owner.Path,
			})
		}
	}

	mm.SetMounts(rt.Manager.Len())
	logger.Info("Mount table: %d mount(s) configured", rt.Manager.Len())
	return rt, nil
}

// wrappersFor returns the decorator chain of one mount, innermost first:
// id hashing, quota, throttling and instrumentation.
func (rt *Runtime) wrappersFor(mc MountConfig, mm metrics.MountMetrics) ([]wrapper.Wrapper, error) {
	wrappers := []wrapper.Wrapper{wrapper.IDHashWrapper()}

	limit, err := ParseQuota(mc.Quota)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", mc.MountPoint, err)
	}
	if limit >= 0 {
		wrappers = append(wrappers, wrapper.QuotaWrapper(wrapper.QuotaOptions{
			Quota:   limit,
			Streams: rt.Streams,
			Metrics: mm,
		}))
	}

	if mc.RateLimit.RequestsPerSecond > 0 {
		set := ratelimiter.NewSet(mc.RateLimit.RequestsPerSecond, mc.RateLimit.Burst)
		wrappers = append(wrappers, wrapper.ThrottleWrapper(set))
	}

	wrappers = append(wrappers, wrapper.InstrumentWrapper(mm))
	return wrappers, nil
}

// Close discards open quota streams and releases the cache database.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Streams != nil {
		if err := rt.Streams.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.badgerIDs != nil {
		if err := rt.badgerIDs.Close(); err != nil {
			errs = append(errs, err)
		}
		rt.badgerIDs = nil
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			errs = append(errs, err)
		}
		rt.db = nil
	}
	return errors.Join(errs...)
}
