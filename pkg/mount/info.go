package mount

import (
	"context"

	"github.com/marmos91/dittovfs/pkg/storage"
	"github.com/marmos91/dittovfs/pkg/storage/wrapper"
)

// Info is a point-in-time description of a mount.
type Info struct {
	MountPoint string `json:"mount_point" yaml:"mount_point"`
	Backend    string `json:"backend" yaml:"backend"`
	StorageID  string `json:"storage_id,omitempty" yaml:"storage_id,omitempty"`

	// FreeSpace is storage.SpaceUnknown when the backend cannot tell
	FreeSpace int64 `json:"free_space" yaml:"free_space"`

	// Quota is the byte ceiling of the mount, -1 when unlimited
	Quota int64 `json:"quota" yaml:"quota"`

	// RateLimit is the sustained backend calls per second, 0 when unthrottled
	RateLimit float64 `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// Error is set when the storage could not be created or queried
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Describe reports the mount's storage id and free space, creating the
// storage if needed. Failures are reported in Info.Error.
func (m *Mount) Describe(ctx context.Context) Info {
	info := Info{MountPoint: m.mountPoint, Backend: m.class, Quota: -1}

	b, err := m.Storage(ctx)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.StorageID, _ = m.StorageID(ctx)
	info.Quota, info.RateLimit = limits(b)

	free, err := b.FreeSpace(ctx, "")
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.FreeSpace = free
	return info
}

// limits walks the wrapper chain of b for its quota and throttle settings.
func limits(b storage.Backend) (quota int64, rps float64) {
	quota = -1
	for b != nil {
		switch w := b.(type) {
		case *wrapper.Quota:
			if w.Limit() >= 0 {
				quota = w.Limit()
			}
		case *wrapper.Throttle:
			rps = w.Rate()
		}
		u, ok := b.(wrapper.Unwrapper)
		if !ok {
			break
		}
		b = u.Unwrap()
	}
	return quota, rps
}

// Describe describes every mount, sorted by mount point.
func (m *Manager) Describe(ctx context.Context) []Info {
	mounts := m.GetAll()
	out := make([]Info, 0, len(mounts))
	for _, mt := range mounts {
		out = append(out, mt.Describe(ctx))
	}
	return out
}
