package wrapper

import (
	"context"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/marmos91/dittovfs/pkg/quota"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// UsageFunc reports the bytes currently used on a backend.
type UsageFunc func(ctx context.Context, b storage.Backend) (int64, error)

// QuotaOptions configures a quota decorator.
type QuotaOptions struct {
	// Quota is the byte ceiling; negative means unlimited
	Quota int64

	// Usage computes used bytes (default: DirectoryUsage of the root)
	Usage UsageFunc

	// Streams registers the quota streams of writable handles
	// (default: a private registry)
	Streams *quota.Registry

	// Metrics records truncated writes (nil = no-op)
	Metrics metrics.MountMetrics
}

// Quota limits the bytes a backend may hold.
//
// FreeSpace reports the smaller of the backend's own free space and the
// remaining quota. Writable handles are wrapped in quota streams, so writes
// past the limit are silently truncated. PutContents rejects payloads that
// do not fit with ErrInsufficientStorage.
type Quota struct {
	storage.Backend

	mountPoint string
	opts       QuotaOptions
}

// NewQuota wraps b with a quota.
func NewQuota(mountPoint string, b storage.Backend, opts QuotaOptions) *Quota {
	if opts.Usage == nil {
		opts.Usage = func(ctx context.Context, b storage.Backend) (int64, error) {
			return DirectoryUsage(ctx, b, "")
		}
	}
	if opts.Streams == nil {
		opts.Streams = quota.NewRegistry()
	}
	opts.Metrics = metrics.OrNoop(opts.Metrics)

	return &Quota{Backend: b, mountPoint: mountPoint, opts: opts}
}

// QuotaWrapper returns a Wrapper applying NewQuota with opts.
func QuotaWrapper(opts QuotaOptions) Wrapper {
	return func(mountPoint string, b storage.Backend) storage.Backend {
		return NewQuota(mountPoint, b, opts)
	}
}

func (q *Quota) Unwrap() storage.Backend {
	return q.Backend
}

// Limit returns the configured ceiling, negative when unlimited.
func (q *Quota) Limit() int64 {
	return q.opts.Quota
}

func (q *Quota) FreeSpace(ctx context.Context, path string) (int64, error) {
	inner, err := q.Backend.FreeSpace(ctx, path)
	if err != nil {
		return 0, err
	}
	if q.opts.Quota < 0 {
		return inner, nil
	}

	used, err := q.opts.Usage(ctx, q.Backend)
	if err != nil {
		return 0, storage.IOError("free_space", path, err)
	}

	free := max(q.opts.Quota-used, 0)
	if inner != storage.SpaceUnknown && inner < free {
		return inner, nil
	}
	return free, nil
}

func (q *Quota) Open(ctx context.Context, path string, mode storage.Mode) (storage.File, error) {
	if q.opts.Quota < 0 || !mode.Writable() {
		return q.Backend.Open(ctx, path, mode)
	}

	free, err := q.FreeSpace(ctx, path)
	if err != nil {
		return nil, err
	}

	f, err := q.Backend.Open(ctx, path, mode)
	if err != nil {
		return nil, err
	}

	stream, err := q.opts.Streams.Wrap(f, free)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &quotaFile{Stream: stream, mountPoint: q.mountPoint, path: path, metrics: q.opts.Metrics}, nil
}

func (q *Quota) PutContents(ctx context.Context, path string, data []byte) (int, error) {
	if q.opts.Quota < 0 {
		return q.Backend.PutContents(ctx, path, data)
	}

	free, err := q.FreeSpace(ctx, path)
	if err != nil {
		return 0, err
	}
	if free != storage.SpaceUnknown && int64(len(data)) > free {
		return 0, storage.Errorf("file_put_contents", path, storage.ErrInsufficientStorage,
			"%d bytes requested, %d available", len(data), free)
	}
	return q.Backend.PutContents(ctx, path, data)
}

// quotaFile reports truncated writes of a quota stream.
type quotaFile struct {
	*quota.Stream

	mountPoint string
	path       string
	metrics    metrics.MountMetrics
}

func (f *quotaFile) Write(p []byte) (int, error) {
	n, err := f.Stream.Write(p)
	if err == nil && n < len(p) {
		logger.Warn("Quota reached on %s%s: wrote %d of %d bytes", f.mountPoint, f.path, n, len(p))
		f.metrics.RecordQuotaTruncation(f.mountPoint, int64(len(p)), int64(n))
	}
	return n, err
}
