package wrapper

import (
	"context"
	"time"

	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// Instrument records the duration and outcome of every backend call.
type Instrument struct {
	storage.Backend

	mountPoint string
	metrics    metrics.MountMetrics
}

// InstrumentWrapper returns a Wrapper recording into m.
func InstrumentWrapper(m metrics.MountMetrics) Wrapper {
	m = metrics.OrNoop(m)
	return func(mountPoint string, b storage.Backend) storage.Backend {
		return &Instrument{Backend: b, mountPoint: mountPoint, metrics: m}
	}
}

func (i *Instrument) Unwrap() storage.Backend {
	return i.Backend
}

func (i *Instrument) observe(op string, start time.Time, err error) {
	i.metrics.RecordOperation(i.mountPoint, op, time.Since(start), err)
}

func (i *Instrument) Mkdir(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { i.observe("mkdir", start, err) }()
	return i.Backend.Mkdir(ctx, path)
}

func (i *Instrument) Rmdir(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { i.observe("rmdir", start, err) }()
	return i.Backend.Rmdir(ctx, path)
}

func (i *Instrument) Unlink(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() { i.observe("unlink", start, err) }()
	return i.Backend.Unlink(ctx, path)
}

func (i *Instrument) Rename(ctx context.Context, src, dst string) (err error) {
	start := time.Now()
	defer func() { i.observe("rename", start, err) }()
	return i.Backend.Rename(ctx, src, dst)
}

func (i *Instrument) Stat(ctx context.Context, path string) (info *storage.FileInfo, err error) {
	start := time.Now()
	defer func() { i.observe("stat", start, err) }()
	return i.Backend.Stat(ctx, path)
}

func (i *Instrument) Open(ctx context.Context, path string, mode storage.Mode) (f storage.File, err error) {
	start := time.Now()
	defer func() { i.observe("fopen", start, err) }()
	return i.Backend.Open(ctx, path, mode)
}

func (i *Instrument) PutContents(ctx context.Context, path string, data []byte) (n int, err error) {
	start := time.Now()
	defer func() { i.observe("file_put_contents", start, err) }()
	return i.Backend.PutContents(ctx, path, data)
}

func (i *Instrument) GetContents(ctx context.Context, path string) (data []byte, err error) {
	start := time.Now()
	defer func() { i.observe("file_get_contents", start, err) }()
	return i.Backend.GetContents(ctx, path)
}

func (i *Instrument) ReadDir(ctx context.Context, path string) (entries []storage.FileInfo, err error) {
	start := time.Now()
	defer func() { i.observe("opendir", start, err) }()
	return i.Backend.ReadDir(ctx, path)
}

func (i *Instrument) FreeSpace(ctx context.Context, path string) (free int64, err error) {
	start := time.Now()
	defer func() { i.observe("free_space", start, err) }()
	return i.Backend.FreeSpace(ctx, path)
}
