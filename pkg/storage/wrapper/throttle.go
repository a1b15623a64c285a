package wrapper

import (
	"context"

	"github.com/marmos91/dittovfs/internal/ratelimiter"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// Throttle takes a rate limiter token before every backend call.
//
// When the wait is cancelled the call fails with ErrUnavailable wrapping
// the context error, and the backend is not touched.
type Throttle struct {
	storage.Backend

	limiter *ratelimiter.RateLimiter
}

// NewThrottle wraps b with limiter.
func NewThrottle(b storage.Backend, limiter *ratelimiter.RateLimiter) *Throttle {
	return &Throttle{Backend: b, limiter: limiter}
}

// ThrottleWrapper returns a Wrapper giving each mount its own limiter from set.
func ThrottleWrapper(set *ratelimiter.Set) Wrapper {
	return func(mountPoint string, b storage.Backend) storage.Backend {
		return NewThrottle(b, set.Get(mountPoint))
	}
}

func (t *Throttle) Unwrap() storage.Backend {
	return t.Backend
}

// Rate returns the sustained calls per second of the mount's limiter.
func (t *Throttle) Rate() float64 {
	return t.limiter.Rate()
}

func (t *Throttle) wait(ctx context.Context, op, path string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return storage.NewError(op, path, storage.ErrUnavailable, err)
	}
	return nil
}

func (t *Throttle) Mkdir(ctx context.Context, path string) error {
	if err := t.wait(ctx, "mkdir", path); err != nil {
		return err
	}
	return t.Backend.Mkdir(ctx, path)
}

func (t *Throttle) Rmdir(ctx context.Context, path string) error {
	if err := t.wait(ctx, "rmdir", path); err != nil {
		return err
	}
	return t.Backend.Rmdir(ctx, path)
}

func (t *Throttle) Unlink(ctx context.Context, path string) error {
	if err := t.wait(ctx, "unlink", path); err != nil {
		return err
	}
	return t.Backend.Unlink(ctx, path)
}

func (t *Throttle) Rename(ctx context.Context, src, dst string) error {
	if err := t.wait(ctx, "rename", src); err != nil {
		return err
	}
	return t.Backend.Rename(ctx, src, dst)
}

func (t *Throttle) Stat(ctx context.Context, path string) (*storage.FileInfo, error) {
	if err := t.wait(ctx, "stat", path); err != nil {
		return nil, err
	}
	return t.Backend.Stat(ctx, path)
}

func (t *Throttle) Open(ctx context.Context, path string, mode storage.Mode) (storage.File, error) {
	if err := t.wait(ctx, "fopen", path); err != nil {
		return nil, err
	}
	return t.Backend.Open(ctx, path, mode)
}

func (t *Throttle) PutContents(ctx context.Context, path string, data []byte) (int, error) {
	if err := t.wait(ctx, "file_put_contents", path); err != nil {
		return 0, err
	}
	return t.Backend.PutContents(ctx, path, data)
}

func (t *Throttle) GetContents(ctx context.Context, path string) ([]byte, error) {
	if err := t.wait(ctx, "file_get_contents", path); err != nil {
		return nil, err
	}
	return t.Backend.GetContents(ctx, path)
}

func (t *Throttle) IsDir(ctx context.Context, path string) (bool, error) {
	if err := t.wait(ctx, "is_dir", path); err != nil {
		return false, err
	}
	return t.Backend.IsDir(ctx, path)
}

func (t *Throttle) FileType(ctx context.Context, path string) (storage.FileType, error) {
	if err := t.wait(ctx, "filetype", path); err != nil {
		return "", err
	}
	return t.Backend.FileType(ctx, path)
}

func (t *Throttle) ReadDir(ctx context.Context, path string) ([]storage.FileInfo, error) {
	if err := t.wait(ctx, "opendir", path); err != nil {
		return nil, err
	}
	return t.Backend.ReadDir(ctx, path)
}

func (t *Throttle) FreeSpace(ctx context.Context, path string) (int64, error) {
	if err := t.wait(ctx, "free_space", path); err != nil {
		return 0, err
	}
	return t.Backend.FreeSpace(ctx, path)
}
