package wrapper

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittovfs/internal/ratelimiter"
	"github.com/marmos91/dittovfs/pkg/quota"
	"github.com/marmos91/dittovfs/pkg/storage"
	"github.com/marmos91/dittovfs/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingMetrics captures calls for assertions.
type recordingMetrics struct {
	mu          sync.Mutex
	operations  []string
	truncations []int64
}

func (m *recordingMetrics) RecordResolution(string)                                {}
func (m *recordingMetrics) RecordStorageInit(string, string, time.Duration, error) {}
func (m *recordingMetrics) RecordPreflightRejection(string)                        {}
func (m *recordingMetrics) SetMounts(int)                                          {}

func (m *recordingMetrics) RecordOperation(mountPoint, op string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations = append(m.operations, mountPoint+op+":"+status)
}

func (m *recordingMetrics) RecordQuotaTruncation(_ string, requested, written int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.truncations = append(m.truncations, requested-written)
}

func TestQuotaFreeSpace(t *testing.T) {
	ctx := context.Background()

	t.Run("QuotaBelowBackend", func(t *testing.T) {
		inner := memory.New("q", storage.SpaceUnknown)
		q := NewQuota("/docs/", inner, QuotaOptions{Quota: 100})

		_, err := inner.PutContents(ctx, "a.txt", make([]byte, 30))
		require.NoError(t, err)

		free, err := q.FreeSpace(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(70), free)
	})

	t.Run("BackendBelowQuota", func(t *testing.T) {
		inner := memory.New("q", 50)
		q := NewQuota("/docs/", inner, QuotaOptions{Quota: 100})

		free, err := q.FreeSpace(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(50), free)
	})

	t.Run("OverQuotaIsZero", func(t *testing.T) {
		inner := memory.New("q", storage.SpaceUnknown)
		q := NewQuota("/docs/", inner, QuotaOptions{
			Quota: 10,
			Usage: func(context.Context, storage.Backend) (int64, error) { return 25, nil },
		})

		free, err := q.FreeSpace(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(0), free)
	})

	t.Run("Unlimited", func(t *testing.T) {
		inner := memory.New("q", storage.SpaceUnknown)
		q := NewQuota("/docs/", inner, QuotaOptions{Quota: -1})

		free, err := q.FreeSpace(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, storage.SpaceUnknown, free)
	})
}

func TestQuotaPutContents(t *testing.T) {
	ctx := context.Background()
	q := NewQuota("/docs/", memory.New("q", storage.SpaceUnknown), QuotaOptions{Quota: 10})

	_, err := q.PutContents(ctx, "small.txt", []byte("12345"))
	require.NoError(t, err)

	_, err = q.PutContents(ctx, "big.txt", []byte("123456"))
	assert.ErrorIs(t, err, storage.ErrInsufficientStorage)
}

func TestQuotaOpenTruncatesWrites(t *testing.T) {
	ctx := context.Background()
	rec := &recordingMetrics{}
	streams := quota.NewRegistry()
	inner := memory.New("q", storage.SpaceUnknown)
	q := NewQuota("/docs/", inner, QuotaOptions{Quota: 10, Streams: streams, Metrics: rec})

	f, err := q.Open(ctx, "out.bin", storage.ModeWrite)
	require.NoError(t, err)
	assert.Equal(t, 1, streams.Len())

	n, err := f.Write([]byte(strings.Repeat("x", 15)))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	require.NoError(t, f.Close())

	assert.Equal(t, 0, streams.Len())
	assert.Equal(t, []int64{5}, rec.truncations)

	data, err := inner.GetContents(ctx, "out.bin")
	require.NoError(t, err)
	assert.Len(t, data, 10)
}

func TestQuotaReadOnlyOpenNotWrapped(t *testing.T) {
	ctx := context.Background()
	inner := memory.New("q", storage.SpaceUnknown)
	_, err := inner.PutContents(ctx, "f.txt", []byte("data"))
	require.NoError(t, err)

	streams := quota.NewRegistry()
	q := NewQuota("/docs/", inner, QuotaOptions{Quota: 10, Streams: streams})

	f, err := q.Open(ctx, "f.txt", storage.ModeRead)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	_, isQuota := f.(*quotaFile)
	assert.False(t, isQuota)
	assert.Equal(t, 0, streams.Len())
}

func TestIDHash(t *testing.T) {
	long := strings.Repeat("n", 80)
	inner := memory.New(long, storage.SpaceUnknown)
	b := IDHashWrapper()("/x/", inner)

	assert.Len(t, b.ID(), 32)
	assert.Equal(t, storage.HashID(inner.ID()), b.ID())

	short := memory.New("short", storage.SpaceUnknown)
	assert.Equal(t, short.ID(), IDHashWrapper()("/x/", short).ID())
}

func TestThrottle(t *testing.T) {
	inner := memory.New("t", storage.SpaceUnknown)
	b := NewThrottle(inner, ratelimiter.New(0.001, 1))

	require.NoError(t, b.Mkdir(context.Background(), "first"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Mkdir(ctx, "second")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = inner.Stat(context.Background(), "second")
	assert.ErrorIs(t, err, storage.ErrNotFound, "backend must not be touched")
}

func TestThrottleWrapperPerMount(t *testing.T) {
	set := ratelimiter.NewSet(0.001, 1)
	w := ThrottleWrapper(set)

	a := w("/a/", memory.New("a", storage.SpaceUnknown))
	b := w("/b/", memory.New("b", storage.SpaceUnknown))

	require.NoError(t, a.Mkdir(context.Background(), "x"))
	require.NoError(t, b.Mkdir(context.Background(), "x"), "separate buckets")
	assert.Equal(t, 0.001, a.(*Throttle).Rate())
}

func TestChainAndInnermost(t *testing.T) {
	inner := memory.New("chain", storage.SpaceUnknown)
	b := Chain(IDHashWrapper(), QuotaWrapper(QuotaOptions{Quota: 5}), nil)("/c/", inner)

	_, isQuota := b.(*Quota)
	assert.True(t, isQuota, "last wrapper is outermost")
	assert.Same(t, inner, Innermost(b))
}

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	rec := &recordingMetrics{}
	b := InstrumentWrapper(rec)("/i/", memory.New("i", storage.SpaceUnknown))

	require.NoError(t, b.Mkdir(ctx, "d"))
	_, err := b.Stat(ctx, "missing")
	require.Error(t, err)

	assert.Equal(t, []string{"/i/mkdir:ok", "/i/stat:error"}, rec.operations)
}

func TestDirectoryUsage(t *testing.T) {
	ctx := context.Background()
	b := memory.New("u", storage.SpaceUnknown)
	require.NoError(t, b.Mkdir(ctx, "d"))
	_, err := b.PutContents(ctx, "d/a", make([]byte, 3))
	require.NoError(t, err)
	_, err = b.PutContents(ctx, "b", make([]byte, 4))
	require.NoError(t, err)

	used, err := DirectoryUsage(ctx, b, "")
	require.NoError(t, err)
	assert.Equal(t, int64(7), used)
}
