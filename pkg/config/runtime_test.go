package config

import (
	"context"
	"testing"

	"github.com/marmos91/dittovfs/pkg/storage"
	"github.com/marmos91/dittovfs/pkg/storage/wrapper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runtimeConfig(cacheType string) *Config {
	cfg := &Config{
		Cache: CacheConfig{Type: cacheType, Badger: BadgerConfig{InMemory: true}},
		Mounts: []MountConfig{
			{MountPoint: "/", Backend: "memory", Arguments: []string{"root"}},
			{MountPoint: "/docs", Backend: "memory", Arguments: []string{"docs"}, Quota: "10KiB"},
			{
				MountPoint: "/shared",
				Backend:    "memory",
				Arguments:  []string{"shared"},
				RateLimit:  RateLimitConfig{RequestsPerSecond: 1000},
				Owner:      &OwnerConfig{MountPoint: "/", Path: "exports"},
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestNewRuntime(t *testing.T) {
	for _, cacheType := range []string{"memory", "badger"} {
		t.Run(cacheType, func(t *testing.T) {
			ctx := context.Background()
			rt, err := NewRuntime(runtimeConfig(cacheType), nil)
			require.NoError(t, err)
			t.Cleanup(func() { assert.NoError(t, rt.Close()) })

			assert.Equal(t, 3, rt.Manager.Len())
			require.NoError(t, rt.Manager.WarmUp(ctx))

			res, err := rt.Manager.Resolve(ctx, "/docs/a/b.txt")
			require.NoError(t, err)
			assert.Equal(t, "/docs/", res.Mount.MountPoint())
			assert.Equal(t, "a/b.txt", res.InternalPath)

			free, err := rt.View.FreeSpace(ctx, "/docs")
			require.NoError(t, err)
			assert.Equal(t, int64(10*1024), free)

			free, err = rt.View.FreeSpace(ctx, "/")
			require.NoError(t, err)
			assert.Equal(t, storage.SpaceUnknown, free)

			id, err := res.Mount.StorageID(ctx)
			require.NoError(t, err)
			n, err := rt.IDs.NumericID(ctx, id)
			require.NoError(t, err)
			mounts, err := rt.Manager.FindByNumericID(ctx, n)
			require.NoError(t, err)
			require.Len(t, mounts, 1)
			assert.Equal(t, "/docs/", mounts[0].MountPoint())
		})
	}
}

func TestNewRuntimeWrapperChain(t *testing.T) {
	ctx := context.Background()
	rt, err := NewRuntime(runtimeConfig("memory"), nil)
	require.NoError(t, err)
	defer rt.Close()

	chain := func(mountPoint string) []string {
		m := rt.Manager.Find(mountPoint)
		require.NotNil(t, m)
		b, err := m.Storage(ctx)
		require.NoError(t, err)

		var kinds []string
		for {
			switch b.(type) {
			case *wrapper.Instrument:
				kinds = append(kinds, "instrument")
			case *wrapper.Throttle:
				kinds = append(kinds, "throttle")
			case *wrapper.Quota:
				kinds = append(kinds, "quota")
			case *wrapper.IDHash:
				kinds = append(kinds, "idhash")
			default:
				return append(kinds, "backend")
			}
			b = b.(wrapper.Unwrapper).Unwrap()
		}
	}

	assert.Equal(t, []string{"instrument", "idhash", "backend"}, chain("/"))
	assert.Equal(t, []string{"instrument", "quota", "idhash", "backend"}, chain("/docs"))
	assert.Equal(t, []string{"instrument", "throttle", "idhash", "backend"}, chain("/shared"))
}

func TestNewRuntimeSharedMountOwner(t *testing.T) {
	ctx := context.Background()
	rt, err := NewRuntime(runtimeConfig("memory"), nil)
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.View.Mkdir(ctx, "/exports"))
	require.NoError(t, rt.View.Mkdir(ctx, "/exports/project"))
	require.NoError(t, rt.View.Mkdir(ctx, "/shared/project"))
	_, err = rt.View.PutContents(ctx, "/shared/project/f.txt", []byte("hello"))
	require.NoError(t, err)

	res, err := rt.Scanner.Scan(ctx, "/shared/project")
	require.NoError(t, err)
	assert.Equal(t, "/shared/", res.MountPoint)
	assert.Equal(t, "project", res.InternalPath)
	assert.True(t, res.Updated)
	require.NotNil(t, res.Entry)
}

func TestNewRuntimeSkipsUnknownBackend(t *testing.T) {
	cfg := runtimeConfig("memory")
	cfg.Mounts = append(cfg.Mounts, MountConfig{MountPoint: "/ftp", Backend: "ftp"})

	rt, err := NewRuntime(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, 3, rt.Manager.Len())
	assert.Equal(t, "/", rt.Manager.Find("/ftp/x").MountPoint())
}

func TestNewRuntimeBadQuota(t *testing.T) {
	cfg := runtimeConfig("memory")
	cfg.Mounts[1].Quota = "lots"

	_, err := NewRuntime(cfg, nil)
	assert.Error(t, err)
}

func TestInitializeMetricsDisabled(t *testing.T) {
	res := InitializeMetrics(&Config{})
	assert.Nil(t, res.Server)
	require.NotNil(t, res.MountMetrics)
}
