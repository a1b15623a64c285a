package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults_Empty(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 8080, cfg.Server.API.Port)
	assert.Equal(t, 9090, cfg.Server.Metrics.Port)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.NotEmpty(t, cfg.Cache.Badger.Path)
	assert.False(t, cfg.Storage.GC.Enabled)
	assert.Equal(t, time.Hour, cfg.Storage.GC.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Storage.GC.MaxAge)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Logging: LoggingConfig{Level: "error", Format: "json", Output: "stderr"},
		Server:  ServerConfig{ShutdownTimeout: time.Second},
		Cache:   CacheConfig{Type: "BADGER", Badger: BadgerConfig{Path: "/var/cache/x"}},
	}
	ApplyDefaults(&cfg)

	assert.Equal(t, "ERROR", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "badger", cfg.Cache.Type)
	assert.Equal(t, "/var/cache/x", cfg.Cache.Badger.Path)
}

func TestApplyDefaults_Mounts(t *testing.T) {
	cfg := Config{Mounts: []MountConfig{
		{MountPoint: "/a", Backend: " Local "},
		{MountPoint: "/b", Backend: "memory", RateLimit: RateLimitConfig{RequestsPerSecond: 0.5}},
		{MountPoint: "/c", Backend: "memory", RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 3}},
	}}
	ApplyDefaults(&cfg)

	assert.Equal(t, "local", cfg.Mounts[0].Backend)
	assert.NotNil(t, cfg.Mounts[0].Arguments)
	assert.Equal(t, 0, cfg.Mounts[0].RateLimit.Burst)
	assert.Equal(t, 1, cfg.Mounts[1].RateLimit.Burst)
	assert.Equal(t, 3, cfg.Mounts[2].RateLimit.Burst)
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))
	require.Len(t, cfg.Mounts, 2)
	assert.Equal(t, "/", cfg.Mounts[0].MountPoint)
	assert.Equal(t, "local", cfg.Mounts[0].Backend)
	assert.Equal(t, "512MiB", cfg.Mounts[1].Quota)
	assert.True(t, cfg.Storage.GC.Enabled)
}
