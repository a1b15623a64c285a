package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyCacheDefaults(&cfg.Cache)
	applyMountDefaults(cfg.Mounts)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	cfg.API.ApplyDefaults()
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.GC.Interval == 0 {
		cfg.GC.Interval = time.Hour
	}
	if cfg.GC.MaxAge == 0 {
		cfg.GC.MaxAge = 24 * time.Hour
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	cfg.Type = strings.ToLower(cfg.Type)
	if cfg.Badger.Path == "" {
		cfg.Badger.Path = filepath.Join(os.TempDir(), "dittovfs-cache")
	}
}

func applyMountDefaults(mounts []MountConfig) {
	for i := range mounts {
		m := &mounts[i]
		m.Backend = strings.ToLower(strings.TrimSpace(m.Backend))
		if m.Arguments == nil {
			m.Arguments = []string{}
		}
		if m.RateLimit.RequestsPerSecond > 0 && m.RateLimit.Burst == 0 {
			m.RateLimit.Burst = int(m.RateLimit.RequestsPerSecond)
			if m.RateLimit.Burst < 1 {
				m.RateLimit.Burst = 1
			}
		}
	}
}

// GetDefaultConfig returns a Config with every default applied and a
// sample mount table: local disk at / and a 1GiB scratch area in memory.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{GC: GCConfig{Enabled: true}},
		Mounts: []MountConfig{
			{
				MountPoint: "/",
				Backend:    "local",
				Arguments:  []string{"datadir=" + filepath.Join(os.TempDir(), "dittovfs-data")},
			},
			{
				MountPoint: "/scratch",
				Backend:    "memory",
				Arguments:  []string{"name=scratch", "capacity=1073741824"},
				Quota:      "512MiB",
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
