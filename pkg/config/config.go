package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittovfs/pkg/api"
	"github.com/spf13/viper"
)

// Config represents the complete DittoVFS configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOVFS_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Each mount names a backend class and its ordered constructor arguments.
// Backends are created lazily on first use, so a mount whose backend is
// unreachable does not prevent the server from starting.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Storage contains settings shared by all backends
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Cache selects where file metadata and numeric storage ids are kept
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Mounts is the mount table
	Mounts []MountConfig `mapstructure:"mounts" validate:"dive" yaml:"mounts"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// API configures the HTTP API (mount tree and registry)
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	// Enabled starts the metrics server and collects mount metrics
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the metrics server
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// StorageConfig contains settings shared by all backends.
type StorageConfig struct {
	// TempDir holds write-back files of backends that cannot write in
	// place (S3). Empty means the system temp directory.
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`

	// GC removes write-back files orphaned by a crash
	GC GCConfig `mapstructure:"gc" yaml:"gc"`
}

// GCConfig configures the collector of orphaned write-back files.
type GCConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=0" yaml:"interval"`

	// MaxAge is the minimum age of a collected file
	MaxAge time.Duration `mapstructure:"max_age" validate:"gte=0" yaml:"max_age"`

	DryRun bool `mapstructure:"dry_run" yaml:"dry_run,omitempty"`
}

// CacheConfig selects the metadata cache.
type CacheConfig struct {
	// Type is "memory" (lost on restart) or "badger" (persistent)
	Type string `mapstructure:"type" validate:"required,oneof=memory badger" yaml:"type"`

	// Badger configures the badger database, used when Type is "badger"
	Badger BadgerConfig `mapstructure:"badger" yaml:"badger"`
}

// BadgerConfig configures the badger cache database.
type BadgerConfig struct {
	// Path is the database directory
	Path string `mapstructure:"path" yaml:"path"`

	// InMemory keeps the database in memory
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`
}

// MountConfig is one entry of the mount table.
type MountConfig struct {
	// MountPoint is the absolute path the backend is attached to
	MountPoint string `mapstructure:"mount_point" validate:"required" yaml:"mount_point"`

	// Backend is the backend class (local, memory, s3)
	Backend string `mapstructure:"backend" validate:"required" yaml:"backend"`

	// Arguments are the ordered backend constructor arguments: positional
	// values or key=value pairs
	Arguments []string `mapstructure:"arguments" yaml:"arguments"`

	// Quota limits the bytes stored below the mount point, as a human
	// size ("10GiB", "500MB"). Empty or "unlimited" means no quota.
	Quota string `mapstructure:"quota" yaml:"quota,omitempty"`

	// RateLimit throttles backend calls of this mount
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit,omitempty"`

	// Owner marks the mount as showing entries shared out of another mount
	Owner *OwnerConfig `mapstructure:"owner" yaml:"owner,omitempty"`
}

// RateLimitConfig configures a per-mount token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate; 0 disables throttling
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0" yaml:"requests_per_second,omitempty"`

	// Burst is the bucket size (default: one second worth of requests)
	Burst int `mapstructure:"burst" validate:"gte=0" yaml:"burst,omitempty"`
}

// OwnerConfig locates the shared entries in the owner's mount: top-level
// entry X of the shared mount is Path/X below OwnerConfig.MountPoint.
type OwnerConfig struct {
	MountPoint string `mapstructure:"mount_point" validate:"required" yaml:"mount_point"`
	Path       string `mapstructure:"path" yaml:"path"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment overrides and the config file search.
//
// Environment variables use the DITTOVFS_ prefix and underscores, e.g.
// DITTOVFS_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DITTOVFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper knows about
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// envKeys are the scalar keys that can be set from the environment alone.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.api.enabled",
	"server.api.port",
	"server.metrics.enabled",
	"server.metrics.port",
	"storage.temp_dir",
	"storage.gc.enabled",
	"storage.gc.interval",
	"storage.gc.max_age",
	"cache.type",
	"cache.badger.path",
	"cache.badger.in_memory",
}

// readConfigFile reads the configuration file. A missing file at the
// default location is not an error.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/dittovfs, ~/.config/dittovfs, or
// "." when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittovfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittovfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
