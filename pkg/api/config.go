package api

import "time"

// APIConfig configures the HTTP API server.
//
// When Enabled is false no API server is started.
type APIConfig struct {
	// Enabled controls whether the API server is started.
	// Default: true. A pointer distinguishes "not set" from "false".
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`

	// Port is the HTTP port.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout bounds reading a request, body included. Uploads through
	// /files need a value large enough for the biggest expected file.
	// Default: 5m
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout bounds writing a response.
	// Default: 5m
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive idle time.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// IsEnabled returns whether the API server is enabled (default true).
func (c *APIConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// ApplyDefaults fills in zero values.
func (c *APIConfig) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}
