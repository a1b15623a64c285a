package config

import (
	"github.com/marmos91/dittovfs/pkg/metrics"
	promMetrics "github.com/marmos91/dittovfs/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// MountMetrics is the collector for the mount layer (never nil, no-op if disabled)
	MountMetrics metrics.MountMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// If metrics are enabled the global Prometheus registry is initialized and
// a metrics HTTP server is created. Otherwise the server is nil and the
// mount metrics are a no-op.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			MountMetrics: metrics.NewNoopMountMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:       server,
		MountMetrics: promMetrics.NewMountMetrics(),
	}
}
