// Package metrics provides optional Prometheus metrics for DittoVFS.
//
// Metrics are off until InitRegistry is called. Constructors in the
// prometheus subpackage return no-op implementations while the registry is
// unset, so the mount layer runs the same code path either way.
//
// Usage:
//
//	metrics.InitRegistry()
//	m := prometheus.NewMountMetrics()
//	manager := mount.NewManager(mount.WithManagerMetrics(m))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry together with the
// Go runtime and process collectors. Subsequent calls are ignored.
//
// Thread safety:
// sync.Once orders the write before every later GetRegistry read.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
