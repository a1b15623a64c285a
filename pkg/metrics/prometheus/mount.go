package prometheus

import (
	"sync"
	"time"

	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// mountMetrics is the Prometheus implementation of metrics.MountMetrics.
type mountMetrics struct {
	resolutionsTotal    *prometheus.CounterVec
	storageInitsTotal   *prometheus.CounterVec
	storageInitDuration *prometheus.HistogramVec
	operationsTotal     *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	quotaTruncations    *prometheus.CounterVec
	quotaTruncatedBytes *prometheus.CounterVec
	preflightRejections *prometheus.CounterVec
	mounts              prometheus.Gauge
}

var (
	shared     *mountMetrics
	sharedOnce sync.Once
)

// NewMountMetrics returns the Prometheus-backed MountMetrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not
// called). Collectors are registered once; later calls return the same
// instance.
func NewMountMetrics() metrics.MountMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopMountMetrics()
	}

	sharedOnce.Do(func() {
		shared = newMountMetrics(metrics.GetRegistry())
	})
	return shared
}

func newMountMetrics(reg prometheus.Registerer) *mountMetrics {
	return &mountMetrics{
		resolutionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovfs_mount_resolutions_total",
				Help: "Total number of path resolutions by covering mount point",
			},
			[]string{"mount_point"},
		),
		storageInitsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovfs_storage_inits_total",
				Help: "Total number of lazy storage constructions by mount, backend, and status",
			},
			[]string{"mount_point", "backend", "status"},
		),
		storageInitDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittovfs_storage_init_duration_seconds",
				Help: "Duration of lazy storage construction in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.1,   // 100ms
					1.0,   // 1s
					10.0,  // 10s
				},
			},
			[]string{"backend"},
		),
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovfs_storage_operations_total",
				Help: "Total number of backend operations by mount, operation, and status",
			},
			[]string{"mount_point", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittovfs_storage_operation_duration_milliseconds",
				Help: "Duration of backend operations in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"mount_point", "operation"},
		),
		quotaTruncations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovfs_quota_truncations_total",
				Help: "Total number of writes shortened by a quota",
			},
			[]string{"mount_point"},
		),
		quotaTruncatedBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovfs_quota_truncated_bytes_total",
				Help: "Total bytes dropped by quota truncation",
			},
			[]string{"mount_point"},
		),
		preflightRejections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittovfs_preflight_rejections_total",
				Help: "Total number of uploads rejected by the free space pre-flight check",
			},
			[]string{"mount_point"},
		),
		mounts: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittovfs_mounts",
				Help: "Current number of registered mounts",
			},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *mountMetrics) RecordResolution(mountPoint string) {
	m.resolutionsTotal.WithLabelValues(mountPoint).Inc()
}

func (m *mountMetrics) RecordStorageInit(mountPoint, backend string, duration time.Duration, err error) {
	m.storageInitsTotal.WithLabelValues(mountPoint, backend, status(err)).Inc()
	m.storageInitDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func (m *mountMetrics) RecordOperation(mountPoint, operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(mountPoint, operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(mountPoint, operation).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *mountMetrics) RecordQuotaTruncation(mountPoint string, requested, written int64) {
	m.quotaTruncations.WithLabelValues(mountPoint).Inc()
	if requested > written {
		m.quotaTruncatedBytes.WithLabelValues(mountPoint).Add(float64(requested - written))
	}
}

func (m *mountMetrics) RecordPreflightRejection(mountPoint string) {
	m.preflightRejections.WithLabelValues(mountPoint).Inc()
}

func (m *mountMetrics) SetMounts(count int) {
	m.mounts.Set(float64(count))
}
