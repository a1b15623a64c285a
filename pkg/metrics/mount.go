package metrics

import (
	"time"
)

// MountMetrics provides observability for the mount layer.
//
// Implementations collect metrics about path resolution, lazy storage
// creation, backend operations and quota enforcement. This interface is
// optional - components given nil use the no-op implementation.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewMountMetrics()
//	manager := mount.NewManager(mount.WithManagerMetrics(m))
//
//	// Without metrics (no-op)
//	manager := mount.NewManager()
type MountMetrics interface {
	// RecordResolution records a path lookup.
	//
	// Parameters:
	//   - mountPoint: Covering mount point, "" when nothing matched
	RecordResolution(mountPoint string)

	// RecordStorageInit records a lazy storage construction attempt.
	//
	// Parameters:
	//   - mountPoint: Mount whose storage was built
	//   - backend: Backend name (e.g., "local", "s3")
	//   - duration: Time taken by the factory
	//   - err: Error if construction failed, nil if successful
	RecordStorageInit(mountPoint, backend string, duration time.Duration, err error)

	// RecordOperation records a completed backend operation.
	//
	// Parameters:
	//   - mountPoint: Mount the operation ran on
	//   - operation: Operation name (e.g., "mkdir", "fopen")
	//   - duration: Time taken by the backend
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(mountPoint, operation string, duration time.Duration, err error)

	// RecordQuotaTruncation records a write shortened by a quota.
	//
	// Parameters:
	//   - mountPoint: Mount the write went to
	//   - requested: Bytes the caller asked to write
	//   - written: Bytes actually written
	RecordQuotaTruncation(mountPoint string, requested, written int64)

	// RecordPreflightRejection records a write refused before any transfer.
	RecordPreflightRejection(mountPoint string)

	// SetMounts updates the number of registered mounts.
	SetMounts(count int)
}

// NewNoopMountMetrics returns a MountMetrics that discards everything.
func NewNoopMountMetrics() MountMetrics {
	return noopMountMetrics{}
}

type noopMountMetrics struct{}

func (noopMountMetrics) RecordResolution(string)                                {}
func (noopMountMetrics) RecordStorageInit(string, string, time.Duration, error) {}
func (noopMountMetrics) RecordOperation(string, string, time.Duration, error)   {}
func (noopMountMetrics) RecordQuotaTruncation(string, int64, int64)             {}
func (noopMountMetrics) RecordPreflightRejection(string)                        {}
func (noopMountMetrics) SetMounts(int)                                          {}

// OrNoop returns m, or the no-op implementation when m is nil.
func OrNoop(m MountMetrics) MountMetrics {
	if m == nil {
		return NewNoopMountMetrics()
	}
	return m
}
