// Package gc removes orphaned write-back temporary files.
//
// Backends without random access (S3) serve writable handles from a local
// temporary file that is uploaded and removed on close. A crash or a kill
// between open and close leaves the file behind. The collector scans the
// temporary directory for write-back files that no open handle of this
// process owns and that are older than MaxAge, and deletes them.
package gc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// Collector performs periodic collection of orphaned write-back files.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	config Config
	now    func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether background collection is active
	Enabled bool

	// Dir is the write-back directory ("" = os.TempDir())
	Dir string

	// Interval is how often to run collection (default: 1h)
	Interval time.Duration

	// MaxAge is the minimum age of a file before it is collected
	// (default: 24h)
	MaxAge time.Duration

	// DryRun logs what would be deleted without deleting
	DryRun bool
}

// NewCollector creates a collector. Call Start to begin background
// collection.
func NewCollector(config Config) *Collector {
	if config.Dir == "" {
		config.Dir = os.TempDir()
	}
	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.MaxAge == 0 {
		config.MaxAge = 24 * time.Hour
	}

	return &Collector{
		config: config,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins background collection. Subsequent calls are no-ops.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Write-back garbage collection disabled")
		return
	}

	c.startOnce.Do(func() {
		c.started.Store(true)
		logger.Info("Starting write-back collector: dir=%s interval=%s max_age=%s dry_run=%v",
			c.config.Dir, c.config.Interval, c.config.MaxAge, c.config.DryRun)
		go c.worker()
	})
}

// Stop stops the collector and waits for a running collection to finish.
// Safe to call multiple times.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	c.stopOnce.Do(func() { close(c.stopCh) })

	select {
	case <-c.doneCh:
		logger.Debug("Write-back collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Write-back collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow performs one collection and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Write-back collection failed: %v", err)
			} else if stats.OrphanedCount > 0 {
				logger.Info("Write-back collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect deletes every write-back file in Dir that is not live and whose
// modification time is older than MaxAge.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: c.now()}

	entries, err := os.ReadDir(c.config.Dir)
	if err != nil {
		stats.EndTime = c.now()
		return stats, fmt.Errorf("failed to list %s: %w", c.config.Dir, err)
	}

	cutoff := stats.StartTime.Add(-c.config.MaxAge)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			stats.EndTime = c.now()
			return stats, err
		}
		if e.IsDir() || !strings.HasPrefix(e.Name(), storage.WriteBackPrefix) {
			continue
		}
		stats.ScannedCount++

		path := filepath.Join(c.config.Dir, e.Name())
		if storage.IsLiveWriteBack(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed since ReadDir
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		stats.OrphanedCount++
		stats.OrphanedBytes += uint64(info.Size())

		if c.config.DryRun {
			logger.Info("GC: DRY RUN - would delete %s (%d bytes)", path, info.Size())
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Debug("GC: Failed to delete %s: %v", path, err)
			stats.FailedCount++
			continue
		}
		stats.DeletedCount++
	}

	stats.EndTime = c.now()
	return stats, nil
}

// Stats contains statistics from a collection run.
type Stats struct {
	StartTime     time.Time
	EndTime       time.Time
	ScannedCount  uint64 // write-back files found
	OrphanedCount uint64 // files old enough and not owned by an open handle
	OrphanedBytes uint64
	DeletedCount  uint64
	FailedCount   uint64
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("scanned=%d orphaned=%d bytes=%d deleted=%d failed=%d duration=%s",
		s.ScannedCount, s.OrphanedCount, s.OrphanedBytes,
		s.DeletedCount, s.FailedCount, s.Duration())
}
