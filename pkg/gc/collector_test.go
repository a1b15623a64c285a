package gc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittovfs/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestCollectRemovesOldOrphans(t *testing.T) {
	dir := t.TempDir()
	old := touch(t, dir, storage.WriteBackPrefix+"old", 48*time.Hour)
	fresh := touch(t, dir, storage.WriteBackPrefix+"fresh", time.Minute)
	other := touch(t, dir, "unrelated", 48*time.Hour)

	c := NewCollector(Config{Dir: dir, MaxAge: 24 * time.Hour})
	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.ScannedCount)
	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Equal(t, uint64(4), stats.OrphanedBytes)
	assert.Equal(t, uint64(1), stats.DeletedCount)

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

func TestCollectKeepsLiveWriteBacks(t *testing.T) {
	dir := t.TempDir()
	wb, err := storage.NewWriteBackFile(context.Background(), storage.WriteBackOptions{Dir: dir})
	require.NoError(t, err)
	defer wb.Abort()

	mtime := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(wb.Path(), mtime, mtime))

	c := NewCollector(Config{Dir: dir})
	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(1), stats.ScannedCount)
	assert.Zero(t, stats.OrphanedCount)
	assert.FileExists(t, wb.Path())

	require.NoError(t, wb.Abort())
	assert.NoFileExists(t, wb.Path())
}

func TestCollectDryRun(t *testing.T) {
	dir := t.TempDir()
	old := touch(t, dir, storage.WriteBackPrefix+"old", 48*time.Hour)

	c := NewCollector(Config{Dir: dir, DryRun: true})
	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Zero(t, stats.DeletedCount)
	assert.FileExists(t, old)
}

func TestCollectMissingDir(t *testing.T) {
	c := NewCollector(Config{Dir: filepath.Join(t.TempDir(), "missing")})
	_, err := c.RunNow(context.Background())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	old := touch(t, dir, storage.WriteBackPrefix+"old", 48*time.Hour)

	c := NewCollector(Config{Enabled: true, Dir: dir, Interval: 10 * time.Millisecond})
	c.Start()
	c.Start()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(old)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}

func TestStopWithoutStart(t *testing.T) {
	c := NewCollector(Config{Dir: t.TempDir()})
	c.Start()
	assert.NoError(t, c.Stop(context.Background()))
}
