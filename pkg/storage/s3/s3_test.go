package s3

import (
	"context"
	"io"
	"testing"

	"github.com/marmos91/dittovfs/pkg/storage"
	storagetesting "github.com/marmos91/dittovfs/pkg/storage/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T, prefix string) (*Backend, *fakeClient) {
	t.Helper()
	client := newFakeClient("bucket")
	b, err := New(context.Background(), Config{
		Client:    client,
		Bucket:    "bucket",
		KeyPrefix: prefix,
		TempDir:   t.TempDir(),
	})
	require.NoError(t, err)
	return b, client
}

// TestS3Backend runs the complete backend test suite against an in-memory
// bucket.
func TestS3Backend(t *testing.T) {
	suite := &storagetesting.BackendTestSuite{
		NewBackend: func(t *testing.T) storage.Backend {
			b, _ := newTestBackend(t, "data")
			return b
		},
	}

	suite.Run(t)
}

func TestS3ID(t *testing.T) {
	b, _ := newTestBackend(t, "")
	assert.Equal(t, "amazon::bucket", b.ID())

	b, _ = newTestBackend(t, "/tenant/a/")
	assert.Equal(t, "amazon::bucket/tenant/a", b.ID())
}

func TestS3New_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{Bucket: "bucket"})
	assert.ErrorIs(t, err, storage.ErrInvalidParameters)

	_, err = New(ctx, Config{Client: newFakeClient("bucket")})
	assert.ErrorIs(t, err, storage.ErrInvalidParameters)

	_, err = New(ctx, Config{Client: newFakeClient("other"), Bucket: "bucket"})
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestS3DirectoryMarkers(t *testing.T) {
	ctx := context.Background()
	b, client := newTestBackend(t, "data")

	require.NoError(t, b.Mkdir(ctx, "docs"))
	assert.True(t, client.has("data/docs/"))

	_, err := b.PutContents(ctx, "docs/a.txt", []byte("a"))
	require.NoError(t, err)
	assert.True(t, client.has("data/docs/a.txt"))

	require.NoError(t, b.Rmdir(ctx, "docs"))
	assert.False(t, client.has("data/docs/"))
	assert.False(t, client.has("data/docs/a.txt"))
}

func TestS3ImplicitDirectory(t *testing.T) {
	ctx := context.Background()
	b, client := newTestBackend(t, "")

	// written by another tool, no marker object
	_, err := client.PutObject(ctx, putInput("bucket", "photos/2024/cat.jpg", "meow"))
	require.NoError(t, err)

	isDir, err := b.IsDir(ctx, "photos")
	require.NoError(t, err)
	assert.True(t, isDir)

	entries, err := b.ReadDir(ctx, "photos")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2024", entries[0].Name)
	assert.True(t, entries[0].IsDir())
}

func TestS3ReadDir_Paginates(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t, "")

	for _, name := range []string{"e", "a", "d", "b", "c"} {
		_, err := b.PutContents(ctx, name+".txt", []byte(name))
		require.NoError(t, err)
	}

	entries, err := b.ReadDir(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"}, entryNames(entries))
}

func TestS3Rename_ImplicitDirectoryGetsMarker(t *testing.T) {
	ctx := context.Background()
	b, client := newTestBackend(t, "")

	_, err := client.PutObject(ctx, putInput("bucket", "src/f.txt", "x"))
	require.NoError(t, err)

	require.NoError(t, b.Rename(ctx, "src", "dst"))
	assert.True(t, client.has("dst/"))
	assert.True(t, client.has("dst/f.txt"))
	assert.False(t, client.has("src/f.txt"))
}

func TestS3ReadSeekUsesRange(t *testing.T) {
	ctx := context.Background()
	b, client := newTestBackend(t, "")

	_, err := b.PutContents(ctx, "data.bin", []byte("0123456789"))
	require.NoError(t, err)

	f, err := b.Open(ctx, "data.bin", storage.ModeRead)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	pos, err := f.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	rest, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "6789", string(rest))
	assert.Equal(t, []string{"bytes=6-"}, client.ranges)

	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, storage.ErrUnsupportedMode)
}

func TestS3WriteBackCleansUp(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient("bucket")
	tempDir := t.TempDir()
	b, err := New(ctx, Config{Client: client, Bucket: "bucket", TempDir: tempDir})
	require.NoError(t, err)

	f, err := b.Open(ctx, "new.txt", storage.ModeCreate)
	require.NoError(t, err)
	_, err = f.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := b.GetContents(ctx, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	leftovers, err := readDirNames(tempDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestS3Open_MissingParent(t *testing.T) {
	b, _ := newTestBackend(t, "")
	_, err := b.Open(context.Background(), "no/such/file.txt", storage.ModeWrite)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestS3FreeSpaceUnknown(t *testing.T) {
	b, _ := newTestBackend(t, "")
	free, err := b.FreeSpace(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, storage.SpaceUnknown, free)
}
