package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashID(t *testing.T) {
	short := "local::/srv/data/"
	assert.Equal(t, short, HashID(short))

	exact := strings.Repeat("a", MaxIDLength)
	assert.Equal(t, exact, HashID(exact))

	long := "amazon::" + strings.Repeat("bucket", 20)
	hashed := HashID(long)
	assert.Len(t, hashed, 32)
	assert.NotEqual(t, long, hashed)
	assert.Equal(t, hashed, HashID(long), "hashing must be deterministic")
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", "", true},
		{"/", "", true},
		{"docs/a.txt", "docs/a.txt", true},
		{"/docs//a.txt/", "docs/a.txt", true},
		{`docs\a.txt`, "docs/a.txt", true},
		{"docs/../a.txt", "a.txt", true},
		{"../etc/passwd", "", false},
		{"docs/../../x", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := CleanPath(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParentAndJoin(t *testing.T) {
	assert.Equal(t, "", ParentPath("a"))
	assert.Equal(t, "a/b", ParentPath("a/b/c"))
	assert.Equal(t, "a/b", JoinPath("a", "b"))
	assert.Equal(t, "b", JoinPath("", "b"))
	assert.Equal(t, "c", BaseName("a/b/c"))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("rb+")
	require.NoError(t, err)
	assert.Equal(t, ModeReadWrite, m)
	assert.True(t, m.Readable())
	assert.True(t, m.Writable())
	assert.True(t, m.MustExist())

	m, err = ParseMode("w")
	require.NoError(t, err)
	assert.False(t, m.Readable())
	assert.True(t, m.Truncates())

	m, err = ParseMode("a+")
	require.NoError(t, err)
	assert.True(t, m.Appends())
	assert.True(t, m.Plus())

	_, err = ParseMode("q")
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestErrorUnwrap(t *testing.T) {
	err := NewError("stat", "docs/a.txt", ErrNotFound, fs.ErrNotExist)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "stat docs/a.txt")

	wrapped := IOError("read", "x", errors.New("disk on fire"))
	assert.ErrorIs(t, wrapped, ErrIO)

	// already classified errors keep their kind
	assert.Equal(t, err, IOError("read", "x", err))
	assert.NoError(t, IOError("read", "x", nil))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	factory := func(ctx context.Context, args []string) (Backend, error) { return nil, nil }

	require.NoError(t, reg.Register("Local", factory))
	assert.True(t, reg.Has("local"))
	assert.ErrorIs(t, reg.Register("local", factory), ErrInvalidParameters)
	assert.ErrorIs(t, reg.Register("", factory), ErrInvalidParameters)
	assert.ErrorIs(t, reg.Register("nil", nil), ErrInvalidParameters)

	require.NoError(t, reg.Register("memory", factory))
	assert.Equal(t, []string{"local", "memory"}, reg.Names())

	_, err := reg.Create(context.Background(), "ftp", nil)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestParseArguments(t *testing.T) {
	positional, options := ParseArguments([]string{"/srv/data", "Bucket=photos", "region=eu-west-1", "a/b=c"})
	assert.Equal(t, []string{"/srv/data", "a/b=c"}, positional)
	assert.Equal(t, map[string]string{"bucket": "photos", "region": "eu-west-1"}, options)
}

func TestDecodeOptions(t *testing.T) {
	var opts struct {
		Bucket     string `mapstructure:"bucket"`
		MaxRetries int    `mapstructure:"max_retries"`
		Secure     bool   `mapstructure:"secure"`
	}
	err := DecodeOptions(map[string]string{"bucket": "b", "max_retries": "4", "secure": "true"}, &opts)
	require.NoError(t, err)
	assert.Equal(t, "b", opts.Bucket)
	assert.Equal(t, 4, opts.MaxRetries)
	assert.True(t, opts.Secure)

	err = DecodeOptions(map[string]string{"max_retries": "many"}, &opts)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestWriteBackFile_CommitAndCleanup(t *testing.T) {
	dir := t.TempDir()
	var committed []byte

	wb, err := NewWriteBackFile(context.Background(), WriteBackOptions{
		Dir:    dir,
		Seed:   strings.NewReader("hello"),
		Append: true,
		Commit: func(ctx context.Context, r io.Reader, size int64) error {
			data, err := io.ReadAll(r)
			committed = data
			assert.Equal(t, int64(len(data)), size)
			return err
		},
	})
	require.NoError(t, err)

	_, err = wb.Write([]byte(" world"))
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	assert.Equal(t, "hello world", string(committed))
	assertNoFile(t, wb.Path())

	// second close is a no-op
	assert.NoError(t, wb.Close())
}

func TestWriteBackFile_CommitErrorStillCleansUp(t *testing.T) {
	wb, err := NewWriteBackFile(context.Background(), WriteBackOptions{
		Dir: t.TempDir(),
		Commit: func(ctx context.Context, r io.Reader, size int64) error {
			return errors.New("upload failed")
		},
	})
	require.NoError(t, err)

	assert.ErrorContains(t, wb.Close(), "upload failed")
	assertNoFile(t, wb.Path())
}

func TestWriteBackFile_CancelledSkipsCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	called := false

	wb, err := NewWriteBackFile(ctx, WriteBackOptions{
		Dir: t.TempDir(),
		Commit: func(ctx context.Context, r io.Reader, size int64) error {
			called = true
			return nil
		},
	})
	require.NoError(t, err)

	cancel()
	assert.ErrorIs(t, wb.Close(), context.Canceled)
	assert.False(t, called)
	assertNoFile(t, wb.Path())
}

func TestWriteBackFile_Abort(t *testing.T) {
	called := false
	wb, err := NewWriteBackFile(context.Background(), WriteBackOptions{
		Dir:  t.TempDir(),
		Seed: bytes.NewReader([]byte("data")),
		Commit: func(ctx context.Context, r io.Reader, size int64) error {
			called = true
			return nil
		},
	})
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(wb, buf)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf))

	require.NoError(t, wb.Abort())
	assert.NoError(t, wb.Close())
	assert.False(t, called)
	assertNoFile(t, wb.Path())
}

func assertNoFile(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "temporary file %s should be removed", path)
}

func TestAbortDiscardsWriteBackFile(t *testing.T) {
	called := false
	wb, err := NewWriteBackFile(context.Background(), WriteBackOptions{
		Dir: t.TempDir(),
		Commit: func(ctx context.Context, r io.Reader, size int64) error {
			called = true
			return nil
		},
	})
	require.NoError(t, err)
	_, err = wb.Write([]byte("partial"))
	require.NoError(t, err)

	discarded, err := Abort(wb)
	require.NoError(t, err)
	assert.True(t, discarded)
	assert.False(t, called)
	assertNoFile(t, wb.Path())
}

func TestAbortClosesOtherHandles(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "plain-*")
	require.NoError(t, err)

	discarded, err := Abort(f)
	require.NoError(t, err)
	assert.False(t, discarded)

	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
}
