package testing

import (
	"io"
	"testing"

	"github.com/marmos91/dittovfs/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustMkdir creates a directory and fails the test if it errors.
func mustMkdir(t *testing.T, b storage.Backend, path string) {
	t.Helper()
	require.NoError(t, b.Mkdir(testContext(), path), "Mkdir %q should succeed", path)
}

// mustPut stores content and fails the test if it errors.
func mustPut(t *testing.T, b storage.Backend, path string, data []byte) {
	t.Helper()
	n, err := b.PutContents(testContext(), path, data)
	require.NoError(t, err, "PutContents %q should succeed", path)
	require.Equal(t, len(data), n)
}

// mustOpen opens a handle and fails the test if it errors.
func mustOpen(t *testing.T, b storage.Backend, path string, mode storage.Mode) storage.File {
	t.Helper()
	f, err := b.Open(testContext(), path, mode)
	require.NoError(t, err, "Open %q (%s) should succeed", path, mode)
	return f
}

// assertContent checks the stored content of path.
func assertContent(t *testing.T, b storage.Backend, path string, expected string) {
	t.Helper()
	data, err := b.GetContents(testContext(), path)
	require.NoError(t, err, "GetContents %q should succeed", path)
	assert.Equal(t, expected, string(data))
}

// assertMissing checks path does not exist.
func assertMissing(t *testing.T, b storage.Backend, path string) {
	t.Helper()
	_, err := b.Stat(testContext(), path)
	assert.ErrorIs(t, err, storage.ErrNotFound, "%q should not exist", path)
}

// readAll reads a handle to the end.
func readAll(t *testing.T, f storage.File) string {
	t.Helper()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

// names extracts entry names from a listing.
func names(entries []storage.FileInfo) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}
