package testing

import (
	"io"
	"testing"

	"github.com/marmos91/dittovfs/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunIdentityTests checks ID stability and free-space reporting.
func (suite *BackendTestSuite) RunIdentityTests(t *testing.T) {
	t.Run("ID_Stable", func(t *testing.T) {
		b := suite.NewBackend(t)
		id := b.ID()
		assert.NotEmpty(t, id)
		assert.Equal(t, id, b.ID())
	})

	t.Run("FreeSpace_KnownOrUnknown", func(t *testing.T) {
		b := suite.NewBackend(t)
		free, err := b.FreeSpace(testContext(), "")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, free, storage.SpaceUnknown)
	})

	t.Run("Root_IsDirectory", func(t *testing.T) {
		b := suite.NewBackend(t)
		isDir, err := b.IsDir(testContext(), "")
		require.NoError(t, err)
		assert.True(t, isDir)
	})

	t.Run("Path_EscapeRejected", func(t *testing.T) {
		b := suite.NewBackend(t)
		_, err := b.Stat(testContext(), "../outside")
		assert.ErrorIs(t, err, storage.ErrInvalidParameters)
	})
}

// RunDirectoryTests checks mkdir, rmdir and listings.
func (suite *BackendTestSuite) RunDirectoryTests(t *testing.T) {
	t.Run("Mkdir_ReadDir", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustMkdir(t, b, "docs")
		mustMkdir(t, b, "docs/sub")
		mustPut(t, b, "docs/a.txt", []byte("a"))

		entries, err := b.ReadDir(testContext(), "docs")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "sub"}, names(entries))

		ft, err := b.FileType(testContext(), "docs/sub")
		require.NoError(t, err)
		assert.Equal(t, storage.TypeDirectory, ft)

		ft, err = b.FileType(testContext(), "docs/a.txt")
		require.NoError(t, err)
		assert.Equal(t, storage.TypeFile, ft)
	})

	t.Run("Mkdir_Exists", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustMkdir(t, b, "docs")
		assert.ErrorIs(t, b.Mkdir(testContext(), "docs"), storage.ErrExists)
	})

	t.Run("Rmdir_Recursive", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustMkdir(t, b, "docs")
		mustMkdir(t, b, "docs/sub")
		mustPut(t, b, "docs/sub/deep.txt", []byte("deep"))

		require.NoError(t, b.Rmdir(testContext(), "docs"))
		assertMissing(t, b, "docs")
		assertMissing(t, b, "docs/sub/deep.txt")
	})

	t.Run("Rmdir_NotFound", func(t *testing.T) {
		b := suite.NewBackend(t)
		assert.ErrorIs(t, b.Rmdir(testContext(), "nope"), storage.ErrNotFound)
	})

	t.Run("Stat_Missing", func(t *testing.T) {
		b := suite.NewBackend(t)
		assertMissing(t, b, "missing.txt")
	})
}

// RunContentTests checks whole-file reads and writes.
func (suite *BackendTestSuite) RunContentTests(t *testing.T) {
	t.Run("PutGet", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustPut(t, b, "hello.txt", []byte("Hello, World!"))
		assertContent(t, b, "hello.txt", "Hello, World!")

		info, err := b.Stat(testContext(), "hello.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(13), info.Size)
		assert.Equal(t, "hello.txt", info.Name)
		assert.False(t, info.IsDir())
	})

	t.Run("Put_Overwrite", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustPut(t, b, "f.txt", []byte("old data"))
		mustPut(t, b, "f.txt", []byte("new"))
		assertContent(t, b, "f.txt", "new")
	})

	t.Run("Unlink", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustPut(t, b, "f.txt", []byte("x"))
		require.NoError(t, b.Unlink(testContext(), "f.txt"))
		assertMissing(t, b, "f.txt")
		assert.ErrorIs(t, b.Unlink(testContext(), "f.txt"), storage.ErrNotFound)
	})

	t.Run("Get_Missing", func(t *testing.T) {
		b := suite.NewBackend(t)
		_, err := b.GetContents(testContext(), "nope.txt")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

// RunOpenModeTests checks the fopen mode contract.
func (suite *BackendTestSuite) RunOpenModeTests(t *testing.T) {
	t.Run("Read_Missing", func(t *testing.T) {
		b := suite.NewBackend(t)
		_, err := b.Open(testContext(), "missing.txt", storage.ModeRead)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Write_ThenRead", func(t *testing.T) {
		b := suite.NewBackend(t)
		f := mustOpen(t, b, "w.txt", storage.ModeWrite)
		_, err := f.Write([]byte("written"))
		require.NoError(t, err)
		require.NoError(t, f.Close())

		r := mustOpen(t, b, "w.txt", storage.ModeRead)
		assert.Equal(t, "written", readAll(t, r))
		require.NoError(t, r.Close())
	})

	t.Run("Write_Truncates", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustPut(t, b, "t.txt", []byte("long old content"))
		f := mustOpen(t, b, "t.txt", storage.ModeWrite)
		_, err := f.Write([]byte("short"))
		require.NoError(t, err)
		require.NoError(t, f.Close())
		assertContent(t, b, "t.txt", "short")
	})

	t.Run("Append", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustPut(t, b, "log.txt", []byte("one\n"))
		f := mustOpen(t, b, "log.txt", storage.ModeAppend)
		_, err := f.Write([]byte("two\n"))
		require.NoError(t, err)
		require.NoError(t, f.Close())
		assertContent(t, b, "log.txt", "one\ntwo\n")
	})

	t.Run("ReadWrite_InPlaceEdit", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustPut(t, b, "rw.txt", []byte("hello world"))
		f := mustOpen(t, b, "rw.txt", storage.ModeReadWrite)

		buf := make([]byte, 5)
		_, err := io.ReadFull(f, buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf))

		_, err = f.Seek(6, io.SeekStart)
		require.NoError(t, err)
		_, err = f.Write([]byte("WORLD"))
		require.NoError(t, err)
		require.NoError(t, f.Close())

		assertContent(t, b, "rw.txt", "hello WORLD")
	})

	t.Run("WritePlus_ReadBack", func(t *testing.T) {
		b := suite.NewBackend(t)
		f := mustOpen(t, b, "wp.txt", storage.ModeWriteRead)
		_, err := f.Write([]byte("abc"))
		require.NoError(t, err)
		_, err = f.Seek(0, io.SeekStart)
		require.NoError(t, err)
		assert.Equal(t, "abc", readAll(t, f))
		require.NoError(t, f.Close())
		assertContent(t, b, "wp.txt", "abc")
	})

	t.Run("Exclusive_Exists", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustPut(t, b, "x.txt", []byte("x"))
		_, err := b.Open(testContext(), "x.txt", storage.ModeExclusiveRead)
		assert.ErrorIs(t, err, storage.ErrExists)
	})

	t.Run("Open_InvalidMode", func(t *testing.T) {
		b := suite.NewBackend(t)
		_, err := b.Open(testContext(), "x.txt", storage.Mode("z"))
		assert.ErrorIs(t, err, storage.ErrUnsupportedMode)
	})
}

// RunRenameTests checks renames of files and directories.
func (suite *BackendTestSuite) RunRenameTests(t *testing.T) {
	t.Run("File", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustPut(t, b, "a.txt", []byte("content"))
		require.NoError(t, b.Rename(testContext(), "a.txt", "b.txt"))
		assertMissing(t, b, "a.txt")
		assertContent(t, b, "b.txt", "content")
	})

	t.Run("Directory", func(t *testing.T) {
		b := suite.NewBackend(t)
		mustMkdir(t, b, "src")
		mustPut(t, b, "src/inner.txt", []byte("inner"))
		require.NoError(t, b.Rename(testContext(), "src", "dst"))
		assertMissing(t, b, "src")
		assertContent(t, b, "dst/inner.txt", "inner")
	})

	t.Run("Missing", func(t *testing.T) {
		b := suite.NewBackend(t)
		assert.ErrorIs(t, b.Rename(testContext(), "nope", "other"), storage.ErrNotFound)
	})
}
