package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/marmos91/dittovfs/pkg/storage"
)

// Backend implements storage.Backend on top of a local directory.
//
// Every open mode is supported natively by the operating system, so no
// write-back emulation is needed.
//
// Thread Safety:
// Operations are as safe as the underlying filesystem calls. Concurrent
// writes to the same path interleave at the OS level.
type Backend struct {
	dataDir string
}

// New creates a backend rooted at dataDir, creating the directory if needed.
//
// Parameters:
//   - ctx: Context for cancellation
//   - dataDir: Root directory; made absolute
//
// Returns:
//   - *Backend: Initialized backend
//   - error: ErrInvalidParameters for an empty path, ErrIO if the directory
//     cannot be created
func New(ctx context.Context, dataDir string) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dataDir == "" {
		return nil, storage.Errorf("create", "", storage.ErrInvalidParameters, "local backend: datadir is required")
	}

	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, storage.NewError("create", dataDir, storage.ErrInvalidParameters, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, storage.IOError("create", abs, fmt.Errorf("failed to create data directory: %w", err))
	}

	return &Backend{dataDir: abs}, nil
}

// Factory builds local backends from a positional data directory or a
// "datadir=" option.
func Factory(ctx context.Context, args []string) (storage.Backend, error) {
	type localOptions struct {
		DataDir string `mapstructure:"datadir"`
	}

	positional, options := storage.ParseArguments(args)
	var opts localOptions
	if err := storage.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.DataDir == "" && len(positional) > 0 {
		opts.DataDir = positional[0]
	}

	return New(ctx, opts.DataDir)
}

func (b *Backend) ID() string {
	return "local::" + filepath.ToSlash(b.dataDir) + "/"
}

// DataDir returns the absolute root directory.
func (b *Backend) DataDir() string {
	return b.dataDir
}

func (b *Backend) resolve(op, p string) (string, string, error) {
	cp, ok := storage.CleanPath(p)
	if !ok {
		return "", "", storage.Errorf(op, p, storage.ErrInvalidParameters, "path escapes backend root")
	}
	return cp, filepath.Join(b.dataDir, filepath.FromSlash(cp)), nil
}

// mapError classifies an os error.
func mapError(op, p string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return storage.NewError(op, p, storage.ErrNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return storage.NewError(op, p, storage.ErrExists, err)
	case errors.Is(err, syscall.ENOTDIR):
		return storage.NewError(op, p, storage.ErrNotDirectory, err)
	case errors.Is(err, syscall.EISDIR):
		return storage.NewError(op, p, storage.ErrIsDirectory, err)
	default:
		return storage.IOError(op, p, err)
	}
}

func (b *Backend) Mkdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, full, err := b.resolve("mkdir", path)
	if err != nil {
		return err
	}
	return mapError("mkdir", cp, os.Mkdir(full, 0755))
}

func (b *Backend) Rmdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, full, err := b.resolve("rmdir", path)
	if err != nil {
		return err
	}
	if cp == "" {
		return storage.Errorf("rmdir", cp, storage.ErrInvalidParameters, "cannot remove backend root")
	}

	info, err := os.Stat(full)
	if err != nil {
		return mapError("rmdir", cp, err)
	}
	if !info.IsDir() {
		return storage.NewError("rmdir", cp, storage.ErrNotDirectory, nil)
	}
	return mapError("rmdir", cp, os.RemoveAll(full))
}

func (b *Backend) Unlink(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, full, err := b.resolve("unlink", path)
	if err != nil {
		return err
	}

	info, err := os.Lstat(full)
	if err != nil {
		return mapError("unlink", cp, err)
	}
	if info.IsDir() {
		return storage.NewError("unlink", cp, storage.ErrIsDirectory, nil)
	}
	return mapError("unlink", cp, os.Remove(full))
}

func (b *Backend) Rename(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, fullFrom, err := b.resolve("rename", src)
	if err != nil {
		return err
	}
	to, fullTo, err := b.resolve("rename", dst)
	if err != nil {
		return err
	}
	if from == "" || to == "" {
		return storage.Errorf("rename", src, storage.ErrInvalidParameters, "cannot rename backend root")
	}
	if from == to {
		return nil
	}
	if strings.HasPrefix(to, from+"/") {
		return storage.Errorf("rename", src, storage.ErrInvalidParameters, "cannot move %q below itself", src)
	}

	srcInfo, err := os.Stat(fullFrom)
	if err != nil {
		return mapError("rename", from, err)
	}
	if dstInfo, err := os.Stat(fullTo); err == nil && dstInfo.IsDir() {
		if !srcInfo.IsDir() {
			return storage.NewError("rename", to, storage.ErrIsDirectory, nil)
		}
		// os.Rename refuses to replace a non-empty directory
		if err := os.RemoveAll(fullTo); err != nil {
			return mapError("rename", to, err)
		}
	}

	return mapError("rename", from, os.Rename(fullFrom, fullTo))
}

func (b *Backend) Stat(ctx context.Context, path string) (*storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, full, err := b.resolve("stat", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, mapError("stat", cp, err)
	}
	return toFileInfo(storage.BaseName(cp), info), nil
}

func toFileInfo(name string, info fs.FileInfo) *storage.FileInfo {
	fi := &storage.FileInfo{
		Name:  name,
		Size:  info.Size(),
		MTime: info.ModTime(),
		Type:  storage.TypeFile,
	}
	if info.IsDir() {
		fi.Type = storage.TypeDirectory
	}
	return fi
}

// openFlags translates an fopen mode into os.OpenFile flags.
func openFlags(mode storage.Mode) int {
	var flags int
	switch {
	case mode.Plus():
		flags = os.O_RDWR
	case mode.Readable():
		flags = os.O_RDONLY
	default:
		flags = os.O_WRONLY
	}

	switch mode.Base() {
	case 'w':
		flags |= os.O_CREATE | os.O_TRUNC
	case 'a':
		flags |= os.O_CREATE | os.O_APPEND
	case 'x':
		flags |= os.O_CREATE | os.O_EXCL
	case 'c':
		flags |= os.O_CREATE
	}
	return flags
}

func (b *Backend) Open(ctx context.Context, path string, mode storage.Mode) (storage.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, storage.Errorf("fopen", path, storage.ErrUnsupportedMode, "mode %q", mode)
	}
	cp, full, err := b.resolve("fopen", path)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(full); err == nil && info.IsDir() {
		return nil, storage.NewError("fopen", cp, storage.ErrIsDirectory, nil)
	}

	f, err := os.OpenFile(full, openFlags(mode), 0644)
	if err != nil {
		return nil, mapError("fopen", cp, err)
	}
	return f, nil
}

func (b *Backend) PutContents(ctx context.Context, path string, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cp, full, err := b.resolve("file_put_contents", path)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return 0, mapError("file_put_contents", cp, err)
	}
	return len(data), nil
}

func (b *Backend) GetContents(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, full, err := b.resolve("file_get_contents", path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, mapError("file_get_contents", cp, err)
	}
	return data, nil
}

func (b *Backend) IsDir(ctx context.Context, path string) (bool, error) {
	info, err := b.Stat(ctx, path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (b *Backend) FileType(ctx context.Context, path string) (storage.FileType, error) {
	info, err := b.Stat(ctx, path)
	if err != nil {
		return "", err
	}
	return info.Type, nil
}

func (b *Backend) ReadDir(ctx context.Context, path string) ([]storage.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cp, full, err := b.resolve("opendir", path)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, mapError("opendir", cp, err)
	}

	entries := make([]storage.FileInfo, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			// removed between listing and stat
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, mapError("opendir", storage.JoinPath(cp, de.Name()), err)
		}
		entries = append(entries, *toFileInfo(de.Name(), info))
	}
	return entries, nil
}

func (b *Backend) FreeSpace(ctx context.Context, path string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cp, full, err := b.resolve("free_space", path)
	if err != nil {
		return 0, err
	}
	free, err := freeSpace(full)
	if err != nil {
		return 0, mapError("free_space", cp, err)
	}
	return free, nil
}
