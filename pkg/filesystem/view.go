// Package filesystem exposes the mounts of a manager as one tree addressed
// by absolute paths.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/mount"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// View dispatches absolute paths to the mount covering them.
//
// Every operation resolves its path with the longest-prefix rule of
// mount.Manager and forwards the internal path to the mount's backend.
// Paths no mount covers fail with ErrNotFound.
//
// Thread Safety:
// Safe for concurrent use; it holds no state besides the manager.
type View struct {
	manager *mount.Manager
}

// New creates a view over manager.
func New(manager *mount.Manager) *View {
	return &View{manager: manager}
}

// Manager returns the underlying mount registry.
func (v *View) Manager() *mount.Manager {
	return v.manager
}

func (v *View) resolve(ctx context.Context, p string) (*mount.Resolution, error) {
	return v.manager.Resolve(ctx, p)
}

func (v *View) Mkdir(ctx context.Context, p string) error {
	res, err := v.resolve(ctx, p)
	if err != nil {
		return err
	}
	return res.Storage.Mkdir(ctx, res.InternalPath)
}

func (v *View) Rmdir(ctx context.Context, p string) error {
	res, err := v.resolve(ctx, p)
	if err != nil {
		return err
	}
	if res.InternalPath == "" {
		return storage.Errorf("rmdir", p, storage.ErrInvalidParameters, "cannot remove mount point %s", res.Mount.MountPoint())
	}
	return res.Storage.Rmdir(ctx, res.InternalPath)
}

func (v *View) Unlink(ctx context.Context, p string) error {
	res, err := v.resolve(ctx, p)
	if err != nil {
		return err
	}
	return res.Storage.Unlink(ctx, res.InternalPath)
}

// Rename moves src to dst. Inside one mount this is a backend rename;
// across mounts the content is copied to dst and src is deleted once the
// copy completed.
func (v *View) Rename(ctx context.Context, src, dst string) error {
	from, err := v.resolve(ctx, src)
	if err != nil {
		return err
	}
	to, err := v.resolve(ctx, dst)
	if err != nil {
		return err
	}
	if from.InternalPath == "" || to.InternalPath == "" {
		return storage.Errorf("rename", src, storage.ErrInvalidParameters, "mount points cannot be renamed")
	}

	if from.Mount == to.Mount {
		return from.Storage.Rename(ctx, from.InternalPath, to.InternalPath)
	}

	logger.Debug("Rename %s -> %s crosses mounts %s and %s", src, dst, from.Mount.MountPoint(), to.Mount.MountPoint())

	info, err := from.Storage.Stat(ctx, from.InternalPath)
	if err != nil {
		return err
	}

	if err := copyTree(ctx, from.Storage, from.InternalPath, to.Storage, to.InternalPath, info); err != nil {
		// best effort: leave src intact and drop what was copied
		if cleanupErr := remove(ctx, to.Storage, to.InternalPath, info.Type); cleanupErr != nil && !errors.Is(cleanupErr, storage.ErrNotFound) {
			logger.Warn("Rename %s -> %s: cleanup of partial copy failed: %v", src, dst, cleanupErr)
		}
		return fmt.Errorf("rename %s -> %s: %w", src, dst, err)
	}

	return remove(ctx, from.Storage, from.InternalPath, info.Type)
}

func remove(ctx context.Context, b storage.Backend, p string, typ storage.FileType) error {
	if typ == storage.TypeDirectory {
		return b.Rmdir(ctx, p)
	}
	return b.Unlink(ctx, p)
}

// copyTree copies src (described by info) from one backend to another.
func copyTree(ctx context.Context, from storage.Backend, src string, to storage.Backend, dst string, info *storage.FileInfo) error {
	if !info.IsDir() {
		return copyFile(ctx, from, src, to, dst, info.Size)
	}

	if err := to.Mkdir(ctx, dst); err != nil && !errors.Is(err, storage.ErrExists) {
		return err
	}

	children, err := from.ReadDir(ctx, src)
	if err != nil {
		return err
	}
	for i := range children {
		child := &children[i]
		if err := copyTree(ctx, from, storage.JoinPath(src, child.Name), to, storage.JoinPath(dst, child.Name), child); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(ctx context.Context, from storage.Backend, src string, to storage.Backend, dst string, size int64) error {
	in, err := from.Open(ctx, src, storage.ModeRead)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := to.Open(ctx, dst, storage.ModeWrite)
	if err != nil {
		return err
	}

	// io.Copy reports a quota truncation as io.ErrShortWrite
	written, err := io.Copy(out, in)
	if err != nil {
		if discarded, _ := storage.Abort(out); !discarded {
			_ = to.Unlink(ctx, dst)
		}
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if written < size {
		return storage.Errorf("rename", dst, storage.ErrInsufficientStorage, "copied %d of %d bytes", written, size)
	}
	return nil
}

// Stat returns information about p. A mount point reports the root of its
// backend, named after the last segment of the mount point.
func (v *View) Stat(ctx context.Context, p string) (*storage.FileInfo, error) {
	res, err := v.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	info, err := res.Storage.Stat(ctx, res.InternalPath)
	if err != nil {
		return nil, err
	}
	if res.InternalPath == "" {
		named := *info
		named.Name = mountName(res.Mount.MountPoint())
		return &named, nil
	}
	return info, nil
}

func mountName(mountPoint string) string {
	if mountPoint == "/" {
		return ""
	}
	return path.Base(strings.TrimSuffix(mountPoint, "/"))
}

func (v *View) Open(ctx context.Context, p string, mode storage.Mode) (storage.File, error) {
	res, err := v.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return res.Storage.Open(ctx, res.InternalPath, mode)
}

// PutContents stores data at p and returns the bytes stored. Callers must
// compare the result against len(data).
func (v *View) PutContents(ctx context.Context, p string, data []byte) (int, error) {
	res, err := v.resolve(ctx, p)
	if err != nil {
		return 0, err
	}
	return res.Storage.PutContents(ctx, res.InternalPath, data)
}

func (v *View) GetContents(ctx context.Context, p string) ([]byte, error) {
	res, err := v.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return res.Storage.GetContents(ctx, res.InternalPath)
}

func (v *View) IsDir(ctx context.Context, p string) (bool, error) {
	res, err := v.resolve(ctx, p)
	if err != nil {
		return false, err
	}
	return res.Storage.IsDir(ctx, res.InternalPath)
}

func (v *View) FileType(ctx context.Context, p string) (storage.FileType, error) {
	res, err := v.resolve(ctx, p)
	if err != nil {
		return "", err
	}
	return res.Storage.FileType(ctx, res.InternalPath)
}

// FreeSpace returns the bytes available below p, or storage.SpaceUnknown.
func (v *View) FreeSpace(ctx context.Context, p string) (int64, error) {
	res, err := v.resolve(ctx, p)
	if err != nil {
		return 0, err
	}
	return res.Storage.FreeSpace(ctx, res.InternalPath)
}

// ReadDir lists p. Mounts nested below p appear as directories named after
// their first segment below p; a mount located directly in p replaces a
// backend entry of the same name.
func (v *View) ReadDir(ctx context.Context, p string) ([]storage.FileInfo, error) {
	res, err := v.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	entries, err := res.Storage.ReadDir(ctx, res.InternalPath)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]int, len(entries))
	for i, e := range entries {
		byName[e.Name] = i
	}

	dir := mount.FormatPath(p)
	for _, nested := range v.manager.FindIn(dir) {
		rest := strings.TrimPrefix(nested.MountPoint(), dir)
		name, _, _ := strings.Cut(rest, "/")
		direct := rest == name+"/"

		entry := storage.FileInfo{Name: name, Type: storage.TypeDirectory}
		if direct {
			if b, err := nested.Storage(ctx); err != nil {
				logger.Debug("ReadDir %s: mount %s unavailable: %v", p, nested.MountPoint(), err)
			} else if info, err := b.Stat(ctx, ""); err == nil {
				entry.MTime = info.MTime
				entry.Size = info.Size
			}
		}

		if i, ok := byName[name]; ok {
			if direct {
				entries[i] = entry
			}
			continue
		}
		byName[name] = len(entries)
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
