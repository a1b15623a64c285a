package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
)

// WriteBackPrefix starts the name of every write-back temporary file.
const WriteBackPrefix = "dittovfs-"

// liveWriteBacks holds the paths of the write-back files open in this
// process.
var liveWriteBacks sync.Map

// IsLiveWriteBack reports whether path is the temporary file of a
// WriteBackFile that has not been closed or aborted yet.
func IsLiveWriteBack(path string) bool {
	_, ok := liveWriteBacks.Load(path)
	return ok
}

// CommitFunc persists the final content of a WriteBackFile. The reader is
// positioned at the start of the content and size is its length.
type CommitFunc func(ctx context.Context, r io.Reader, size int64) error

// WriteBackFile is a local temporary file standing in for a remote object.
//
// Backends without native random access (object stores, FTP) copy the
// remote object into a WriteBackFile, hand it out as the open handle and
// upload it again when the handle is closed. The guard owns the temporary
// file: it is removed on every exit path, whether Close commits, the commit
// fails, the context is cancelled, or the caller calls Abort.
type WriteBackFile struct {
	*os.File

	ctx    context.Context
	path   string
	commit CommitFunc

	once sync.Once
	err  error
}

// WriteBackOptions controls how the temporary file is seeded.
type WriteBackOptions struct {
	// Dir is the directory for the temporary file ("" = os.TempDir())
	Dir string

	// Seed is copied into the file before it is handed out (may be nil)
	Seed io.Reader

	// Append positions the handle at the end of the seeded content
	Append bool

	// Commit is called on Close. A nil Commit makes the handle read-only
	// from the backend's point of view: Close only cleans up.
	Commit CommitFunc
}

// NewWriteBackFile creates and seeds a temporary file.
func NewWriteBackFile(ctx context.Context, opts WriteBackOptions) (*WriteBackFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := opts.Dir
	if dir == "" {
		dir = os.TempDir()
	}

	f, err := os.CreateTemp(dir, WriteBackPrefix+uuid.NewString()+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}

	wb := &WriteBackFile{
		File:   f,
		ctx:    ctx,
		path:   f.Name(),
		commit: opts.Commit,
	}
	liveWriteBacks.Store(wb.path, struct{}{})

	if opts.Seed != nil {
		if _, err := io.Copy(f, opts.Seed); err != nil {
			_ = wb.Abort()
			return nil, fmt.Errorf("failed to seed temporary file: %w", err)
		}
	}

	whence := io.SeekStart
	if opts.Append {
		whence = io.SeekEnd
	}
	if _, err := f.Seek(0, whence); err != nil {
		_ = wb.Abort()
		return nil, fmt.Errorf("failed to position temporary file: %w", err)
	}

	return wb, nil
}

// Path returns the location of the temporary file.
func (w *WriteBackFile) Path() string {
	return w.path
}

// Close commits the content (if a CommitFunc was given) and removes the
// temporary file. Only the first call has an effect.
func (w *WriteBackFile) Close() error {
	w.once.Do(func() {
		w.err = w.finish(true)
	})
	return w.err
}

// Abort discards the content without committing.
func (w *WriteBackFile) Abort() error {
	w.once.Do(func() {
		w.err = w.finish(false)
	})
	return w.err
}

func (w *WriteBackFile) finish(commit bool) error {
	var errs []error

	if commit && w.commit != nil {
		if err := w.ctx.Err(); err != nil {
			errs = append(errs, err)
		} else if err := w.runCommit(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := w.File.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		errs = append(errs, err)
	}
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	liveWriteBacks.Delete(w.path)

	return errors.Join(errs...)
}

func (w *WriteBackFile) runCommit() error {
	size, err := w.File.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if _, err := w.File.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return w.commit(w.ctx, w.File, size)
}
