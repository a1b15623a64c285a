package storage

import (
	"errors"
	"fmt"
)

// ============================================================================
// Standard Storage Errors
// ============================================================================

// These errors classify every failure surfaced by the mount layer. Backends
// wrap them in *Error together with the underlying cause, so callers can
// test the kind with errors.Is while the original error stays reachable.
//
// Usage Pattern:
//
//	info, err := backend.Stat(ctx, "docs/a.txt")
//	if errors.Is(err, storage.ErrNotFound) {
//	    return http.StatusNotFound
//	}

var (
	// ErrInvalidParameters indicates bad mount or backend configuration:
	// unknown backend names, missing constructor arguments, paths escaping
	// the backend root.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrIO wraps a failure of the underlying medium.
	ErrIO = errors.New("i/o error")

	// ErrUnsupportedMode indicates the backend cannot honor the requested
	// open mode or operation.
	ErrUnsupportedMode = errors.New("unsupported mode")

	// ErrLock indicates an internal lock could not be acquired. Callers may
	// retry.
	ErrLock = errors.New("lock error")

	// ErrUnavailable indicates the backend (or the mount's storage) cannot
	// be reached or could not be instantiated.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrNotFound indicates a missing path, mount or quota stream id.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStorage indicates a quota check rejected a write
	// before any bytes were transferred.
	ErrInsufficientStorage = errors.New("insufficient storage")

	// ErrExists indicates an exclusive create hit an existing path.
	ErrExists = errors.New("already exists")

	// ErrNotDirectory indicates a directory operation on a regular file.
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory indicates a file operation on a directory.
	ErrIsDirectory = errors.New("is a directory")
)

// Error records a failed storage operation.
//
// It unwraps to both Kind and Err, so errors.Is matches the storage
// sentinel as well as the original cause (e.g. fs.ErrNotExist).
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an *Error. cause may be nil.
func NewError(op, path string, kind, cause error) error {
	return &Error{Op: op, Path: path, Kind: kind, Err: cause}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(op, path string, kind error, format string, args ...any) error {
	return &Error{Op: op, Path: path, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IOError wraps cause as ErrIO unless it already carries a storage kind.
func IOError(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	var se *Error
	if errors.As(cause, &se) {
		return cause
	}
	return &Error{Op: op, Path: path, Kind: ErrIO, Err: cause}
}
