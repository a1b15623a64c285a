// Package webdav holds the WebDAV-facing quota pre-flight: uploads are
// rejected with 507 Insufficient Storage before any byte is transferred
// when the target folder cannot hold them.
package webdav

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strconv"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/marmos91/dittovfs/pkg/mount"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// Headers announcing the size of an upload.
const (
	HeaderContentLength  = "Content-Length"
	HeaderExpectedLength = "X-Expected-Entity-Length"
	HeaderTotalLength    = "OC-Total-Length"
)

// ExpectedLength returns the number of bytes a request announces.
//
// X-Expected-Entity-Length takes precedence over Content-Length (clients
// sending chunked bodies set it), and OC-Total-Length raises the result
// when a chunked upload announces a bigger total. Malformed or negative
// values are ignored. ok is false when no header carries a length.
func ExpectedLength(h http.Header) (length int64, ok bool) {
	if v, valid := parseLength(h.Get(HeaderExpectedLength)); valid {
		length, ok = v, true
	} else if v, valid := parseLength(h.Get(HeaderContentLength)); valid {
		length, ok = v, true
	}

	if total, valid := parseLength(h.Get(HeaderTotalLength)); valid {
		if !ok || total > length {
			length = total
		}
		ok = true
	}
	return length, ok
}

func parseLength(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// FreeSpacer reports the bytes available below an absolute path, or
// storage.SpaceUnknown. filesystem.View implements it.
type FreeSpacer interface {
	FreeSpace(ctx context.Context, path string) (int64, error)
}

// QuotaCheck rejects uploads that exceed the free space of their target
// folder.
//
// The check is advisory: it reserves nothing, so concurrent uploads may
// still overrun the quota. Quota streams truncate whatever slips through.
type QuotaCheck struct {
	// FreeSpace answers free-space queries (required)
	FreeSpace FreeSpacer

	// Mounts labels rejection metrics with the covering mount point
	// (optional)
	Mounts *mount.Manager

	// Metrics records rejections (nil = no-op)
	Metrics metrics.MountMetrics

	// Path extracts the filesystem path from a request
	// (default: r.URL.Path)
	Path func(r *http.Request) string
}

// Check verifies that length bytes fit in the parent folder of uri.
//
// Returns an error wrapping storage.ErrInsufficientStorage when the free
// space is known and smaller than length. Unknown free space always passes.
func (q *QuotaCheck) Check(ctx context.Context, uri string, length int64) error {
	parent := path.Dir(mount.NormalizePath(uri))

	free, err := q.FreeSpace.FreeSpace(ctx, parent)
	if err != nil {
		return err
	}
	if free == storage.SpaceUnknown || free >= length {
		return nil
	}

	q.recordRejection(parent)
	return storage.Errorf("preflight", uri, storage.ErrInsufficientStorage,
		"%d bytes announced, %d available", length, free)
}

func (q *QuotaCheck) recordRejection(parent string) {
	m := metrics.OrNoop(q.Metrics)
	mountPoint := ""
	if q.Mounts != nil {
		if found := q.Mounts.Find(parent); found != nil {
			mountPoint = found.MountPoint()
		}
	}
	m.RecordPreflightRejection(mountPoint)
}

// Middleware runs Check before PUT and MKCOL requests.
//
// Requests announcing no length (header or r.ContentLength) pass
// unchecked. A failing check answers
// 507 for insufficient storage and 500 with a generic message for any
// other error; the details only go to the log. A parent folder that does
// not exist is left for the handler to report.
func (q *QuotaCheck) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut && r.Method != "MKCOL" {
			next.ServeHTTP(w, r)
			return
		}

		length, ok := ExpectedLength(r.Header)
		if !ok && r.ContentLength > 0 {
			length, ok = r.ContentLength, true
		}
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		uri := r.URL.Path
		if q.Path != nil {
			uri = q.Path(r)
		}

		err := q.Check(r.Context(), uri, length)
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, storage.ErrNotFound):
			logger.Debug("Quota pre-flight for %s skipped: %v", uri, err)
			next.ServeHTTP(w, r)
		case errors.Is(err, storage.ErrInsufficientStorage):
			logger.Info("Rejected %s %s: %v", r.Method, uri, err)
			http.Error(w, "Insufficient space in "+path.Dir(mount.NormalizePath(uri)), http.StatusInsufficientStorage)
		default:
			logger.Error("Quota pre-flight for %s failed: %v", uri, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
