package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/filesystem"
	"github.com/marmos91/dittovfs/pkg/mount"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// MethodMkcol is the WebDAV collection-creation method.
const MethodMkcol = "MKCOL"

// FilesHandler serves the merged mount tree under /files/.
type FilesHandler struct {
	view *filesystem.View
}

func NewFilesHandler(view *filesystem.View) *FilesHandler {
	return &FilesHandler{view: view}
}

// FilePath returns the absolute filesystem path addressed by a /files/*
// request.
func FilePath(r *http.Request) string {
	return mount.NormalizePath(chi.URLParam(r, "*"))
}

// Entry is one item of a directory listing.
type Entry struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Size  int64  `json:"size"`
	MTime string `json:"mtime,omitempty"`
}

// Get handles GET: directories answer with a JSON listing, files stream
// their content.
func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := FilePath(r)

	info, err := h.view.Stat(ctx, p)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}

	if info.IsDir() {
		h.list(ctx, w, r, p)
		return
	}

	f, err := h.view.Open(ctx, p, storage.ModeRead)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if !info.MTime.IsZero() {
		w.Header().Set("Last-Modified", info.MTime.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		// headers are gone, the client sees a truncated body
		logger.Warn("GET %s: streaming failed: %v", p, err)
	}
}

func (h *FilesHandler) list(ctx context.Context, w http.ResponseWriter, r *http.Request, p string) {
	infos, err := h.view.ReadDir(ctx, p)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		e := Entry{Name: info.Name, Type: string(info.Type), Size: info.Size}
		if !info.MTime.IsZero() {
			e.MTime = info.MTime.UTC().Format(http.TimeFormat)
		}
		entries = append(entries, e)
	}
	writeOK(w, http.StatusOK, entries)
}

// Put handles PUT: the body replaces the file content.
//
// A body that cannot be read to the end is discarded and the previous
// content stays in place. A write shortened by a quota answers 507.
func (h *FilesHandler) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := FilePath(r)

	f, err := h.view.Open(ctx, p, storage.ModeWrite)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}

	written, copyErr := io.Copy(f, r.Body)
	if copyErr != nil {
		h.discard(ctx, p, f)
		// io.Copy reports a quota truncation as io.ErrShortWrite
		if errors.Is(copyErr, io.ErrShortWrite) {
			logger.Info("PUT %s: quota exceeded after %d bytes", p, written)
			writeError(w, http.StatusInsufficientStorage, "Insufficient space for "+p)
			return
		}
		logger.Warn("PUT %s: upload aborted after %d bytes: %v", p, written, copyErr)
		writeStorageError(w, r, storage.IOError("fwrite", p, copyErr))
		return
	}

	if err := f.Close(); err != nil {
		writeStorageError(w, r, err)
		return
	}

	if r.ContentLength >= 0 && written < r.ContentLength {
		logger.Info("PUT %s: stored %d of %d bytes, quota exceeded", p, written, r.ContentLength)
		h.unlink(ctx, p)
		writeError(w, http.StatusInsufficientStorage, "Insufficient space for "+p)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"path": p, "size": written})
}

// discard drops an unfinished upload. Backends that write in place
// cannot abort, so the partial file they hold is removed.
func (h *FilesHandler) discard(ctx context.Context, p string, f storage.File) {
	discarded, err := storage.Abort(f)
	if err != nil {
		logger.Warn("PUT %s: discarding upload failed: %v", p, err)
	}
	if !discarded {
		h.unlink(ctx, p)
	}
}

func (h *FilesHandler) unlink(ctx context.Context, p string) {
	if err := h.view.Unlink(ctx, p); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("PUT %s: removing partial file failed: %v", p, err)
	}
}

// Mkcol handles MKCOL: creates a directory.
func (h *FilesHandler) Mkcol(w http.ResponseWriter, r *http.Request) {
	p := FilePath(r)
	if err := h.view.Mkdir(r.Context(), p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// RFC 4918: missing intermediate collections
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeStorageError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]string{"path": p})
}

// Delete handles DELETE: removes a file or a directory tree.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := FilePath(r)

	isDir, err := h.view.IsDir(ctx, p)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}

	if isDir {
		err = h.view.Rmdir(ctx, p)
	} else {
		err = h.view.Unlink(ctx, p)
	}
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
