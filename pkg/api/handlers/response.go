// Package handlers implements the HTTP handlers of the DittoVFS API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/storage"
)

// Response is the envelope of every JSON answer.
//
//   - Status is "healthy", "unhealthy", "ok" or "error"
//   - Data carries the payload
//   - Error carries a message when Status reports a failure
type Response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func newResponse(status string, data any, errMsg string) Response {
	return Response{Status: status, Timestamp: time.Now().UTC(), Data: data, Error: errMsg}
}

// JSON writes data as JSON with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

func writeOK(w http.ResponseWriter, status int, data any) {
	JSON(w, status, newResponse("ok", data, ""))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, newResponse("error", nil, msg))
}

// StatusFor maps a storage error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrInsufficientStorage):
		return http.StatusInsufficientStorage
	case errors.Is(err, storage.ErrExists):
		return http.StatusMethodNotAllowed
	case errors.Is(err, storage.ErrNotDirectory), errors.Is(err, storage.ErrIsDirectory):
		return http.StatusConflict
	case errors.Is(err, storage.ErrUnsupportedMode):
		return http.StatusNotImplemented
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, storage.ErrLock):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeStorageError answers with the status mapped from err. Server-side
// failures only expose a generic message.
func writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusInsufficientStorage {
		logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
		writeError(w, status, http.StatusText(status))
		return
	}
	logger.Debug("%s %s: %v", r.Method, r.URL.Path, err)
	writeError(w, status, err.Error())
}
