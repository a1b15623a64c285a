package handlers

import (
	"context"
	"net/http"

	"github.com/marmos91/dittovfs/pkg/cache"
)

// Scanner refreshes the cached metadata of an absolute path.
// *cache.Scanner implements it.
type Scanner interface {
	Scan(ctx context.Context, path string) (*cache.ScanResult, error)
}

// ScanHandler exposes cache refreshes.
type ScanHandler struct {
	scanner Scanner
}

func NewScanHandler(scanner Scanner) *ScanHandler {
	return &ScanHandler{scanner: scanner}
}

// Scan handles POST /api/v1/scan?path=...
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, http.StatusBadRequest, "missing path parameter")
		return
	}

	res, err := h.scanner.Scan(r.Context(), p)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, res)
}
