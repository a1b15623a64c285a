package handlers

import (
	"net/http"

	"github.com/marmos91/dittovfs/pkg/mount"
)

// MountsHandler exposes the mount registry.
type MountsHandler struct {
	manager *mount.Manager
}

func NewMountsHandler(manager *mount.Manager) *MountsHandler {
	return &MountsHandler{manager: manager}
}

// List handles GET /api/v1/mounts. Listing creates storages that were not
// used yet.
func (h *MountsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, h.manager.Describe(r.Context()))
}

// Resolution is the answer of GET /api/v1/resolve.
type Resolution struct {
	Path         string `json:"path"`
	MountPoint   string `json:"mount_point"`
	Backend      string `json:"backend"`
	StorageID    string `json:"storage_id"`
	InternalPath string `json:"internal_path"`
}

// Resolve handles GET /api/v1/resolve?path=...
func (h *MountsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeError(w, http.StatusBadRequest, "missing path parameter")
		return
	}

	res, err := h.manager.Resolve(r.Context(), p)
	if err != nil {
		writeStorageError(w, r, err)
		return
	}
	id, err := res.Mount.StorageID(r.Context())
	if err != nil {
		writeStorageError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, Resolution{
		Path:         mount.NormalizePath(p),
		MountPoint:   res.Mount.MountPoint(),
		Backend:      res.Mount.Class(),
		StorageID:    id,
		InternalPath: res.InternalPath,
	})
}
