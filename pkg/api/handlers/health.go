package handlers

import (
	"net/http"

	"github.com/marmos91/dittovfs/pkg/mount"
)

// HealthHandler answers liveness and readiness probes.
type HealthHandler struct {
	manager *mount.Manager
}

// NewHealthHandler creates a health handler. manager may be nil, in which
// case readiness fails.
func NewHealthHandler(manager *mount.Manager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, newResponse("healthy", map[string]string{"service": "dittovfs"}, ""))
}

// Readiness handles GET /health/ready: ready once at least one mount is
// registered.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		JSON(w, http.StatusServiceUnavailable, newResponse("unhealthy", nil, "mount manager not initialized"))
		return
	}
	n := h.manager.Len()
	if n == 0 {
		JSON(w, http.StatusServiceUnavailable, newResponse("unhealthy", nil, "no mounts configured"))
		return
	}
	JSON(w, http.StatusOK, newResponse("healthy", map[string]int{"mounts": n}, ""))
}
