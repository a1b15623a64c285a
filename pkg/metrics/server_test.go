package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerWhileDisabled(t *testing.T) {
	h := Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/metrics")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewServerDefaults(t *testing.T) {
	assert.Equal(t, 9090, NewServer(ServerConfig{}).Port())
	assert.Equal(t, 9100, NewServer(ServerConfig{Port: 9100}).Port())
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NewNoopMountMetrics(), OrNoop(nil))
}
