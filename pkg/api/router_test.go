package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/marmos91/dittovfs/pkg/api/handlers"
	"github.com/marmos91/dittovfs/pkg/cache"
	"github.com/marmos91/dittovfs/pkg/filesystem"
	"github.com/marmos91/dittovfs/pkg/mount"
	"github.com/marmos91/dittovfs/pkg/storage"
	"github.com/marmos91/dittovfs/pkg/storage/memory"
	"github.com/marmos91/dittovfs/pkg/storage/wrapper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router http.Handler
	root   *memory.Backend
	docs   *memory.Backend
}

// newTestEnv mounts "root" at / and "docs" at /docs/ with a 10 byte quota.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		root: memory.New("root", storage.SpaceUnknown),
		docs: memory.New("docs", storage.SpaceUnknown),
	}
	mgr := mount.NewManager()
	mgr.AddMount(mount.NewMountWithBackend("/", env.root))
	mgr.AddMount(mount.NewMountWithBackend("/docs/", env.docs,
		mount.WithWrappers(wrapper.QuotaWrapper(wrapper.QuotaOptions{Quota: 10}))))
	env.router = NewRouter(Deps{
		View:    filesystem.New(mgr),
		Scanner: cache.NewScanner(mgr, cache.NewMemoryProvider()),
	})
	return env
}

func (e *testEnv) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handlers.Response {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w).Status)

	w = env.do(http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w).Data.(map[string]any)
	assert.Equal(t, 2.0, data["mounts"])

	empty := NewRouter(Deps{View: filesystem.New(mount.NewManager())})
	w = httptest.NewRecorder()
	empty.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
}

func TestMountsAndResolve(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/mounts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	mounts := decode(t, w).Data.([]any)
	require.Len(t, mounts, 2)
	docs := mounts[1].(map[string]any)
	assert.Equal(t, "/docs/", docs["mount_point"])
	assert.Equal(t, "memory::docs", docs["storage_id"])
	assert.Equal(t, 10.0, docs["free_space"])
	assert.Equal(t, 10.0, docs["quota"])

	w = env.do(http.MethodGet, "/api/v1/resolve?path=/docs/a/b.txt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w).Data.(map[string]any)
	assert.Equal(t, "/docs/", res["mount_point"])
	assert.Equal(t, "a/b.txt", res["internal_path"])

	w = env.do(http.MethodGet, "/api/v1/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScan(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.docs.PutContents(context.Background(), "a.txt", []byte("hello"))
	require.NoError(t, err)

	w := env.do(http.MethodPost, "/api/v1/scan?path=/docs/a.txt", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w).Data.(map[string]any)
	assert.Equal(t, true, res["updated"])
	assert.Equal(t, 5.0, res["entry"].(map[string]any)["size"])

	w = env.do(http.MethodPost, "/api/v1/scan", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// without a scanner the route does not exist
	bare := NewRouter(Deps{View: filesystem.New(mount.NewManager())})
	w = httptest.NewRecorder()
	bare.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/scan?path=/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResolveUncovered(t *testing.T) {
	mgr := mount.NewManager()
	mgr.AddMount(mount.NewMountWithBackend("/docs/", memory.New("docs", storage.SpaceUnknown)))
	router := NewRouter(Deps{View: filesystem.New(mgr)})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/resolve?path=/photos", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFilesLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(handlers.MethodMkcol, "/files/docs/reports", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(handlers.MethodMkcol, "/files/docs/reports", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = env.do(handlers.MethodMkcol, "/files/docs/missing/child", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPut, "/files/docs/reports/q1.txt", strings.NewReader("quarter"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	data, err := env.docs.GetContents(ctx, "reports/q1.txt")
	require.NoError(t, err)
	assert.Equal(t, "quarter", string(data))

	w = env.do(http.MethodGet, "/files/docs/reports/q1.txt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "quarter", w.Body.String())
	assert.Equal(t, "7", w.Header().Get("Content-Length"))

	w = env.do(http.MethodGet, "/files/docs/reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode(t, w).Data.([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "q1.txt", entries[0].(map[string]any)["name"])

	// the root listing shows the docs mount
	w = env.do(http.MethodGet, "/files/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"docs"`)

	w = env.do(http.MethodDelete, "/files/docs/reports", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodGet, "/files/docs/reports", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/files/docs", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "mount points cannot be removed")
}

func TestFilesPutPreflightRejects(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPut, "/files/docs/big.bin", strings.NewReader("0123456789abcdef"))
	assert.Equal(t, http.StatusInsufficientStorage, w.Code)

	_, err := env.docs.Stat(context.Background(), "big.bin")
	assert.ErrorIs(t, err, storage.ErrNotFound, "nothing was written")
}

func TestFilesPutShortWrite(t *testing.T) {
	env := newTestEnv(t)

	// no length header: the pre-flight cannot help, the quota stream truncates
	req := httptest.NewRequest(http.MethodPut, "/files/docs/big.bin", strings.NewReader("0123456789abcdef"))
	req.ContentLength = -1
	req.Header.Del("Content-Length")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInsufficientStorage, w.Code)
	_, err := env.docs.Stat(context.Background(), "big.bin")
	assert.ErrorIs(t, err, storage.ErrNotFound, "partial file is removed")
}

// brokenBody yields data once, then fails like a dropped connection.
type brokenBody struct {
	data []byte
	sent bool
}

func (b *brokenBody) Read(p []byte) (int, error) {
	if !b.sent {
		b.sent = true
		return copy(p, b.data), nil
	}
	return 0, errors.New("connection reset by peer")
}

// writeBackBackend hands out write-back handles for writable modes, the
// way backends without in-place writes do.
type writeBackBackend struct {
	*memory.Backend
	dir string
}

func (b *writeBackBackend) Open(ctx context.Context, path string, mode storage.Mode) (storage.File, error) {
	if !mode.Writable() {
		return b.Backend.Open(ctx, path, mode)
	}
	return storage.NewWriteBackFile(ctx, storage.WriteBackOptions{
		Dir: b.dir,
		Commit: func(ctx context.Context, r io.Reader, size int64) error {
			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			_, err = b.Backend.PutContents(ctx, path, data)
			return err
		},
	})
}

func TestFilesPutAbortedUploadKeepsContent(t *testing.T) {
	ctx := context.Background()
	root := memory.New("root", storage.SpaceUnknown)
	docs := memory.New("docs", storage.SpaceUnknown)
	remote := &writeBackBackend{Backend: memory.New("remote", storage.SpaceUnknown), dir: t.TempDir()}

	mgr := mount.NewManager()
	mgr.AddMount(mount.NewMountWithBackend("/", root))
	mgr.AddMount(mount.NewMountWithBackend("/docs/", docs,
		mount.WithWrappers(wrapper.QuotaWrapper(wrapper.QuotaOptions{Quota: 100}))))
	mgr.AddMount(mount.NewMountWithBackend("/remote/", remote))
	router := NewRouter(Deps{View: filesystem.New(mgr)})

	tests := []struct {
		name    string
		target  string
		backend storage.Backend
	}{
		{"in-place handle", "/files/a.txt", root},
		{"quota stream", "/files/docs/a.txt", docs},
		{"write-back handle", "/files/remote/a.txt", remote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.backend.PutContents(ctx, "a.txt", []byte("original"))
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPut, tt.target, &brokenBody{data: []byte("par")})
			req.ContentLength = -1
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			data, err := tt.backend.GetContents(ctx, "a.txt")
			require.NoError(t, err)
			assert.Equal(t, "original", string(data))
		})
	}

	leftovers, err := os.ReadDir(remote.dir)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temporary files are removed")
}

func TestFilesPutIntoRootWithoutQuota(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPut, "/files/notes.txt", strings.NewReader("0123456789abcdef"))
	require.Equal(t, http.StatusCreated, w.Code)

	data, err := env.root.GetContents(context.Background(), "notes.txt")
	require.NoError(t, err)
	assert.Len(t, data, 16)
}

func TestAPIConfigDefaults(t *testing.T) {
	var cfg APIConfig
	assert.True(t, cfg.IsEnabled())
	cfg.ApplyDefaults()
	assert.Equal(t, 8080, cfg.Port)

	off := false
	cfg.Enabled = &off
	assert.False(t, cfg.IsEnabled())

	s := NewServer(APIConfig{Port: 18080}, Deps{View: filesystem.New(mount.NewManager())})
	assert.Equal(t, 18080, s.Port())
}
