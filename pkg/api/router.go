package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/api/handlers"
	"github.com/marmos91/dittovfs/pkg/filesystem"
	"github.com/marmos91/dittovfs/pkg/metrics"
	"github.com/marmos91/dittovfs/pkg/webdav"
)

func init() {
	chi.RegisterMethod(handlers.MethodMkcol)
}

// Deps are the collaborators of the router.
type Deps struct {
	// View serves /files and its manager the mount routes (required)
	View *filesystem.View

	// Metrics records pre-flight rejections (nil = no-op)
	Metrics metrics.MountMetrics

	// Scanner serves /api/v1/scan; the route is absent when nil
	Scanner handlers.Scanner
}

// NewRouter builds the chi router.
//
// Routes:
//   - GET /health, GET /health/ready: probes
//   - GET /api/v1/mounts: mount list with storage ids and free space
//   - GET /api/v1/resolve?path=: covering mount and internal path
//   - POST /api/v1/scan?path=: refresh the cached metadata of a path
//   - GET|PUT|MKCOL|DELETE /files/*: the merged mount tree
//
// PUT and MKCOL under /files/ pass the free-space pre-flight first.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	view := deps.View

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	manager := view.Manager()
	health := handlers.NewHealthHandler(manager)
	mounts := handlers.NewMountsHandler(manager)
	files := handlers.NewFilesHandler(view)

	r.Route("/health", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/mounts", mounts.List)
		r.Get("/resolve", mounts.Resolve)
		if deps.Scanner != nil {
			r.Post("/scan", handlers.NewScanHandler(deps.Scanner).Scan)
		}
	})

	preflight := &webdav.QuotaCheck{
		FreeSpace: view,
		Mounts:    manager,
		Metrics:   deps.Metrics,
		Path:      handlers.FilePath,
	}

	// transfers are bounded by the server timeouts, not by middleware.Timeout
	r.Route("/files", func(r chi.Router) {
		r.Get("/*", files.Get)
		r.With(preflight.Middleware).Put("/*", files.Put)
		r.With(preflight.Middleware).MethodFunc(handlers.MethodMkcol, "/*", files.Mkcol)
		r.Delete("/*", files.Delete)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs every request through the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("API %s %s -> %d (%d bytes, %s, request_id=%s, remote=%s)",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), requestID, r.RemoteAddr)
	})
}
