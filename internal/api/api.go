// Package api implements C1 (router & auth boundary), C2 (pre-request
// handler), C3 (chunked upload handler), and C4 (status handler) as a
// single HTTP surface mounted on go-chi/chi.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sensorvault/upload-gateway/internal/authn"
	"github.com/sensorvault/upload-gateway/internal/config"
	"github.com/sensorvault/upload-gateway/internal/metrics"
	"github.com/sensorvault/upload-gateway/internal/session"
	"github.com/sensorvault/upload-gateway/internal/storage"
)

// preRequestBodyLimit is the C1-enforced cap on pre-request JSON bodies.
const preRequestBodyLimit = 2 * 1024

// Handlers holds every dependency C2/C3/C4 need: the session store, the
// storage service, and the slice of config that governs limits and TTLs.
type Handlers struct {
	sessions *session.Store
	storage  *storage.Service
	upload   config.UploadConfig
	httpPath string
	logger   *slog.Logger
	now      func() time.Time
}

// New builds the Handlers for the given dependencies.
func New(sessions *session.Store, storageSvc *storage.Service, upload config.UploadConfig, httpPath string, logger *slog.Logger) *Handlers {
	return &Handlers{
		sessions: sessions,
		storage:  storageSvc,
		upload:   upload,
		httpPath: httpPath,
		logger:   logger,
		now:      time.Now,
	}
}

// NewRouter assembles C1: it requires a verified bearer principal on
// every route below httpPath, then dispatches POST/PUT to C2/C3/C4.
// Any other path falls through to chi's default 404.
func NewRouter(h *Handlers, verifier authn.Verifier, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Route(h.httpPath, func(r chi.Router) {
		r.Use(authn.Middleware(verifier))

		r.With(bodyLimit(preRequestBodyLimit)).Post("/measurements", h.PreRequest)
		r.Put("/measurements/({uploadID})/", h.Upload)
	})

	return r
}

// bodyLimit wraps the request body in http.MaxBytesReader, matching the
// router's documented per-route body caps.
func bodyLimit(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// routeLabel reports the matched chi route pattern rather than the raw
// path, so upload-identifier segments never explode the metric's
// cardinality.
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	return "unmatched"
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", duration),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			metrics.RequestDuration.WithLabelValues(routeLabel(r), strconv.Itoa(ww.Status())).Observe(duration.Seconds())
		})
	}
}
