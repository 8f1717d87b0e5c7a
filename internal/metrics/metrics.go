// Package metrics defines the Prometheus counters the upload gateway
// exposes on its optional metrics listener, and the handler construction
// that serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PreRequestsTotal counts C2 invocations by outcome ("accepted",
// "duplicate", "rejected").
var PreRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "upload_gateway_pre_requests_total",
	Help: "Pre-request calls by outcome.",
}, []string{"outcome"})

// ChunksAppendedTotal counts successful chunk appends.
var ChunksAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "upload_gateway_chunks_appended_total",
	Help: "Chunks successfully appended to a temporary upload file.",
})

// ChunkBytesAppendedTotal sums the bytes written across all chunk appends.
var ChunkBytesAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "upload_gateway_chunk_bytes_appended_total",
	Help: "Bytes written across all chunk appends.",
})

// UploadsCompletedTotal counts completed uploads by commit outcome
// ("stored", "duplicate", "storage_failure").
var UploadsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "upload_gateway_uploads_completed_total",
	Help: "Completed upload commits by outcome.",
}, []string{"outcome"})

// SessionsExpiredTotal counts sessions evicted for exceeding their TTL at
// lookup time.
var SessionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "upload_gateway_sessions_expired_total",
	Help: "Sessions found expired at lookup time by C3/C4.",
})

// ChunksReapedTotal counts temporary chunk files removed by the reaper.
var ChunksReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "upload_gateway_chunks_reaped_total",
	Help: "Temporary chunk files removed by the periodic reaper.",
})

// RequestDuration observes handler latency by route and status code.
var RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "upload_gateway_request_duration_seconds",
	Help:    "HTTP request duration in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"route", "status"})

// Server wraps an http.Server exposing /metrics, run independently from
// the main API listener so metrics scraping never competes with upload
// traffic for the same port.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds a metrics Server bound to addr.
func NewServer(addr string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: mux},
		logger:     logger,
	}
}

// Run starts the listener and blocks until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("metrics listener started", slog.String("addr", s.httpServer.Addr))

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}

		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down metrics server: %w", err)
		}

		return nil
	case err := <-errCh:
		return err
	}
}
