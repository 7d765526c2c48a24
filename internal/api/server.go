package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yugasun/teus/pkg/docker"
	"github.com/yugasun/teus/pkg/errors"
	"github.com/yugasun/teus/pkg/observability"
)

// Server exposes read-only daemon queries as JSON over HTTP
type Server struct {
	addr      string
	client    docker.ClientInterface
	metrics   *observability.MetricsManager
	telemetry *observability.TelemetryManager
	handler   http.Handler
}

// NewServer creates a server for client. metrics and telemetry may be nil;
// /metrics is only mounted when metrics are enabled.
func NewServer(addr string, client docker.ClientInterface, metrics *observability.MetricsManager, telemetry *observability.TelemetryManager) *Server {
	s := &Server{
		addr:      addr,
		client:    client,
		metrics:   metrics,
		telemetry: telemetry,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /docker/version", s.handleVersion)
	s.handle(mux, "GET /docker/info", s.handleInfo)
	s.handle(mux, "GET /docker/ping", s.handlePing)
	s.handle(mux, "GET /docker/containers", s.handleContainers)
	s.handle(mux, "GET /docker/container/{id}", s.handleContainer)
	s.handle(mux, "GET /docker/volumes", s.handleVolumes)
	s.handle(mux, "GET /docker/volumes/{name}", s.handleVolume)
	s.handle(mux, "GET /docker/images", s.handleImages)
	s.handle(mux, "GET /docker/networks", s.handleNetworks)
	s.handle(mux, "GET /healthz", s.handleHealth)

	if s.metrics.Enabled() {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return mux
}

// handle registers h under pattern, recording status and latency per route
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		ctx := s.telemetry.Start(r.Context(), pattern)
		h(rec, r.WithContext(ctx))
		s.telemetry.End(ctx, rec.failure(pattern))

		s.metrics.RecordHTTPRequest(pattern, rec.status)
		log.Debug().
			Str("route", pattern).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

// Handler returns the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.NewSystemError("api", "failed to listen on "+s.addr, err)
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is cancelled
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", l.Addr().String()).Msg("Starting API server")
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errors.NewSystemError("api", "server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Stopping API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.NewSystemError("api", "graceful shutdown failed", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	err    error
}

// failure returns the error the handler reported, or one derived from an
// error status when it wrote the status directly.
func (r *statusRecorder) failure(route string) error {
	if r.err != nil {
		return r.err
	}
	if r.status >= http.StatusBadRequest {
		return fmt.Errorf("%s answered %d", route, r.status)
	}
	return nil
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
