package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fantuned/fantuned/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the /metrics HTTP endpoint, grounded on
// internal/backend.go's RunDaemon statistics block (own
// http.Server + promhttp.Handler, graceful shutdown on cancellation).
type Server struct {
	httpServer *http.Server
}

// NewServer registers collectors against a fresh prometheus.Registry
// and prepares an HTTP server for port (9000 when port is out of
// range); the listener is bound when Run starts.
func NewServer(port int, collectors ...prometheus.Collector) *Server {
	if port <= 0 || port >= 65535 {
		port = 9000
	}

	registry := prometheus.NewRegistry()
	for _, c := range collectors {
		registry.MustRegister(c)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down within 5s.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		ui.Info("Stopping telemetry server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
