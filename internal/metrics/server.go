package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the optional /metrics HTTP exporter started by the lifecycle
// facade when config.starbeam.metrics_addr is non-empty.
type Server struct {
	httpServer *http.Server
}

// NewServer builds an exporter bound to addr, serving m's registry at
// /metrics.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Start runs the exporter until Shutdown is called. It is meant to be
// launched in its own goroutine; ListenAndServe's ErrServerClosed is
// swallowed since that is the expected outcome of a clean Shutdown.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the exporter.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
