package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rivulet-io/rivulet/internal/logging"
)

// Server exposes a Prometheus gatherer over HTTP for scraping. The
// gatherer is always explicit, so the worker and tests serve exactly
// the registry they wired their metric bundles into.
type Server struct {
	mu        sync.RWMutex
	addr      string
	boundAddr string
	server    *http.Server
	gatherer  prometheus.Gatherer
}

// NewServer creates a metrics server over the default Prometheus
// registry, where the New… metric bundle constructors register.
// Use addr ":9090" for the default metrics port.
func NewServer(addr string) *Server {
	return NewServerWithRegistry(addr, prometheus.DefaultGatherer)
}

// NewServerWithRegistry creates a metrics server over a specific
// gatherer. Tests pair it with New…WithRegistry bundles to stay off
// the default registry.
func NewServerWithRegistry(addr string, gatherer prometheus.Gatherer) *Server {
	return &Server{
		addr:     addr,
		gatherer: gatherer,
	}
}

// Start binds the listener and begins serving /metrics.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Global().Errorf("metrics server stopped", map[string]any{
				"addr":  s.Addr(),
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Addr returns the actual bound address of the server.
// Returns the configured address if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundAddr != "" {
		return s.boundAddr
	}
	return s.addr
}

// Close shuts down the metrics server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
