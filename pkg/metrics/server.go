package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fortiblox/savefi/pkg/logging"
)

// Paths served by Server.
const (
	DefaultMetricsPath = "/metrics"
	DefaultHealthPath  = "/health"
)

// HealthFunc reports an error when the node is unhealthy.
type HealthFunc func(ctx context.Context) error

// Server exposes the Prometheus text endpoint and a JSON health probe.
type Server struct {
	metrics *Metrics
	addr    string
	health  HealthFunc
	log     logging.Logger

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

type ServerOption func(*Server)

func WithAddr(addr string) ServerOption { return func(s *Server) { s.addr = addr } }

func WithHealth(fn HealthFunc) ServerOption { return func(s *Server) { s.health = fn } }

func WithLogger(log logging.Logger) ServerOption { return func(s *Server) { s.log = log } }

func NewServer(m *Metrics, opts ...ServerOption) *Server {
	s := &Server{metrics: m, addr: ":9090", log: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler routes GET requests only; other methods get 405.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+DefaultMetricsPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		s.metrics.Expose(w)
	})
	mux.HandleFunc("GET "+DefaultHealthPath, s.serveHealth)
	return mux
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	type report struct {
		Status    string    `json:"status"`
		Message   string    `json:"message,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}
	rep := report{Status: "healthy", Timestamp: time.Now().UTC().Truncate(time.Second)}
	code := http.StatusOK
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			rep.Status, rep.Message, code = "unhealthy", err.Error(), http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("metrics server already running")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       time.Minute,
	}
	s.srv, s.ln = srv, ln

	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(context.Background(), "metrics server stopped", "error", err)
		}
	}()
	s.log.Info(context.Background(), "metrics server listening", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the server down. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr is the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}
