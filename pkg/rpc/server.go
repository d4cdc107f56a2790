package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/fortiblox/savefi/pkg/logging"
)

// ServerConfig configures the JSON-RPC HTTP endpoint.
type ServerConfig struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64

	// AllowedOrigins lists CORS origins; "*" or an empty list allows any.
	AllowedOrigins []string

	// RateLimitRPS is the per-IP request rate. Zero turns limiting off.
	RateLimitRPS   float64
	RateLimitBurst int

	// TrustedProxies are the peers whose X-Forwarded-For header names the
	// client for rate limiting. Empty means the header is ignored.
	TrustedProxies []netip.Prefix

	Logger logging.Logger
}

func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:        ":8899",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRequestSize: 10 << 20,
		AllowedOrigins: []string{"*"},
		RateLimitBurst: 200,
		Logger:         logging.Nop(),
	}
}

// Server serves Handlers over HTTP POST, single requests and batches.
type Server struct {
	cfg      ServerConfig
	handlers *Handlers
	log      logging.Logger

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

func NewServer(cfg *ServerConfig, handlers *Handlers) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	s := &Server{cfg: *cfg, handlers: handlers, log: cfg.Logger}
	if s.log == nil {
		s.log = logging.Nop()
	}
	return s
}

func (s *Server) Handlers() *Handlers { return s.handlers }

// Handler is the full middleware stack in front of the dispatcher.
func (s *Server) Handler() http.Handler {
	stack := []Middleware{
		RecoveryMiddleware(s.log),
		RequestIDMiddleware(),
		LoggingMiddleware(s.log),
		CORSMiddleware(s.cfg.AllowedOrigins),
	}
	if s.cfg.RateLimitRPS > 0 {
		stack = append(stack, RateLimitMiddleware(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst, s.cfg.TrustedProxies))
	}
	stack = append(stack, ContentTypeMiddleware())
	return Chain(http.HandlerFunc(s.serveHTTP), stack...)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("rpc server already running")
	}
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Address, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.srv, s.ln = srv, ln

	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(context.Background(), "rpc server stopped", "error", err)
		}
	}()
	s.log.Info(context.Background(), "rpc server listening", "addr", ln.Addr().String(), "methods", s.handlers.Methods())
	return nil
}

// Stop drains in-flight requests until ctx ends.
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

func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}

// Addr is the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.cfg.Address
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		s.reply(ctx, w, failure(nil, NewRPCError(InvalidRequest, "only POST method is allowed")))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize))
	if err != nil {
		s.reply(ctx, w, failure(nil, NewRPCError(ParseError, "failed to read request body")))
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		s.reply(ctx, w, s.dispatch(ctx, body))
		return
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		s.reply(ctx, w, failure(nil, NewRPCError(ParseError, "invalid JSON")))
		return
	}
	if len(batch) == 0 {
		s.reply(ctx, w, failure(nil, NewRPCError(InvalidRequest, "empty batch")))
		return
	}
	out := make([]RPCResponse, 0, len(batch))
	for _, raw := range batch {
		// Notifications inside a batch get no response.
		if resp := s.dispatch(ctx, raw); resp.ID != nil {
			out = append(out, resp)
		}
	}
	s.reply(ctx, w, out)
}

func failure(id any, err *RPCError) RPCResponse {
	return RPCResponse{JSONRPC: JSONRPCVersion, Error: err, ID: id}
}

// dispatch runs one request object through its handler.
func (s *Server) dispatch(ctx context.Context, raw []byte) RPCResponse {
	var req RPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return failure(nil, NewRPCError(ParseError, "invalid JSON"))
	}
	if req.JSONRPC != JSONRPCVersion {
		return failure(req.ID, NewRPCError(InvalidRequest, "invalid jsonrpc version"))
	}
	handle := s.handlers.GetHandler(req.Method)
	if handle == nil {
		return failure(req.ID, NewRPCError(MethodNotFound, "method not found: "+req.Method))
	}
	result, rpcErr := handle(ctx, req.Params)
	if rpcErr != nil {
		s.log.Debug(ctx, "rpc error", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
		return failure(req.ID, rpcErr)
	}
	return RPCResponse{JSONRPC: JSONRPCVersion, Result: nullable{result}, ID: req.ID}
}

// nullable keeps "result" in the response when the value is nil, which
// omitempty would otherwise drop.
type nullable struct{ v any }

func (n nullable) MarshalJSON() ([]byte, error) { return json.Marshal(n.v) }

func (s *Server) reply(ctx context.Context, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn(ctx, "write rpc response", "error", err)
	}
}
