package rpc

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/fortiblox/savefi/pkg/logging"
)

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

// Middleware wraps an HTTP handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares in order.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type requestIDKey struct{}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDMiddleware tags each request with an id, reusing the client's
// X-Request-ID when it sends one.
func RequestIDMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// CORSMiddleware answers preflight requests and sets Access-Control headers
// for the listed origins. An empty list or "*" allows any origin.
func CORSMiddleware(allowedOrigins []string) Middleware {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	_, allowAll := allowed["*"]
	allowAll = allowAll || len(allowed) == 0

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if allowAll {
				h.Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder remembers the status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs each request at debug level.
func LoggingMiddleware(log logging.Logger) Middleware {
	if log == nil {
		log = logging.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			began := time.Now()
			next.ServeHTTP(rec, r)
			log.Debug(r.Context(), "rpc request",
				"request_id", RequestID(r.Context()),
				"remote", r.RemoteAddr,
				"method", r.Method,
				"status", rec.status,
				"duration", time.Since(began),
			)
		})
	}
}

// limiterIdle is how long an unused per-client limiter is kept.
const limiterIdle = 5 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiters hands out one token bucket per client IP.
type ipLimiters struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	clients  map[string]*clientLimiter
	lastScan time.Time
}

func newIPLimiters(rps float64, burst int) *ipLimiters {
	if burst < 1 {
		burst = 1
	}
	return &ipLimiters{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
}

func (l *ipLimiters) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastScan) > limiterIdle {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > limiterIdle {
				delete(l.clients, k)
			}
		}
		l.lastScan = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// clientIP returns the remote host. When that host is a trusted proxy, the
// right-most X-Forwarded-For hop that is not itself trusted is used instead.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !isTrusted(host, trusted) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !isTrusted(hop, trusted) {
			return hop
		}
	}
	return host
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RateLimitMiddleware limits each client IP to requestsPerSecond with the
// given burst. X-Forwarded-For is read only from the trusted proxies.
func RateLimitMiddleware(requestsPerSecond float64, burst int, trusted []netip.Prefix) Middleware {
	limiters := newIPLimiters(requestsPerSecond, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.allow(clientIP(r, trusted), time.Now()) {
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32429,"message":"rate limit exceeded"},"id":null}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RecoveryMiddleware turns a handler panic into a JSON-RPC internal error.
func RecoveryMiddleware(log logging.Logger) Middleware {
	if log == nil {
		log = logging.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				log.Error(r.Context(), "rpc handler panicked", "panic", v, "request_id", RequestID(r.Context()))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"},"id":null}` + "\n"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeMiddleware marks every response as JSON.
func ContentTypeMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			next.ServeHTTP(w, r)
		})
	}
}
