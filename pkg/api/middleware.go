package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// statusRecorder captures the response status. It forwards Flush and Hijack
// so streaming and websocket handlers keep working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// observe logs every request and feeds the request metrics
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		elapsed := time.Since(start)
		route := routeName(r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, rec.status, elapsed)
		}

		entry := s.logger.WithFields(map[string]interface{}{
			"method":   r.Method,
			"route":    route,
			"status":   rec.status,
			"duration": elapsed.String(),
			"client":   s.clientKey(r),
		})
		if rec.status >= http.StatusInternalServerError {
			entry.Warn("request failed")
		} else {
			entry.Debug("request served")
		}
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) bool {
	return s.config.CORSOrigin == "*" || strings.EqualFold(origin, s.config.CORSOrigin)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Permitted-Cross-Domain-Policies", "none")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// clientLimiter hands out one token bucket per client address
type clientLimiter struct {
	limit rate.Limit
	burst int

	mutex    sync.Mutex
	clients  map[string]*limiterEntry
	lastScan time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdle = 5 * time.Minute

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		clients:  make(map[string]*limiterEntry),
		lastScan: time.Now(),
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	now := time.Now()
	if now.Sub(l.lastScan) > limiterIdle {
		for k, e := range l.clients {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(l.clients, k)
			}
		}
		l.lastScan = now
	}

	e, ok := l.clients[client]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		if client := s.clientKey(r); !s.limiter.allow(client) {
			w.Header().Set("Retry-After", "1")
			sendError(w, fmt.Errorf("rate limit exceeded for %s", client), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller. Forwarding headers are client-controlled,
// so they are only honored when the server sits behind a trusted proxy.
func (s *Server) clientKey(r *http.Request) string {
	if s.config.TrustProxy {
		return getClientIP(r)
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return remoteHost(r)
}
