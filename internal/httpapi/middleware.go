package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/metrics"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDFrom returns the request id set by the middleware, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestID propagates X-Request-ID, minting one when absent.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// recovery turns a handler panic into a 500.
func recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("panic recovered", "panic", p, "path", r.URL.Path, "request_id", RequestIDFrom(r.Context()))
				writeInternal(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", time.Since(start),
			"request_id", RequestIDFrom(r.Context()),
			"tenant", r.Header.Get(headerTenant),
		)
	})
}

// instrument records request metrics labeled by route template, so ids in
// paths never explode label cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.metrics.IncRequestsInFlight()
		defer s.metrics.DecRequestsInFlight()

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.RecordHTTPRequest(r.Method, route, rw.status, time.Since(start))
	})
}

// RateLimiter keeps one token bucket per tenant, keyed by X-Tenant-ID, so a
// noisy tenant cannot starve the others. Requests without the header share
// one bucket.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	metrics *metrics.Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter allows rps requests per second with the given burst to
// each tenant. m may be nil.
func NewRateLimiter(rps float64, burst int, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		metrics:  m,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiter(tenantID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[tenantID] = l
	}
	return l
}

// Limit rejects requests over the tenant's rate with 429.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(headerTenant))
		if !rl.limiter(tenant).Allow() {
			slog.Warn("rate limit exceeded", "path", r.URL.Path, "tenant", tenant, "remote_addr", r.RemoteAddr)
			rl.metrics.RecordRateLimited()
			w.Header().Set("Retry-After", strconv.Itoa(1))
			writeMessage(w, http.StatusTooManyRequests, "Too many requests.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
