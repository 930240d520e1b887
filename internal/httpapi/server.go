// Package httpapi exposes the sync endpoints over HTTP.
//
// Routes:
//
//	POST /api/sync/push              apply a mutation batch
//	POST /api/sync/pull              read the change feed
//	POST /api/invoices/range/claim   lease invoice ranges
//	GET  /api/billing/quota          quota snapshot
//	GET  /healthz                    store liveness
//	GET  /metrics                    Prometheus (when enabled)
//
// The actor comes from the X-Tenant-ID and X-User-ID headers; the channel
// from X-Source-Channel. Authentication happens in front of this server.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/changes"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/intake"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/metrics"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/schema"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

const defaultMaxBodyBytes = 5 << 20

// Server routes requests to the sync services.
type Server struct {
	router    *mux.Router
	intake    *intake.Service
	feed      *changes.Feed
	store     *store.Store
	validator *schema.Validator
	metrics   *metrics.Metrics
	limiter   *RateLimiter

	maxBodyBytes int64
	metricsPath  string
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves them on path.
func WithMetrics(m *metrics.Metrics, path string) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsPath = path
	}
}

// WithRateLimit throttles the /api routes.
func WithRateLimit(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithMaxBodyBytes caps request bodies. Default 5 MiB.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

// WithValidator replaces the request body validator.
func WithValidator(v *schema.Validator) Option {
	return func(s *Server) { s.validator = v }
}

// New creates a Server with its routes installed.
func New(svc *intake.Service, feed *changes.Feed, st *store.Store, opts ...Option) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		intake:       svc,
		feed:         feed,
		store:        st,
		maxBodyBytes: defaultMaxBodyBytes,
		metricsPath:  "/metrics",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = schema.MustNewValidator()
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(recovery, requestID, logging, s.instrument)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle(s.metricsPath, s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.Limit)
	}
	api.HandleFunc("/sync/push", s.handlePush).Methods(http.MethodPost)
	api.HandleFunc("/sync/pull", s.handlePull).Methods(http.MethodPost)
	api.HandleFunc("/invoices/range/claim", s.handleClaim).Methods(http.MethodPost)
	api.HandleFunc("/billing/quota", s.handleQuota).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Endpoint not found.")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})
}
