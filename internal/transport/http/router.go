package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"solrelay/internal/credential"
	"solrelay/internal/platform/metrics"
	"solrelay/internal/platform/middleware"
	"solrelay/pkg/platform/middleware/metadata"
	"solrelay/pkg/platform/middleware/requesttime"
)

// RouteRegistrar mounts one feature's routes. guard wraps the privileged ones.
type RouteRegistrar interface {
	Register(r chi.Router, guard func(http.Handler) http.Handler)
}

// Config carries everything the router needs from the application context.
type Config struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	RequestTimeout time.Duration
	CredentialHdr  string

	// Guards run in order: authentication first, then admission.
	Authenticate func(http.Handler) http.Handler
	Admit        func(http.Handler) http.Handler

	Health     interface{ Register(chi.Router) }
	Registrars []RouteRegistrar
}

// NewRouter wires middleware, the public endpoints and the guarded ones.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Latency(cfg.Metrics))
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", headerOrDefault(cfg.CredentialHdr), middleware.RequestIDHeader},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	guard := chain(cfg.Authenticate, cfg.Admit)
	for _, reg := range cfg.Registrars {
		reg.Register(r, guard)
	}
	return r
}

// chain composes guards so the first one listed runs first. Nil guards are
// skipped.
func chain(guards ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(guards) - 1; i >= 0; i-- {
			if guards[i] != nil {
				next = guards[i](next)
			}
		}
		return next
	}
}

func headerOrDefault(h string) string {
	if h == "" {
		return credential.DefaultHeader
	}
	return h
}
