package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taar-app/ticketsync/internal/proxy"
	"github.com/taar-app/ticketsync/pkg/health"
	"github.com/taar-app/ticketsync/pkg/middleware"
)

const serviceName = "ticketsync"

// RouterConfig holds the HTTP-facing settings of the router.
type RouterConfig struct {
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration

	// PprofAllowed enables /debug/pprof for these peers. Nil leaves it
	// unmounted.
	PprofAllowed []netip.Prefix
}

// NewRouter creates a chi router serving the relay endpoints, the session
// API, health checks and metrics. ctx bounds background work of the
// middleware stack.
func NewRouter(
	ctx context.Context,
	cfg RouterConfig,
	relay *proxy.Handler,
	sessions *SessionHandler,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger, "/health", "/metrics"))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	if cfg.PprofAllowed != nil {
		middleware.RegisterPprof(r, cfg.PprofAllowed, logger)
	}

	limit := middleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NoStore())
		r.Use(limit)
		relay.Register(r)
	})

	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSAllowedOrigins
	}
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(middleware.CORS(cors))
		r.Use(middleware.NoStore())
		r.Use(limit)

		r.Post("/", sessions.Create)
		r.Get("/{id}", sessions.Get)
		r.Post("/{id}/commands", sessions.Command)
		r.Delete("/{id}", sessions.Delete)
	})

	return r
}
