package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/dental-report-ai/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/dental-report-ai/internal/http/middleware"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck = func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Reports        *handlers.ReportHandler
	Jobs           *handlers.JobHandler
	Diagnostics    *handlers.DiagnosticsHandler
	MetricsHandler http.Handler

	CORSAllowedOrigins []string
	AdminAuthSecret    string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Readiness checks keyed by dependency name, e.g. "redis".
	Readiness map[string]ReadinessCheck

	// Done stops background middleware goroutines.
	Done <-chan struct{}
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.MethodNotAllowed(handlers.MethodNotAllowed)
	r.NotFound(handlers.NotFound)

	r.Get("/health", health)
	r.Get("/ready", ready(cfg.Readiness))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Group(func(reports chi.Router) {
			reports.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.Done))
			if cfg.Reports != nil {
				reports.Post("/reports", cfg.Reports.Create)
			}
			if cfg.Jobs != nil {
				reports.Post("/reports/jobs", cfg.Jobs.Create)
				reports.Get("/reports/jobs/{jobID}", cfg.Jobs.Get)
			}
		})

		if cfg.Diagnostics != nil {
			api.Route("/diagnostics", func(diag chi.Router) {
				diag.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
				diag.Get("/", cfg.Diagnostics.Page)
				diag.Get("/connection", cfg.Diagnostics.Connection)
				diag.Post("/no-file", cfg.Diagnostics.NoFile)
				diag.Post("/patterns", cfg.Diagnostics.Patterns)
			})
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

func ready(checks map[string]ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		writeReady(w, status, results)
	}
}
