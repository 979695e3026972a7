package bootstrap

import (
	"net/http"

	"github.com/wolfman30/dental-report-ai/internal/api/router"
	"github.com/wolfman30/dental-report-ai/internal/http/handlers"
)

// NewHTTPHandler builds the API router over the app. metricsHandler may be
// nil; done stops the rate limiter's sweeper.
func (a *App) NewHTTPHandler(metricsHandler http.Handler, done <-chan struct{}) http.Handler {
	cfg := &router.Config{
		Logger:  a.Logger,
		Reports: handlers.NewReportHandler(a.Service, a.Logger),
		Diagnostics: handlers.NewDiagnosticsHandler(a.Dify, handlers.DiagnosticsConfig{
			APIKeyConfigured: a.Config.DifyAPIKey != "",
			APIKeyPrefix:     a.Config.APIKeyPrefix(),
			InputVariable:    a.Config.DifyInputVariable,
			MaxUploadBytes:   a.Config.MaxUploadBytes,
		}, a.Logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: a.Config.CORSAllowedOrigins,
		AdminAuthSecret:    a.Config.AdminJWTSecret,
		RateLimitRPS:       a.Config.RateLimitRPS,
		RateLimitBurst:     a.Config.RateLimitBurst,
		Readiness:          a.Readiness(),
		Done:               done,
	}
	if a.Publisher != nil {
		cfg.Jobs = handlers.NewJobHandler(a.Publisher, a.Jobs, a.Config.MaxUploadBytes, a.Logger)
	}
	return router.New(cfg)
}
