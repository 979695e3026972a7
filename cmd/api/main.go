package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appbootstrap "github.com/wolfman30/dental-report-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/dental-report-ai/internal/config"
	extractionworker "github.com/wolfman30/dental-report-ai/internal/worker/extraction"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dental-report-ai API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"dify_base_url", cfg.DifyBaseURL,
		"dify_api_key", cfg.APIKeyPrefix(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	metricsHandler, registry := setupMetrics()

	app, err := appbootstrap.Build(ctx, cfg, logger, appbootstrap.Options{Registerer: registry, WithJobs: true})
	if err != nil {
		return err
	}
	defer app.Close()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	stopWorkers, err := startInlineWorker(workerCtx, app)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.NewHTTPHandler(metricsHandler, done),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DifyTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			cancelWorkers()
			stopWorkers()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	cancelWorkers()
	stopWorkers()
	logger.Info("server stopped")
	return nil
}

// setupMetrics registers process collectors plus report metrics on a
// private registry.
func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

// startInlineWorker runs job workers inside the API process when the
// memory queue is in use, since no separate worker can reach it. The
// returned func blocks until the workers exit.
func startInlineWorker(ctx context.Context, app *appbootstrap.App) (func(), error) {
	if !app.Config.UseMemoryQueue {
		return func() {}, nil
	}
	worker, err := app.NewWorker()
	if err != nil {
		return nil, err
	}
	worker.Start(ctx)
	app.Logger.Info("inline extraction worker started", "workers", app.Config.WorkerCount)
	return func() {
		if err := extractionworker.WaitWithTimeout(worker, 30*time.Second, app.Logger); err != nil {
			app.Logger.Warn("inline worker did not stop cleanly", "error", err)
		}
	}, nil
}
