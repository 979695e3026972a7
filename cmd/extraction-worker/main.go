package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := extractionworker.Run(ctx, cfg, logger, prometheus.DefaultRegisterer); err != nil {
		logger.Error("extraction worker failed", "error", err)
		os.Exit(1)
	}
}
