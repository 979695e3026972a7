package extractionworker

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	appbootstrap "github.com/wolfman30/dental-report-ai/internal/app/bootstrap"
	appconfig "github.com/wolfman30/dental-report-ai/internal/config"
	"github.com/wolfman30/dental-report-ai/internal/jobs"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

// Run starts the async extraction worker and blocks until ctx is canceled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer) error {
	if cfg == nil {
		return errors.New("extraction worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryQueue {
		return errors.New("extraction worker cannot run when USE_MEMORY_QUEUE=true; the API process runs inline workers instead")
	}

	app, err := appbootstrap.Build(ctx, cfg, logger, appbootstrap.Options{Registerer: reg, WithJobs: true})
	if err != nil {
		return err
	}
	defer app.Close()

	worker, err := app.NewWorker(jobs.WithReceiveWaitSeconds(20), jobs.WithReceiveBatchSize(5))
	if err != nil {
		return err
	}
	worker.Start(ctx)
	logger.Info("extraction worker started", "workers", cfg.WorkerCount, "queue_url", cfg.ReportQueueURL)

	<-ctx.Done()
	return WaitWithTimeout(worker, shutdownTimeout, logger)
}

// WaitWithTimeout waits for the worker goroutines to finish or gives up
// after timeout.
func WaitWithTimeout(worker *jobs.Worker, timeout time.Duration, logger *logging.Logger) error {
	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("extraction worker stopped")
		return nil
	case <-time.After(timeout):
		logger.Error("extraction worker shutdown timed out", "timeout", timeout.String())
		return errors.New("extraction worker shutdown timed out")
	}
}
