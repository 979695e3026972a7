package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/dental-report-ai/internal/archive"
	"github.com/wolfman30/dental-report-ai/internal/intake"
	"github.com/wolfman30/dental-report-ai/internal/notify"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

// Processor is satisfied by *intake.Service.
type Processor interface {
	Process(ctx context.Context, upload intake.Upload, opts intake.Options) (*intake.Report, error)
}

// ReportNotifier emails a job summary.
type ReportNotifier interface {
	SendReport(ctx context.Context, to string, summary notify.ReportSummary) error
}

// Metrics counts finished jobs.
type Metrics interface {
	ObserveJob(status string)
}

// Worker consumes extraction jobs from the queue.
type Worker struct {
	processor Processor
	queue     Queue
	jobs      JobUpdater
	blobs     archive.BlobStore
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	jobTimeout       time.Duration
	notifier         ReportNotifier
	metrics          Metrics
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 1
	defaultJobTimeout    = 5 * time.Minute
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithJobTimeout bounds a single extraction.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(cfg *workerConfig) {
		if d > 0 {
			cfg.jobTimeout = d
		}
	}
}

// WithNotifier emails results for jobs that asked for it.
func WithNotifier(n ReportNotifier) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.notifier = n
	}
}

func WithMetrics(m Metrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// NewWorker constructs a queue consumer around the provided processor.
func NewWorker(processor Processor, queue Queue, jobs JobUpdater, blobs archive.BlobStore, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("jobs: processor cannot be nil")
	}
	if queue == nil {
		panic("jobs: queue cannot be nil")
	}
	if jobs == nil {
		panic("jobs: job store cannot be nil")
	}
	if blobs == nil {
		panic("jobs: blob store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		jobTimeout:       defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		processor: processor,
		queue:     queue,
		jobs:      jobs,
		blobs:     blobs,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("extraction worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("extraction worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive extraction jobs", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage processes one queue message end to end. It is exported so a
// Lambda SQS trigger can drive the same path without polling.
func (w *Worker) HandleMessage(ctx context.Context, msg Message) {
	defer w.deleteMessage(msg.ReceiptHandle)

	payload, err := decodePayload(msg.Body)
	if err != nil {
		w.logger.Error("failed to decode extraction job", "error", err, "msg_id", msg.ID)
		return
	}
	logger := w.logger.With("job_id", payload.JobID)
	logger.Info("worker processing job", "msg_id", msg.ID, "file_name", payload.FileName)

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.jobTimeout)
	defer cancel()

	data, err := w.blobs.Get(jobCtx, payload.BlobKey)
	if err != nil {
		w.fail(jobCtx, logger, payload, "load upload: "+err.Error())
		return
	}

	report, err := w.processor.Process(jobCtx, intake.Upload{
		FileName:    payload.FileName,
		ContentType: payload.ContentType,
		Data:        data,
	}, intake.Options{RequestID: payload.JobID, Caller: "job"})
	if err != nil {
		w.fail(jobCtx, logger, payload, err.Error())
		return
	}

	if err := w.jobs.MarkCompleted(jobCtx, payload.JobID, report); err != nil {
		logger.Error("failed to update job status", "error", err)
	}
	w.observe(string(StatusCompleted))
	logger.Info("extraction job completed", "source", report.Source, "success", report.Success)

	w.notify(jobCtx, logger, payload, notify.ReportSummary{
		JobID:    payload.JobID,
		FileName: payload.FileName,
		Source:   report.Source,
		Success:  report.Success,
		Fields:   report.Data,
		Missing:  report.Missing,
	})
}

func (w *Worker) fail(ctx context.Context, logger *logging.Logger, payload Payload, reason string) {
	logger.Error("extraction job failed", "error", reason)
	if err := w.jobs.MarkFailed(ctx, payload.JobID, reason); err != nil {
		logger.Error("failed to update job status", "error", err)
	}
	w.observe(string(StatusFailed))
	w.notify(ctx, logger, payload, notify.ReportSummary{
		JobID:    payload.JobID,
		FileName: payload.FileName,
		Error:    reason,
	})
}

func (w *Worker) notify(ctx context.Context, logger *logging.Logger, payload Payload, summary notify.ReportSummary) {
	if w.cfg.notifier == nil || payload.NotifyEmail == "" {
		return
	}
	if err := w.cfg.notifier.SendReport(ctx, payload.NotifyEmail, summary); err != nil {
		logger.Warn("report email failed", "error", err)
	}
}

func (w *Worker) observe(status string) {
	if w.cfg.metrics != nil {
		w.cfg.metrics.ObserveJob(status)
	}
}

func (w *Worker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete extraction job message", "error", err)
	}
}
