package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/dental-report-ai/cmd/mainconfig"
	"github.com/wolfman30/dental-report-ai/internal/archive"
	"github.com/wolfman30/dental-report-ai/internal/cache"
	appconfig "github.com/wolfman30/dental-report-ai/internal/config"
	"github.com/wolfman30/dental-report-ai/internal/dify"
	"github.com/wolfman30/dental-report-ai/internal/extraction"
	"github.com/wolfman30/dental-report-ai/internal/intake"
	"github.com/wolfman30/dental-report-ai/internal/jobs"
	"github.com/wolfman30/dental-report-ai/internal/notify"
	"github.com/wolfman30/dental-report-ai/internal/observability/metrics"
	"github.com/wolfman30/dental-report-ai/internal/repair"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

// JobStore is what both the API and the worker need from job persistence.
type JobStore interface {
	jobs.JobRecorder
	jobs.JobUpdater
}

// App holds the wired report pipeline shared by every binary.
type App struct {
	Config    *appconfig.Config
	Logger    *logging.Logger
	Metrics   *metrics.ReportMetrics
	Dify      *dify.Client
	Extractor *extraction.Extractor
	Service   *intake.Service
	Redis     *redis.Client

	// Blobs holds queued uploads; it is S3 when ARCHIVE_BUCKET is set.
	Blobs     archive.BlobStore
	Jobs      JobStore
	Queue     jobs.Queue
	Publisher *jobs.Publisher
	Mailer    *notify.ReportMailer

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error
	closers []func() error
}

// Options controls optional parts of Build.
type Options struct {
	// Registerer receives the report metrics; nil skips registration.
	Registerer prometheus.Registerer
	// WithJobs wires the queue, job store and publisher.
	WithJobs bool
}

// Build wires the report pipeline from configuration.
func Build(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	if opts.Registerer != nil {
		app.Metrics = metrics.NewReportMetrics(opts.Registerer)
	}

	rules := extraction.DefaultRules()
	if cfg.ExtractionRulesPath != "" {
		loaded, err := extraction.LoadRulesFile(cfg.ExtractionRulesPath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load extraction rules: %w", err)
		}
		rules = loaded
	}
	app.Extractor = extraction.New(rules)

	var difyOpts []dify.Option
	if app.Metrics != nil {
		difyOpts = append(difyOpts, dify.WithObserver(app.Metrics))
	}
	client, err := dify.NewClient(dify.Config{
		BaseURL: cfg.DifyBaseURL,
		APIKey:  cfg.DifyAPIKey,
		User:    cfg.DifyUser,
		Timeout: cfg.DifyTimeout,
	}, difyOpts...)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	app.Dify = client
	if !client.Configured() {
		logger.Warn("DIFY_API_KEY is not set; extraction requests will fail until it is configured")
	}

	deps := intake.Deps{
		Client:    client,
		Extractor: app.Extractor,
		Logger:    logger,
	}
	if app.Metrics != nil {
		deps.Metrics = app.Metrics
	}

	if app.Redis = connectRedis(ctx, cfg, logger); app.Redis != nil {
		deps.Cache = cache.NewStore(app.Redis, cfg.ReportCacheTTL)
		app.closers = append(app.closers, app.Redis.Close)
		logger.Info("report cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.ReportCacheTTL.String())
	}

	archiveStore, err := app.buildArchive(ctx)
	if err != nil {
		return nil, err
	}
	if archiveStore != nil {
		deps.Archive = archiveStore
		app.Blobs = archiveStore
	} else {
		app.Blobs = archive.NewMemoryStore()
	}

	repairer, err := app.buildRepairer(ctx)
	if err != nil {
		return nil, err
	}
	if repairer != nil {
		deps.Repairer = repairer
	}

	app.Service, err = intake.NewService(intake.Config{
		InputVariable:       cfg.DifyInputVariable,
		AppMode:             cfg.DifyAppMode,
		MaxUploadBytes:      cfg.MaxUploadBytes,
		AllowSampleFallback: cfg.AllowSampleFallback,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	if opts.WithJobs {
		if err := app.buildJobs(ctx); err != nil {
			return nil, err
		}
	}

	logger.Info("report pipeline configured",
		"dify_base_url", cfg.DifyBaseURL,
		"dify_key_prefix", cfg.APIKeyPrefix(),
		"app_mode", cfg.DifyAppMode,
		"input_variable", cfg.DifyInputVariable,
		"archive", archiveStore != nil,
		"repair_provider", cfg.RepairProvider,
		"sample_fallback", cfg.AllowSampleFallback,
	)
	return app, nil
}

// AWSConfig loads the shared AWS configuration once.
func (a *App) AWSConfig(ctx context.Context) (aws.Config, error) {
	a.awsOnce.Do(func() {
		a.awsCfg, a.awsErr = mainconfig.LoadAWSConfig(ctx, a.Config)
	})
	if a.awsErr != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load AWS config: %w", a.awsErr)
	}
	return a.awsCfg, nil
}

func (a *App) buildArchive(ctx context.Context) (*archive.Store, error) {
	if a.Config.ArchiveBucket == "" {
		return nil, nil
	}
	awsCfg, err := a.AWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = a.Config.AWSEndpointOverride != ""
	})
	return archive.NewStore(client, a.Config.ArchiveBucket, a.Logger.Logger), nil
}

func (a *App) buildRepairer(ctx context.Context) (*repair.Repairer, error) {
	var completer repair.Completer
	switch a.Config.RepairProvider {
	case "":
		return nil, nil
	case "bedrock":
		awsCfg, err := a.AWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		c, err := repair.NewBedrockCompleter(bedrockruntime.NewFromConfig(awsCfg), a.Config.BedrockModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		completer = c
	case "gemini":
		c, err := repair.NewGeminiCompleter(ctx, a.Config.GeminiAPIKey, a.Config.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		a.closers = append(a.closers, c.Close)
		completer = c
	default:
		return nil, fmt.Errorf("bootstrap: unknown REPAIR_PROVIDER %q", a.Config.RepairProvider)
	}
	return repair.NewRepairer(completer, a.Extractor, a.Logger.Logger), nil
}

func (a *App) buildJobs(ctx context.Context) error {
	if a.Config.UseMemoryQueue {
		a.Queue = jobs.NewMemoryQueue(0)
		a.Jobs = jobs.NewMemoryJobStore()
	} else {
		if a.Config.ReportQueueURL == "" {
			return errors.New("bootstrap: REPORT_QUEUE_URL is required unless USE_MEMORY_QUEUE=true")
		}
		awsCfg, err := a.AWSConfig(ctx)
		if err != nil {
			return err
		}
		a.Queue = jobs.NewSQSQueue(sqs.NewFromConfig(awsCfg), a.Config.ReportQueueURL)
		a.Jobs = jobs.NewJobStore(dynamodb.NewFromConfig(awsCfg), a.Config.ReportJobsTable, a.Logger)
		if _, inMemory := a.Blobs.(*archive.MemoryStore); inMemory {
			return errors.New("bootstrap: ARCHIVE_BUCKET is required for SQS-backed jobs")
		}
	}
	a.Publisher = jobs.NewPublisher(a.Queue, a.Jobs, a.Blobs, a.Config.MaxUploadBytes, a.Logger)

	mailer, err := a.buildMailer(ctx)
	if err != nil {
		return err
	}
	a.Mailer = mailer
	return nil
}

func (a *App) buildMailer(ctx context.Context) (*notify.ReportMailer, error) {
	cfg := a.Config
	from := notify.Sender{Address: cfg.EmailFrom, Name: cfg.EmailFromName}
	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "":
		sender = notify.NewStubEmailSender(a.Logger)
	case "sendgrid":
		if cfg.SendGridAPIKey == "" || cfg.EmailFrom == "" {
			return nil, errors.New("bootstrap: SENDGRID_API_KEY and EMAIL_FROM are required for sendgrid")
		}
		sender = notify.NewSendGridSender(notify.SendGridConfig{APIKey: cfg.SendGridAPIKey, From: from}, a.Logger)
	case "ses":
		if cfg.EmailFrom == "" {
			return nil, errors.New("bootstrap: EMAIL_FROM is required for ses")
		}
		awsCfg, err := a.AWSConfig(ctx)
		if err != nil {
			return nil, err
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{From: from}, a.Logger)
	default:
		return nil, fmt.Errorf("bootstrap: unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
	return notify.NewReportMailer(sender, a.Extractor.Rules(), a.Logger), nil
}

// NewWorker builds a job worker over the app's queue. Build must have been
// called with WithJobs.
func (a *App) NewWorker(opts ...jobs.WorkerOption) (*jobs.Worker, error) {
	if a.Queue == nil || a.Jobs == nil {
		return nil, errors.New("bootstrap: jobs are not configured")
	}
	base := []jobs.WorkerOption{jobs.WithWorkerCount(a.Config.WorkerCount)}
	if a.Mailer != nil {
		base = append(base, jobs.WithNotifier(a.Mailer))
	}
	if a.Metrics != nil {
		base = append(base, jobs.WithMetrics(a.Metrics))
	}
	return jobs.NewWorker(a.Service, a.Queue, a.Jobs, a.Blobs, a.Logger, append(base, opts...)...), nil
}

// Readiness returns dependency checks for the /ready endpoint.
func (a *App) Readiness() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases clients opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
