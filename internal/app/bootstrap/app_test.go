package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-report-ai/internal/archive"
	appconfig "github.com/wolfman30/dental-report-ai/internal/config"
	"github.com/wolfman30/dental-report-ai/internal/jobs"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

func baseConfig() *appconfig.Config {
	return &appconfig.Config{
		DifyBaseURL:       "http://dify.invalid/v1",
		DifyAPIKey:        "app-test-key",
		DifyInputVariable: "orig_mail",
		DifyAppMode:       "workflow",
		DifyTimeout:       time.Second,
		UseMemoryQueue:    true,
		WorkerCount:       1,
		ReportCacheTTL:    time.Hour,
	}
}

func TestBuildMemoryPipeline(t *testing.T) {
	app, err := Build(context.Background(), baseConfig(), logging.Default(), Options{
		Registerer: prometheus.NewRegistry(),
		WithJobs:   true,
	})
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Service)
	assert.NotNil(t, app.Metrics)
	assert.NotNil(t, app.Publisher)
	assert.NotNil(t, app.Mailer)
	assert.Nil(t, app.Redis)
	assert.IsType(t, &archive.MemoryStore{}, app.Blobs)
	assert.IsType(t, &jobs.MemoryQueue{}, app.Queue)
	assert.Empty(t, app.Readiness())

	worker, err := app.NewWorker()
	require.NoError(t, err)
	assert.NotNil(t, worker)
}

func TestBuildWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.RedisAddr = mr.Addr()

	app, err := Build(context.Background(), cfg, nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	require.NotNil(t, app.Redis)
	checks := app.Readiness()
	require.Contains(t, checks, "redis")
	assert.NoError(t, checks["redis"](context.Background()))
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*appconfig.Config)
		jobs   bool
		want   string
	}{
		{name: "bad base url", mutate: func(c *appconfig.Config) { c.DifyBaseURL = "dify.internal" }, want: "invalid base url"},
		{name: "bad mode", mutate: func(c *appconfig.Config) { c.DifyAppMode = "agent" }, want: "unknown app mode"},
		{name: "bad repair provider", mutate: func(c *appconfig.Config) { c.RepairProvider = "openai" }, want: "unknown REPAIR_PROVIDER"},
		{name: "missing rules file", mutate: func(c *appconfig.Config) { c.ExtractionRulesPath = "/nonexistent/rules.yaml" }, want: "load extraction rules"},
		{name: "sqs without url", mutate: func(c *appconfig.Config) { c.UseMemoryQueue = false }, jobs: true, want: "REPORT_QUEUE_URL"},
		{name: "bad email provider", mutate: func(c *appconfig.Config) { c.EmailProvider = "pigeon" }, jobs: true, want: "unknown EMAIL_PROVIDER"},
		{name: "sendgrid without key", mutate: func(c *appconfig.Config) { c.EmailProvider = "sendgrid" }, jobs: true, want: "SENDGRID_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			_, err := Build(context.Background(), cfg, nil, Options{WithJobs: tt.jobs})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildWithoutAPIKey(t *testing.T) {
	cfg := baseConfig()
	cfg.DifyAPIKey = ""
	app, err := Build(context.Background(), cfg, nil, Options{WithJobs: true})
	require.NoError(t, err)
	defer app.Close()
	assert.False(t, app.Dify.Configured())
}

func TestNewWorkerRequiresJobs(t *testing.T) {
	app, err := Build(context.Background(), baseConfig(), nil, Options{})
	require.NoError(t, err)
	_, err = app.NewWorker()
	assert.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	logger := logging.New("error")
	assert.Nil(t, connectRedis(context.Background(), &appconfig.Config{}, logger))

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client := connectRedis(context.Background(), &appconfig.Config{RedisAddr: addr}, logger)
	require.NotNil(t, client)
	defer client.Close()

	mr.Close()
	assert.Nil(t, connectRedis(context.Background(), &appconfig.Config{RedisAddr: addr}, logger))
}
