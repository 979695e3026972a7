package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/dental-report-ai/internal/archive"
	"github.com/wolfman30/dental-report-ai/internal/cache"
	"github.com/wolfman30/dental-report-ai/internal/dify"
	"github.com/wolfman30/dental-report-ai/internal/extraction"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

// App modes.
const (
	ModeWorkflow = "workflow"
	ModeChat     = "chat"
)

const defaultChatQuery = "添付の日計表PDFから、社保・国保・後期・自費・保険なしの件数と金額、物販の内容と金額、前回差額を読み取り、JSONで返してください。"

// WorkflowClient is the subset of the Dify client used by the service.
type WorkflowClient interface {
	UploadFile(ctx context.Context, name, contentType string, data []byte) (*dify.FileRef, error)
	RunWorkflowWithPatterns(ctx context.Context, variable, fileID string, patterns []dify.InputPattern) (*dify.PatternRun, error)
	SendChatMessage(ctx context.Context, query string, files []dify.FileRef) (*dify.ChatResult, error)
}

// ResultCache stores reports by content hash.
type ResultCache interface {
	Get(ctx context.Context, sha string) (*cache.Entry, bool, error)
	Set(ctx context.Context, sha string, entry *cache.Entry) error
}

// Archiver keeps uploaded PDFs and extraction records.
type Archiver interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	ArchiveReport(ctx context.Context, record *archive.ReportRecord) error
}

// FieldRepairer restates a raw answer as fields.
type FieldRepairer interface {
	Repair(ctx context.Context, rawText string) (extraction.Fields, error)
}

// Metrics is the subset of observability used by the service.
type Metrics interface {
	ObserveExtraction(source string, success bool)
	ObserveCache(result string)
	ObserveProcessing(mode string, seconds float64)
}

// Config tunes the service.
type Config struct {
	InputVariable       string
	AppMode             string
	ChatQuery           string
	MaxUploadBytes      int64
	AllowSampleFallback bool
	Patterns            []dify.InputPattern
}

// Deps are the collaborators; only Client is required.
type Deps struct {
	Client    WorkflowClient
	Extractor *extraction.Extractor
	Cache     ResultCache
	Archive   Archiver
	Repairer  FieldRepairer
	Metrics   Metrics
	Logger    *logging.Logger
}

// Options are per-call switches.
type Options struct {
	RequestID string
	// IncludeRaw attaches the upstream body to the report.
	IncludeRaw bool
	SkipCache  bool
	// Caller labels the processing metric, e.g. "sync" or "job".
	Caller string
}

// Service turns an uploaded PDF into a Report.
type Service struct {
	cfg       Config
	client    WorkflowClient
	extractor *extraction.Extractor
	cache     ResultCache
	archive   Archiver
	repairer  FieldRepairer
	metrics   Metrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewService wires a Service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("intake: workflow client is required")
	}
	if cfg.InputVariable == "" {
		cfg.InputVariable = dify.DefaultInputVariable
	}
	cfg.AppMode = strings.ToLower(strings.TrimSpace(cfg.AppMode))
	if cfg.AppMode == "" {
		cfg.AppMode = ModeWorkflow
	}
	if cfg.AppMode != ModeWorkflow && cfg.AppMode != ModeChat {
		return nil, fmt.Errorf("intake: unknown app mode %q", cfg.AppMode)
	}
	if cfg.ChatQuery == "" {
		cfg.ChatQuery = defaultChatQuery
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if deps.Extractor == nil {
		deps.Extractor = extraction.New(nil)
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Service{
		cfg:       cfg,
		client:    deps.Client,
		extractor: deps.Extractor,
		cache:     deps.Cache,
		archive:   deps.Archive,
		repairer:  deps.Repairer,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// MaxUploadBytes is the configured size cap.
func (s *Service) MaxUploadBytes() int64 {
	return s.cfg.MaxUploadBytes
}

// Process validates the upload, runs it through Dify and extracts the fields.
// A report with IsSuccess 0 is a normal outcome; errors are reserved for
// invalid uploads and upstream failures.
func (s *Service) Process(ctx context.Context, upload Upload, opts Options) (*Report, error) {
	start := time.Now()
	if opts.RequestID == "" {
		opts.RequestID = uuid.NewString()
	}
	if opts.Caller == "" {
		opts.Caller = "sync"
	}
	logger := s.logger.With("request_id", opts.RequestID)

	if err := upload.Validate(s.cfg.MaxUploadBytes); err != nil {
		return nil, err
	}
	upload = upload.Normalized()
	sha := archive.ContentHash(upload.Data)

	if report := s.cached(ctx, logger, sha, upload, opts); report != nil {
		s.observeProcessing(opts.Caller, start)
		return report, nil
	}

	pdfKey := s.archivePDF(ctx, logger, sha, upload)

	ref, err := s.client.UploadFile(ctx, upload.FileName, upload.ContentType, upload.Data)
	if err != nil {
		s.archiveFailure(ctx, opts.RequestID, sha, pdfKey, upload, err)
		return nil, &UpstreamError{Stage: "upload", Err: err}
	}
	logger.Info("file uploaded to dify", "file_id", ref.ID, "size", len(upload.Data))

	raw, pattern, attempts, err := s.run(ctx, ref)
	if err != nil {
		s.archiveFailure(ctx, opts.RequestID, sha, pdfKey, upload, err)
		return nil, err
	}

	result := s.extractor.Extract(raw)
	if !result.Success || len(result.Missing) > 0 {
		s.repair(ctx, logger, raw, &result)
	}
	if !result.Success && s.cfg.AllowSampleFallback {
		logger.Warn("extraction empty, returning sample data")
		extraction.ApplySample(&result)
	}

	report := newReport(opts.RequestID, upload, sha, result)
	report.FileID = ref.ID
	report.InputPattern = pattern
	report.Attempts = attempts
	if opts.IncludeRaw {
		report.RawResponse = JSONOrString(raw)
	}

	logger.Info("report extracted",
		"source", result.Source,
		"fields", result.Fields.Count(),
		"input_pattern", pattern,
	)

	if result.Success && result.Source != extraction.SourceSample && s.cache != nil {
		entry := &cache.Entry{
			FileID:       ref.ID,
			InputPattern: pattern,
			Source:       result.Source,
			Fields:       result.Fields,
			Missing:      result.Missing,
			Debug:        report.Debug,
		}
		if err := s.cache.Set(ctx, sha, entry); err != nil {
			logger.Warn("cache write failed", "error", err)
		}
	}

	if s.archive != nil {
		record := &archive.ReportRecord{
			RequestID:    opts.RequestID,
			SHA256:       sha,
			FileName:     upload.FileName,
			FileSize:     len(upload.Data),
			PDFKey:       pdfKey,
			ArchivedAt:   s.now(),
			InputPattern: pattern,
			Source:       result.Source,
			Success:      result.Success,
			Fields:       result.Fields,
			Missing:      result.Missing,
			RawResponse:  JSONOrString(raw),
		}
		if err := s.archive.ArchiveReport(ctx, record); err != nil {
			logger.Warn("archive report failed", "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveExtraction(string(result.Source), result.Success)
	}
	s.observeProcessing(opts.Caller, start)
	return report, nil
}

func (s *Service) run(ctx context.Context, ref *dify.FileRef) ([]byte, string, []dify.Attempt, error) {
	if s.cfg.AppMode == ModeChat {
		chat, err := s.client.SendChatMessage(ctx, s.cfg.ChatQuery, []dify.FileRef{*ref})
		if err != nil {
			return nil, "", nil, &UpstreamError{Stage: "chat", Err: err}
		}
		return chat.Raw, ModeChat, nil, nil
	}

	run, err := s.client.RunWorkflowWithPatterns(ctx, s.cfg.InputVariable, ref.ID, s.cfg.Patterns)
	if err != nil {
		var attempts []dify.Attempt
		if run != nil {
			attempts = run.Attempts
		}
		return nil, "", attempts, &UpstreamError{Stage: "workflow", Attempts: attempts, Err: err}
	}
	return run.Result.Raw, run.Pattern, run.Attempts, nil
}

func (s *Service) repair(ctx context.Context, logger *logging.Logger, raw []byte, result *extraction.Result) {
	if s.repairer == nil {
		return
	}
	fields, err := s.repairer.Repair(ctx, string(raw))
	if err != nil {
		logger.Warn("llm repair failed", "error", err)
		result.Steps = append(result.Steps, "repair: failed")
		return
	}
	result.Merge(fields, extraction.SourceRepair, "repair")
}

// cached returns the stored report for sha. Entries carry no raw Dify
// response, so debug requests always go upstream.
func (s *Service) cached(ctx context.Context, logger *logging.Logger, sha string, upload Upload, opts Options) *Report {
	if s.cache == nil || opts.SkipCache || opts.IncludeRaw {
		return nil
	}
	entry, ok, err := s.cache.Get(ctx, sha)
	switch {
	case err != nil:
		logger.Warn("cache read failed", "error", err)
		s.observeCache("error")
		return nil
	case !ok:
		s.observeCache("miss")
		return nil
	}
	s.observeCache("hit")
	logger.Info("report served from cache", "sha256", sha)

	result := extraction.Result{Fields: entry.Fields, Source: entry.Source, Success: !entry.Fields.IsEmpty(), Missing: entry.Missing}
	report := newReport(opts.RequestID, upload, sha, result)
	report.FileID = entry.FileID
	report.InputPattern = entry.InputPattern
	report.Debug = entry.Debug
	report.Cached = true
	return report
}

func (s *Service) archivePDF(ctx context.Context, logger *logging.Logger, sha string, upload Upload) string {
	if s.archive == nil {
		return ""
	}
	key := archive.PDFKey(sha, s.now())
	if err := s.archive.Put(ctx, key, upload.ContentType, upload.Data); err != nil {
		logger.Warn("archive pdf failed", "error", err)
		return ""
	}
	return key
}

func (s *Service) archiveFailure(ctx context.Context, requestID, sha, pdfKey string, upload Upload, cause error) {
	if s.metrics != nil {
		s.metrics.ObserveExtraction("upstream_error", false)
	}
	if s.archive == nil {
		return
	}
	record := &archive.ReportRecord{
		RequestID:  requestID,
		SHA256:     sha,
		FileName:   upload.FileName,
		FileSize:   len(upload.Data),
		PDFKey:     pdfKey,
		ArchivedAt: s.now(),
		Source:     extraction.SourceNone,
		Error:      cause.Error(),
	}
	if err := s.archive.ArchiveReport(ctx, record); err != nil {
		s.logger.Warn("archive failure record failed", "error", err, "request_id", requestID)
	}
}

func (s *Service) observeCache(result string) {
	if s.metrics != nil {
		s.metrics.ObserveCache(result)
	}
}

func (s *Service) observeProcessing(caller string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveProcessing(caller, time.Since(start).Seconds())
	}
}
