package handlers

import (
	"context"
	"embed"
	"html/template"
	"net/http"

	"github.com/wolfman30/dental-report-ai/internal/dify"
	"github.com/wolfman30/dental-report-ai/internal/http/middleware"
	"github.com/wolfman30/dental-report-ai/internal/intake"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

//go:embed templates/diagnostics.html
var templateFS embed.FS

var diagnosticsPage = template.Must(template.ParseFS(templateFS, "templates/diagnostics.html"))

// DiagnosticsClient is the subset of *dify.Client used by the probes.
type DiagnosticsClient interface {
	Ping(ctx context.Context) (*dify.WorkflowResult, error)
	ProbeEmptyFile(ctx context.Context) (*dify.WorkflowResult, error)
	UploadFile(ctx context.Context, name, contentType string, data []byte) (*dify.FileRef, error)
	ProbePatterns(ctx context.Context, variable, fileID string) []dify.Attempt
}

// DiagnosticsConfig describes what the page reports about the deployment.
// The key itself never reaches the handler, only its masked prefix.
type DiagnosticsConfig struct {
	APIKeyConfigured bool
	APIKeyPrefix     string
	InputVariable    string
	MaxUploadBytes   int64
}

// DiagnosticsHandler serves operator probes against the Dify workflow.
type DiagnosticsHandler struct {
	client DiagnosticsClient
	cfg    DiagnosticsConfig
	logger *logging.Logger
}

func NewDiagnosticsHandler(client DiagnosticsClient, cfg DiagnosticsConfig, logger *logging.Logger) *DiagnosticsHandler {
	if client == nil {
		panic("handlers: diagnostics client cannot be nil")
	}
	if cfg.InputVariable == "" {
		cfg.InputVariable = dify.DefaultInputVariable
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = intake.DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DiagnosticsHandler{client: client, cfg: cfg, logger: logger}
}

type pageData struct {
	APIKeyConfigured bool
	APIKeyPrefix     string
	InputVariable    string
	MaxUploadMB      int64
	BasePath         string
	ReportsPath      string
}

// Page renders the HTML upload test page.
func (h *DiagnosticsHandler) Page(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := diagnosticsPage.Execute(w, pageData{
		APIKeyConfigured: h.cfg.APIKeyConfigured,
		APIKeyPrefix:     h.cfg.APIKeyPrefix,
		InputVariable:    h.cfg.InputVariable,
		MaxUploadMB:      h.cfg.MaxUploadBytes >> 20,
		BasePath:         "/api/diagnostics",
		ReportsPath:      "/api/reports",
	})
	if err != nil {
		h.logger.Error("failed to render diagnostics page", "error", err)
	}
}

type connectionResult struct {
	APIKeyConfigured bool     `json:"api_key_configured"`
	APIKeyPrefix     string   `json:"api_key_prefix"`
	Status           int      `json:"workflow_response_status"`
	OK               bool     `json:"workflow_response_ok"`
	Body             any      `json:"workflow_response_body"`
	Error            string   `json:"error,omitempty"`
	Suggestions      []string `json:"suggestions"`
}

// Connection runs the workflow with empty inputs.
func (h *DiagnosticsHandler) Connection(w http.ResponseWriter, r *http.Request) {
	probe := dify.NewProbeReport(h.client.Ping(r.Context()))
	h.logger.Info("diagnostics connection probe", "status", probe.StatusCode, "ok", probe.OK)
	writeJSON(w, http.StatusOK, connectionResult{
		APIKeyConfigured: h.cfg.APIKeyConfigured,
		APIKeyPrefix:     h.cfg.APIKeyPrefix,
		Status:           probe.StatusCode,
		OK:               probe.OK,
		Body:             intake.JSONOrString([]byte(probe.Body)),
		Error:            probe.Error,
		Suggestions:      probe.Suggestions,
	})
}

type noFileAnalysis struct {
	EmptySuccess      bool   `json:"empty_success"`
	NullFileSuccess   bool   `json:"null_file_success"`
	Recommendation    string `json:"recommendation"`
	APIKeyConfigured  bool   `json:"api_key_configured"`
	RecommendedAction string `json:"recommended_action,omitempty"`
}

type noFileResult struct {
	EmptyInputs dify.ProbeReport `json:"empty_inputs"`
	NullFile    dify.ProbeReport `json:"null_file"`
	Analysis    noFileAnalysis   `json:"analysis"`
}

// NoFile runs the empty-input and empty-file probes side by side.
func (h *DiagnosticsHandler) NoFile(w http.ResponseWriter, r *http.Request) {
	empty := dify.NewProbeReport(h.client.Ping(r.Context()))
	nullFile := dify.NewProbeReport(h.client.ProbeEmptyFile(r.Context()))

	analysis := noFileAnalysis{
		EmptySuccess:     empty.OK,
		NullFileSuccess:  nullFile.OK,
		APIKeyConfigured: h.cfg.APIKeyConfigured,
	}
	if empty.OK {
		analysis.Recommendation = "The workflow runs; the file input shape is the problem."
		analysis.RecommendedAction = "POST a PDF to /api/diagnostics/patterns to find an accepted input pattern."
	} else {
		analysis.Recommendation = "The workflow itself or API authentication is failing."
		if len(empty.Suggestions) > 0 {
			analysis.RecommendedAction = empty.Suggestions[len(empty.Suggestions)-1]
		}
	}
	writeJSON(w, http.StatusOK, noFileResult{EmptyInputs: empty, NullFile: nullFile, Analysis: analysis})
}

type patternsResult struct {
	RequestID     string         `json:"request_id"`
	FileID        string         `json:"file_id"`
	InputVariable string         `json:"input_variable"`
	Accepted      []string       `json:"accepted"`
	Attempts      []dify.Attempt `json:"attempts"`
}

// Patterns uploads the PDF and tries every input pattern, reporting each.
func (h *DiagnosticsHandler) Patterns(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFromContext(r.Context())
	req, err := readUpload(w, r, h.cfg.MaxUploadBytes)
	if err != nil {
		writeProcessError(w, requestID, err)
		return
	}
	if err := req.Upload.Validate(h.cfg.MaxUploadBytes); err != nil {
		writeProcessError(w, requestID, err)
		return
	}
	upload := req.Upload.Normalized()

	ref, err := h.client.UploadFile(r.Context(), upload.FileName, upload.ContentType, upload.Data)
	if err != nil {
		writeProcessError(w, requestID, &intake.UpstreamError{Stage: "upload", Err: err})
		return
	}

	attempts := h.client.ProbePatterns(r.Context(), h.cfg.InputVariable, ref.ID)
	accepted := []string{}
	for _, a := range attempts {
		if a.OK {
			accepted = append(accepted, a.Pattern)
		}
	}
	h.logger.Info("diagnostics pattern probe", "request_id", requestID, "file_id", ref.ID, "accepted", accepted)
	writeJSON(w, http.StatusOK, patternsResult{
		RequestID:     requestID,
		FileID:        ref.ID,
		InputVariable: h.cfg.InputVariable,
		Accepted:      accepted,
		Attempts:      attempts,
	})
}
