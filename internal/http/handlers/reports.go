package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/wolfman30/dental-report-ai/internal/http/middleware"
	"github.com/wolfman30/dental-report-ai/internal/intake"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

// ReportProcessor is satisfied by *intake.Service.
type ReportProcessor interface {
	Process(ctx context.Context, upload intake.Upload, opts intake.Options) (*intake.Report, error)
	MaxUploadBytes() int64
}

// ReportHandler serves synchronous extraction.
type ReportHandler struct {
	service ReportProcessor
	logger  *logging.Logger
}

func NewReportHandler(service ReportProcessor, logger *logging.Logger) *ReportHandler {
	if service == nil {
		panic("handlers: report service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReportHandler{service: service, logger: logger}
}

// Create handles POST /api/reports. ?debug=1 attaches the raw upstream body
// and ?nocache=1 skips the result cache.
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFromContext(r.Context())

	req, err := readUpload(w, r, h.service.MaxUploadBytes())
	if err != nil {
		writeProcessError(w, requestID, err)
		return
	}

	report, err := h.service.Process(r.Context(), req.Upload, intake.Options{
		RequestID:  requestID,
		IncludeRaw: queryFlag(r, "debug"),
		SkipCache:  queryFlag(r, "nocache"),
		Caller:     "sync",
	})
	if err != nil {
		h.logger.Warn("report extraction failed", "error", err, "request_id", requestID, "status", statusFor(err))
		writeProcessError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func queryFlag(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
