package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/dental-report-ai/internal/http/middleware"
	"github.com/wolfman30/dental-report-ai/internal/intake"
	"github.com/wolfman30/dental-report-ai/internal/jobs"
	"github.com/wolfman30/dental-report-ai/pkg/logging"
)

// JobEnqueuer is satisfied by *jobs.Publisher.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, upload intake.Upload, notifyEmail string) (*jobs.JobRecord, error)
}

// JobHandler serves the async extraction endpoints.
type JobHandler struct {
	publisher JobEnqueuer
	jobs      jobs.JobRecorder
	maxBytes  int64
	logger    *logging.Logger
}

func NewJobHandler(publisher JobEnqueuer, store jobs.JobRecorder, maxBytes int64, logger *logging.Logger) *JobHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &JobHandler{publisher: publisher, jobs: store, maxBytes: maxBytes, logger: logger}
}

type jobAccepted struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

// Create handles POST /api/reports/jobs.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFromContext(r.Context())

	req, err := readUpload(w, r, h.maxBytes)
	if err != nil {
		writeProcessError(w, requestID, err)
		return
	}

	job, err := h.publisher.Enqueue(r.Context(), req.Upload, req.NotifyEmail)
	if err != nil {
		h.logger.Error("failed to enqueue extraction job", "error", err, "request_id", requestID)
		writeProcessError(w, requestID, err)
		return
	}
	w.Header().Set("Location", "/api/reports/jobs/"+job.JobID)
	writeJSON(w, http.StatusAccepted, jobAccepted{JobID: job.JobID, Status: job.Status})
}

// Get handles GET /api/reports/jobs/{jobID}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		jsonError(w, "job id required", http.StatusBadRequest)
		return
	}
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load job", "error", err, "job_id", jobID)
		jsonError(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
