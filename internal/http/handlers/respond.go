package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wolfman30/dental-report-ai/internal/dify"
	"github.com/wolfman30/dental-report-ai/internal/intake"
	"github.com/wolfman30/dental-report-ai/internal/jobs"
)

// errorBody is the failure envelope every handler emits.
type errorBody struct {
	IsSuccess  int    `json:"__is_success"`
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	RequestID  string `json:"request_id,omitempty"`
	Upstream   int    `json:"upstream_status,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Debug      string `json:"debug"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, errorBody{Error: msg, Debug: msg})
}

// MethodNotAllowed is the router's 405 handler.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// NotFound is the router's 404 handler.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	jsonError(w, "Not found", http.StatusNotFound)
}

// statusFor maps processing errors to HTTP status codes.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	var upstream *intake.UpstreamError
	var apiErr *dify.APIError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, intake.ErrEmptyUpload),
		errors.Is(err, jobs.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, intake.ErrTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, intake.ErrNotPDF):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, dify.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstream), errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeProcessError(w http.ResponseWriter, requestID string, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), RequestID: requestID, Debug: debugDetail(err)}
	switch status {
	case http.StatusInternalServerError:
		body.Error = "internal error"
	case http.StatusServiceUnavailable:
		hints := dify.NotConfiguredHints()
		body.Suggestion = hints[len(hints)-1]
	case http.StatusBadGateway:
		body.Upstream = dify.StatusCode(err)
		if hints := dify.Diagnose(body.Upstream); len(hints) > 0 {
			body.Suggestion = hints[len(hints)-1]
		}
	}
	writeJSON(w, status, body)
}

// debugDetail describes where a request failed: the pipeline stage and the
// upstream status and body for Dify failures, the validation message
// otherwise.
func debugDetail(err error) string {
	var upstream *intake.UpstreamError
	var apiErr *dify.APIError
	stage := "request"
	if errors.As(err, &upstream) {
		stage = upstream.Stage
	}
	switch {
	case errors.Is(err, dify.ErrNotConfigured):
		return fmt.Sprintf("stage=%s: %s", stage, strings.Join(dify.NotConfiguredHints(), " "))
	case errors.As(err, &apiErr):
		return fmt.Sprintf("stage=%s status=%d endpoint=%s body=%s", stage, apiErr.StatusCode, apiErr.Endpoint, apiErr.Body)
	case upstream != nil:
		return fmt.Sprintf("stage=%s: %v", stage, upstream.Err)
	case statusFor(err) == http.StatusInternalServerError:
		return "stage=" + stage + ": unexpected error, see server logs for request id"
	default:
		return err.Error()
	}
}
