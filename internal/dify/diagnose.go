package dify

import (
	"errors"
	"net/http"
)

// Diagnose maps a workflow response status to operator hints.
func Diagnose(status int) []string {
	switch {
	case status >= 200 && status < 300:
		return []string{"Connection OK: the API key is valid and the workflow is published."}
	case status == http.StatusUnauthorized:
		return []string{
			"The API key is invalid.",
			"Copy the key from the app's API Access page in Dify and set DIFY_API_KEY.",
		}
	case status == http.StatusNotFound:
		return []string{
			"The workflow was not found.",
			"Make sure the workflow is published and the key belongs to a workflow app.",
		}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return []string{
			"The input parameters were rejected.",
			"Check the start node variable name (DIFY_INPUT_VARIABLE) and that it accepts a document file.",
		}
	case status >= 500:
		return []string{
			"Dify returned a server error.",
			"Check the workflow nodes for runtime errors in the Dify logs and retry later.",
		}
	case status == 0:
		return []string{"Dify could not be reached. Check DIFY_BASE_URL and network access."}
	default:
		return []string{"Unexpected status from Dify; inspect the response body."}
	}
}

// NotConfiguredHints is the advice when no API key is set.
func NotConfiguredHints() []string {
	return []string{
		"DIFY_API_KEY is not set.",
		"Set DIFY_API_KEY to the key shown on the workflow app's API Access page and restart the service.",
	}
}

// ProbeReport summarizes a diagnostic workflow call.
type ProbeReport struct {
	StatusCode  int      `json:"status_code"`
	OK          bool     `json:"ok"`
	Body        string   `json:"body"`
	Error       string   `json:"error,omitempty"`
	Suggestions []string `json:"suggestions"`
}

// NewProbeReport folds a workflow call outcome into a ProbeReport.
func NewProbeReport(result *WorkflowResult, err error) ProbeReport {
	var report ProbeReport
	switch {
	case err == nil:
		report.StatusCode = http.StatusOK
		report.OK = true
		if result != nil {
			report.Body = truncate(string(result.Raw), maxErrorBody)
		}
	default:
		report.Error = err.Error()
		report.StatusCode = StatusCode(err)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			report.Body = apiErr.Body
		}
	}
	if errors.Is(err, ErrNotConfigured) {
		report.Suggestions = NotConfiguredHints()
		return report
	}
	report.Suggestions = Diagnose(report.StatusCode)
	return report
}
