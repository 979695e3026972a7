package intake

import (
	"encoding/json"

	"github.com/wolfman30/dental-report-ai/internal/dify"
	"github.com/wolfman30/dental-report-ai/internal/extraction"
)

// Report is the response body for a processed upload.
type Report struct {
	IsSuccess    int               `json:"__is_success"`
	Success      bool              `json:"success"`
	RequestID    string            `json:"request_id"`
	FileName     string            `json:"file_name"`
	FileID       string            `json:"file_id,omitempty"`
	SHA256       string            `json:"sha256,omitempty"`
	InputPattern string            `json:"input_pattern,omitempty"`
	Source       extraction.Source `json:"source"`
	Data         extraction.Fields `json:"data"`
	Missing      []string          `json:"missing"`
	Debug        string            `json:"debug"`
	Cached       bool              `json:"cached"`
	Attempts     []dify.Attempt    `json:"attempts,omitempty"`
	RawResponse  json.RawMessage   `json:"raw_response,omitempty"`
}

func newReport(requestID string, upload Upload, sha string, result extraction.Result) *Report {
	r := &Report{
		Success:   result.Success,
		RequestID: requestID,
		FileName:  upload.FileName,
		SHA256:    sha,
		Source:    result.Source,
		Data:      result.Fields,
		Missing:   result.Missing,
		Debug:     result.Debug(),
	}
	if r.Missing == nil {
		r.Missing = []string{}
	}
	if r.Success {
		r.IsSuccess = 1
	}
	return r
}
