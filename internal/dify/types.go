package dify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FileRef is the upload response.
type FileRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`
	MimeType  string `json:"mime_type"`
}

type workflowRequest struct {
	Inputs       map[string]any `json:"inputs"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
}

type chatFile struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	UploadFileID   string `json:"upload_file_id"`
}

type chatRequest struct {
	Inputs       map[string]any `json:"inputs"`
	Query        string         `json:"query"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
	Files        []chatFile     `json:"files,omitempty"`
}

// WorkflowResult keeps the raw body alongside the few envelope fields we read.
// The outputs shape belongs to whoever edits the workflow, so extraction
// works from Raw.
type WorkflowResult struct {
	RunID  string
	TaskID string
	Status string
	Error  string
	Raw    json.RawMessage
}

// ChatResult is the blocking chat-messages response.
type ChatResult struct {
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	Answer         string          `json:"answer"`
	Raw            json.RawMessage `json:"-"`
}

func decodeWorkflowResult(raw []byte) *WorkflowResult {
	out := &WorkflowResult{Raw: raw}
	var envelope struct {
		WorkflowRunID string `json:"workflow_run_id"`
		TaskID        string `json:"task_id"`
		Data          struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		out.RunID = envelope.WorkflowRunID
		out.TaskID = envelope.TaskID
		out.Status = envelope.Data.Status
		out.Error = envelope.Data.Error
	}
	return out
}

// APIError is a non-2xx answer from Dify.
type APIError struct {
	Endpoint   string
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func newAPIError(endpoint string, status int, body []byte) *APIError {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	apiErr := &APIError{Endpoint: endpoint, StatusCode: status, Body: text}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	}
	return apiErr
}

func (e *APIError) Error() string {
	detail := e.Message
	if detail == "" {
		detail = e.Body
	}
	if e.Code != "" {
		return fmt.Sprintf("dify: %s returned %d (%s): %s", e.Endpoint, e.StatusCode, e.Code, detail)
	}
	return fmt.Sprintf("dify: %s returned %d: %s", e.Endpoint, e.StatusCode, detail)
}

// IsInputError reports whether the status means the inputs were rejected,
// which is worth retrying with a different input shape.
func (e *APIError) IsInputError() bool {
	return e.StatusCode == 400 || e.StatusCode == 422
}

// StatusCode extracts the upstream status from err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
