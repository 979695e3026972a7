package dify

import (
	"context"
	"errors"
	"fmt"
)

// DefaultInputVariable is the workflow start-node variable holding the PDF.
const DefaultInputVariable = "orig_mail"

// Pattern names, in the order they are tried.
const (
	PatternDocumentObject  = "document_object"
	PatternDocumentMime    = "document_with_mime"
	PatternFileIDOnly      = "file_id_only"
	PatternAltFileVariable = "alt_file_variable"
)

// InputPattern builds one candidate inputs object for an uploaded file.
type InputPattern struct {
	Name  string
	Build func(variable, fileID string) map[string]any
}

// Attempt records one workflow run made while probing input patterns.
type Attempt struct {
	Pattern    string         `json:"pattern"`
	Inputs     map[string]any `json:"inputs"`
	StatusCode int            `json:"status_code"`
	OK         bool           `json:"ok"`
	Body       string         `json:"body,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ErrNoPatternAccepted is returned when every input pattern was rejected.
var ErrNoPatternAccepted = errors.New("dify: no input pattern accepted")

func documentInput(fileID string) map[string]any {
	return map[string]any{
		"type":            "document",
		"transfer_method": "local_file",
		"upload_file_id":  fileID,
	}
}

// DefaultPatterns returns the input shapes Dify file variables have accepted
// across workflow versions.
func DefaultPatterns() []InputPattern {
	return []InputPattern{
		{
			Name: PatternDocumentObject,
			Build: func(variable, fileID string) map[string]any {
				return map[string]any{variable: documentInput(fileID)}
			},
		},
		{
			Name: PatternDocumentMime,
			Build: func(variable, fileID string) map[string]any {
				doc := documentInput(fileID)
				doc["mime_type"] = "application/pdf"
				return map[string]any{variable: doc}
			},
		},
		{
			Name: PatternFileIDOnly,
			Build: func(variable, fileID string) map[string]any {
				return map[string]any{variable: fileID}
			},
		},
		{
			Name: PatternAltFileVariable,
			Build: func(_, fileID string) map[string]any {
				return map[string]any{"file": documentInput(fileID)}
			},
		},
	}
}

// PatternRun is the outcome of RunWorkflowWithPatterns.
type PatternRun struct {
	Result   *WorkflowResult
	Pattern  string
	Attempts []Attempt
}

// RunWorkflowWithPatterns tries each pattern in order until one is accepted.
// Input rejections (400/422) move on to the next pattern; any other failure
// stops immediately since a different input shape cannot fix it.
func (c *Client) RunWorkflowWithPatterns(ctx context.Context, variable, fileID string, patterns []InputPattern) (*PatternRun, error) {
	if fileID == "" {
		return nil, errors.New("dify: file id required")
	}
	if variable == "" {
		variable = DefaultInputVariable
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}

	run := &PatternRun{}
	var lastErr error
	for _, p := range patterns {
		inputs := p.Build(variable, fileID)
		result, err := c.RunWorkflow(ctx, inputs)
		attempt := Attempt{Pattern: p.Name, Inputs: inputs}
		if err == nil {
			attempt.StatusCode = 200
			attempt.OK = true
			run.Attempts = append(run.Attempts, attempt)
			run.Result = result
			run.Pattern = p.Name
			return run, nil
		}

		attempt.Error = err.Error()
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			attempt.StatusCode = apiErr.StatusCode
			attempt.Body = apiErr.Body
		}
		run.Attempts = append(run.Attempts, attempt)
		lastErr = err

		if apiErr == nil || !apiErr.IsInputError() {
			return run, err
		}
		if ctx.Err() != nil {
			return run, ctx.Err()
		}
	}
	return run, fmt.Errorf("%w: %w", ErrNoPatternAccepted, lastErr)
}

// ProbePatterns runs every pattern regardless of outcome, for diagnostics.
func (c *Client) ProbePatterns(ctx context.Context, variable, fileID string) []Attempt {
	if variable == "" {
		variable = DefaultInputVariable
	}
	patterns := DefaultPatterns()
	attempts := make([]Attempt, 0, len(patterns))
	for _, p := range patterns {
		inputs := p.Build(variable, fileID)
		attempt := Attempt{Pattern: p.Name, Inputs: inputs}
		result, err := c.RunWorkflow(ctx, inputs)
		switch {
		case err == nil:
			attempt.StatusCode = 200
			attempt.OK = true
			attempt.Body = truncate(string(result.Raw), maxErrorBody)
		default:
			attempt.Error = err.Error()
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				attempt.StatusCode = apiErr.StatusCode
				attempt.Body = apiErr.Body
			}
		}
		attempts = append(attempts, attempt)
		if ctx.Err() != nil {
			break
		}
	}
	return attempts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
