package intake

import (
	"fmt"

	"github.com/wolfman30/dental-report-ai/internal/dify"
)

// UpstreamError is a Dify failure during Process.
type UpstreamError struct {
	Stage    string
	Attempts []dify.Attempt
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("intake: %s: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StatusCode is the upstream HTTP status, or 0 for transport errors.
func (e *UpstreamError) StatusCode() int {
	return dify.StatusCode(e.Err)
}
