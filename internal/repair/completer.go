// Package repair asks an LLM to restate a workflow answer as the strict
// 13-key JSON object when rule-based extraction comes up short.
package repair

import "context"

// Completer sends one system+user prompt and returns the model's text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}
