package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/wolfman30/dental-report-ai/internal/extraction"
)

const maxPromptInput = 12000

// Repairer turns a free-form workflow answer into Fields via an LLM.
type Repairer struct {
	completer Completer
	extractor *extraction.Extractor
	logger    *slog.Logger
}

// NewRepairer returns nil when completer is nil so callers can treat repair as optional.
func NewRepairer(completer Completer, extractor *extraction.Extractor, logger *slog.Logger) *Repairer {
	if completer == nil {
		return nil
	}
	if extractor == nil {
		extractor = extraction.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repairer{completer: completer, extractor: extractor, logger: logger}
}

// Repair prompts the model with rawText and parses its JSON reply.
func (r *Repairer) Repair(ctx context.Context, rawText string) (extraction.Fields, error) {
	if r == nil {
		return extraction.Fields{}, errors.New("repair: not configured")
	}
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return extraction.Fields{}, errors.New("repair: empty input")
	}

	reply, err := r.completer.Complete(ctx, systemPrompt, r.prompt(clip(rawText, maxPromptInput)))
	if err != nil {
		return extraction.Fields{}, err
	}

	fields, err := r.extractor.ParseFields(reply)
	if err != nil {
		r.logger.Warn("repair reply had no usable fields", "reply_len", len(reply))
		return extraction.Fields{}, fmt.Errorf("repair: parse reply: %w", err)
	}
	return fields, nil
}

const systemPrompt = `You convert Japanese dental clinic daily revenue reports into JSON. Return ONLY one JSON object, no prose and no code fences. Use an empty string for any value that is not present. Never invent numbers.`

func (r *Repairer) prompt(rawText string) string {
	rules := r.extractor.Rules()
	var keys strings.Builder
	for _, key := range rules.Keys() {
		fmt.Fprintf(&keys, "- %s (%s, %s)\n", key, rules.DisplayLabel(key), rules.KindOf(key))
	}

	return fmt.Sprintf(`Extract these fields from the report text below. Counts and amounts are plain digits without separators or units; use a leading "-" for negative amounts (▲ or △ in the source).

Fields:
%s
Report text:
%s`, keys.String(), rawText)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
