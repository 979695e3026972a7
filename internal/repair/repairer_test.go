package repair

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-report-ai/internal/extraction"
)

type stubCompleter struct {
	reply  string
	err    error
	prompt string
}

func (s *stubCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	s.prompt = prompt
	return s.reply, s.err
}

func TestNewRepairerNilCompleter(t *testing.T) {
	assert.Nil(t, NewRepairer(nil, nil, nil))

	var r *Repairer
	_, err := r.Repair(context.Background(), "text")
	require.Error(t, err)
}

func TestRepairParsesFencedReply(t *testing.T) {
	stub := &stubCompleter{reply: "```json\n{\"shaho_count\": \"25\", \"shaho_amount\": \"125,000円\", \"bushan_note\": \"歯ブラシ\"}\n```"}
	r := NewRepairer(stub, extraction.New(nil), nil)

	fields, err := r.Repair(context.Background(), "社保 25件 125,000円")
	require.NoError(t, err)
	assert.Equal(t, "25", fields.ShahoCount)
	assert.Equal(t, "125000", fields.ShahoAmount)
	assert.Equal(t, "歯ブラシ", fields.BushanNote)

	assert.Contains(t, stub.prompt, "shaho_count")
	assert.Contains(t, stub.prompt, "hoken_nashi_amount")
	assert.Contains(t, stub.prompt, "社保 25件 125,000円")
}

func TestRepairRejectsEmptyInput(t *testing.T) {
	r := NewRepairer(&stubCompleter{}, nil, nil)
	_, err := r.Repair(context.Background(), "   ")
	require.Error(t, err)
}

func TestRepairPropagatesCompleterError(t *testing.T) {
	r := NewRepairer(&stubCompleter{err: errors.New("quota")}, nil, nil)
	_, err := r.Repair(context.Background(), "text")
	require.ErrorContains(t, err, "quota")
}

func TestRepairUnusableReply(t *testing.T) {
	r := NewRepairer(&stubCompleter{reply: "I cannot help with that."}, nil, nil)
	_, err := r.Repair(context.Background(), "text")
	require.ErrorIs(t, err, extraction.ErrNoFields)
}

func TestRepairClipsLongInput(t *testing.T) {
	stub := &stubCompleter{reply: `{"jihi_count":"1"}`}
	r := NewRepairer(stub, nil, nil)

	_, err := r.Repair(context.Background(), strings.Repeat("歯", maxPromptInput))
	require.NoError(t, err)
	assert.Less(t, len(stub.prompt), maxPromptInput+2000)
}

func TestClipKeepsValidUTF8(t *testing.T) {
	out := clip("歯科歯科", 4)
	assert.Equal(t, "歯", out)
}
