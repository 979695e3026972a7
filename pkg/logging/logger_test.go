package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"default info", "", slog.LevelInfo},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
		})
	}
}

func TestDefaultLoggerSkipsDebug(t *testing.T) {
	logger := Default()
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("default logger should not emit debug")
	}
}

func TestJSONOutputCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions(Options{Level: "info", Output: &buf}).With("request_id", "req-1")
	logger.Info("extraction finished", "source", "outputs")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if line["request_id"] != "req-1" || line["source"] != "outputs" {
		t.Fatalf("unexpected attributes: %v", line)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions(Options{Format: "text", Output: &buf})
	logger.Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("expected text handler output, got %q", buf.String())
	}
}
