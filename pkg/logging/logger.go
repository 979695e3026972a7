package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger so every binary shares the same handler setup.
type Logger struct {
	*slog.Logger
}

// Options controls handler construction.
type Options struct {
	Level  string
	Format string // "json" (default) or "text"
	Output io.Writer
}

// New creates a JSON logger on stdout with the specified level.
func New(level string) *Logger {
	return NewWithOptions(Options{Level: level})
}

// NewWithOptions builds a logger from explicit options. The CLI uses the text
// format; servers and workers stay on JSON.
func NewWithOptions(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level: parseLevel(opts.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "text") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// With returns a child logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return Default().With(args...)
	}
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a logger with default settings
func Default() *Logger {
	return New("info")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
