// Package logger provides the tool's own slog setup and the rotating
// per-slot sinks that capture server process output.
package logger

import (
	"context"
	"io"
	"log/slog"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for per-slot sinks.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// SinkConfig describes rotation for a slot's combined stdout/stderr sink.
// Parameters follow lumberjack semantics.
type SinkConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Sink returns a rotating WriteCloser for the given path.
func (c SinkConfig) Sink(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// New returns the tool's diagnostic logger writing colored text to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	h := &colorTextHandler{
		TextHandler: slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
	}
	return slog.New(h)
}

// colorTextHandler wraps slog.TextHandler to color the level prefix.
type colorTextHandler struct {
	*slog.TextHandler
}

func (h *colorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	var colorCode string
	switch r.Level {
	case slog.LevelDebug:
		colorCode = "\033[36m" // cyan
	case slog.LevelInfo:
		colorCode = "\033[32m" // green
	case slog.LevelWarn:
		colorCode = "\033[33m" // yellow
	case slog.LevelError:
		colorCode = "\033[31m" // red
	default:
		colorCode = "\033[0m"
	}
	r.Message = colorCode + r.Level.String() + "\033[0m  " + r.Message
	return h.TextHandler.Handle(ctx, r)
}
