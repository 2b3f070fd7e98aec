package log

import (
	"context"
	stdlog "log"
	"log/slog"
)

// bridgeHandler is a slog.Handler that routes records through a Logger so
// that code holding a *slog.Logger shares the formatter and outputs.
type bridgeHandler struct {
	logger Logger
	attrs  []slog.Attr
	group  string
}

// NewSlogBridge wraps a Logger as a *slog.Logger.
func NewSlogBridge(logger Logger) *slog.Logger {
	return slog.New(&bridgeHandler{logger: logger})
}

// Enabled gates by the underlying logger level.
func (h *bridgeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= fromSlogLevel(level)
}

// Handle converts the slog record into a Logger call.
func (h *bridgeHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make([]Field, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		fields = append(fields, Field{Key: a.Key, Value: a.Value.Any()})
	}
	r.Attrs(func(a slog.Attr) bool {
		fields = append(fields, Field{Key: a.Key, Value: a.Value.Any()})
		return true
	})
	switch fromSlogLevel(r.Level) {
	case DebugLevel:
		h.logger.Debug(r.Message, fields...)
	case InfoLevel:
		h.logger.Info(r.Message, fields...)
	case WarnLevel:
		h.logger.Warn(r.Message, fields...)
	default:
		h.logger.Error(r.Message, fields...)
	}
	return nil
}

// WithAttrs returns a copy of the handler with additional base attributes.
func (h *bridgeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	if len(attrs) > 0 {
		nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	}
	return &nh
}

// WithGroup returns a copy of the handler; grouping is recorded but flat.
func (h *bridgeHandler) WithGroup(name string) slog.Handler {
	nh := *h
	nh.group = name
	return &nh
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level <= slog.LevelDebug:
		return DebugLevel
	case level == slog.LevelInfo:
		return InfoLevel
	case level == slog.LevelWarn:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

// RedirectStdLog points the standard library logger (used by Pebble) at the
// provided Logger at info level.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdlogWriter{logger: logger})
}

type stdlogWriter struct{ logger Logger }

func (w stdlogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.logger.Info(msg)
	return len(p), nil
}
