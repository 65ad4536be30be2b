// Package logging configures the process-wide slog logger.
//
// Records carry the chi request ID when one is present, and can be teed
// into a Diagnostics ring buffer that the dashboard serves back to the
// operator at /api/diagnostics.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Options configures Setup.
type Options struct {
	// Level is "debug", "info", "warn" or "error" (default "info").
	Level string

	// Format is "text" or "json" (default "text").
	Format string

	// Output receives formatted records. Defaults to os.Stdout.
	Output io.Writer

	// Diagnostics, when set, also receives every enabled record.
	Diagnostics *Diagnostics
}

// Setup builds the logger described by opts and installs it as the slog
// default. The installed logger is returned for callers that want it
// without going through slog.Default.
func Setup(opts Options) *slog.Logger {
	logger := slog.New(NewHandler(opts))
	slog.SetDefault(logger)
	return logger
}

// NewHandler returns the handler Setup would install.
func NewHandler(opts Options) slog.Handler {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.ToLower(opts.Format) == "json" {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}

	if opts.Diagnostics != nil {
		handler = &teeHandler{primary: handler, diag: opts.Diagnostics.handler()}
	}
	return handler
}

// ParseLevel converts a level name to slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
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

// FromContext returns the default logger, tagged with the chi request ID
// when ctx carries one.
//
//	logging.FromContext(r.Context()).Info("panel refreshed", "panel", key)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns FromContext(ctx) with extra attributes, for loggers
// that follow one operation across several steps.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}

// teeHandler forwards each record to the primary handler and the
// diagnostics buffer. The primary handler decides what is enabled.
type teeHandler struct {
	primary slog.Handler
	diag    slog.Handler
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	_ = h.diag.Handle(ctx, r.Clone())
	return h.primary.Handle(ctx, r)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{primary: h.primary.WithAttrs(attrs), diag: h.diag.WithAttrs(attrs)}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{primary: h.primary.WithGroup(name), diag: h.diag.WithGroup(name)}
}
