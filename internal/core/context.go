package core

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/ebusdash/internal/logging"
)

type contextKey string

const ctxKeySessionID contextKey = "dash_session"

// ContextWithSessionID tags ctx with the browser session that triggered an
// operation, for log correlation.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, id)
}

// SessionIDFromContext extracts the session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySessionID).(string); ok {
		return v
	}
	return ""
}

// logger returns the request logger, tagged with the session if known.
func logger(ctx context.Context) *slog.Logger {
	l := logging.FromContext(ctx)
	if id := SessionIDFromContext(ctx); id != "" {
		l = l.With("session", id)
	}
	return l
}
