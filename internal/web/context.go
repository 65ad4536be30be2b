package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/ebusdash/internal/core"
	"github.com/JonMunkholm/ebusdash/internal/logging"
)

// requestContext tags the request context with the session for logging.
func requestContext(r *http.Request, sess *session) context.Context {
	return core.ContextWithSessionID(r.Context(), sess.id)
}

// requestLogger returns the request logger with the session attached.
func requestLogger(r *http.Request, sess *session) *slog.Logger {
	return logging.WithFields(r.Context(), "session", sess.id)
}
