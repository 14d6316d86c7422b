// Package appctx carries request-scoped values (logger, verified user id)
// through context.Context.
package appctx

import (
	"context"
	"log/slog"
)

type (
	loggerKey struct{}
	userIDKey struct{}
)

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the logger attached to ctx, if any.
func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return l, ok && l != nil
}

// GetLogger returns the request logger, or slog.Default() when none is attached.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := LoggerFromContext(ctx); ok {
		return l
	}
	return slog.Default()
}

// WithUserID records the verified caller id and tags the request logger with it.
func WithUserID(ctx context.Context, userID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey{}, userID)
	return WithLogger(ctx, GetLogger(ctx).With("user_id", userID))
}

// UserID returns the verified caller id, or "" before verification.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
