// Package middleware provides the always-on transport middleware: a
// request-scoped logger and an access log.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/realip"
)

// RequestLogger attaches a logger carrying request_id, method, path and
// client_ip to the request context. It must run after chi's RequestID.
func RequestLogger(base *slog.Logger, proxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := appctx.WithLogger(r.Context(), requestLogger(base, proxies, r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestLogger(base *slog.Logger, proxies *realip.TrustedProxies, r *http.Request) *slog.Logger {
	clientIP := "unknown"
	if proxies != nil {
		clientIP = proxies.GetClientIPString(r)
	}
	return base.With(
		"request_id", chimw.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"client_ip", clientIP,
	)
}

// AccessLog writes one "request" record per response. Server errors log at
// error level, client errors at warn, everything else at info.
func AccessLog(base *slog.Logger, proxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger, ok := appctx.LoggerFromContext(r.Context())
				if !ok {
					logger = requestLogger(base, proxies, r)
				}
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logger.Log(r.Context(), levelFor(status), "request",
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
