// Package trace logs the start and completion of every HTTP request.
package trace

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"cloudledger/internal/log"
)

// Middleware writes access logs through the request-scoped logger. It must
// run after log.Middleware so the request id is already attached.
func Middleware(clientIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()
			logger := log.FromContext(ctx)

			ip := ""
			if clientIP != nil {
				ip = clientIP(r)
			}

			logger.DebugContext(ctx, "HTTP request started",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				"query", r.URL.RawQuery,
				log.FieldClientIP, ip,
				"user_agent", r.Header.Get("User-Agent"),
				"htmx", r.Header.Get("HX-Request") == "true")

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			logger.Log(ctx, level, "HTTP request completed",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldStatusCode, status,
				log.FieldDuration, time.Since(start).Milliseconds(),
				"bytes", ww.BytesWritten(),
				log.FieldClientIP, ip)
		})
	}
}
