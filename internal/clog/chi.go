package clog

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// SlogChiMiddleware writes one access log line per request. Handlers may add
// attributes (user id, error) to the request context before it is written.
func SlogChiMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := ContextWithSlog(r.Context())
		AddAttributes(ctx, map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})

		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		AddAttributes(ctx, map[string]any{
			"status":        status,
			"bytes_written": ww.BytesWritten(),
			"duration":      time.Since(start),
		})
		msg := http.StatusText(status)
		switch {
		case status >= http.StatusInternalServerError:
			slog.ErrorContext(ctx, msg)
		case status >= http.StatusBadRequest:
			slog.WarnContext(ctx, msg)
		default:
			slog.InfoContext(ctx, msg)
		}
	})
}
