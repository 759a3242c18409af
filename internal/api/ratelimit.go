package api

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"task-manager/internal/cerr"
)

// loginRateLimit allows limit login attempts per client IP within window.
// A non-positive limit disables it.
func loginRateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, cerr.NewError(cerr.ResourceExhausted, "too many login attempts, try again later", nil))
		}),
	)
}
