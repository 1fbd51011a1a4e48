package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/josh-kwaku/withdrawal-settlement/internal/handler"
	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
	"github.com/josh-kwaku/withdrawal-settlement/internal/metrics"
)

// Recovery turns a handler panic into a 500 envelope. A panic inside a
// redemption leaves its transaction uncommitted, so nothing is settled.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				metrics.HTTPPanics.WithLabelValues(r.Method).Inc()
				logging.FromContext(r.Context()).Error("panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"error", err,
					"stack", string(debug.Stack()),
				)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
