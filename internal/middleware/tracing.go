package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds caller-supplied ids before they reach logs and
// notification headers.
const maxRequestIDLen = 128

// Tracing echoes X-Request-ID, minting one when the caller sent none, and
// stores it on the context for logging and notification correlation.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.New().String()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}
