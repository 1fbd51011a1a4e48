package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/withdrawal-settlement/internal/auth"
	"github.com/josh-kwaku/withdrawal-settlement/internal/handler"
	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
)

func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			ctx := auth.ContextWithClaims(r.Context(), claims)
			ctx = logging.With(ctx, "subject_id", claims.SubjectID, "role", claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated callers whose token carries a
// different role. It must run after Auth.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}
			if claims.Role != role {
				if role == auth.RoleOperator {
					handler.RespondAppError(w, handler.ErrForbidden, nil)
					return
				}
				handler.RespondAppError(w, handler.ErrResourceNotFound, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
