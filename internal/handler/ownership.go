package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/withdrawal-settlement/internal/auth"
)

// accountFromPath resolves the {id} path segment for a holder route. A
// holder may only address their own account; anything else is reported as
// not found.
func accountFromPath(r *http.Request) (uuid.UUID, *AppError) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return uuid.Nil, ErrMissingToken
	}

	accountID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}

	if claims.Role != auth.RoleHolder || accountID != claims.SubjectID {
		return uuid.Nil, ErrResourceNotFound
	}

	return accountID, nil
}

func operatorFromContext(r *http.Request) (uuid.UUID, *AppError) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return uuid.Nil, ErrMissingToken
	}
	if claims.Role != auth.RoleOperator {
		return uuid.Nil, ErrForbidden
	}
	return claims.SubjectID, nil
}
