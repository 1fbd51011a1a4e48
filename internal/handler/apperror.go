package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrForbidden        = &AppError{http.StatusForbidden, "FORBIDDEN", "Operator role required"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}
	ErrStoreUnavailable = &AppError{http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Service temporarily unavailable, please retry"}

	ErrInvalidCode       = &AppError{http.StatusUnprocessableEntity, "INVALID_CODE", "Invalid or expired withdrawal code"}
	ErrAmountMismatch    = &AppError{http.StatusUnprocessableEntity, "AMOUNT_MISMATCH", "Amount does not match the withdrawal code"}
	ErrKYCRequired       = &AppError{http.StatusUnprocessableEntity, "KYC_REQUIRED", "Identity verification is required before withdrawing"}
	ErrBelowMinimum      = &AppError{http.StatusUnprocessableEntity, "BELOW_MINIMUM", "Amount is below the minimum withdrawal"}
	ErrExceedsBalance    = &AppError{http.StatusUnprocessableEntity, "EXCEEDS_BALANCE", "Amount exceeds available and bonus balance"}
	ErrInsufficientFunds = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient available balance"}
	ErrTooManyAttempts   = &AppError{http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "Too many failed attempts, try again later"}
	ErrInvalidTransition = &AppError{http.StatusConflict, "INVALID_TRANSITION", "Withdrawal request has already been settled differently"}
	ErrInvalidAmount     = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be positive with at most two decimal places"}
	ErrInvalidChannel    = &AppError{http.StatusBadRequest, "INVALID_CHANNEL", "Payment channel must be chainA, chainB, or bankTransfer"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrIdempotencyConflict   = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
)
