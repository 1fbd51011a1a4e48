package domain

import "errors"

// Business rejections. These are terminal and never retried.
var (
	ErrInvalidCode       = errors.New("invalid or expired withdrawal code")
	ErrAmountMismatch    = errors.New("amount does not match withdrawal code")
	ErrKYCRequired       = errors.New("identity verification required")
	ErrBelowMinimum      = errors.New("amount below minimum withdrawal")
	ErrExceedsBalance    = errors.New("amount exceeds balance")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyUsed       = errors.New("withdrawal code already used")
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidAmount     = errors.New("amount must be positive with at most two decimal places")
	ErrInvalidChannel    = errors.New("invalid payment channel")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidTransition = errors.New("withdrawal request already in a different terminal state")
	ErrTooManyAttempts   = errors.New("too many failed code attempts")
	ErrCodeExhausted     = errors.New("could not allocate a unique withdrawal code")

	// ErrStoreUnavailable wraps transient storage failures. It is the only
	// class eligible for automatic retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsCodeFailure reports whether err is one of the outcomes that count
// against an account's failed-attempt budget.
func IsCodeFailure(err error) bool {
	return errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrAlreadyUsed) ||
		errors.Is(err, ErrAmountMismatch)
}
