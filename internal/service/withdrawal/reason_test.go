package withdrawal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
	"github.com/josh-kwaku/withdrawal-settlement/internal/eligibility"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/codes"
)

func TestPublicReason(t *testing.T) {
	generic := "invalid or expired withdrawal code"

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid code", fmt.Errorf("Redeem: %w", domain.ErrInvalidCode), generic},
		{"already used", fmt.Errorf("Redeem: %w", domain.ErrAlreadyUsed), generic},
		{"expired", fmt.Errorf("Redeem: %w", codes.ErrExpired), generic},
		{"amount mismatch", domain.ErrAmountMismatch, domain.ErrAmountMismatch.Error()},
		{"kyc", domain.ErrKYCRequired, "identity verification is required before withdrawing"},
		{"below minimum", fmt.Errorf("x: %w", &eligibility.BelowMinimumError{Minimum: decimal.NewFromInt(200)}), "minimum withdrawal is 200.00"},
		{"below minimum bare", domain.ErrBelowMinimum, domain.ErrBelowMinimum.Error()},
		{"exceeds", domain.ErrExceedsBalance, "amount exceeds available and bonus balance"},
		{"insufficient", domain.ErrInsufficientFunds, "insufficient available balance"},
		{"limited", domain.ErrTooManyAttempts, "too many failed attempts, try again later"},
		{"other", errors.New("boom"), "withdrawal could not be processed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PublicReason(tc.err))
		})
	}
}
