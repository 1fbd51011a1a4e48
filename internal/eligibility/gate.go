// Package eligibility decides whether an account may withdraw a given
// amount. Evaluate has no side effects and is safe to call on stale data;
// settlement calls it again inside its transaction.
package eligibility

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

// DefaultMinimum is the smallest amount that may be withdrawn.
var DefaultMinimum = decimal.NewFromInt(200)

// BelowMinimumError carries the threshold that was not met. It matches
// domain.ErrBelowMinimum.
type BelowMinimumError struct {
	Minimum decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return "minimum withdrawal is " + domain.FormatAmount(e.Minimum)
}

func (e *BelowMinimumError) Unwrap() error {
	return domain.ErrBelowMinimum
}

type Policy struct {
	Minimum decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{Minimum: DefaultMinimum}
}

// Evaluate applies the rules in order and returns the first rejection:
// identity verification, minimum amount, then available plus bonus balance.
func (p Policy) Evaluate(account *domain.Account, amount decimal.Decimal) error {
	if account.IdentityStatus != domain.IdentityStatusVerified {
		return fmt.Errorf("Evaluate: %w", domain.ErrKYCRequired)
	}
	if amount.LessThan(p.Minimum) {
		return fmt.Errorf("Evaluate: %w", &BelowMinimumError{Minimum: p.Minimum})
	}
	if amount.GreaterThan(account.AvailableBalance.Add(account.BonusBalance)) {
		return fmt.Errorf("Evaluate: %w", domain.ErrExceedsBalance)
	}
	return nil
}
