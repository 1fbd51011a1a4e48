package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CodeLength is the number of ASCII digits in a withdrawal code.
const CodeLength = 6

type CodeStatus string

const (
	CodeStatusActive  CodeStatus = "active"
	CodeStatusUsed    CodeStatus = "used"
	CodeStatusExpired CodeStatus = "expired"
	CodeStatusRevoked CodeStatus = "revoked"
)

type WithdrawalCode struct {
	ID        uuid.UUID
	Code      string
	AccountID uuid.UUID
	Amount    decimal.Decimal
	IssuedAt  time.Time
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	Status    CodeStatus
	IssuedBy  *uuid.UUID
}

// ExpiredAt reports whether the code is past its expiry at now. A code
// whose expiry equals now is already expired.
func (c *WithdrawalCode) ExpiredAt(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// WellFormedCode reports whether s is exactly CodeLength ASCII digits.
func WellFormedCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
