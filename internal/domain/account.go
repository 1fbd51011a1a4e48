package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type IdentityStatus string

const (
	IdentityStatusUnverified IdentityStatus = "unverified"
	IdentityStatusPending    IdentityStatus = "pending"
	IdentityStatusVerified   IdentityStatus = "verified"
	IdentityStatusRejected   IdentityStatus = "rejected"
)

func (s IdentityStatus) IsValid() bool {
	switch s {
	case IdentityStatusUnverified, IdentityStatusPending, IdentityStatusVerified, IdentityStatusRejected:
		return true
	}
	return false
}

// Account is the slice of the account directory this service reads.
// AvailableBalance and BonusBalance are only ever written by the ledger.
type Account struct {
	ID               uuid.UUID
	HolderName       string
	AvailableBalance decimal.Decimal
	BonusBalance     decimal.Decimal
	IdentityStatus   IdentityStatus
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
