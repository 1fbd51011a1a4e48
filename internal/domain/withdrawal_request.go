package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentChannel string

const (
	PaymentChannelChainA       PaymentChannel = "chainA"
	PaymentChannelChainB       PaymentChannel = "chainB"
	PaymentChannelBankTransfer PaymentChannel = "bankTransfer"
)

func (c PaymentChannel) IsValid() bool {
	switch c {
	case PaymentChannelChainA, PaymentChannelChainB, PaymentChannelBankTransfer:
		return true
	}
	return false
}

// RequestStatus values are persisted verbatim.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "Pending"
	RequestStatusActive   RequestStatus = "Active"
	RequestStatusDeclined RequestStatus = "Declined"
)

func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusPending, RequestStatusActive, RequestStatusDeclined:
		return true
	}
	return false
}

func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusActive || s == RequestStatusDeclined
}

// Destination holds the channel-specific payout fields. They are opaque to
// settlement; only presence is checked per channel.
type Destination struct {
	Address           string `json:"address,omitempty"`
	BankName          string `json:"bank_name,omitempty"`
	BankAccountNumber string `json:"bank_account_number,omitempty"`
	BankAccountName   string `json:"bank_account_name,omitempty"`
	BankRoutingSwift  string `json:"bank_routing_swift,omitempty"`
}

type WithdrawalRequest struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Amount         decimal.Decimal
	FeeEstimate    decimal.Decimal
	PaymentChannel PaymentChannel
	Destination    Destination
	RedeemedCode   *string
	Status         RequestStatus
	DecidedBy      *uuid.UUID
	DeclineReason  *string
	CreatedAt      time.Time
	SettledAt      *time.Time
}
