// Package notify tells the chat channel and downstream consumers about
// code and withdrawal outcomes after they are committed. Delivery is
// best effort; nothing here can undo a settlement.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

type EventType string

const (
	EventCodeIssued          EventType = "code_issued"
	EventCodeRequested       EventType = "code_requested"
	EventCodeExpired         EventType = "code_expired"
	EventCodeRevoked         EventType = "code_revoked"
	EventWithdrawalPending   EventType = "withdrawal_pending"
	EventRedemptionFailed    EventType = "redemption_failed"
	EventWithdrawalConfirmed EventType = "withdrawal_confirmed"
	EventWithdrawalDeclined  EventType = "withdrawal_declined"
)

type Event struct {
	ID             uuid.UUID  `json:"id"`
	Type           EventType  `json:"type"`
	AccountID      uuid.UUID  `json:"account_id"`
	RequestID      *uuid.UUID `json:"request_id,omitempty"`
	Amount         string     `json:"amount,omitempty"`
	Code           string     `json:"code,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	PaymentChannel string     `json:"payment_channel,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Message        string     `json:"message"`
	CorrelationID  string     `json:"correlation_id,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

const redactedCode = "******"

// Redacted returns a copy safe for shared topics and streams: the code is
// blanked and masked wherever the message quotes it. Only the holder's chat
// conversation receives the original.
func (e Event) Redacted() Event {
	if e.Code == "" {
		return e
	}
	e.Message = strings.ReplaceAll(e.Message, e.Code, redactedCode)
	e.Code = ""
	return e
}

// Key partitions events by account so one holder's events stay ordered.
func (e Event) Key() string {
	return e.AccountID.String()
}

func newEvent(t EventType, accountID uuid.UUID, amount decimal.Decimal, now time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		AccountID:  accountID,
		Amount:     domain.FormatAmount(amount),
		OccurredAt: now,
	}
}

// CodeIssued carries the code itself so the chat relay can hand it to the
// holder.
func CodeIssued(c *domain.WithdrawalCode) Event {
	e := newEvent(EventCodeIssued, c.AccountID, c.Amount, c.IssuedAt)
	e.Code = c.Code
	expiresAt := c.ExpiresAt
	e.ExpiresAt = &expiresAt
	e.Message = fmt.Sprintf("Your withdrawal code for $%s is %s. It expires at %s.",
		e.Amount, c.Code, expiresAt.UTC().Format(time.RFC3339))
	return e
}

func CodeRequested(accountID uuid.UUID, amount decimal.Decimal, channel domain.PaymentChannel, now time.Time) Event {
	e := newEvent(EventCodeRequested, accountID, amount, now)
	e.PaymentChannel = string(channel)
	e.Message = fmt.Sprintf("Withdrawal code requested for $%s via %s.", e.Amount, channel)
	return e
}

func CodeExpired(c *domain.WithdrawalCode, now time.Time) Event {
	e := newEvent(EventCodeExpired, c.AccountID, c.Amount, now)
	e.Message = fmt.Sprintf("Your withdrawal code for $%s has expired.", e.Amount)
	return e
}

func CodeRevoked(c *domain.WithdrawalCode, now time.Time) Event {
	e := newEvent(EventCodeRevoked, c.AccountID, c.Amount, now)
	e.Message = fmt.Sprintf("Your withdrawal code for $%s was withdrawn by an operator.", e.Amount)
	return e
}

func WithdrawalPending(r *domain.WithdrawalRequest) Event {
	e := newEvent(EventWithdrawalPending, r.AccountID, r.Amount, r.CreatedAt)
	e.RequestID = &r.ID
	e.PaymentChannel = string(r.PaymentChannel)
	e.Message = fmt.Sprintf("Withdrawal of $%s via %s is pending review.", e.Amount, r.PaymentChannel)
	return e
}

// RedemptionFailed never carries the submitted code.
func RedemptionFailed(accountID uuid.UUID, amount decimal.Decimal, reason string, now time.Time) Event {
	e := newEvent(EventRedemptionFailed, accountID, amount, now)
	e.Reason = reason
	e.Message = fmt.Sprintf("Withdrawal of $%s was rejected: %s.", e.Amount, reason)
	return e
}

func WithdrawalSettled(r *domain.WithdrawalRequest) Event {
	t := EventWithdrawalConfirmed
	msg := "Your withdrawal of $%s has been confirmed."
	if r.Status == domain.RequestStatusDeclined {
		t = EventWithdrawalDeclined
		msg = "Your withdrawal of $%s was declined and the amount returned to your balance."
	}

	now := r.CreatedAt
	if r.SettledAt != nil {
		now = *r.SettledAt
	}
	e := newEvent(t, r.AccountID, r.Amount, now)
	e.RequestID = &r.ID
	e.PaymentChannel = string(r.PaymentChannel)
	if r.DeclineReason != nil {
		e.Reason = *r.DeclineReason
	}
	e.Message = fmt.Sprintf(msg, e.Amount)
	return e
}
