package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WithdrawalEventType string

const (
	WithdrawalEventTypeCreated   WithdrawalEventType = "created"
	WithdrawalEventTypeConfirmed WithdrawalEventType = "confirmed"
	WithdrawalEventTypeDeclined  WithdrawalEventType = "declined"
)

type WithdrawalEvent struct {
	ID        uuid.UUID
	RequestID uuid.UUID
	EventType WithdrawalEventType
	Actor     string
	Payload   json.RawMessage
	CreatedAt time.Time
}
