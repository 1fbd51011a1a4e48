package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// decodeJSON reads exactly one JSON object and rejects unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after JSON body")
	}
	return nil
}

func parseAmount(field, raw string) (decimal.Decimal, *FieldError) {
	if raw == "" {
		return decimal.Zero, &FieldError{Field: field, Message: "required"}
	}
	a, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &FieldError{Field: field, Message: "must be a decimal string such as \"250.00\""}
	}
	if !domain.ValidAmount(a) {
		return decimal.Zero, &FieldError{Field: field, Message: "must be positive with at most two decimal places"}
	}
	return a, nil
}

func parsePage(r *http.Request) (limit, offset int, fields []FieldError) {
	limit = defaultPageSize
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			fields = append(fields, FieldError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxPageSize)})
		} else {
			limit = n
		}
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields = append(fields, FieldError{Field: "offset", Message: "must be a non-negative integer"})
		} else {
			offset = n
		}
	}
	return limit, offset, fields
}

type destinationDTO struct {
	Address           string `json:"address,omitempty"`
	BankName          string `json:"bank_name,omitempty"`
	BankAccountNumber string `json:"bank_account_number,omitempty"`
	BankAccountName   string `json:"bank_account_name,omitempty"`
	BankRoutingSwift  string `json:"bank_routing_swift,omitempty"`
}

func (d destinationDTO) toDomain() domain.Destination {
	return domain.Destination{
		Address:           strings.TrimSpace(d.Address),
		BankName:          strings.TrimSpace(d.BankName),
		BankAccountNumber: strings.TrimSpace(d.BankAccountNumber),
		BankAccountName:   strings.TrimSpace(d.BankAccountName),
		BankRoutingSwift:  strings.TrimSpace(d.BankRoutingSwift),
	}
}

func fromDestination(d domain.Destination) destinationDTO {
	return destinationDTO{
		Address:           d.Address,
		BankName:          d.BankName,
		BankAccountNumber: d.BankAccountNumber,
		BankAccountName:   d.BankAccountName,
		BankRoutingSwift:  d.BankRoutingSwift,
	}
}

// DestinationValidator checks that the payout fields for a channel are
// present and well formed. chainA is a Bitcoin address on the configured
// network, chainB an Ethereum hex address.
type DestinationValidator struct {
	bitcoin *chaincfg.Params
}

func NewDestinationValidator(bitcoinNetwork string) *DestinationValidator {
	params := &chaincfg.MainNetParams
	if bitcoinNetwork == "testnet" {
		params = &chaincfg.TestNet3Params
	}
	return &DestinationValidator{bitcoin: params}
}

func (v *DestinationValidator) Validate(channel domain.PaymentChannel, d domain.Destination) []FieldError {
	var errs []FieldError

	switch channel {
	case domain.PaymentChannelChainA:
		if d.Address == "" {
			return append(errs, FieldError{Field: "destination.address", Message: "required"})
		}
		addr, err := btcutil.DecodeAddress(d.Address, v.bitcoin)
		if err != nil || !addr.IsForNet(v.bitcoin) {
			errs = append(errs, FieldError{Field: "destination.address", Message: fmt.Sprintf("must be a valid %s bitcoin address", v.bitcoin.Name)})
		}
	case domain.PaymentChannelChainB:
		if d.Address == "" {
			return append(errs, FieldError{Field: "destination.address", Message: "required"})
		}
		if !common.IsHexAddress(d.Address) {
			errs = append(errs, FieldError{Field: "destination.address", Message: "must be a 0x-prefixed 20-byte hex address"})
		}
	case domain.PaymentChannelBankTransfer:
		if d.BankName == "" {
			errs = append(errs, FieldError{Field: "destination.bank_name", Message: "required"})
		}
		if d.BankAccountNumber == "" {
			errs = append(errs, FieldError{Field: "destination.bank_account_number", Message: "required"})
		}
		if d.BankAccountName == "" {
			errs = append(errs, FieldError{Field: "destination.bank_account_name", Message: "required"})
		}
	}
	return errs
}

type withdrawalRequestDTO struct {
	ID             uuid.UUID      `json:"id"`
	AccountID      uuid.UUID      `json:"account_id"`
	Amount         string         `json:"amount"`
	FeeEstimate    string         `json:"fee_estimate"`
	PaymentChannel string         `json:"payment_channel"`
	Destination    destinationDTO `json:"destination"`
	Status         string         `json:"status"`
	RedeemedCode   *string        `json:"redeemed_code,omitempty"`
	DecidedBy      *uuid.UUID     `json:"decided_by,omitempty"`
	DeclineReason  *string        `json:"decline_reason,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	SettledAt      *time.Time     `json:"settled_at,omitempty"`
}

func toWithdrawalRequestDTO(wr *domain.WithdrawalRequest) withdrawalRequestDTO {
	dto := withdrawalRequestDTO{
		ID:             wr.ID,
		AccountID:      wr.AccountID,
		Amount:         domain.FormatAmount(wr.Amount),
		FeeEstimate:    domain.FormatAmount(wr.FeeEstimate),
		PaymentChannel: string(wr.PaymentChannel),
		Destination:    fromDestination(wr.Destination),
		Status:         string(wr.Status),
		DecidedBy:      wr.DecidedBy,
		DeclineReason:  wr.DeclineReason,
		CreatedAt:      wr.CreatedAt.UTC(),
	}
	if wr.SettledAt != nil {
		t := wr.SettledAt.UTC()
		dto.SettledAt = &t
	}
	return dto
}

func toWithdrawalRequestDTOs(rs []domain.WithdrawalRequest) []withdrawalRequestDTO {
	out := make([]withdrawalRequestDTO, 0, len(rs))
	for i := range rs {
		out = append(out, toWithdrawalRequestDTO(&rs[i]))
	}
	return out
}

type withdrawalCodeDTO struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	AccountID uuid.UUID `json:"account_id"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toWithdrawalCodeDTO(c *domain.WithdrawalCode) withdrawalCodeDTO {
	return withdrawalCodeDTO{
		ID:        c.ID,
		Code:      c.Code,
		AccountID: c.AccountID,
		Amount:    domain.FormatAmount(c.Amount),
		Status:    string(c.Status),
		IssuedAt:  c.IssuedAt.UTC(),
		ExpiresAt: c.ExpiresAt.UTC(),
	}
}

type withdrawalEventDTO struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toWithdrawalEventDTOs(es []domain.WithdrawalEvent) []withdrawalEventDTO {
	out := make([]withdrawalEventDTO, 0, len(es))
	for _, e := range es {
		out = append(out, withdrawalEventDTO{
			ID:        e.ID,
			EventType: string(e.EventType),
			Actor:     e.Actor,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt.UTC(),
		})
	}
	return out
}
