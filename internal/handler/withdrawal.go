package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/withdrawal"
)

type holderService interface {
	Redeem(ctx context.Context, req withdrawal.RedeemRequest) (*domain.WithdrawalRequest, error)
	Precheck(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error
	VerifyCode(ctx context.Context, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error)
	RequestCode(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, channel domain.PaymentChannel) error
	GetRequestForAccount(ctx context.Context, accountID, requestID uuid.UUID) (*domain.WithdrawalRequest, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, error)
}

type destinationValidator interface {
	Validate(channel domain.PaymentChannel, d domain.Destination) []FieldError
}

type WithdrawalHandler struct {
	withdrawals  holderService
	destinations destinationValidator
}

func NewWithdrawalHandler(withdrawals holderService, destinations destinationValidator) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals, destinations: destinations}
}

type redeemRequest struct {
	Code           string         `json:"code"`
	Amount         string         `json:"amount"`
	PaymentChannel string         `json:"payment_channel"`
	Destination    destinationDTO `json:"destination"`
}

func (r redeemRequest) parse(v destinationValidator) (decimal.Decimal, []FieldError) {
	var errs []FieldError

	if r.Code == "" {
		errs = append(errs, FieldError{Field: "code", Message: "required"})
	}

	amount, fe := parseAmount("amount", r.Amount)
	if fe != nil {
		errs = append(errs, *fe)
	}

	channel := domain.PaymentChannel(r.PaymentChannel)
	if r.PaymentChannel == "" {
		errs = append(errs, FieldError{Field: "payment_channel", Message: "required"})
	} else if !channel.IsValid() {
		errs = append(errs, FieldError{Field: "payment_channel", Message: "must be chainA, chainB, or bankTransfer"})
	} else {
		errs = append(errs, v.Validate(channel, r.Destination.toDomain())...)
	}

	return amount, errs
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

type codeRequestRequest struct {
	Amount         string `json:"amount"`
	PaymentChannel string `json:"payment_channel"`
}

type eligibilityDTO struct {
	Eligible bool   `json:"eligible"`
	Code     string `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type codePreviewDTO struct {
	Amount    string    `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *WithdrawalHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := accountFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	amount, fields := req.parse(h.destinations)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	wr, err := h.withdrawals.Redeem(r.Context(), withdrawal.RedeemRequest{
		AccountID:      accountID,
		Code:           strings.TrimSpace(req.Code),
		Amount:         amount,
		PaymentChannel: domain.PaymentChannel(req.PaymentChannel),
		Destination:    req.Destination.toDomain(),
	})
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%s/withdrawals/%s", accountID, wr.ID))
	RespondSuccess(w, http.StatusCreated, toWithdrawalRequestDTO(wr))
}

// Eligibility answers whether a withdrawal of the given amount would pass
// the eligibility rules right now. A rejection is a normal answer, not an
// error response.
func (h *WithdrawalHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := accountFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	amount, fe := parseAmount("amount", req.Amount)
	if fe != nil {
		RespondValidationError(w, []FieldError{*fe})
		return
	}

	err := h.withdrawals.Precheck(r.Context(), accountID, amount)
	switch {
	case err == nil:
		RespondSuccess(w, http.StatusOK, eligibilityDTO{Eligible: true})
	case errors.Is(err, domain.ErrKYCRequired):
		RespondSuccess(w, http.StatusOK, eligibilityDTO{Code: ErrKYCRequired.Code, Reason: withdrawal.PublicReason(err)})
	case errors.Is(err, domain.ErrBelowMinimum):
		RespondSuccess(w, http.StatusOK, eligibilityDTO{Code: ErrBelowMinimum.Code, Reason: withdrawal.PublicReason(err)})
	case errors.Is(err, domain.ErrExceedsBalance):
		RespondSuccess(w, http.StatusOK, eligibilityDTO{Code: ErrExceedsBalance.Code, Reason: withdrawal.PublicReason(err)})
	default:
		logging.FromContext(r.Context()).Warn("eligibility precheck failed", "error", err)
		RespondDomainError(w, err)
	}
}

func (h *WithdrawalHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := accountFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req verifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.Code == "" {
		RespondValidationError(w, []FieldError{{Field: "code", Message: "required"}})
		return
	}

	c, err := h.withdrawals.VerifyCode(r.Context(), accountID, strings.TrimSpace(req.Code))
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, codePreviewDTO{
		Amount:    domain.FormatAmount(c.Amount),
		ExpiresAt: c.ExpiresAt.UTC(),
	})
}

func (h *WithdrawalHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := accountFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req codeRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var fields []FieldError
	amount, fe := parseAmount("amount", req.Amount)
	if fe != nil {
		fields = append(fields, *fe)
	}
	channel := domain.PaymentChannel(req.PaymentChannel)
	if !channel.IsValid() {
		fields = append(fields, FieldError{Field: "payment_channel", Message: "must be chainA, chainB, or bankTransfer"})
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	if err := h.withdrawals.RequestCode(r.Context(), accountID, amount, channel); err != nil {
		logging.FromContext(r.Context()).Info("code request rejected", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := accountFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	requestID, err := uuid.Parse(r.PathValue("requestId"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	wr, err := h.withdrawals.GetRequestForAccount(r.Context(), accountID, requestID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalRequestDTO(wr))
}

func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, appErr := accountFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit, offset, fields := parsePage(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	rs, err := h.withdrawals.ListForAccount(r.Context(), accountID, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalRequestDTOs(rs))
}
