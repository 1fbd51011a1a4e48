package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
)

const maxDeclineReasonLen = 500

type operatorService interface {
	IssueCode(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, operatorID uuid.UUID) (*domain.WithdrawalCode, error)
	RevokeCode(ctx context.Context, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error)
	Confirm(ctx context.Context, requestID, operatorID uuid.UUID) (*domain.WithdrawalRequest, error)
	Decline(ctx context.Context, requestID, operatorID uuid.UUID, reason string) (*domain.WithdrawalRequest, error)
	GetRequest(ctx context.Context, requestID uuid.UUID) (*domain.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, status domain.RequestStatus, limit, offset int) ([]domain.WithdrawalRequest, error)
	History(ctx context.Context, requestID uuid.UUID) ([]domain.WithdrawalEvent, error)
}

type OperatorHandler struct {
	withdrawals operatorService
}

func NewOperatorHandler(withdrawals operatorService) *OperatorHandler {
	return &OperatorHandler{withdrawals: withdrawals}
}

type issueCodeRequest struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
}

func (r issueCodeRequest) parse() (uuid.UUID, decimal.Decimal, []FieldError) {
	var errs []FieldError

	accountID, err := uuid.Parse(r.AccountID)
	if err != nil {
		errs = append(errs, FieldError{Field: "account_id", Message: "must be a UUID"})
	}
	amount, fe := parseAmount("amount", r.Amount)
	if fe != nil {
		errs = append(errs, *fe)
	}
	return accountID, amount, errs
}

type revokeCodeRequest struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
}

type declineRequest struct {
	Reason string `json:"reason"`
}

type operatorRequestDTO struct {
	withdrawalRequestDTO
	Events []withdrawalEventDTO `json:"events"`
}

func (h *OperatorHandler) IssueCode(w http.ResponseWriter, r *http.Request) {
	operatorID, appErr := operatorFromContext(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req issueCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	accountID, amount, fields := req.parse()
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	c, err := h.withdrawals.IssueCode(r.Context(), accountID, amount, operatorID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("code issuance failed", "error", err, "account_id", accountID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toWithdrawalCodeDTO(c))
}

func (h *OperatorHandler) RevokeCode(w http.ResponseWriter, r *http.Request) {
	if _, appErr := operatorFromContext(r); appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req revokeCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var fields []FieldError
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		fields = append(fields, FieldError{Field: "account_id", Message: "must be a UUID"})
	}
	if req.Code == "" {
		fields = append(fields, FieldError{Field: "code", Message: "required"})
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	c, err := h.withdrawals.RevokeCode(r.Context(), accountID, strings.TrimSpace(req.Code))
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalCodeDTO(c))
}

func (h *OperatorHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.RequestStatusPending
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = domain.RequestStatus(raw)
	}

	limit, offset, fields := parsePage(r)
	if !status.IsValid() {
		fields = append(fields, FieldError{Field: "status", Message: "must be Pending, Active, or Declined"})
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	rs, err := h.withdrawals.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	out := toWithdrawalRequestDTOs(rs)
	for i := range out {
		out[i].RedeemedCode = rs[i].RedeemedCode
	}
	RespondSuccess(w, http.StatusOK, out)
}

func (h *OperatorHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(r.PathValue("requestId"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	wr, err := h.withdrawals.GetRequest(r.Context(), requestID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	events, err := h.withdrawals.History(r.Context(), requestID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dto := operatorRequestDTO{
		withdrawalRequestDTO: toWithdrawalRequestDTO(wr),
		Events:               toWithdrawalEventDTOs(events),
	}
	dto.RedeemedCode = wr.RedeemedCode
	RespondSuccess(w, http.StatusOK, dto)
}

func (h *OperatorHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	operatorID, appErr := operatorFromContext(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	requestID, err := uuid.Parse(r.PathValue("requestId"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	wr, err := h.withdrawals.Confirm(r.Context(), requestID, operatorID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("confirm failed", "error", err, "request_id", requestID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalRequestDTO(wr))
}

func (h *OperatorHandler) Decline(w http.ResponseWriter, r *http.Request) {
	operatorID, appErr := operatorFromContext(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	requestID, err := uuid.Parse(r.PathValue("requestId"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req declineRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if len(req.Reason) > maxDeclineReasonLen {
		RespondValidationError(w, []FieldError{{Field: "reason", Message: fmt.Sprintf("must be at most %d characters", maxDeclineReasonLen)}})
		return
	}

	wr, err := h.withdrawals.Decline(r.Context(), requestID, operatorID, req.Reason)
	if err != nil {
		logging.FromContext(r.Context()).Warn("decline failed", "error", err, "request_id", requestID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toWithdrawalRequestDTO(wr))
}
