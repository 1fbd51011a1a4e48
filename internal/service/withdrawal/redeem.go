package withdrawal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
	"github.com/josh-kwaku/withdrawal-settlement/internal/eligibility"
	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
	"github.com/josh-kwaku/withdrawal-settlement/internal/metrics"
	"github.com/josh-kwaku/withdrawal-settlement/internal/notify"
	"github.com/josh-kwaku/withdrawal-settlement/internal/repository"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/codes"
)

type RedeemRequest struct {
	AccountID      uuid.UUID
	Code           string
	Amount         decimal.Decimal
	PaymentChannel domain.PaymentChannel
	Destination    domain.Destination
}

func (r RedeemRequest) validate() error {
	if r.AccountID == uuid.Nil {
		return domain.ErrInvalidRequest
	}
	if !domain.ValidAmount(r.Amount) {
		return domain.ErrInvalidAmount
	}
	if !r.PaymentChannel.IsValid() {
		return domain.ErrInvalidChannel
	}
	return nil
}

type createdPayload struct {
	CodeID         uuid.UUID `json:"code_id"`
	Amount         string    `json:"amount"`
	PaymentChannel string    `json:"payment_channel"`
	BalanceAfter   string    `json:"balance_after"`
}

// Redeem converts a valid code into a Pending withdrawal request. Lookup,
// the amount check, the authoritative eligibility check, the debit, the
// consume and the insert all run in one transaction: on any failure the
// balance and the code are left as they were.
//
// The only state a failed call may leave behind is an overdue code marked
// expired.
func (s *Service) Redeem(ctx context.Context, req RedeemRequest) (*domain.WithdrawalRequest, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("Redeem: %w", err)
	}
	ctx = logging.With(ctx, "account_id", req.AccountID)

	if err := s.checkAttempts(ctx, req.AccountID); err != nil {
		return nil, s.redeemFailed(ctx, req, fmt.Errorf("Redeem: %w", err))
	}

	wr, err := s.settle(ctx, req)
	if err != nil {
		return nil, s.redeemFailed(ctx, req, fmt.Errorf("Redeem: %w", err))
	}

	metrics.Redemptions.WithLabelValues(metrics.Outcome(nil)).Inc()
	metrics.RedeemedAmount.WithLabelValues(string(wr.PaymentChannel)).Add(wr.Amount.InexactFloat64())
	s.notifier.Notify(ctx, notify.WithdrawalPending(wr))

	logging.FromContext(ctx).Info("withdrawal request created",
		"request_id", wr.ID,
		"amount", domain.FormatAmount(wr.Amount),
		"payment_channel", wr.PaymentChannel,
	)
	return wr, nil
}

func (s *Service) settle(ctx context.Context, req RedeemRequest) (*domain.WithdrawalRequest, error) {
	quote, err := s.fees.Estimate(req.PaymentChannel, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settle: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now()

	code, err := s.codes.Lookup(ctx, tx, req.AccountID, req.Code, now)
	if err != nil {
		if errors.Is(err, codes.ErrExpired) {
			if cerr := tx.Commit(); cerr != nil {
				logging.FromContext(ctx).Warn("failed to persist lazy code expiry", "error", cerr)
			}
		}
		return nil, fmt.Errorf("settle: %w", err)
	}

	if !code.Amount.Equal(req.Amount) {
		return nil, fmt.Errorf("settle: %w", domain.ErrAmountMismatch)
	}

	account, err := s.accounts.Get(ctx, tx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	if err := s.gate.Evaluate(account, req.Amount); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	requestID := uuid.New()
	balanceAfter, err := s.ledger.Debit(ctx, tx, req.AccountID, req.Amount, requestID, now)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	consumed, err := s.codes.Consume(ctx, tx, req.AccountID, req.Code, now)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	redeemed := consumed.Code
	wr := &domain.WithdrawalRequest{
		ID:             requestID,
		AccountID:      req.AccountID,
		Amount:         req.Amount,
		FeeEstimate:    quote.Fee,
		PaymentChannel: req.PaymentChannel,
		Destination:    req.Destination,
		RedeemedCode:   &redeemed,
		Status:         domain.RequestStatusPending,
		CreatedAt:      now,
	}
	if err := s.requests.Create(ctx, tx, wr, consumed.ID); err != nil {
		return nil, fmt.Errorf("settle: create request: %w", err)
	}

	payload, _ := json.Marshal(createdPayload{
		CodeID:         consumed.ID,
		Amount:         domain.FormatAmount(req.Amount),
		PaymentChannel: string(req.PaymentChannel),
		BalanceAfter:   domain.FormatAmount(balanceAfter),
	})
	if err := s.writeEvent(ctx, tx, requestID, domain.WithdrawalEventTypeCreated, holderActor(req.AccountID), payload, now); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("settle: commit: %w", repository.Classify(err))
	}
	return wr, nil
}

// redeemFailed records the outcome of a rejected redemption and returns
// err unchanged.
func (s *Service) redeemFailed(ctx context.Context, req RedeemRequest, err error) error {
	log := logging.FromContext(ctx)
	metrics.Redemptions.WithLabelValues(metrics.Outcome(err)).Inc()

	switch {
	case errors.Is(err, domain.ErrStoreUnavailable):
		log.Error("redemption failed", "error", err)
		return err
	case domain.IsCodeFailure(err):
		log.Warn("redemption rejected", "reason", metrics.Outcome(err))
		s.recordFailure(ctx, req.AccountID)
		return err
	case isBusinessRejection(err):
		log.Info("redemption rejected", "reason", metrics.Outcome(err))
		s.notifier.Notify(ctx, notify.RedemptionFailed(req.AccountID, req.Amount, PublicReason(err), s.now()))
		return err
	case errors.Is(err, domain.ErrTooManyAttempts):
		log.Warn("redemption blocked", "reason", metrics.Outcome(err))
		return err
	case errors.Is(err, domain.ErrAccountNotFound):
		log.Warn("redemption rejected", "reason", metrics.Outcome(err))
		return err
	default:
		log.Error("redemption failed", "error", err)
		return err
	}
}

// Precheck runs the eligibility rules against the account's current state.
// The answer is advisory; Redeem checks again at commit.
func (s *Service) Precheck(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	if !domain.ValidAmount(amount) {
		return fmt.Errorf("Precheck: %w", domain.ErrInvalidAmount)
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("Precheck: %w", err)
	}
	if err := s.gate.Evaluate(account, amount); err != nil {
		return fmt.Errorf("Precheck: %w", err)
	}
	return nil
}

// VerifyCode previews a code without consuming it. Failures count against
// the account's attempt budget exactly like a failed redemption.
func (s *Service) VerifyCode(ctx context.Context, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error) {
	ctx = logging.With(ctx, "account_id", accountID)

	if err := s.checkAttempts(ctx, accountID); err != nil {
		return nil, fmt.Errorf("VerifyCode: %w", err)
	}

	c, err := s.codes.Verify(ctx, accountID, code)
	if err != nil {
		if domain.IsCodeFailure(err) {
			logging.FromContext(ctx).Warn("code verification rejected", "reason", metrics.Outcome(err))
			s.recordFailure(ctx, accountID)
		}
		return nil, fmt.Errorf("VerifyCode: %w", err)
	}
	return c, nil
}

func (s *Service) checkAttempts(ctx context.Context, accountID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	blocked, err := s.limiter.Blocked(ctx, accountID)
	if err != nil {
		logging.FromContext(ctx).Warn("attempt limiter unavailable, allowing", "error", err)
		return nil
	}
	if blocked {
		return domain.ErrTooManyAttempts
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, accountID uuid.UUID) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.RecordFailure(ctx, accountID); err != nil {
		logging.FromContext(ctx).Warn("failed to record code failure", "error", err)
	}
}

func isBusinessRejection(err error) bool {
	return errors.Is(err, domain.ErrKYCRequired) ||
		errors.Is(err, domain.ErrBelowMinimum) ||
		errors.Is(err, domain.ErrExceedsBalance) ||
		errors.Is(err, domain.ErrInsufficientFunds)
}

// PublicReason is the holder-facing text for a rejection. Code failures
// share one message so callers cannot tell which check failed.
func PublicReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCode), errors.Is(err, domain.ErrAlreadyUsed):
		return "invalid or expired withdrawal code"
	case errors.Is(err, domain.ErrAmountMismatch):
		return domain.ErrAmountMismatch.Error()
	case errors.Is(err, domain.ErrKYCRequired):
		return "identity verification is required before withdrawing"
	case errors.Is(err, domain.ErrBelowMinimum):
		var bm *eligibility.BelowMinimumError
		if errors.As(err, &bm) {
			return bm.Error()
		}
		return domain.ErrBelowMinimum.Error()
	case errors.Is(err, domain.ErrExceedsBalance):
		return "amount exceeds available and bonus balance"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient available balance"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "too many failed attempts, try again later"
	default:
		return "withdrawal could not be processed"
	}
}
