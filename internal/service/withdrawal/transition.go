package withdrawal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
	"github.com/josh-kwaku/withdrawal-settlement/internal/metrics"
	"github.com/josh-kwaku/withdrawal-settlement/internal/notify"
	"github.com/josh-kwaku/withdrawal-settlement/internal/repository"
)

// Confirm moves a Pending request to Active once the payout is made.
func (s *Service) Confirm(ctx context.Context, requestID, operatorID uuid.UUID) (*domain.WithdrawalRequest, error) {
	req, err := s.transition(ctx, requestID, operatorID, domain.RequestStatusActive, "")
	if err != nil {
		return nil, fmt.Errorf("Confirm: %w", err)
	}
	return req, nil
}

// Decline moves a Pending request to Declined and returns the debited
// amount to the account's available balance in the same transaction.
func (s *Service) Decline(ctx context.Context, requestID, operatorID uuid.UUID, reason string) (*domain.WithdrawalRequest, error) {
	req, err := s.transition(ctx, requestID, operatorID, domain.RequestStatusDeclined, strings.TrimSpace(reason))
	if err != nil {
		return nil, fmt.Errorf("Decline: %w", err)
	}
	return req, nil
}

type transitionPayload struct {
	Reason string `json:"reason,omitempty"`
	Refund string `json:"refund,omitempty"`
}

// transition applies a terminal status. Re-applying the status a request
// already has is a no-op that returns the request unchanged; applying the
// other terminal status fails with ErrInvalidTransition.
func (s *Service) transition(ctx context.Context, requestID, operatorID uuid.UUID, target domain.RequestStatus, reason string) (*domain.WithdrawalRequest, error) {
	log := logging.FromContext(ctx).With("request_id", requestID, "operator_id", operatorID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("transition: begin tx: %w", err)
	}
	defer tx.Rollback()

	req, err := s.requests.GetForUpdate(ctx, tx, requestID)
	if err != nil {
		return nil, fmt.Errorf("transition: %w", err)
	}

	if req.Status == target {
		log.Info("withdrawal request already in target status", "status", target)
		return req, nil
	}
	if req.Status.IsTerminal() {
		log.Warn("withdrawal request transition rejected", "from", req.Status, "to", target)
		return nil, fmt.Errorf("transition: %s to %s: %w", req.Status, target, domain.ErrInvalidTransition)
	}

	now := s.now()
	var declineReason *string
	if reason != "" {
		declineReason = &reason
	}

	if err := s.requests.Settle(ctx, tx, req.ID, target, operatorID, declineReason, now); err != nil {
		return nil, fmt.Errorf("transition: %w", err)
	}

	payload := transitionPayload{Reason: reason}
	eventType := domain.WithdrawalEventTypeConfirmed
	if target == domain.RequestStatusDeclined {
		eventType = domain.WithdrawalEventTypeDeclined
		if _, err := s.ledger.Credit(ctx, tx, req.AccountID, req.Amount, req.ID, now); err != nil {
			return nil, fmt.Errorf("transition: refund: %w", err)
		}
		payload.Refund = domain.FormatAmount(req.Amount)
	}

	body, _ := json.Marshal(payload)
	if err := s.writeEvent(ctx, tx, req.ID, eventType, operatorActor(operatorID), body, now); err != nil {
		return nil, fmt.Errorf("transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("transition: commit: %w", repository.Classify(err))
	}

	req.Status = target
	req.DecidedBy = &operatorID
	req.DeclineReason = declineReason
	req.SettledAt = &now

	metrics.Transitions.WithLabelValues(string(target)).Inc()
	s.notifier.Notify(ctx, notify.WithdrawalSettled(req))

	log.Info("withdrawal request settled",
		"account_id", req.AccountID,
		"status", target,
		"amount", domain.FormatAmount(req.Amount),
	)
	return req, nil
}
