package withdrawal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
	"github.com/josh-kwaku/withdrawal-settlement/internal/metrics"
	"github.com/josh-kwaku/withdrawal-settlement/internal/notify"
)

// IssueCode hands an operator-issued code to the registry and relays it to
// the holder's chat. Only operators reach this path.
func (s *Service) IssueCode(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, operatorID uuid.UUID) (*domain.WithdrawalCode, error) {
	c, err := s.codes.Issue(ctx, accountID, amount, &operatorID)
	if err != nil {
		return nil, fmt.Errorf("IssueCode: %w", err)
	}

	metrics.CodesIssued.Inc()
	s.notifier.Notify(ctx, notify.CodeIssued(c))
	return c, nil
}

func (s *Service) RevokeCode(ctx context.Context, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error) {
	c, err := s.codes.Revoke(ctx, accountID, code)
	if err != nil {
		return nil, fmt.Errorf("RevokeCode: %w", err)
	}

	s.notifier.Notify(ctx, notify.CodeRevoked(c, s.now()))
	return c, nil
}

// RequestCode asks an operator, through the chat channel, to issue a code.
// It runs the advisory eligibility check first and never issues a code
// itself.
func (s *Service) RequestCode(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, channel domain.PaymentChannel) error {
	if !channel.IsValid() {
		return fmt.Errorf("RequestCode: %w", domain.ErrInvalidChannel)
	}
	if err := s.Precheck(ctx, accountID, amount); err != nil {
		return fmt.Errorf("RequestCode: %w", err)
	}

	s.notifier.Notify(ctx, notify.CodeRequested(accountID, amount, channel, s.now()))

	logging.FromContext(ctx).Info("withdrawal code requested",
		"account_id", accountID,
		"amount", domain.FormatAmount(amount),
		"payment_channel", channel,
	)
	return nil
}
