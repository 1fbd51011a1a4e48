// Package withdrawal runs the withdrawal request lifecycle: settlement of a
// redeemed code into a Pending request and the operator's terminal
// decision on it.
package withdrawal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
	"github.com/josh-kwaku/withdrawal-settlement/internal/fee"
	"github.com/josh-kwaku/withdrawal-settlement/internal/notify"
	"github.com/josh-kwaku/withdrawal-settlement/internal/ratelimit"
)

type codeRegistry interface {
	Issue(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, issuedBy *uuid.UUID) (*domain.WithdrawalCode, error)
	Lookup(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, code string, now time.Time) (*domain.WithdrawalCode, error)
	Verify(ctx context.Context, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error)
	Consume(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, code string, now time.Time) (*domain.WithdrawalCode, error)
	Revoke(ctx context.Context, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error)
}

type balanceLedger interface {
	Debit(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, amount decimal.Decimal, referenceID uuid.UUID, now time.Time) (decimal.Decimal, error)
	Credit(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, amount decimal.Decimal, referenceID uuid.UUID, now time.Time) (decimal.Decimal, error)
}

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	Get(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
}

type requestRepo interface {
	Create(ctx context.Context, tx *sql.Tx, req *domain.WithdrawalRequest, codeID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error)
	Settle(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.RequestStatus, decidedBy uuid.UUID, declineReason *string, settledAt time.Time) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, error)
	ListByStatus(ctx context.Context, status domain.RequestStatus, limit, offset int) ([]domain.WithdrawalRequest, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.WithdrawalEvent) error
	GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]domain.WithdrawalEvent, error)
}

type eligibilityGate interface {
	Evaluate(account *domain.Account, amount decimal.Decimal) error
}

type feeEstimator interface {
	Estimate(channel domain.PaymentChannel, amount decimal.Decimal) (*fee.Quote, error)
}

type notifier interface {
	Notify(ctx context.Context, e notify.Event) bool
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type Service struct {
	codes    codeRegistry
	ledger   balanceLedger
	accounts accountRepo
	requests requestRepo
	events   eventRepo
	gate     eligibilityGate
	fees     feeEstimator
	notifier notifier
	limiter  ratelimit.Limiter
	db       txBeginner
	now      func() time.Time
}

type Deps struct {
	Codes    codeRegistry
	Ledger   balanceLedger
	Accounts accountRepo
	Requests requestRepo
	Events   eventRepo
	Gate     eligibilityGate
	Fees     feeEstimator
	Notifier notifier
	Limiter  ratelimit.Limiter
	DB       txBeginner
	// Now defaults to the UTC wall clock.
	Now func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		codes:    d.Codes,
		ledger:   d.Ledger,
		accounts: d.Accounts,
		requests: d.Requests,
		events:   d.Events,
		gate:     d.Gate,
		fees:     d.Fees,
		notifier: d.Notifier,
		limiter:  d.Limiter,
		db:       d.DB,
		now:      d.Now,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

func (s *Service) GetRequest(ctx context.Context, requestID uuid.UUID) (*domain.WithdrawalRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("GetRequest: %w", err)
	}
	return req, nil
}

// GetRequestForAccount hides requests owned by other accounts behind
// ErrNotFound.
func (s *Service) GetRequestForAccount(ctx context.Context, accountID, requestID uuid.UUID) (*domain.WithdrawalRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("GetRequestForAccount: %w", err)
	}
	if req.AccountID != accountID {
		return nil, fmt.Errorf("GetRequestForAccount: %w", domain.ErrNotFound)
	}
	return req, nil
}

func (s *Service) ListForAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, error) {
	reqs, err := s.requests.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListForAccount: %w", err)
	}
	return reqs, nil
}

func (s *Service) ListByStatus(ctx context.Context, status domain.RequestStatus, limit, offset int) ([]domain.WithdrawalRequest, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("ListByStatus: %w", domain.ErrInvalidRequest)
	}
	reqs, err := s.requests.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListByStatus: %w", err)
	}
	return reqs, nil
}

func (s *Service) History(ctx context.Context, requestID uuid.UUID) ([]domain.WithdrawalEvent, error) {
	events, err := s.events.GetByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("History: %w", err)
	}
	return events, nil
}

func (s *Service) writeEvent(ctx context.Context, tx *sql.Tx, requestID uuid.UUID, eventType domain.WithdrawalEventType, actor string, payload []byte, now time.Time) error {
	event := &domain.WithdrawalEvent{
		ID:        uuid.New(),
		RequestID: requestID,
		EventType: eventType,
		Actor:     actor,
		Payload:   payload,
		CreatedAt: now,
	}
	if err := s.events.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("writeEvent: %w", err)
	}
	return nil
}

func holderActor(accountID uuid.UUID) string {
	return "holder:" + accountID.String()
}

func operatorActor(operatorID uuid.UUID) string {
	return "operator:" + operatorID.String()
}
