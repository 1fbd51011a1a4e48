// Package codes issues, looks up and invalidates single-use withdrawal
// codes. Every state change is a guarded write against the store; nothing
// here holds an in-process lock.
package codes

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
	"github.com/josh-kwaku/withdrawal-settlement/internal/repository"
)

// DefaultTTL is how long an issued code stays redeemable.
const DefaultTTL = 15 * time.Minute

// ErrExpired is returned by Lookup when the matched code had passed its
// expiry and was just marked expired. Callers holding the transaction must
// commit it so the transition sticks. It matches domain.ErrInvalidCode.
var ErrExpired = fmt.Errorf("%w: expired", domain.ErrInvalidCode)

type codeRepo interface {
	Create(ctx context.Context, tx *sql.Tx, c *domain.WithdrawalCode) error
	ActiveCodeExists(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, code string) (bool, error)
	RetireActiveForAmount(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, amount decimal.Decimal, now time.Time) (int64, error)
	GetForRedemption(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error)
	MarkExpired(ctx context.Context, tx *sql.Tx, id uuid.UUID, now time.Time) error
	Consume(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, code string, now time.Time) (*domain.WithdrawalCode, error)
	Revoke(ctx context.Context, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error)
	ExpireDue(ctx context.Context, now time.Time, limit int) ([]domain.WithdrawalCode, error)
}

type accountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type Registry struct {
	codes       codeRepo
	accounts    accountReader
	db          txBeginner
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	generate    func() (string, error)
}

type Option func(*Registry)

// WithClock replaces the wall clock used for issue and expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithGenerator replaces the random code source.
func WithGenerator(gen func() (string, error)) Option {
	return func(r *Registry) { r.generate = gen }
}

func NewRegistry(codes codeRepo, accounts accountReader, db txBeginner, ttl time.Duration, maxAttempts int, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	r := &Registry{
		codes:       codes,
		accounts:    accounts,
		db:          db,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		generate:    GenerateCode,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now reports the registry's current time.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Issue creates a fresh active code for (accountID, amount). Any code still
// active for the same pair is retired first, so at most one is ever
// redeemable. Collisions and transient store failures are retried up to the
// configured bound.
func (r *Registry) Issue(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, issuedBy *uuid.UUID) (*domain.WithdrawalCode, error) {
	log := logging.FromContext(ctx)

	if !domain.ValidAmount(amount) {
		return nil, fmt.Errorf("Issue: %w", domain.ErrInvalidAmount)
	}
	if _, err := r.accounts.GetByID(ctx, accountID); err != nil {
		return nil, fmt.Errorf("Issue: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		c, err := r.tryIssue(ctx, accountID, amount, issuedBy)
		if err == nil {
			log.Info("withdrawal code issued",
				"code_id", c.ID,
				"account_id", accountID,
				"amount", domain.FormatAmount(amount),
				"expires_at", c.ExpiresAt,
				"attempt", attempt,
			)
			return c, nil
		}
		if !retryable(err) {
			return nil, fmt.Errorf("Issue: %w", err)
		}
		lastErr = err
		log.Warn("withdrawal code issue attempt failed",
			"account_id", accountID,
			"attempt", attempt,
			"error", err,
		)
	}

	if errors.Is(lastErr, domain.ErrStoreUnavailable) {
		return nil, fmt.Errorf("Issue: %w", lastErr)
	}
	return nil, fmt.Errorf("Issue: %w: %w", domain.ErrStoreUnavailable, domain.ErrCodeExhausted)
}

func (r *Registry) tryIssue(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, issuedBy *uuid.UUID) (*domain.WithdrawalCode, error) {
	code, err := r.generate()
	if err != nil {
		return nil, fmt.Errorf("tryIssue: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("tryIssue: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	if _, err := r.codes.RetireActiveForAmount(ctx, tx, accountID, amount, now); err != nil {
		return nil, fmt.Errorf("tryIssue: %w", err)
	}

	taken, err := r.codes.ActiveCodeExists(ctx, tx, accountID, code)
	if err != nil {
		return nil, fmt.Errorf("tryIssue: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("tryIssue: %w", repository.ErrDuplicateActiveCode)
	}

	c := &domain.WithdrawalCode{
		ID:        uuid.New(),
		Code:      code,
		AccountID: accountID,
		Amount:    amount,
		IssuedAt:  now,
		ExpiresAt: now.Add(r.ttl),
		Status:    domain.CodeStatusActive,
		IssuedBy:  issuedBy,
	}
	if err := r.codes.Create(ctx, tx, c); err != nil {
		return nil, fmt.Errorf("tryIssue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("tryIssue: commit: %w", repository.Classify(err))
	}
	return c, nil
}

func retryable(err error) bool {
	return errors.Is(err, repository.ErrDuplicateActiveCode) ||
		errors.Is(err, repository.ErrDuplicateActiveAmount) ||
		errors.Is(err, domain.ErrStoreUnavailable)
}

// Lookup locks and returns the account's redeemable code inside tx.
//
// A used code yields ErrAlreadyUsed. Unknown, revoked and expired codes
// yield ErrInvalidCode; an active code found past its expiry is marked
// expired in tx and reported as ErrExpired.
func (r *Registry) Lookup(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, code string, now time.Time) (*domain.WithdrawalCode, error) {
	if !domain.WellFormedCode(code) {
		return nil, fmt.Errorf("Lookup: %w", domain.ErrInvalidCode)
	}

	c, err := r.codes.GetForRedemption(ctx, tx, accountID, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Lookup: %w", domain.ErrInvalidCode)
		}
		return nil, fmt.Errorf("Lookup: %w", err)
	}

	switch c.Status {
	case domain.CodeStatusUsed:
		return nil, fmt.Errorf("Lookup: %w", domain.ErrAlreadyUsed)
	case domain.CodeStatusActive:
	default:
		return nil, fmt.Errorf("Lookup: %s: %w", c.Status, domain.ErrInvalidCode)
	}

	if c.ExpiredAt(now) {
		if err := r.codes.MarkExpired(ctx, tx, c.ID, now); err != nil {
			return nil, fmt.Errorf("Lookup: %w", err)
		}
		return nil, fmt.Errorf("Lookup: %w", ErrExpired)
	}
	return c, nil
}

// Verify runs Lookup in its own transaction without consuming the code.
func (r *Registry) Verify(ctx context.Context, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Verify: begin tx: %w", err)
	}
	defer tx.Rollback()

	c, lookupErr := r.Lookup(ctx, tx, accountID, code, r.now())
	if lookupErr != nil && !errors.Is(lookupErr, ErrExpired) {
		return nil, fmt.Errorf("Verify: %w", lookupErr)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Verify: commit: %w", repository.Classify(err))
	}
	if lookupErr != nil {
		logging.FromContext(ctx).Info("withdrawal code expired on lookup", "account_id", accountID)
		return nil, fmt.Errorf("Verify: %w", lookupErr)
	}
	return c, nil
}

// Consume marks the code used inside tx. Exactly one of any number of
// concurrent callers succeeds; the others get ErrAlreadyUsed.
func (r *Registry) Consume(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, code string, now time.Time) (*domain.WithdrawalCode, error) {
	c, err := r.codes.Consume(ctx, tx, accountID, code, now)
	if err != nil {
		return nil, fmt.Errorf("Consume: %w", err)
	}
	return c, nil
}

// Revoke withdraws an active code before it is redeemed.
func (r *Registry) Revoke(ctx context.Context, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error) {
	if !domain.WellFormedCode(code) {
		return nil, fmt.Errorf("Revoke: %w", domain.ErrInvalidCode)
	}
	c, err := r.codes.Revoke(ctx, accountID, code)
	if err != nil {
		return nil, fmt.Errorf("Revoke: %w", err)
	}

	logging.FromContext(ctx).Info("withdrawal code revoked",
		"code_id", c.ID,
		"account_id", accountID,
	)
	return c, nil
}

// ExpireDue materialises the expired state for up to limit overdue codes.
func (r *Registry) ExpireDue(ctx context.Context, limit int) ([]domain.WithdrawalCode, error) {
	codes, err := r.codes.ExpireDue(ctx, r.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("ExpireDue: %w", err)
	}
	return codes, nil
}

// GenerateCode returns a uniformly random six digit code in
// [100000, 999999] drawn from crypto/rand.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("GenerateCode: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
