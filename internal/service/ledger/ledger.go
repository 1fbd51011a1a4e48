// Package ledger owns every write to an account's available balance.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

type accountRepo interface {
	Debit(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount decimal.Decimal, now time.Time) (before, after decimal.Decimal, err error)
	Credit(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount decimal.Decimal, now time.Time) (before, after decimal.Decimal, err error)
}

type entryRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
}

type Ledger struct {
	accounts accountRepo
	entries  entryRepo
}

func New(accounts accountRepo, entries entryRepo) *Ledger {
	return &Ledger{accounts: accounts, entries: entries}
}

// Debit removes amount from the account's available balance inside tx and
// records the movement against referenceID. The balance check happens in
// the same conditional write, so a balance that moved after any earlier
// read surfaces here as ErrInsufficientFunds.
func (l *Ledger) Debit(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, amount decimal.Decimal, referenceID uuid.UUID, now time.Time) (decimal.Decimal, error) {
	if !domain.ValidAmount(amount) {
		return decimal.Zero, fmt.Errorf("Debit: %w", domain.ErrInvalidAmount)
	}

	before, after, err := l.accounts.Debit(ctx, tx, accountID, amount, now)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Debit: %w", err)
	}

	if err := l.record(ctx, tx, accountID, referenceID, domain.EntryTypeDebit, amount, before, after, now); err != nil {
		return decimal.Zero, fmt.Errorf("Debit: %w", err)
	}
	return after, nil
}

// Credit returns amount to the account's available balance inside tx.
func (l *Ledger) Credit(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, amount decimal.Decimal, referenceID uuid.UUID, now time.Time) (decimal.Decimal, error) {
	if !domain.ValidAmount(amount) {
		return decimal.Zero, fmt.Errorf("Credit: %w", domain.ErrInvalidAmount)
	}

	before, after, err := l.accounts.Credit(ctx, tx, accountID, amount, now)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Credit: %w", err)
	}

	if err := l.record(ctx, tx, accountID, referenceID, domain.EntryTypeCredit, amount, before, after, now); err != nil {
		return decimal.Zero, fmt.Errorf("Credit: %w", err)
	}
	return after, nil
}

func (l *Ledger) record(ctx context.Context, tx *sql.Tx, accountID, referenceID uuid.UUID, entryType domain.EntryType, amount, before, after decimal.Decimal, now time.Time) error {
	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     accountID,
		ReferenceID:   referenceID,
		EntryType:     entryType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     now,
	}
	if err := l.entries.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("record %s entry: %w", entryType, err)
	}
	return nil
}
