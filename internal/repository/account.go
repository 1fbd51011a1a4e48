package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

const accountColumns = `id, holder_name, available_balance, bonus_balance,
	identity_status, version, created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", classify(err))
	}
	return a, nil
}

// Get reads the account inside tx without locking it. Balance writes go
// through the conditional updates below, which recheck at commit time.
func (r *AccountRepository) Get(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("Get: %w", classify(err))
	}
	return a, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (
			id, holder_name, available_balance, bonus_balance,
			identity_status, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.HolderName, account.AvailableBalance, account.BonusBalance,
		account.IdentityStatus, account.Version, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", classify(err))
	}
	return nil
}

// Debit subtracts amount from the available balance only if the balance
// still covers it when the row is written. It returns the balance before
// and after the write; ErrInsufficientFunds if the condition fails.
func (r *AccountRepository) Debit(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount decimal.Decimal, now time.Time) (before, after decimal.Decimal, err error) {
	err = tx.QueryRowContext(ctx,
		`UPDATE accounts
		SET available_balance = available_balance - $2, version = version + 1, updated_at = $3
		WHERE id = $1 AND available_balance >= $2
		RETURNING available_balance + $2, available_balance`,
		id, amount, now,
	).Scan(&before, &after)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.Get(ctx, tx, id); getErr != nil {
			return before, after, fmt.Errorf("Debit: %w", getErr)
		}
		return before, after, fmt.Errorf("Debit: %w", domain.ErrInsufficientFunds)
	}
	if err != nil {
		return before, after, fmt.Errorf("Debit: %w", classify(err))
	}
	return before, after, nil
}

func (r *AccountRepository) Credit(ctx context.Context, tx *sql.Tx, id uuid.UUID, amount decimal.Decimal, now time.Time) (before, after decimal.Decimal, err error) {
	err = tx.QueryRowContext(ctx,
		`UPDATE accounts
		SET available_balance = available_balance + $2, version = version + 1, updated_at = $3
		WHERE id = $1
		RETURNING available_balance - $2, available_balance`,
		id, amount, now,
	).Scan(&before, &after)
	if errors.Is(err, sql.ErrNoRows) {
		return before, after, fmt.Errorf("Credit: %w", domain.ErrAccountNotFound)
	}
	if err != nil {
		return before, after, fmt.Errorf("Credit: %w", classify(err))
	}
	return before, after, nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.HolderName, &a.AvailableBalance, &a.BonusBalance,
		&a.IdentityStatus, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
