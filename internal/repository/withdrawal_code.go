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

const codeColumns = `id, code, account_id, amount, issued_at, expires_at,
	used, used_at, status, issued_by`

// ConstraintActiveCode guards code uniqueness among an account's active codes.
const ConstraintActiveCode = "uq_withdrawal_codes_active_code"

// ErrDuplicateActiveCode is returned by Create when the generated code
// collides with another active code of the same account.
var ErrDuplicateActiveCode = errors.New("duplicate active withdrawal code")

// ErrDuplicateActiveAmount is returned by Create when a concurrent issue
// for the same (account, amount) pair committed first.
var ErrDuplicateActiveAmount = errors.New("duplicate active withdrawal code amount")

type WithdrawalCodeRepository struct {
	db *sql.DB
}

func NewWithdrawalCodeRepository(db *sql.DB) *WithdrawalCodeRepository {
	return &WithdrawalCodeRepository{db: db}
}

func (r *WithdrawalCodeRepository) Create(ctx context.Context, tx *sql.Tx, c *domain.WithdrawalCode) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO withdrawal_codes (
			id, code, account_id, amount, issued_at, expires_at,
			used, used_at, status, issued_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Code, c.AccountID, c.Amount, c.IssuedAt, c.ExpiresAt,
		c.Used, c.UsedAt, c.Status, c.IssuedBy,
	)
	if constraint, ok := isUniqueViolation(err); ok {
		if constraint == ConstraintActiveCode {
			return fmt.Errorf("Create: %w", ErrDuplicateActiveCode)
		}
		return fmt.Errorf("Create: %w", ErrDuplicateActiveAmount)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", classify(err))
	}
	return nil
}

// ActiveCodeExists reports whether code is held by one of the account's
// active codes.
func (r *WithdrawalCodeRepository) ActiveCodeExists(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, code string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM withdrawal_codes
			WHERE account_id = $1 AND code = $2 AND status = 'active'
		)`, accountID, code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ActiveCodeExists: %w", classify(err))
	}
	return exists, nil
}

// RetireActiveForAmount moves any active code for (account, amount) out of
// the active state: expired ones become expired, the rest revoked.
func (r *WithdrawalCodeRepository) RetireActiveForAmount(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, amount decimal.Decimal, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE withdrawal_codes
		SET status = CASE WHEN expires_at <= $3 THEN 'expired' ELSE 'revoked' END
		WHERE account_id = $1 AND amount = $2 AND status = 'active'`,
		accountID, amount, now,
	)
	if err != nil {
		return 0, fmt.Errorf("RetireActiveForAmount: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("RetireActiveForAmount: rows affected: %w", err)
	}
	return n, nil
}

// GetForRedemption locks the most relevant code row matching (account,
// code): an active row if there is one, otherwise the latest issued. A
// caller blocked behind a concurrent redemption sees the row as that
// redemption left it.
func (r *WithdrawalCodeRepository) GetForRedemption(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM withdrawal_codes
		WHERE account_id = $1 AND code = $2
		ORDER BY (status = 'active') DESC, issued_at DESC
		LIMIT 1
		FOR UPDATE`,
		accountID, code,
	)
	c, err := scanCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForRedemption: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForRedemption: %w", classify(err))
	}
	return c, nil
}

// MarkExpired flips an active code whose expiry has passed to expired.
func (r *WithdrawalCodeRepository) MarkExpired(ctx context.Context, tx *sql.Tx, id uuid.UUID, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE withdrawal_codes SET status = 'expired'
		WHERE id = $1 AND status = 'active' AND expires_at <= $2`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("MarkExpired: %w", classify(err))
	}
	return nil
}

// Consume transitions the account's active code to used. The write only
// applies while the row is still active and unexpired, so of any number of
// concurrent callers exactly one observes success; the rest get
// ErrAlreadyUsed.
func (r *WithdrawalCodeRepository) Consume(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, code string, now time.Time) (*domain.WithdrawalCode, error) {
	row := tx.QueryRowContext(ctx,
		`UPDATE withdrawal_codes
		SET status = 'used', used = true, used_at = $3
		WHERE account_id = $1 AND code = $2 AND status = 'active' AND expires_at > $3
		RETURNING `+codeColumns,
		accountID, code, now,
	)
	c, err := scanCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Consume: %w", domain.ErrAlreadyUsed)
		}
		return nil, fmt.Errorf("Consume: %w", classify(err))
	}
	return c, nil
}

// Revoke transitions the account's active code to revoked with the same
// guarded write as Consume.
func (r *WithdrawalCodeRepository) Revoke(ctx context.Context, accountID uuid.UUID, code string) (*domain.WithdrawalCode, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE withdrawal_codes SET status = 'revoked'
		WHERE account_id = $1 AND code = $2 AND status = 'active'
		RETURNING `+codeColumns,
		accountID, code,
	)
	c, err := scanCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Revoke: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Revoke: %w", classify(err))
	}
	return c, nil
}

// ExpireDue marks up to limit overdue active codes expired and returns
// them. Rows locked by another sweeper or a redemption are skipped.
func (r *WithdrawalCodeRepository) ExpireDue(ctx context.Context, now time.Time, limit int) ([]domain.WithdrawalCode, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE withdrawal_codes SET status = 'expired'
		WHERE id IN (
			SELECT id FROM withdrawal_codes
			WHERE status = 'active' AND expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+codeColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ExpireDue: %w", classify(err))
	}
	defer rows.Close()

	var codes []domain.WithdrawalCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("ExpireDue: scan: %w", err)
		}
		codes = append(codes, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ExpireDue: rows: %w", classify(err))
	}
	return codes, nil
}

func (r *WithdrawalCodeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalCode, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM withdrawal_codes WHERE id = $1`, id,
	)
	c, err := scanCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", classify(err))
	}
	return c, nil
}

func scanCode(s scanner) (*domain.WithdrawalCode, error) {
	var c domain.WithdrawalCode
	var issuedBy uuid.NullUUID
	err := s.Scan(
		&c.ID, &c.Code, &c.AccountID, &c.Amount, &c.IssuedAt, &c.ExpiresAt,
		&c.Used, &c.UsedAt, &c.Status, &issuedBy,
	)
	if err != nil {
		return nil, err
	}
	if issuedBy.Valid {
		c.IssuedBy = &issuedBy.UUID
	}
	return &c, nil
}
