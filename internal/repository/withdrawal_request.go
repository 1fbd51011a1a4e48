package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

const requestColumns = `id, account_id, amount, fee_estimate, payment_channel,
	dest_address, dest_bank_name, dest_account_number, dest_account_name, dest_routing_swift,
	redeemed_code, status, decided_by, decline_reason, created_at, settled_at`

type WithdrawalRequestRepository struct {
	db *sql.DB
}

func NewWithdrawalRequestRepository(db *sql.DB) *WithdrawalRequestRepository {
	return &WithdrawalRequestRepository{db: db}
}

func (r *WithdrawalRequestRepository) Create(ctx context.Context, tx *sql.Tx, req *domain.WithdrawalRequest, codeID uuid.UUID) error {
	d := req.Destination
	_, err := tx.ExecContext(ctx,
		`INSERT INTO withdrawal_requests (
			id, account_id, amount, fee_estimate, payment_channel,
			dest_address, dest_bank_name, dest_account_number, dest_account_name, dest_routing_swift,
			redeemed_code, code_id, status, created_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		req.ID, req.AccountID, req.Amount, req.FeeEstimate, req.PaymentChannel,
		d.Address, d.BankName, d.BankAccountNumber, d.BankAccountName, d.BankRoutingSwift,
		req.RedeemedCode, codeID, req.Status, req.CreatedAt, req.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", classify(err))
	}
	return nil
}

func (r *WithdrawalRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM withdrawal_requests WHERE id = $1`, id,
	)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", classify(err))
	}
	return req, nil
}

func (r *WithdrawalRequestRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id,
	)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", classify(err))
	}
	return req, nil
}

// Settle moves a Pending request to a terminal status. It fails with
// ErrInvalidTransition when the row is no longer Pending.
func (r *WithdrawalRequestRepository) Settle(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.RequestStatus, decidedBy uuid.UUID, declineReason *string, settledAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE withdrawal_requests
		SET status = $2, decided_by = $3, decline_reason = $4, settled_at = $5
		WHERE id = $1 AND status = 'Pending'`,
		id, status, decidedBy, declineReason, settledAt,
	)
	if err != nil {
		return fmt.Errorf("Settle: %w", classify(err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Settle: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Settle: %w", domain.ErrInvalidTransition)
	}
	return nil
}

func (r *WithdrawalRequestRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM withdrawal_requests
		WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByAccount: %w", classify(err))
	}
	defer rows.Close()

	reqs, err := collectRequests(rows)
	if err != nil {
		return nil, fmt.Errorf("ListByAccount: %w", err)
	}
	return reqs, nil
}

func (r *WithdrawalRequestRepository) ListByStatus(ctx context.Context, status domain.RequestStatus, limit, offset int) ([]domain.WithdrawalRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM withdrawal_requests
		WHERE status = $1 ORDER BY created_at LIMIT $2 OFFSET $3`,
		status, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByStatus: %w", classify(err))
	}
	defer rows.Close()

	reqs, err := collectRequests(rows)
	if err != nil {
		return nil, fmt.Errorf("ListByStatus: %w", err)
	}
	return reqs, nil
}

func collectRequests(rows *sql.Rows) ([]domain.WithdrawalRequest, error) {
	var reqs []domain.WithdrawalRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", classify(err))
	}
	return reqs, nil
}

func scanRequest(s scanner) (*domain.WithdrawalRequest, error) {
	var req domain.WithdrawalRequest
	var decidedBy uuid.NullUUID
	d := &req.Destination

	err := s.Scan(
		&req.ID, &req.AccountID, &req.Amount, &req.FeeEstimate, &req.PaymentChannel,
		&d.Address, &d.BankName, &d.BankAccountNumber, &d.BankAccountName, &d.BankRoutingSwift,
		&req.RedeemedCode, &req.Status, &decidedBy, &req.DeclineReason, &req.CreatedAt, &req.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	if decidedBy.Valid {
		req.DecidedBy = &decidedBy.UUID
	}
	return &req, nil
}
