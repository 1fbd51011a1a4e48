package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

const withdrawalEventColumns = `id, request_id, event_type, actor, payload, created_at`

type WithdrawalEventRepository struct {
	db *sql.DB
}

func NewWithdrawalEventRepository(db *sql.DB) *WithdrawalEventRepository {
	return &WithdrawalEventRepository{db: db}
}

func (r *WithdrawalEventRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.WithdrawalEvent) error {
	var payload any
	if len(event.Payload) > 0 {
		payload = []byte(event.Payload)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO withdrawal_events (id, request_id, event_type, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.RequestID, event.EventType, event.Actor,
		payload, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", classify(err))
	}
	return nil
}

func (r *WithdrawalEventRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) ([]domain.WithdrawalEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+withdrawalEventColumns+` FROM withdrawal_events
		WHERE request_id = $1 ORDER BY created_at`, requestID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByRequestID: %w", classify(err))
	}
	defer rows.Close()

	var events []domain.WithdrawalEvent
	for rows.Next() {
		var e domain.WithdrawalEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.RequestID, &e.EventType, &e.Actor, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("GetByRequestID: scan: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByRequestID: rows: %w", classify(err))
	}
	return events, nil
}
