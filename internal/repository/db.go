package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

type DB struct {
	pool *sql.DB
}

func NewDB(pool *sql.DB) *DB {
	return &DB{pool: pool}
}

func (d *DB) Conn() *sql.DB {
	return d.pool
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := d.pool.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("BeginTx: %w", classify(err))
	}
	return tx, nil
}

// classify tags transient infrastructure failures with
// domain.ErrStoreUnavailable so callers can tell them from business
// outcomes. Other errors pass through untouched.
func classify(err error) error {
	if err == nil || !IsTransient(err) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

// Classify exposes classify to callers that finish a transaction, such as
// a commit, outside this package.
func Classify(err error) error {
	return classify(err)
}

// IsTransient reports whether err is a connection, serialization, deadlock
// or resource failure that may succeed on retry.
func IsTransient(err error) bool {
	if errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code.Class() {
	case "08", "40", "53":
		return true
	}
	return strings.HasPrefix(string(pqErr.Code), "57P0")
}

func isUniqueViolation(err error) (constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	return "", false
}
