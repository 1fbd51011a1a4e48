package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
)

// OperatorID is the operator recorded on fixture-issued codes and
// decisions.
var OperatorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func SeedAccount(t *testing.T, db *sql.DB, status domain.IdentityStatus, available, bonus string) *domain.Account {
	t.Helper()

	now := time.Now().UTC()
	a := &domain.Account{
		ID:               uuid.New(),
		HolderName:       "Test Holder",
		AvailableBalance: decimal.RequireFromString(available),
		BonusBalance:     decimal.RequireFromString(bonus),
		IdentityStatus:   status,
		Version:          0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, holder_name, available_balance, bonus_balance, identity_status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.HolderName, a.AvailableBalance, a.BonusBalance, a.IdentityStatus, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return a
}

func SeedVerifiedAccount(t *testing.T, db *sql.DB, available string) *domain.Account {
	t.Helper()
	return SeedAccount(t, db, domain.IdentityStatusVerified, available, "0")
}

func GetAvailableBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT available_balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get available balance %s: %v", accountID, err)
	}
	return balance
}

// SetAvailableBalance stands in for an unrelated balance movement between
// code issue and redemption.
func SetAvailableBalance(t *testing.T, db *sql.DB, accountID uuid.UUID, amount string) {
	t.Helper()

	_, err := db.Exec(`UPDATE accounts SET available_balance = $2 WHERE id = $1`, accountID, amount)
	if err != nil {
		t.Fatalf("set available balance %s: %v", accountID, err)
	}
}

func SetIdentityStatus(t *testing.T, db *sql.DB, accountID uuid.UUID, status domain.IdentityStatus) {
	t.Helper()

	_, err := db.Exec(`UPDATE accounts SET identity_status = $2 WHERE id = $1`, accountID, status)
	if err != nil {
		t.Fatalf("set identity status %s: %v", accountID, err)
	}
}

func GetCodeStatus(t *testing.T, db *sql.DB, codeID uuid.UUID) domain.CodeStatus {
	t.Helper()

	var status domain.CodeStatus
	err := db.QueryRow(`SELECT status FROM withdrawal_codes WHERE id = $1`, codeID).Scan(&status)
	if err != nil {
		t.Fatalf("get code status %s: %v", codeID, err)
	}
	return status
}

func CountRequests(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM withdrawal_requests WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		t.Fatalf("count withdrawal requests for %s: %v", accountID, err)
	}
	return count
}

func CountLedgerEntries(t *testing.T, db *sql.DB, referenceID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE reference_id = $1`, referenceID).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for %s: %v", referenceID, err)
	}
	return count
}

func CountAccountLedgerEntries(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for account %s: %v", accountID, err)
	}
	return count
}

// FixedCode returns a generator that always yields code.
func FixedCode(code string) func() (string, error) {
	return func() (string, error) { return code, nil }
}

// Clock is a settable time source for tests.
type Clock struct {
	t time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

func (c *Clock) Now() time.Time { return c.t }

func (c *Clock) Advance(d time.Duration) { c.t = c.t.Add(d) }
