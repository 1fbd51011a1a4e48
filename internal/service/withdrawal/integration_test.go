package withdrawal_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
	"github.com/josh-kwaku/withdrawal-settlement/internal/eligibility"
	"github.com/josh-kwaku/withdrawal-settlement/internal/fee"
	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
	"github.com/josh-kwaku/withdrawal-settlement/internal/notify"
	"github.com/josh-kwaku/withdrawal-settlement/internal/ratelimit"
	"github.com/josh-kwaku/withdrawal-settlement/internal/repository"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/codes"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/ledger"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/withdrawal"
	"github.com/josh-kwaku/withdrawal-settlement/internal/testutil"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return true
}

func (r *recordingNotifier) ofType(t notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	db       *sql.DB
	svc      *withdrawal.Service
	clock    *testutil.Clock
	notifier *recordingNotifier
}

func setup(t *testing.T, maxFailures int) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return newHarness(t, db, maxFailures)
}

func newHarness(t *testing.T, db *sql.DB, maxFailures int, opts ...func(*withdrawal.Deps)) *harness {
	t.Helper()

	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Microsecond))
	notifier := &recordingNotifier{}
	accounts := repository.NewAccountRepository(db)
	store := repository.NewDB(db)

	registry := codes.NewRegistry(
		repository.NewWithdrawalCodeRepository(db),
		accounts,
		store,
		codes.DefaultTTL,
		5,
		codes.WithClock(clock.Now),
		codes.WithGenerator(testutil.FixedCode("123456")),
	)

	deps := withdrawal.Deps{
		Codes:    registry,
		Ledger:   ledger.New(accounts, repository.NewLedgerRepository(db)),
		Accounts: accounts,
		Requests: repository.NewWithdrawalRequestRepository(db),
		Events:   repository.NewWithdrawalEventRepository(db),
		Gate:     eligibility.DefaultPolicy(),
		Fees: fee.NewRateService(
			decimal.RequireFromString("0.015"),
			decimal.RequireFromString("0.01"),
			decimal.Zero,
		),
		Notifier: notifier,
		Limiter:  ratelimit.NewMemoryLimiter(maxFailures, time.Minute),
		DB:       store,
		Now:      clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc := withdrawal.NewService(deps)

	return &harness{db: db, svc: svc, clock: clock, notifier: notifier}
}

func (h *harness) issue(t *testing.T, accountID uuid.UUID, amount string) *domain.WithdrawalCode {
	t.Helper()
	c, err := h.svc.IssueCode(context.Background(), accountID, decimal.RequireFromString(amount), testutil.OperatorID)
	require.NoError(t, err)
	return c
}

func redeemReq(accountID uuid.UUID, code, amount string) withdrawal.RedeemRequest {
	return withdrawal.RedeemRequest{
		AccountID:      accountID,
		Code:           code,
		Amount:         decimal.RequireFromString(amount),
		PaymentChannel: domain.PaymentChannelChainA,
		Destination:    domain.Destination{Address: "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2"},
	}
}

func assertBalance(t *testing.T, db *sql.DB, accountID uuid.UUID, want string) {
	t.Helper()
	got := testutil.GetAvailableBalance(t, db, accountID)
	assert.True(t, decimal.RequireFromString(want).Equal(got), "available balance: want %s, got %s", want, got)
}

func TestRedeem_HappyPath(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	code := h.issue(t, acct.ID, "250")
	require.Equal(t, "123456", code.Code)

	wr, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "250"))
	require.NoError(t, err)

	assert.Equal(t, domain.RequestStatusPending, wr.Status)
	assert.Equal(t, acct.ID, wr.AccountID)
	require.NotNil(t, wr.RedeemedCode)
	assert.Equal(t, "123456", *wr.RedeemedCode)
	assert.Nil(t, wr.SettledAt)
	assert.True(t, decimal.RequireFromString("3.75").Equal(wr.FeeEstimate))

	assertBalance(t, h.db, acct.ID, "250")
	assert.Equal(t, domain.CodeStatusUsed, testutil.GetCodeStatus(t, h.db, code.ID))
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, h.db, wr.ID))

	stored, err := h.svc.GetRequest(ctx, wr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusPending, stored.Status)
	assert.True(t, decimal.NewFromInt(250).Equal(stored.Amount))
	assert.Equal(t, "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", stored.Destination.Address)

	history, err := h.svc.History(ctx, wr.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.WithdrawalEventTypeCreated, history[0].EventType)

	assert.Len(t, h.notifier.ofType(notify.EventCodeIssued), 1)
	assert.Len(t, h.notifier.ofType(notify.EventWithdrawalPending), 1)
}

func TestRedeem_SecondRedemptionIsAlreadyUsed(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	h.issue(t, acct.ID, "250")

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "250"))
	require.NoError(t, err)

	_, err = h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "250"))
	assert.ErrorIs(t, err, domain.ErrAlreadyUsed)
	assert.Equal(t, "invalid or expired withdrawal code", withdrawal.PublicReason(err))

	assertBalance(t, h.db, acct.ID, "250")
	assert.Equal(t, 1, testutil.CountRequests(t, h.db, acct.ID))
}

func TestRedeem_ExpiredCode(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	code := h.issue(t, acct.ID, "300")

	h.clock.Advance(16 * time.Minute)

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "300"))
	assert.ErrorIs(t, err, domain.ErrInvalidCode)

	assertBalance(t, h.db, acct.ID, "500")
	assert.Equal(t, domain.CodeStatusExpired, testutil.GetCodeStatus(t, h.db, code.ID))
	assert.Equal(t, 0, testutil.CountRequests(t, h.db, acct.ID))
}

func TestRedeem_ExpiryBoundary(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	h.issue(t, acct.ID, "300")

	h.clock.Advance(15 * time.Minute)

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "300"))
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assertBalance(t, h.db, acct.ID, "500")
}

func TestRedeem_InsufficientFundsAtCommit(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	// The gate runs before the debit and counts available plus bonus, so
	// the bonus lets the request past the gate and the shortfall in
	// available balance is caught by the conditional debit at commit.
	acct := testutil.SeedAccount(t, h.db, domain.IdentityStatusVerified, "500", "300")
	code := h.issue(t, acct.ID, "300")

	testutil.SetAvailableBalance(t, h.db, acct.ID, "100")

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "300"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assertBalance(t, h.db, acct.ID, "100")
	assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, h.db, code.ID))
	assert.Equal(t, 0, testutil.CountRequests(t, h.db, acct.ID))
	assert.Len(t, h.notifier.ofType(notify.EventRedemptionFailed), 1)
}

func TestRedeem_BalanceDropWithoutBonusExceedsBalance(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	code := h.issue(t, acct.ID, "300")

	testutil.SetAvailableBalance(t, h.db, acct.ID, "100")

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "300"))
	assert.ErrorIs(t, err, domain.ErrExceedsBalance)

	assertBalance(t, h.db, acct.ID, "100")
	assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, h.db, code.ID))
}

func TestRedeem_BelowMinimum(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	code := h.issue(t, acct.ID, "150")

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "150"))
	assert.ErrorIs(t, err, domain.ErrBelowMinimum)
	assert.Equal(t, "minimum withdrawal is 200.00", withdrawal.PublicReason(err))

	assertBalance(t, h.db, acct.ID, "500")
	assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, h.db, code.ID))
}

func TestRedeem_KYCRequired(t *testing.T) {
	for _, status := range []domain.IdentityStatus{
		domain.IdentityStatusUnverified,
		domain.IdentityStatusPending,
		domain.IdentityStatusRejected,
	} {
		t.Run(string(status), func(t *testing.T) {
			h := setup(t, 100)
			ctx := context.Background()

			acct := testutil.SeedAccount(t, h.db, status, "500", "0")
			code := h.issue(t, acct.ID, "250")

			_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "250"))
			assert.ErrorIs(t, err, domain.ErrKYCRequired)

			assertBalance(t, h.db, acct.ID, "500")
			assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, h.db, code.ID))
		})
	}
}

func TestRedeem_KYCRevokedAfterIssue(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	h.issue(t, acct.ID, "250")

	require.NoError(t, h.svc.Precheck(ctx, acct.ID, decimal.NewFromInt(250)))
	testutil.SetIdentityStatus(t, h.db, acct.ID, domain.IdentityStatusRejected)

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "250"))
	assert.ErrorIs(t, err, domain.ErrKYCRequired)
	assertBalance(t, h.db, acct.ID, "500")
}

func TestRedeem_AmountMismatch(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	code := h.issue(t, acct.ID, "250")

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "300"))
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)

	assertBalance(t, h.db, acct.ID, "500")
	assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, h.db, code.ID))

	// Trailing zeros do not make a mismatch.
	_, err = h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "250.00"))
	require.NoError(t, err)
}

func TestRedeem_CodeBelongsToAnotherAccount(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	owner := testutil.SeedVerifiedAccount(t, h.db, "500")
	other := testutil.SeedVerifiedAccount(t, h.db, "500")
	h.issue(t, owner.ID, "250")

	_, err := h.svc.Redeem(ctx, redeemReq(other.ID, "123456", "250"))
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assertBalance(t, h.db, other.ID, "500")
	assertBalance(t, h.db, owner.ID, "500")
}

func TestRedeem_RevokedCode(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	h.issue(t, acct.ID, "250")

	_, err := h.svc.RevokeCode(ctx, acct.ID, "123456")
	require.NoError(t, err)

	_, err = h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "250"))
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assertBalance(t, h.db, acct.ID, "500")
	assert.Len(t, h.notifier.ofType(notify.EventCodeRevoked), 1)
}

func TestRedeem_InvalidInput(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()
	acct := testutil.SeedVerifiedAccount(t, h.db, "500")

	req := redeemReq(acct.ID, "123456", "250")
	req.PaymentChannel = "paypal"
	_, err := h.svc.Redeem(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidChannel)

	req = redeemReq(acct.ID, "123456", "250")
	req.Amount = decimal.RequireFromString("250.005")
	_, err = h.svc.Redeem(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.svc.Redeem(ctx, redeemReq(acct.ID, "12a456", "250"))
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestRedeem_ConcurrentRedemptionsSettleOnce(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "1000")
	code := h.issue(t, acct.ID, "250")

	const attempts = 10
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		successes   int
		alreadyUsed int
		other       []error
	)

	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "250"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadyUsed):
				alreadyUsed++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, alreadyUsed)

	assertBalance(t, h.db, acct.ID, "750")
	assert.Equal(t, domain.CodeStatusUsed, testutil.GetCodeStatus(t, h.db, code.ID))
	assert.Equal(t, 1, testutil.CountRequests(t, h.db, acct.ID))
}

func TestRedeem_ConcurrentCodesNeverOverdraw(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	// Two codes for different amounts on an account that can only cover one.
	acct := testutil.SeedAccount(t, h.db, domain.IdentityStatusVerified, "500", "500")
	codeA, err := h.svc.IssueCode(ctx, acct.ID, decimal.NewFromInt(300), testutil.OperatorID)
	require.NoError(t, err)
	_, err = h.db.Exec(`UPDATE withdrawal_codes SET code = '654321' WHERE id = $1`, codeA.ID)
	require.NoError(t, err)
	h.issue(t, acct.ID, "400")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, r := range []withdrawal.RedeemRequest{
		redeemReq(acct.ID, "654321", "300"),
		redeemReq(acct.ID, "123456", "400"),
	} {
		wg.Add(1)
		go func(i int, r withdrawal.RedeemRequest) {
			defer wg.Done()
			_, errs[i] = h.svc.Redeem(ctx, r)
		}(i, r)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	}
	require.Equal(t, 1, succeeded)

	balance := testutil.GetAvailableBalance(t, h.db, acct.ID)
	assert.True(t, balance.Equal(decimal.NewFromInt(200)) || balance.Equal(decimal.NewFromInt(100)), "balance %s", balance)
	assert.False(t, balance.IsNegative())
}

func TestRedeem_TooManyFailedAttempts(t *testing.T) {
	h := setup(t, 2)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	h.issue(t, acct.ID, "250")

	for i := 0; i < 2; i++ {
		_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "999999", "250"))
		require.ErrorIs(t, err, domain.ErrInvalidCode)
	}

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "250"))
	assert.ErrorIs(t, err, domain.ErrTooManyAttempts)

	_, err = h.svc.VerifyCode(ctx, acct.ID, "123456")
	assert.ErrorIs(t, err, domain.ErrTooManyAttempts)

	assertBalance(t, h.db, acct.ID, "500")
}

func TestRedeem_BusinessRejectionsDoNotCountAsFailures(t *testing.T) {
	h := setup(t, 1)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	h.issue(t, acct.ID, "250")
	testutil.SetIdentityStatus(t, h.db, acct.ID, domain.IdentityStatusPending)

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "250"))
	require.ErrorIs(t, err, domain.ErrKYCRequired)

	testutil.SetIdentityStatus(t, h.db, acct.ID, domain.IdentityStatusVerified)
	_, err = h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "250"))
	require.NoError(t, err)
}

func TestVerifyCode(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	issued := h.issue(t, acct.ID, "250")

	c, err := h.svc.VerifyCode(ctx, acct.ID, "123456")
	require.NoError(t, err)
	assert.Equal(t, issued.ID, c.ID)
	assert.True(t, decimal.NewFromInt(250).Equal(c.Amount))
	assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, h.db, issued.ID))

	_, err = h.svc.VerifyCode(ctx, acct.ID, "000000")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestRequestCode(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	require.NoError(t, h.svc.RequestCode(ctx, acct.ID, decimal.NewFromInt(250), domain.PaymentChannelBankTransfer))

	requested := h.notifier.ofType(notify.EventCodeRequested)
	require.Len(t, requested, 1)
	assert.Equal(t, "250.00", requested[0].Amount)
	assert.Equal(t, "bankTransfer", requested[0].PaymentChannel)
	assert.Empty(t, h.notifier.ofType(notify.EventCodeIssued))

	unverified := testutil.SeedAccount(t, h.db, domain.IdentityStatusUnverified, "500", "0")
	err := h.svc.RequestCode(ctx, unverified.ID, decimal.NewFromInt(250), domain.PaymentChannelChainB)
	assert.ErrorIs(t, err, domain.ErrKYCRequired)

	err = h.svc.RequestCode(ctx, acct.ID, decimal.NewFromInt(250), "cash")
	assert.ErrorIs(t, err, domain.ErrInvalidChannel)
}

func TestPrecheck(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()

	acct := testutil.SeedAccount(t, h.db, domain.IdentityStatusVerified, "150", "100")

	assert.NoError(t, h.svc.Precheck(ctx, acct.ID, decimal.NewFromInt(250)))
	assert.ErrorIs(t, h.svc.Precheck(ctx, acct.ID, decimal.NewFromInt(251)), domain.ErrExceedsBalance)
	assert.ErrorIs(t, h.svc.Precheck(ctx, acct.ID, decimal.NewFromInt(199)), domain.ErrBelowMinimum)
	assert.ErrorIs(t, h.svc.Precheck(ctx, uuid.New(), decimal.NewFromInt(250)), domain.ErrAccountNotFound)
}

func redeemed(t *testing.T, h *harness, available string) (*domain.Account, *domain.WithdrawalRequest) {
	t.Helper()
	acct := testutil.SeedVerifiedAccount(t, h.db, available)
	h.issue(t, acct.ID, "250")
	wr, err := h.svc.Redeem(context.Background(), redeemReq(acct.ID, "123456", "250"))
	require.NoError(t, err)
	return acct, wr
}

func TestConfirm(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()
	acct, wr := redeemed(t, h, "500")

	h.clock.Advance(time.Hour)
	confirmed, err := h.svc.Confirm(ctx, wr.ID, testutil.OperatorID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusActive, confirmed.Status)
	require.NotNil(t, confirmed.SettledAt)
	require.NotNil(t, confirmed.DecidedBy)
	assert.Equal(t, testutil.OperatorID, *confirmed.DecidedBy)

	// Re-applying is a no-op.
	again, err := h.svc.Confirm(ctx, wr.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusActive, again.Status)
	assert.Equal(t, testutil.OperatorID, *again.DecidedBy)

	_, err = h.svc.Decline(ctx, wr.ID, testutil.OperatorID, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assertBalance(t, h.db, acct.ID, "250")
	assert.Len(t, h.notifier.ofType(notify.EventWithdrawalConfirmed), 1)

	history, err := h.svc.History(ctx, wr.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestDecline_RefundsBalance(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()
	acct, wr := redeemed(t, h, "500")
	assertBalance(t, h.db, acct.ID, "250")

	declined, err := h.svc.Decline(ctx, wr.ID, testutil.OperatorID, "  destination rejected  ")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusDeclined, declined.Status)
	require.NotNil(t, declined.DeclineReason)
	assert.Equal(t, "destination rejected", *declined.DeclineReason)

	assertBalance(t, h.db, acct.ID, "500")
	assert.Equal(t, 2, testutil.CountLedgerEntries(t, h.db, wr.ID))

	_, err = h.svc.Decline(ctx, wr.ID, testutil.OperatorID, "")
	require.NoError(t, err)
	assertBalance(t, h.db, acct.ID, "500")

	_, err = h.svc.Confirm(ctx, wr.ID, testutil.OperatorID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	events := h.notifier.ofType(notify.EventWithdrawalDeclined)
	require.Len(t, events, 1)
	assert.Equal(t, "destination rejected", events[0].Reason)
}

func TestTransition_UnknownRequest(t *testing.T) {
	h := setup(t, 100)

	_, err := h.svc.Confirm(context.Background(), uuid.New(), testutil.OperatorID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransition_ConcurrentConfirmAndDecline(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()
	acct, wr := redeemed(t, h, "500")

	var wg sync.WaitGroup
	var confirmErr, declineErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = h.svc.Confirm(ctx, wr.ID, testutil.OperatorID)
	}()
	go func() {
		defer wg.Done()
		_, declineErr = h.svc.Decline(ctx, wr.ID, testutil.OperatorID, "race")
	}()
	wg.Wait()

	require.True(t, (confirmErr == nil) != (declineErr == nil), "confirm=%v decline=%v", confirmErr, declineErr)

	final, err := h.svc.GetRequest(ctx, wr.ID)
	require.NoError(t, err)
	if confirmErr == nil {
		assert.ErrorIs(t, declineErr, domain.ErrInvalidTransition)
		assert.Equal(t, domain.RequestStatusActive, final.Status)
		assertBalance(t, h.db, acct.ID, "250")
	} else {
		assert.ErrorIs(t, confirmErr, domain.ErrInvalidTransition)
		assert.Equal(t, domain.RequestStatusDeclined, final.Status)
		assertBalance(t, h.db, acct.ID, "500")
	}
}

func TestListing(t *testing.T) {
	h := setup(t, 100)
	ctx := context.Background()
	acct, wr := redeemed(t, h, "500")
	other, otherReq := redeemed(t, h, "800")

	mine, err := h.svc.ListForAccount(ctx, acct.ID, 20, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, wr.ID, mine[0].ID)

	pending, err := h.svc.ListByStatus(ctx, domain.RequestStatusPending, 20, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = h.svc.Confirm(ctx, otherReq.ID, testutil.OperatorID)
	require.NoError(t, err)

	pending, err = h.svc.ListByStatus(ctx, domain.RequestStatusPending, 20, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = h.svc.ListByStatus(ctx, "Paid", 20, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = h.svc.GetRequestForAccount(ctx, other.ID, wr.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := h.svc.GetRequestForAccount(ctx, acct.ID, wr.ID)
	require.NoError(t, err)
	assert.Equal(t, wr.ID, got.ID)
}

// consumeLoses behaves like the registry except that the final consume
// loses the race, as if another redemption committed first.
type consumeLoses struct {
	*codes.Registry
}

func (consumeLoses) Consume(context.Context, *sql.Tx, uuid.UUID, string, time.Time) (*domain.WithdrawalCode, error) {
	return nil, fmt.Errorf("Consume: %w", domain.ErrAlreadyUsed)
}

func TestRedeem_ConsumeFailureRollsBackDebit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHarness(t, db, 100, func(d *withdrawal.Deps) {
		d.Codes = consumeLoses{Registry: d.Codes.(*codes.Registry)}
	})
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	code := h.issue(t, acct.ID, "300")

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "300"))
	assert.ErrorIs(t, err, domain.ErrAlreadyUsed)

	assertBalance(t, h.db, acct.ID, "500")
	assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, h.db, code.ID))
	assert.Equal(t, 0, testutil.CountRequests(t, h.db, acct.ID))
	assert.Equal(t, 0, testutil.CountAccountLedgerEntries(t, h.db, acct.ID))
	assert.Empty(t, h.notifier.ofType(notify.EventWithdrawalPending))
}

// accountGone reports every in-transaction account read as missing.
type accountGone struct {
	*repository.AccountRepository
}

func (accountGone) Get(context.Context, *sql.Tx, uuid.UUID) (*domain.Account, error) {
	return nil, fmt.Errorf("Get: %w", domain.ErrAccountNotFound)
}

func TestRedeem_MissingAccountLogsWarn(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHarness(t, db, 100, func(d *withdrawal.Deps) {
		d.Accounts = accountGone{AccountRepository: repository.NewAccountRepository(db)}
	})

	var logs bytes.Buffer
	ctx := logging.WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&logs, nil)))

	acct := testutil.SeedVerifiedAccount(t, h.db, "500")
	h.issue(t, acct.ID, "300")

	_, err := h.svc.Redeem(ctx, redeemReq(acct.ID, "123456", "300"))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	assertBalance(t, h.db, acct.ID, "500")

	assert.Contains(t, logs.String(), `"level":"WARN","msg":"redemption rejected"`)
	assert.Contains(t, logs.String(), `"reason":"account_not_found"`)
	assert.NotContains(t, logs.String(), `"level":"ERROR"`)
}
