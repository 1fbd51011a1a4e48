package codes_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
	"github.com/josh-kwaku/withdrawal-settlement/internal/repository"
	"github.com/josh-kwaku/withdrawal-settlement/internal/service/codes"
	"github.com/josh-kwaku/withdrawal-settlement/internal/testutil"
)

func setupRegistry(t *testing.T, db *sql.DB, clock *testutil.Clock, opts ...codes.Option) *codes.Registry {
	t.Helper()
	opts = append([]codes.Option{codes.WithClock(clock.Now)}, opts...)
	return codes.NewRegistry(
		repository.NewWithdrawalCodeRepository(db),
		repository.NewAccountRepository(db),
		repository.NewDB(db),
		codes.DefaultTTL,
		3,
		opts...,
	)
}

func sequence(values ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		v := values[i%len(values)]
		i++
		return v, nil
	}
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 1000; i++ {
		c, err := codes.GenerateCode()
		require.NoError(t, err)
		require.True(t, domain.WellFormedCode(c), "code %q", c)
		require.NotEqual(t, byte('0'), c[0])
	}
}

func TestIssue_HappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Microsecond))
	reg := setupRegistry(t, db, clock)
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, db, "500")

	c, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(250), &testutil.OperatorID)
	require.NoError(t, err)

	assert.True(t, domain.WellFormedCode(c.Code))
	assert.Equal(t, domain.CodeStatusActive, c.Status)
	assert.False(t, c.Used)
	assert.Nil(t, c.UsedAt)
	assert.True(t, c.ExpiresAt.Equal(clock.Now().Add(15*time.Minute)))
	assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, db, c.ID))
}

func TestIssue_Rejections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	reg := setupRegistry(t, db, testutil.NewClock(time.Now().UTC()))
	ctx := context.Background()

	_, err := reg.Issue(ctx, uuid.New(), decimal.NewFromInt(250), nil)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	acct := testutil.SeedVerifiedAccount(t, db, "500")
	_, err = reg.Issue(ctx, acct.ID, decimal.RequireFromString("250.001"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = reg.Issue(ctx, acct.ID, decimal.NewFromInt(-5), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestIssue_ReplacesActiveCodeForSameAmount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Microsecond))
	reg := setupRegistry(t, db, clock, codes.WithGenerator(sequence("111111", "222222", "333333")))
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, db, "1000")

	first, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(250), nil)
	require.NoError(t, err)
	second, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(250), nil)
	require.NoError(t, err)
	other, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(300), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.CodeStatusRevoked, testutil.GetCodeStatus(t, db, first.ID))
	assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, db, second.ID))
	assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, db, other.ID))
}

func TestIssue_ReplacedExpiredCodeIsMarkedExpired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Microsecond))
	reg := setupRegistry(t, db, clock, codes.WithGenerator(sequence("111111", "222222")))
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, db, "1000")

	first, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(250), nil)
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	_, err = reg.Issue(ctx, acct.ID, decimal.NewFromInt(250), nil)
	require.NoError(t, err)

	assert.Equal(t, domain.CodeStatusExpired, testutil.GetCodeStatus(t, db, first.ID))
}

func TestIssue_RetriesOnCollision(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Microsecond))
	reg := setupRegistry(t, db, clock, codes.WithGenerator(sequence("111111", "111111", "222222")))
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, db, "1000")

	first, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(250), nil)
	require.NoError(t, err)
	require.Equal(t, "111111", first.Code)

	second, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(300), nil)
	require.NoError(t, err)
	assert.Equal(t, "222222", second.Code)
}

func TestIssue_SameCodeAllowedAcrossAccounts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	reg := setupRegistry(t, db, testutil.NewClock(time.Now().UTC()), codes.WithGenerator(testutil.FixedCode("123456")))
	ctx := context.Background()

	a := testutil.SeedVerifiedAccount(t, db, "1000")
	b := testutil.SeedVerifiedAccount(t, db, "1000")

	_, err := reg.Issue(ctx, a.ID, decimal.NewFromInt(250), nil)
	require.NoError(t, err)
	_, err = reg.Issue(ctx, b.ID, decimal.NewFromInt(250), nil)
	require.NoError(t, err)
}

func TestIssue_ExhaustedSurfacesStoreUnavailable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	reg := setupRegistry(t, db, testutil.NewClock(time.Now().UTC()), codes.WithGenerator(testutil.FixedCode("123456")))
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, db, "1000")

	_, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(250), nil)
	require.NoError(t, err)

	_, err = reg.Issue(ctx, acct.ID, decimal.NewFromInt(300), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, domain.ErrCodeExhausted)
}

func TestIssue_GeneratorFailureIsNotRetried(t *testing.T) {
	db := testutil.SetupTestDB(t)
	boom := errors.New("entropy unavailable")
	calls := 0
	reg := setupRegistry(t, db, testutil.NewClock(time.Now().UTC()), codes.WithGenerator(func() (string, error) {
		calls++
		return "", boom
	}))

	acct := testutil.SeedVerifiedAccount(t, db, "1000")
	_, err := reg.Issue(context.Background(), acct.ID, decimal.NewFromInt(250), nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestVerify(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Microsecond))
	reg := setupRegistry(t, db, clock, codes.WithGenerator(testutil.FixedCode("123456")))
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, db, "1000")
	issued, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(250), nil)
	require.NoError(t, err)

	t.Run("matches active code", func(t *testing.T) {
		c, err := reg.Verify(ctx, acct.ID, "123456")
		require.NoError(t, err)
		assert.Equal(t, issued.ID, c.ID)
		assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, db, issued.ID))
	})

	t.Run("wrong account", func(t *testing.T) {
		_, err := reg.Verify(ctx, uuid.New(), "123456")
		assert.ErrorIs(t, err, domain.ErrInvalidCode)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, code := range []string{"", "12345", "1234567", "12345a", "١٢٣٤٥٦"} {
			_, err := reg.Verify(ctx, acct.ID, code)
			assert.ErrorIs(t, err, domain.ErrInvalidCode, "code %q", code)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := reg.Verify(ctx, acct.ID, "654321")
		assert.ErrorIs(t, err, domain.ErrInvalidCode)
	})
}

func TestVerify_LazyExpiry(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Microsecond))
	reg := setupRegistry(t, db, clock, codes.WithGenerator(testutil.FixedCode("123456")))
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, db, "1000")
	issued, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(300), nil)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)

	_, err = reg.Verify(ctx, acct.ID, "123456")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.ErrorIs(t, err, codes.ErrExpired)
	assert.Equal(t, domain.CodeStatusExpired, testutil.GetCodeStatus(t, db, issued.ID))

	_, err = reg.Verify(ctx, acct.ID, "123456")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.NotErrorIs(t, err, codes.ErrExpired)
}

func TestRevoke(t *testing.T) {
	db := testutil.SetupTestDB(t)
	reg := setupRegistry(t, db, testutil.NewClock(time.Now().UTC()), codes.WithGenerator(testutil.FixedCode("123456")))
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, db, "1000")
	issued, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(250), nil)
	require.NoError(t, err)

	revoked, err := reg.Revoke(ctx, acct.ID, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.CodeStatusRevoked, revoked.Status)

	_, err = reg.Revoke(ctx, acct.ID, "123456")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = reg.Verify(ctx, acct.ID, "123456")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.Equal(t, domain.CodeStatusRevoked, testutil.GetCodeStatus(t, db, issued.ID))
}

func TestExpireDue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Microsecond))
	reg := setupRegistry(t, db, clock, codes.WithGenerator(sequence("111111", "222222", "333333")))
	ctx := context.Background()

	acct := testutil.SeedVerifiedAccount(t, db, "1000")
	old1, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(250), nil)
	require.NoError(t, err)
	old2, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(300), nil)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	fresh, err := reg.Issue(ctx, acct.ID, decimal.NewFromInt(400), nil)
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)

	expired, err := reg.ExpireDue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	expired, err = reg.ExpireDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	assert.Equal(t, domain.CodeStatusExpired, testutil.GetCodeStatus(t, db, old1.ID))
	assert.Equal(t, domain.CodeStatusExpired, testutil.GetCodeStatus(t, db, old2.ID))
	assert.Equal(t, domain.CodeStatusActive, testutil.GetCodeStatus(t, db, fresh.ID))
}
