package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_BlocksAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(3, time.Minute)
	acct := uuid.New()

	for i := 0; i < 2; i++ {
		require.NoError(t, l.RecordFailure(ctx, acct))
		blocked, err := l.Blocked(ctx, acct)
		require.NoError(t, err)
		assert.False(t, blocked, "after %d failures", i+1)
	}

	require.NoError(t, l.RecordFailure(ctx, acct))
	blocked, err := l.Blocked(ctx, acct)
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestMemoryLimiter_AccountsAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Minute)
	a, b := uuid.New(), uuid.New()

	require.NoError(t, l.RecordFailure(ctx, a))

	blocked, err := l.Blocked(ctx, a)
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = l.Blocked(ctx, b)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestMemoryLimiter_WindowLapses(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, 50*time.Millisecond)
	acct := uuid.New()

	require.NoError(t, l.RecordFailure(ctx, acct))
	blocked, _ := l.Blocked(ctx, acct)
	require.True(t, blocked)

	time.Sleep(80 * time.Millisecond)

	blocked, err := l.Blocked(ctx, acct)
	require.NoError(t, err)
	assert.False(t, blocked)
}
