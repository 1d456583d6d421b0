package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, max int64) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRateLimiter(rdb, max, time.Minute), mr
}

func TestCheckLoginAttempt(t *testing.T) {
	rl, mr := newTestLimiter(t, 3)
	ctx := context.Background()

	for i, wantRemaining := range []int64{2, 1, 0} {
		allowed, remaining, err := rl.CheckLoginAttempt(ctx, "1.2.3.4", "a@b.com")
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d", i+1)
		assert.Equal(t, wantRemaining, remaining)
	}

	allowed, remaining, err := rl.CheckLoginAttempt(ctx, "1.2.3.4", "a@b.com")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)

	// a different email has its own window
	allowed, _, err = rl.CheckLoginAttempt(ctx, "1.2.3.4", "c@d.com")
	require.NoError(t, err)
	assert.True(t, allowed)

	mr.FastForward(2 * time.Minute)
	allowed, _, err = rl.CheckLoginAttempt(ctx, "1.2.3.4", "a@b.com")
	require.NoError(t, err)
	assert.True(t, allowed, "window should have expired")
}

func TestResetLoginAttempts(t *testing.T) {
	rl, _ := newTestLimiter(t, 5)
	ctx := context.Background()

	_, remaining, err := rl.CheckLoginAttempt(ctx, "ip", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, int64(4), remaining)

	_, remaining, err = rl.CheckLoginAttempt(ctx, "ip", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), remaining)

	require.NoError(t, rl.ResetLoginAttempts(ctx, "ip", "a@b.com"))
	_, remaining, err = rl.CheckLoginAttempt(ctx, "ip", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, int64(4), remaining, "reset starts a fresh window")
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(nil, 0, 0)
	assert.Equal(t, DefaultLoginWindow, rl.Window())
	assert.Equal(t, int64(DefaultMaxLoginAttempts), rl.maxAttempts)
}
