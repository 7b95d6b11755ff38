package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T, limit int, window time.Duration) (*FixedWindow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFixedWindow(client, "login", limit, window), mr
}

func TestFixedWindow_BlocksAfterLimit(t *testing.T) {
	ctx := context.Background()
	limiter, _ := setupLimiter(t, 3, time.Minute)

	for i := 1; i <= 3; i++ {
		status, err := limiter.Status(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, status.Allowed, "attempt %d", i)

		res, err := limiter.Hit(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, 3-i, res.Remaining)
	}

	status, err := limiter.Status(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, 0, status.Remaining)
	assert.Greater(t, status.RetryAfter(time.Now()), time.Duration(0))

	other, err := limiter.Status(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestFixedWindow_WindowExpires(t *testing.T) {
	ctx := context.Background()
	limiter, mr := setupLimiter(t, 1, time.Minute)

	_, err := limiter.Hit(ctx, "ip")
	require.NoError(t, err)

	status, err := limiter.Status(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, status.Allowed)

	mr.FastForward(61 * time.Second)

	status, err = limiter.Status(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, status.Allowed)
}

func TestFixedWindow_Reset(t *testing.T) {
	ctx := context.Background()
	limiter, _ := setupLimiter(t, 2, time.Minute)

	_, err := limiter.Hit(ctx, "ip")
	require.NoError(t, err)
	_, err = limiter.Hit(ctx, "ip")
	require.NoError(t, err)

	require.NoError(t, limiter.Reset(ctx, "ip"))

	status, err := limiter.Status(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, 2, status.Remaining)
}

func TestFixedWindow_EmptyKey(t *testing.T) {
	limiter, _ := setupLimiter(t, 1, time.Minute)

	_, err := limiter.Hit(context.Background(), "")
	assert.ErrorIs(t, err, ErrKeyRequired)

	_, err = limiter.Status(context.Background(), "")
	assert.ErrorIs(t, err, ErrKeyRequired)
}

func TestResult_RetryAfter(t *testing.T) {
	now := time.Now()
	allowed := &Result{Allowed: true, ResetAt: now.Add(time.Minute)}
	blocked := &Result{Allowed: false, ResetAt: now.Add(30 * time.Second)}

	assert.Equal(t, time.Duration(0), allowed.RetryAfter(now))
	assert.Equal(t, 30*time.Second, blocked.RetryAfter(now))
}
