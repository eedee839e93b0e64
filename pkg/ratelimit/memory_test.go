package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("allows up to the limit", func(t *testing.T) {
		limiter := NewMemoryLimiter()

		for i := 0; i < 3; i++ {
			res, err := limiter.Allow(ctx, "tenant-1", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, int64(2-i), res.Remaining)
		}

		res, err := limiter.Allow(ctx, "tenant-1", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Greater(t, res.RetryIn, time.Duration(0))
	})

	t.Run("keys are independent", func(t *testing.T) {
		limiter := NewMemoryLimiter()

		res, err := limiter.Allow(ctx, "tenant-1", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)

		res, err = limiter.Allow(ctx, "tenant-1", 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)

		res, err = limiter.Allow(ctx, "tenant-2", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("idle keys are swept", func(t *testing.T) {
		current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		limiter := NewMemoryLimiter()
		limiter.now = func() time.Time { return current }

		for _, key := range []string{"tenant-1", "tenant-2", "tenant-3"} {
			res, err := limiter.Allow(ctx, key, 1, time.Minute)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		}
		assert.Len(t, limiter.buckets, 3)

		// Only tenant-1 keeps sending; the others should not linger once
		// their entries age out.
		current = current.Add(2 * time.Minute)
		_, err := limiter.Allow(ctx, "tenant-1", 1, time.Minute)
		require.NoError(t, err)

		assert.Len(t, limiter.buckets, 1)
		assert.Contains(t, limiter.buckets, "tenant-1")
	})

	t.Run("window slides", func(t *testing.T) {
		current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		limiter := NewMemoryLimiter()
		limiter.now = func() time.Time { return current }

		res, err := limiter.Allow(ctx, "tenant-1", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)

		res, err = limiter.Allow(ctx, "tenant-1", 1, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, time.Minute, res.RetryIn)

		current = current.Add(61 * time.Second)

		res, err = limiter.Allow(ctx, "tenant-1", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})
}

func TestMemoryLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter()

	res, err := limiter.Allow(ctx, "tenant-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	require.NoError(t, limiter.Reset(ctx, "tenant-1"))

	res, err = limiter.Allow(ctx, "tenant-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
