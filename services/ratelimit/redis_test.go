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

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisWindow_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("denied attempts are rolled back", func(t *testing.T) {
		_, rdb := setupRedis(t)
		l := NewRedisWindow(rdb, "test:jwks", Window{Limit: 3, Length: time.Minute})

		for i := 0; i < 3; i++ {
			ok, err := l.Allow(ctx, "fetch")
			require.NoError(t, err)
			assert.True(t, ok)
		}

		for i := 0; i < 5; i++ {
			ok, err := l.Allow(ctx, "fetch")
			require.NoError(t, err)
			assert.False(t, ok)
		}

		card, err := rdb.ZCard(ctx, "test:jwks:fetch").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(3), card)
	})

	t.Run("window rolls with the clock", func(t *testing.T) {
		_, rdb := setupRedis(t)
		now := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
		l := NewRedisWindow(rdb, "test:jwks", Window{Limit: 2, Length: time.Minute})
		l.now = func() time.Time { return now }

		for i := 0; i < 2; i++ {
			ok, err := l.Allow(ctx, "fetch")
			require.NoError(t, err)
			require.True(t, ok)
		}
		ok, err := l.Allow(ctx, "fetch")
		require.NoError(t, err)
		assert.False(t, ok)

		now = now.Add(59 * time.Second)
		ok, err = l.Allow(ctx, "fetch")
		require.NoError(t, err)
		assert.False(t, ok, "still inside the rolling minute")

		now = now.Add(2 * time.Second)
		ok, err = l.Allow(ctx, "fetch")
		require.NoError(t, err)
		assert.True(t, ok, "earlier attempts left the window")

		card, err := rdb.ZCard(ctx, "test:jwks:fetch").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), card)
	})

	t.Run("keys are independent", func(t *testing.T) {
		_, rdb := setupRedis(t)
		l := NewRedisWindow(rdb, "test:jwks", PerMinute(1))

		ok, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.Allow(ctx, "b")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("shared between limiters", func(t *testing.T) {
		_, rdb := setupRedis(t)
		first := NewRedisWindow(rdb, "test:jwks", PerMinute(2))
		second := NewRedisWindow(rdb, "test:jwks", PerMinute(2))

		ok, _ := first.Allow(ctx, "fetch")
		assert.True(t, ok)
		ok, _ = second.Allow(ctx, "fetch")
		assert.True(t, ok)
		ok, _ = first.Allow(ctx, "fetch")
		assert.False(t, ok)
	})

	t.Run("backend down", func(t *testing.T) {
		mr, rdb := setupRedis(t)
		l := NewRedisWindow(rdb, "test:jwks", PerMinute(2))
		mr.Close()

		ok, err := l.Allow(ctx, "fetch")
		assert.Error(t, err)
		assert.False(t, ok)
	})
}

func TestRedisWindow_EmptyKey(t *testing.T) {
	l := NewRedisWindow(nil, "p", PerMinute(1))
	_, err := l.Allow(context.Background(), "")
	assert.ErrorIs(t, err, ErrKeyRequired)
}
