package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisWindow is a sliding-window limiter shared across processes.
// Each attempt is a sorted-set member scored by its Unix millisecond time.
type RedisWindow struct {
	rdb    *redis.Client
	prefix string
	window Window
	now    func() time.Time
}

// NewRedisWindow creates a Redis-backed limiter. Keys are stored as "<prefix>:<key>".
func NewRedisWindow(rdb *redis.Client, prefix string, window Window) *RedisWindow {
	return &RedisWindow{
		rdb:    rdb,
		prefix: prefix,
		window: window,
		now:    time.Now,
	}
}

// Allow records the attempt and reports whether it fits into the window.
// Denied attempts are removed again so they do not extend the window.
func (l *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrKeyRequired
	}
	if l.window.Limit <= 0 {
		return true, nil
	}

	now := l.now()
	nowMs := now.UnixMilli()
	startMs := l.window.start(now).UnixMilli()
	setKey := fmt.Sprintf("%s:%s", l.prefix, key)
	member := uuid.NewString()

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, setKey, "-inf", fmt.Sprintf("%d", startMs))
	pipe.ZAdd(ctx, setKey, redis.Z{Score: float64(nowMs), Member: member})
	countCmd := pipe.ZCard(ctx, setKey)
	pipe.Expire(ctx, setKey, l.window.Length+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit pipeline: %w", err)
	}

	if countCmd.Val() > int64(l.window.Limit) {
		if err := l.rdb.ZRem(ctx, setKey, member).Err(); err != nil {
			return false, fmt.Errorf("rate limit rollback: %w", err)
		}
		return false, nil
	}
	return true, nil
}
