package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrKeyRequired is returned when Allow is called without a scope key
var ErrKeyRequired = errors.New("rate limit key required")

// Limiter decides whether one more attempt fits into the rolling window for key.
// A denied attempt is not recorded.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Window describes how many attempts fit into a rolling duration
type Window struct {
	Limit  int
	Length time.Duration
}

// PerMinute returns a one-minute window allowing n attempts
func PerMinute(n int) Window {
	return Window{Limit: n, Length: time.Minute}
}

// start returns the oldest instant still inside the window ending at now
func (w Window) start(now time.Time) time.Time {
	return now.Add(-w.Length)
}

// Unlimited admits every attempt. Used when fetch limiting is disabled.
type Unlimited struct{}

// Allow always admits
func (Unlimited) Allow(context.Context, string) (bool, error) {
	return true, nil
}
