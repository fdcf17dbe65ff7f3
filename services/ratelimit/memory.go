package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow is an in-process sliding-window limiter.
// Timestamps are kept per key and pruned on every call.
type SlidingWindow struct {
	mu      sync.Mutex
	window  Window
	buckets map[string][]time.Time
	now     func() time.Time
}

// NewSlidingWindow creates a limiter admitting window.Limit attempts per window.Length
func NewSlidingWindow(window Window) *SlidingWindow {
	return &SlidingWindow{
		window:  window,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// WithClock replaces the time source, mainly for tests
func (l *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// Allow records the attempt and reports whether it fits into the window
func (l *SlidingWindow) Allow(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrKeyRequired
	}
	if l.window.Limit <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start := l.window.start(now)

	ts := l.buckets[key]
	i := 0
	for i < len(ts) && !ts[i].After(start) {
		i++
	}
	ts = ts[i:]

	if len(ts) >= l.window.Limit {
		l.buckets[key] = ts
		return false, nil
	}

	l.buckets[key] = append(ts, now)
	return true, nil
}

// Count returns the attempts currently inside the window for key
func (l *SlidingWindow) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.window.start(l.now())
	n := 0
	for _, t := range l.buckets[key] {
		if t.After(start) {
			n++
		}
	}
	return n
}
