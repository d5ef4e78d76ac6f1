// Package ratelimit throttles command submission per entity. A refused
// command is not an HTTP error: the handler converts it into a
// RATE_LIMIT_EXCEEDED rejection fact.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter answers whether one more command is allowed for the key within the
// current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() int
	Window() time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed-window limiter for tests and single-instance
// deployments.
type MemoryLimiter struct {
	limit   int
	every   time.Duration
	mu      sync.Mutex
	windows map[string]*window
	clock   func() time.Time
}

func NewMemoryLimiter(limit int, every time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 60
	}
	if every <= 0 {
		every = time.Minute
	}
	return &MemoryLimiter{
		limit:   limit,
		every:   every,
		windows: map[string]*window{},
		clock:   time.Now,
	}
}

func (l *MemoryLimiter) WithClock(clock func() time.Time) *MemoryLimiter {
	l.clock = clock
	return l
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(l.every)}
		return true, nil
	}
	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

func (l *MemoryLimiter) Limit() int            { return l.limit }
func (l *MemoryLimiter) Window() time.Duration { return l.every }

var _ Limiter = (*MemoryLimiter)(nil)
