package ratelimit

import (
	"context"
	"time"
)

// SlidingWindow implements a sliding window rate limiter that tracks
// individual request timestamps within a moving time window.
type SlidingWindow struct {
	store  SlidingWindowStore
	limit  int
	window time.Duration
	clock  Clock
}

// Option configures a SlidingWindow.
type Option func(*SlidingWindow)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(sw *SlidingWindow) {
		if c != nil {
			sw.clock = c
		}
	}
}

// NewSlidingWindow creates a new sliding window rate limiter.
func NewSlidingWindow(store SlidingWindowStore, limit int, window time.Duration, opts ...Option) (*SlidingWindow, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidInterval
	}

	sw := &SlidingWindow{
		store:  store,
		limit:  limit,
		window: window,
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw, nil
}

// Limit returns the configured maximum per window.
func (sw *SlidingWindow) Limit() int { return sw.limit }

// Window returns the configured window length.
func (sw *SlidingWindow) Window() time.Duration { return sw.window }

// Allow checks if a single request is allowed for the given key.
func (sw *SlidingWindow) Allow(ctx context.Context, key string) (*Result, error) {
	return sw.AllowN(ctx, key, 1)
}

// AllowN checks if n requests are allowed for the given key.
func (sw *SlidingWindow) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}
	if n <= 0 {
		n = 1
	}

	now := sw.clock.Now()

	allowed, count, oldest, err := sw.store.RecordTimestampIfAllowed(ctx, key, now, sw.window, sw.limit, n)
	if err != nil {
		return nil, err
	}

	return sw.result(allowed, count, oldest, now), nil
}

// Status returns the current rate limit status without recording a request.
func (sw *SlidingWindow) Status(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	now := sw.clock.Now()

	count, oldest, err := sw.store.CountInWindow(ctx, key, now, sw.window)
	if err != nil {
		return nil, err
	}

	return sw.result(int(count) < sw.limit, count, oldest, now), nil
}

// Reset resets the rate limit for the given key.
func (sw *SlidingWindow) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}

	return sw.store.Delete(ctx, key)
}

func (sw *SlidingWindow) result(allowed bool, count int64, oldest, now time.Time) *Result {
	resetAt := now.Add(sw.window)
	if !oldest.IsZero() {
		resetAt = oldest.Add(sw.window)
	}

	return &Result{
		Allowed:   allowed,
		Limit:     sw.limit,
		Remaining: max(0, sw.limit-int(count)),
		ResetAt:   resetAt,
		CheckedAt: now,
	}
}

var _ Limiter = (*SlidingWindow)(nil)
