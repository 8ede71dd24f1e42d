package ratelimit

import (
	"context"
	"time"
)

// Result contains the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is when the oldest request leaves the window and a slot frees up.
	ResetAt time.Time

	// CheckedAt is the limiter clock reading the result was computed at.
	CheckedAt time.Time
}

// RetryAfter returns how long to wait before the next request is allowed.
// Returns 0 if the current request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return max(0, r.ResetAt.Sub(r.CheckedAt))
}

// Limiter defines the interface for rate limiting implementations.
type Limiter interface {
	// Allow checks if a single request is allowed for the given key.
	// If allowed, it records one request.
	Allow(ctx context.Context, key string) (*Result, error)

	// AllowN checks if n requests are allowed for the given key.
	AllowN(ctx context.Context, key string, n int) (*Result, error)

	// Status returns the current rate limit status for the given key
	// without recording a request.
	Status(ctx context.Context, key string) (*Result, error)

	// Reset clears the history for the given key.
	Reset(ctx context.Context, key string) error
}

// SlidingWindowStore keeps per-key request timestamps.
// Every method receives the caller's clock reading so stores never consult
// the wall clock themselves.
type SlidingWindowStore interface {
	// RecordTimestampIfAllowed atomically drops timestamps older than
	// now-window, then records n timestamps if the window still has room.
	// It returns whether they were recorded, the resulting count and the
	// oldest timestamp left in the window (zero when empty).
	RecordTimestampIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit, n int) (allowed bool, count int64, oldest time.Time, err error)

	// CountInWindow returns the number of timestamps newer than now-window
	// and the oldest of them.
	CountInWindow(ctx context.Context, key string, now time.Time, window time.Duration) (count int64, oldest time.Time, err error)

	// Delete removes all timestamps for key.
	Delete(ctx context.Context, key string) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
