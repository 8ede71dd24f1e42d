package ttlstore

import (
	"context"
	"time"
)

// DefaultTombstoneTTL is how long a consumed key is remembered.
const DefaultTombstoneTTL = 15 * time.Minute

// Store holds values that expire on their own.
type Store interface {
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PutIfAbsent stores value only when key holds neither a live value nor a
	// tombstone. It reports whether the value was written.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the live value without consuming it.
	Get(ctx context.Context, key string) ([]byte, error)

	// Consume atomically returns and removes the value, leaving a tombstone.
	// It returns ErrConsumed when the key was consumed before and ErrNotFound
	// when it was never stored or has expired.
	Consume(ctx context.Context, key string) ([]byte, error)

	// Delete removes key without leaving a tombstone.
	Delete(ctx context.Context, key string) error
}

type options struct {
	prefix       string
	tombstoneTTL time.Duration
	cleanup      time.Duration
}

// Option configures a store.
type Option func(*options)

// WithPrefix namespaces every key written by the store.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithTombstoneTTL sets how long Consume remembers a key.
func WithTombstoneTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.tombstoneTTL = ttl
		}
	}
}

// WithCleanupInterval sets the janitor interval of the memory store.
// It has no effect on the Redis store.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cleanup = d
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		tombstoneTTL: DefaultTombstoneTTL,
		cleanup:      time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) valueKey(key string) string {
	return o.prefix + key
}

func (o options) tombstoneKey(key string) string {
	return o.prefix + "consumed:" + key
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return ErrKeyRequired
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}
