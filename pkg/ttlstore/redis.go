package ttlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript returns {1, value} on success, {2} for a tombstoned key and
// {0} for a missing one.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v then
	redis.call('DEL', KEYS[1])
	redis.call('SET', KEYS[2], '1', 'PX', ARGV[1])
	return {1, v}
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return {2}
end
return {0}
`)

// putIfAbsentScript refuses to write over a value or a tombstone.
var putIfAbsentScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
if redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2], 'NX') then
	return 1
end
return 0
`)

// Redis is a Store shared between instances.
type Redis struct {
	client redis.UniversalClient
	opts   options
}

// NewRedis wraps a connected client.
func NewRedis(client redis.UniversalClient, opts ...Option) (*Redis, error) {
	if client == nil {
		return nil, ErrClientNeeded
	}
	o := newOptions(opts)
	if o.prefix == "" {
		o.prefix = "ttl:"
	}
	return &Redis{client: client, opts: o}, nil
}

// Put implements Store.
func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validate(key, ttl); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.opts.valueKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}

// PutIfAbsent implements Store.
func (r *Redis) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := validate(key, ttl); err != nil {
		return false, err
	}

	keys := []string{r.opts.valueKey(key), r.opts.tombstoneKey(key)}
	n, err := putIfAbsentScript.Run(ctx, r.client, keys, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to store key: %w", err)
	}
	return n == 1, nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	v, err := r.client.Get(ctx, r.opts.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	return v, nil
}

// Consume implements Store.
func (r *Redis) Consume(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	keys := []string{r.opts.valueKey(key), r.opts.tombstoneKey(key)}
	res, err := consumeScript.Run(ctx, r.client, keys, r.opts.tombstoneTTL.Milliseconds()).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to consume key: %w", err)
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}

	status, _ := res[0].(int64)
	switch status {
	case 1:
		if len(res) < 2 {
			return nil, ErrNotFound
		}
		s, _ := res[1].(string)
		return []byte(s), nil
	case 2:
		return nil, ErrConsumed
	default:
		return nil, ErrNotFound
	}
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	if err := r.client.Del(ctx, r.opts.valueKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

var _ Store = (*Redis)(nil)
