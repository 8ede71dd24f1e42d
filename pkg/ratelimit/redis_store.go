package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Scores are unix microseconds, which stay exact in a Lua double.
var recordScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local n = tonumber(ARGV[4])
local nonce = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count + n <= limit then
	for i = 1, n do
		redis.call('ZADD', key, now, nonce .. ':' .. i)
	end
	count = count + n
	allowed = 1
end
redis.call('PEXPIRE', key, math.ceil(window / 1000))

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = '0'
if oldest[2] then
	oldestScore = oldest[2]
end
return {allowed, count, oldestScore}
`)

var countScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = '0'
if oldest[2] then
	oldestScore = oldest[2]
end
return {count, oldestScore}
`)

// RedisStore keeps sliding windows in Redis sorted sets so that every
// instance shares the same counters.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces rate limit keys.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrStoreRequired
	}
	s := &RedisStore{client: client, prefix: "ratelimit:"}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RecordTimestampIfAllowed implements SlidingWindowStore.
func (s *RedisStore) RecordTimestampIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit, n int) (bool, int64, time.Time, error) {
	res, err := recordScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMicro(), window.Microseconds(), limit, n, uuid.NewString(),
	).Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("failed to record request: %w", err)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected script reply of length %d", len(res))
	}

	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	return allowed == 1, count, parseScore(res[2]), nil
}

// CountInWindow implements SlidingWindowStore.
func (s *RedisStore) CountInWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	res, err := countScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMicro(), window.Microseconds(),
	).Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to count requests: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected script reply of length %d", len(res))
	}

	count, _ := res[0].(int64)
	return count, parseScore(res[1]), nil
}

// Delete implements SlidingWindowStore.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset window: %w", err)
	}
	return nil
}

func parseScore(v any) time.Time {
	str, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil || f <= 0 {
		return time.Time{}
	}
	return time.UnixMicro(int64(f))
}

var _ SlidingWindowStore = (*RedisStore)(nil)
