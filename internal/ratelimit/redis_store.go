package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "ratelimit:"

// incrementScript bumps the counter and sets its expiry in one round trip so
// concurrent processes sharing the key never lose an update.
var incrementScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {hits, ttl}
`)

var decrementScript = redis.NewScript(`
local hits = tonumber(redis.call("GET", KEYS[1]) or "0")
if hits > 0 then
  return redis.call("DECR", KEYS[1])
end
return 0
`)

// RedisStore keeps counters in Redis so several instances share one budget.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string, clock func() time.Time) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if clock == nil {
		clock = time.Now
	}
	return &RedisStore{client: client, prefix: prefix, now: clock}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Info, error) {
	windowMS := window.Milliseconds()
	if windowMS <= 0 {
		windowMS = 1
	}

	values, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, windowMS).Int64Slice()
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(values) != 2 {
		return Info{}, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, values)
	}

	return Info{
		TotalHits: int(values[0]),
		ResetTime: s.now().Add(time.Duration(values[1]) * time.Millisecond),
	}, nil
}

func (s *RedisStore) Decrement(ctx context.Context, key string) error {
	if err := decrementScript.Run(ctx, s.client, []string{s.prefix + key}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) ResetKey(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
