package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndIncrementScript increments the counter, arms the expiry on the
// first hit of a window (or if it was lost), and returns the new count and
// the remaining TTL in milliseconds. Redis runs it atomically.
var checkAndIncrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// DefaultRedisKeyPrefix namespaces ledger keys in a shared Redis
const DefaultRedisKeyPrefix = "signup:rl:"

// RedisLedger stores one expiring counter per key
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisLedger creates a ledger on top of a go-redis client. An empty
// prefix means DefaultRedisKeyPrefix.
func NewRedisLedger(client redis.UniversalClient, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisLedger{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// CheckAndIncrement implements Ledger
func (r *RedisLedger) CheckAndIncrement(ctx context.Context, key Key, limit Limit) (Check, error) {
	windowMS := limit.Window.Milliseconds()
	if windowMS <= 0 {
		windowMS = 1
	}

	res, err := checkAndIncrementScript.Run(ctx, r.client, []string{r.redisKey(key)}, windowMS).Int64Slice()
	if err != nil {
		return Check{}, unavailable("redis script", err)
	}
	if len(res) != 2 {
		return Check{}, unavailable("redis script", fmt.Errorf("unexpected reply length %d", len(res)))
	}

	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	// window_start + window == now + ttl
	start := r.now().Add(ttl).Add(-limit.Window)
	return evaluate(count, start, limit), nil
}

// Ping reports whether the backing Redis answers
func (r *RedisLedger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisLedger) redisKey(key Key) string {
	return r.prefix + string(key.Type) + ":" + key.Identifier
}
