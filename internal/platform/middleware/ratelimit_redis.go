package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisWindowStore keeps window state in a redis sorted set per key and
// window, scored by request time in nanoseconds. Use it when the limit must
// hold across multiple server processes.
type RedisWindowStore struct {
	client *redis.Client
	prefix string
}

func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	return &RedisWindowStore{client: client, prefix: "ratelimit:"}
}

// takeScript evicts expired entries, rejects a full window and records the
// request in a single server-side step, so concurrent requests cannot both
// observe the same count and overshoot the limit.
// KEYS[1] window set; ARGV: cutoff, score, limit, ttl seconds, member.
// Returns {count before admission, admitted 0/1}.
var takeScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
	return {count, 0}
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[5])
redis.call('EXPIRE', KEYS[1], ARGV[4])
return {count, 1}
`)

func (s *RedisWindowStore) Take(ctx context.Context, key string, w Window, now time.Time) (Decision, error) {
	rkey := s.prefix + key + ":" + w.Period.String()
	cutoff := now.Add(-w.Period).UnixNano()

	res, err := takeScript.Run(ctx, s.client, []string{rkey},
		cutoff, now.UnixNano(), w.Limit, int(w.Period.Seconds()), uuid.NewString()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis window take: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("redis window take: unexpected reply %v", res)
	}

	count := int(res[0])
	d := Decision{Limit: w.Limit}
	if res[1] == 0 {
		d.Allowed = false
		d.Remaining = 0
		d.RetryAfter = int(w.Period.Seconds())
		return d, nil
	}

	d.Allowed = true
	d.Remaining = w.Limit - count - 1
	return d, nil
}
