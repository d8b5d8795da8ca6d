package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var transferRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisTransferRateLimiter implements distributed per-sender rate limiting
// using Redis. A fixed window counter is enough here: the limiter only guards
// against runaway clients hammering the transfer endpoint, not correctness.
type RedisTransferRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

func NewRedisTransferRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisTransferRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "payment:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	if window <= 0 {
		window = time.Minute
	}

	return &RedisTransferRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether the sender identified by key may initiate another
// transfer inside the current window. A zero limit disables limiting.
func (r *RedisTransferRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r == nil || r.client == nil || r.limit <= 0 {
		return true, nil
	}

	subject := strings.TrimSpace(key)
	if subject == "" {
		return true, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	redisKey := fmt.Sprintf("%s:transfer:%s", r.prefix, subject)
	rawResult, err := transferRateLimitScript.Run(ctx, r.client, []string{redisKey}, windowMs).Result()
	if err != nil {
		return false, err
	}

	current, ok := rawResult.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected redis limiter response type: %T", rawResult)
	}
	return current <= int64(r.limit), nil
}
