package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// La ventana es fija: arranca con la primera solicitud y la clave expira con ella.
const redisTakeScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

// NewRedisRateLimiter comparte el conteo entre instancias. Ante errores de
// Redis deja pasar la solicitud.
func NewRedisRateLimiter(client *redis.Client, prefix string, window time.Duration, max int) RateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	if prefix == "" {
		prefix = "rl:"
	}
	return &redisRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: prefix,
	}
}

func (l *redisRateLimiter) Take(key string) RateDecision {
	if l == nil || l.client == nil {
		return RateDecision{Allowed: true, Remaining: -1}
	}
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return RateDecision{Allowed: false, Limit: l.max, RetryAfter: l.window}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	vals, err := l.client.Eval(ctx, redisTakeScript, []string{l.prefix + normalizedKey}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(vals) != 2 {
		return RateDecision{Allowed: true, Limit: l.max, Remaining: -1}
	}
	count, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	if count > l.max {
		return RateDecision{Allowed: false, Limit: l.max, Remaining: 0, RetryAfter: ttl}
	}
	return RateDecision{Allowed: true, Limit: l.max, Remaining: l.max - count}
}
