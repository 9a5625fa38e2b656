package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "arl"

// allowScript runs the whole decision atomically. Scores and the block
// deadline are caller-supplied Unix milliseconds; key TTLs only reclaim
// memory.
const allowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local block = tonumber(ARGV[4])

local blocked_until = tonumber(redis.call("GET", KEYS[2]) or "0")
if blocked_until > now then
  return {0, 0, blocked_until - now}
end

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
if count >= max then
  redis.call("SET", KEYS[2], tostring(now + block), "PX", block)
  redis.call("DEL", KEYS[1])
  return {0, 0, block}
end

redis.call("ZADD", KEYS[1], now, ARGV[5])
redis.call("PEXPIRE", KEYS[1], window)
return {1, max - count - 1, 0}
`

var allowLua = redis.NewScript(allowScript)

// RedisLimiter is a Limiter shared across processes through Redis. Each key
// uses a sorted set of attempt timestamps and a block key.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
	now    func() time.Time
}

// NewRedisLimiter validates cfg. An empty prefix defaults to "arl"; now may
// be nil.
func NewRedisLimiter(client redis.UniversalClient, prefix string, cfg Config, now func() time.Time) (*RedisLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &RedisLimiter{redis: client, prefix: prefix, config: cfg, now: now}, nil
}

func (l *RedisLimiter) attemptsKey(key string) string {
	return l.prefix + ":w:" + key
}

func (l *RedisLimiter) blockKey(key string) string {
	return l.prefix + ":b:" + key
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	keys := []string{l.attemptsKey(key), l.blockKey(key)}
	args := []interface{}{
		strconv.FormatInt(l.now().UnixMilli(), 10),
		l.config.Window.Milliseconds(),
		l.config.MaxAttempts,
		l.config.BlockDuration.Milliseconds(),
		uuid.NewString(),
	}

	res, err := allowLua.Run(ctx, l.redis, keys, args...).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.attemptsKey(key), l.blockKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
