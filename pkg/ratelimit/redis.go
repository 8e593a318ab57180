package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua скрипт для атомарной проверки и инкремента окна
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local count = tonumber(ARGV[4])
	local seq = ARGV[5]

	-- Удаляем устаревшие записи
	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

	-- Считаем текущие запросы
	local current = redis.call('ZCARD', key)

	if current + count <= limit then
		for i = 1, count do
			redis.call('ZADD', key, now, now .. ':' .. seq .. ':' .. i)
		end
		redis.call('PEXPIRE', key, window + 1000)
		return {1, limit - current - count}
	end

	return {0, 0}
`)

// RedisLimiter sliding window лимитер поверх Redis; работает одинаково
// для всех экземпляров сервиса
type RedisLimiter struct {
	client  redis.UniversalClient
	config  *Config
	counter atomic.Uint64
}

// NewRedisLimiter создаёт Redis rate limiter на общем клиенте
func NewRedisLimiter(client redis.UniversalClient, cfg *Config) *RedisLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ratelimit:"
	}

	return &RedisLimiter{client: client, config: cfg}
}

// seq делает члены ZSET уникальными в пределах одной миллисекунды
func (l *RedisLimiter) seq() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(l.counter.Add(1), 36)
}

func (l *RedisLimiter) key(key string) string {
	return l.config.KeyPrefix + key
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *RedisLimiter) AllowN(ctx context.Context, key string, n int) (bool, error) {
	now := time.Now().UnixMilli()
	window := l.config.Window.Milliseconds()

	result, err := slidingWindowScript.Run(ctx, l.client, []string{l.key(key)},
		l.config.Requests, window, now, n, l.seq()).Slice()
	if err != nil {
		return false, fmt.Errorf("redis script error: %w", err)
	}

	if len(result) == 0 {
		return false, fmt.Errorf("unexpected empty result from redis script")
	}

	allowed, ok := result[0].(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from redis script")
	}

	return allowed == 1, nil
}

func (l *RedisLimiter) Wait(ctx context.Context, key string) error {
	for {
		allowed, err := l.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.key(key)).Err()
}

func (l *RedisLimiter) GetInfo(ctx context.Context, key string) (*LimitInfo, error) {
	now := time.Now()
	windowStart := now.Add(-l.config.Window).UnixMilli()

	entries, err := l.client.ZRangeByScoreWithScores(ctx, l.key(key), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(windowStart, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	info := &LimitInfo{
		Limit:     l.config.Requests,
		Remaining: l.config.Requests - len(entries),
		ResetAt:   now.Add(l.config.Window),
	}
	if len(entries) > 0 {
		oldest := time.UnixMilli(int64(entries[0].Score))
		info.ResetAt = oldest.Add(l.config.Window)
	}
	if info.Remaining <= 0 {
		info.Remaining = 0
		info.RetryAfter = max(info.ResetAt.Sub(now), 0)
	}
	return info, nil
}

// Close ничего не делает: клиент принадлежит вызывающему
func (l *RedisLimiter) Close() error {
	return nil
}
