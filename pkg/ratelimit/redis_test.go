package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T, cfg *Config) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisLimiter(client, cfg), mr
}

func TestRedisLimiter_Allow(t *testing.T) {
	limiter, _ := newRedisLimiter(t, &Config{
		Requests: 3,
		Window:   time.Minute,
		Backend:  "redis",
	})
	defer limiter.Close()

	ctx := context.Background()
	key := "test-ratelimit-key"

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("4th request should be denied")
	}

	// Другие ключи независимы
	allowed, _ = limiter.Allow(ctx, "other")
	if !allowed {
		t.Error("other key should be allowed")
	}
}

func TestRedisLimiter_GetInfo(t *testing.T) {
	limiter, _ := newRedisLimiter(t, &Config{
		Requests: 5,
		Window:   time.Minute,
	})

	ctx := context.Background()
	key := "test-info-key"

	limiter.Allow(ctx, key)
	limiter.Allow(ctx, key)

	info, err := limiter.GetInfo(ctx, key)
	if err != nil {
		t.Fatalf("GetInfo() error = %v", err)
	}

	if info.Limit != 5 {
		t.Errorf("Limit = %d, want 5", info.Limit)
	}
	if info.Remaining != 3 {
		t.Errorf("Remaining = %d, want 3", info.Remaining)
	}
	if info.RetryAfter != 0 {
		t.Errorf("RetryAfter = %v, want 0", info.RetryAfter)
	}
}

func TestRedisLimiter_RetryAfterWhenExhausted(t *testing.T) {
	limiter, _ := newRedisLimiter(t, &Config{
		Requests: 1,
		Window:   time.Minute,
	})

	ctx := context.Background()
	limiter.Allow(ctx, "k")

	info, err := limiter.GetInfo(ctx, "k")
	if err != nil {
		t.Fatalf("GetInfo() error = %v", err)
	}
	if info.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", info.Remaining)
	}
	if info.RetryAfter <= 0 || info.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want (0, 1m]", info.RetryAfter)
	}
}

func TestRedisLimiter_Reset(t *testing.T) {
	limiter, mr := newRedisLimiter(t, &Config{
		Requests:  1,
		Window:    time.Minute,
		KeyPrefix: "rl:",
	})

	ctx := context.Background()
	limiter.Allow(ctx, "k")

	if !mr.Exists("rl:k") {
		t.Fatal("expected key with configured prefix")
	}
	if ttl := mr.TTL("rl:k"); ttl <= 0 {
		t.Errorf("limiter keys must expire, ttl = %v", ttl)
	}

	if err := limiter.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	allowed, _ := limiter.Allow(ctx, "k")
	if !allowed {
		t.Error("should be allowed after reset")
	}
}

func TestRedisLimiter_ConnectionError(t *testing.T) {
	limiter, mr := newRedisLimiter(t, &Config{Requests: 1, Window: time.Minute})
	mr.SetError("LOADING Redis is loading the dataset in memory")

	if _, err := limiter.Allow(context.Background(), "k"); err == nil {
		t.Error("expected error when redis fails")
	}
}

func TestNew_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter, err := New(&Config{Backend: "redis", Requests: 1, Window: time.Second}, client)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := limiter.(*RedisLimiter); !ok {
		t.Errorf("expected *RedisLimiter, got %T", limiter)
	}
}
