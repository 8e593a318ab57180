package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"workshop/pkg/config"
)

// Стандартные ошибки
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrLimiterClosed     = errors.New("limiter is closed")
)

// Стратегии
const (
	StrategySlidingWindow = "sliding_window"
	StrategyTokenBucket   = "token_bucket"
)

// Limiter интерфейс ограничителя запросов
type Limiter interface {
	// Allow проверяет, разрешён ли запрос
	Allow(ctx context.Context, key string) (bool, error)

	// AllowN проверяет, разрешены ли n запросов
	AllowN(ctx context.Context, key string, n int) (bool, error)

	// Wait блокирует до получения разрешения
	Wait(ctx context.Context, key string) error

	// Reset сбрасывает лимит для ключа
	Reset(ctx context.Context, key string) error

	// GetInfo возвращает информацию о текущем состоянии
	GetInfo(ctx context.Context, key string) (*LimitInfo, error)

	// Close закрывает лимитер
	Close() error
}

// LimitInfo информация о состоянии лимита
type LimitInfo struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Config конфигурация rate limiter
type Config struct {
	// Requests количество запросов
	Requests int

	// Window временное окно
	Window time.Duration

	// Strategy стратегия (sliding_window, token_bucket)
	Strategy string

	// Backend хранилище (memory, redis)
	Backend string

	// BurstSize размер burst для token bucket
	BurstSize int

	// CleanupInterval интервал очистки для in-memory
	CleanupInterval time.Duration

	// KeyPrefix префикс ключей в Redis
	KeyPrefix string
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Requests:        30,
		Window:          time.Minute,
		Strategy:        StrategySlidingWindow,
		Backend:         "memory",
		BurstSize:       5,
		CleanupInterval: 5 * time.Minute,
		KeyPrefix:       "ratelimit:",
	}
}

// FromConfig переносит настройки из конфигурации приложения
func FromConfig(c config.RateLimitConfig) *Config {
	cfg := DefaultConfig()
	if c.Requests > 0 {
		cfg.Requests = c.Requests
	}
	if c.Window > 0 {
		cfg.Window = c.Window
	}
	if c.Strategy != "" {
		cfg.Strategy = c.Strategy
	}
	if c.Backend != "" {
		cfg.Backend = c.Backend
	}
	if c.BurstSize > 0 {
		cfg.BurstSize = c.BurstSize
	}
	if c.CleanupInterval > 0 {
		cfg.CleanupInterval = c.CleanupInterval
	}
	return cfg
}

// New создаёт лимитер на основе конфигурации. Для backend redis
// используется переданный клиент; лимитер его не закрывает.
func New(cfg *Config, client redis.UniversalClient) (Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis backend requires a redis client")
		}
		return NewRedisLimiter(client, cfg), nil
	case "memory", "":
		return NewMemoryLimiter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}
