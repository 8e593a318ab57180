package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"workshop/pkg/apperror"
	"workshop/pkg/logger"
	"workshop/pkg/ratelimit"
)

// KeyExtractor функция извлечения ключа лимита
type KeyExtractor func(r *http.Request) string

// PrincipalKey ключ по субъекту запроса; работает после Auth
func PrincipalKey(r *http.Request) string {
	return "principal:" + GetPrincipal(r.Context()).Owner()
}

// RateLimitConfig конфигурация rate limiting
type RateLimitConfig struct {
	Limiter      ratelimit.Limiter
	KeyExtractor KeyExtractor
	// Category префикс ключа, чтобы разные маршруты не делили лимит
	Category string
}

// RateLimit ограничивает частоту запросов субъекта. При ошибке
// лимитера запрос пропускается (fail open).
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.KeyExtractor == nil {
		cfg.KeyExtractor = PrincipalKey
	}
	if cfg.Category == "" {
		cfg.Category = "default"
	}

	return func(next http.Handler) http.Handler {
		if cfg.Limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			fullKey := cfg.Category + ":" + cfg.KeyExtractor(r)

			allowed, err := cfg.Limiter.Allow(ctx, fullKey)
			if err != nil {
				logger.WithContext(ctx).Warn("Rate limit check failed", "error", err, "key", fullKey)
				next.ServeHTTP(w, r)
				return
			}

			info, infoErr := cfg.Limiter.GetInfo(ctx, fullKey)
			if infoErr != nil {
				logger.WithContext(ctx).Warn("Failed to get rate limit info", "error", infoErr, "key", fullKey)
			} else {
				setLimitHeaders(w, info)
			}

			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := time.Second
			if info != nil && info.RetryAfter > 0 {
				retryAfter = info.RetryAfter
			}
			seconds := int(math.Ceil(retryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))

			logger.WithContext(ctx).Warn("Rate limit exceeded",
				"key", fullKey,
				"category", cfg.Category,
				"retry_after_s", seconds,
			)

			WriteError(w, r, apperror.New(apperror.CodeRateLimited, "rate limit exceeded").
				WithDetails("retryAfterSeconds", seconds))
		})
	}
}

func setLimitHeaders(w http.ResponseWriter, info *ratelimit.LimitInfo) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
}
