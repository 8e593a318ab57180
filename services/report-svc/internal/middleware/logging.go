package middleware

import (
	"net/http"
	"time"

	"workshop/pkg/logger"
)

// Logging логирует запросы с дополнительной информацией
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		logFields := []any{
			"method", r.Method,
			"route", routeOf(r),
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		}

		log := logger.WithContext(r.Context())
		switch {
		case rec.status >= http.StatusInternalServerError:
			log.Error("Request failed", logFields...)
		case r.URL.Path == "/health" || r.URL.Path == "/ready" || r.URL.Path == "/metrics":
			log.Debug("Request completed", logFields...)
		default:
			log.Info("Request completed", logFields...)
		}
	})
}
