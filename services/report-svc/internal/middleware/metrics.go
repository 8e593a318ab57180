package middleware

import (
	"net/http"
	"strconv"
	"time"

	"workshop/pkg/metrics"
)

// Metrics записывает метрики запросов
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	if m == nil {
		m = metrics.Get()
	}
	tracker := metrics.NewRequestTracker(m.HTTPRequestsInFlight)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			// Маршрут ещё не известен, в in-flight идёт метод
			tracker.Start(r.Method)
			defer tracker.End(r.Method)

			next.ServeHTTP(rec, r)

			m.RecordHTTPRequest(routeOf(r), r.Method, strconv.Itoa(rec.status), time.Since(start))
		})
	}
}
