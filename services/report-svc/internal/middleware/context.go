package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"workshop/pkg/identity"
	"workshop/pkg/logger"
)

// HeaderRequestID заголовок с идентификатором запроса
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLen = 128

// GetRequestID извлекает request_id из контекста
func GetRequestID(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}

// GetPrincipal извлекает субъект запроса; без аутентификации - system
func GetPrincipal(ctx context.Context) identity.Principal {
	return identity.FromContext(ctx)
}

// WithPrincipal добавляет субъект в контекст, в том числе для логов
func WithPrincipal(ctx context.Context, p identity.Principal) context.Context {
	ctx = identity.NewContext(ctx, p)
	return logger.ContextWithPrincipal(ctx, p.Subject)
}

// GenerateRequestID генерирует уникальный ID запроса
func GenerateRequestID() string {
	return uuid.NewString()
}

// RequestID берёт X-Request-ID клиента или выдаёт новый и возвращает его в ответе
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" || len(id) > maxRequestIDLen {
			id = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
	})
}

// Chain применяет middleware так, что первая оказывается внешней
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// statusRecorder запоминает статус и размер ответа
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

// Unwrap для http.ResponseController
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// routeOf шаблон маршрута; известен только после маршрутизации
func routeOf(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}
