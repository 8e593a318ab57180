package middleware

import (
	"net/http"
	"strings"

	"workshop/pkg/apperror"
	"workshop/pkg/identity"
	"workshop/pkg/logger"
)

// HeaderAdminKey заголовок с ключом администратора
const HeaderAdminKey = "X-Admin-Key"

// AdminSubject субъект запросов с ключом администратора
const AdminSubject = "admin"

// TokenValidator проверка bearer-токена
type TokenValidator interface {
	Validate(token string) (*identity.Claims, error)
}

// AuthConfig конфигурация auth middleware
type AuthConfig struct {
	// Enabled требовать учётные данные; иначе анонимный запрос идёт от system
	Enabled      bool
	Tokens       TokenValidator
	AdminKeyHash string
}

// Auth определяет субъект запроса. Предъявленные, но неверные
// учётные данные отклоняются и при выключенной аутентификации.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := authenticate(cfg, r)
			if err != nil {
				logger.WithContext(r.Context()).Warn("authentication failed",
					"path", r.URL.Path,
					"error", err,
				)
				WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func authenticate(cfg AuthConfig, r *http.Request) (identity.Principal, error) {
	if key := r.Header.Get(HeaderAdminKey); key != "" {
		if !identity.VerifyKey(cfg.AdminKeyHash, key) {
			return identity.Principal{}, apperror.New(apperror.CodeUnauthenticated, "invalid admin key")
		}
		return identity.Admin(AdminSubject), nil
	}

	token, err := extractToken(r)
	if err != nil {
		return identity.Principal{}, err
	}
	if token == "" {
		if cfg.Enabled {
			return identity.Principal{}, apperror.New(apperror.CodeUnauthenticated, "no authorization header")
		}
		return identity.System(), nil
	}

	if cfg.Tokens == nil {
		return identity.Principal{}, apperror.New(apperror.CodeUnauthenticated, "token authentication is not configured")
	}
	claims, err := cfg.Tokens.Validate(token)
	if err != nil {
		return identity.Principal{}, apperror.Wrap(err, apperror.CodeUnauthenticated, "invalid token")
	}
	return claims.Principal(), nil
}

func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", nil
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", apperror.New(apperror.CodeUnauthenticated, "unsupported authorization scheme")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperror.New(apperror.CodeUnauthenticated, "empty token")
	}
	return token, nil
}

// RequireAdmin пропускает только администраторов
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetPrincipal(r.Context()).IsAdmin() {
			WriteError(w, r, apperror.New(apperror.CodePermissionDenied, "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
