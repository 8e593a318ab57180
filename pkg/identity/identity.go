// Package identity определяет, от чьего имени выполняется запрос: проверка
// bearer-токенов (JWT HS256) и ключа администратора (bcrypt).
package identity

import "context"

const (
	// SystemSubject владелец артефактов, созданных без аутентификации
	SystemSubject = "system"

	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Principal субъект запроса
type Principal struct {
	Subject string
	Role    string
}

// System возвращает principal по умолчанию
func System() Principal {
	return Principal{Subject: SystemSubject, Role: RoleUser}
}

// Admin возвращает principal администратора
func Admin(subject string) Principal {
	return Principal{Subject: subject, Role: RoleAdmin}
}

// IsAdmin имеет ли субъект права администратора
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Owner возвращает владельца артефактов; пустой субъект - system
func (p Principal) Owner() string {
	if p.Subject == "" {
		return SystemSubject
	}
	return p.Subject
}

type ctxKey struct{}

// NewContext сохраняет principal в контексте
func NewContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext достаёт principal; без него - System()
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(ctxKey{}).(Principal); ok {
		return p
	}
	return System()
}
