package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken токен не прошёл проверку
var ErrInvalidToken = errors.New("invalid token")

// JWTConfig конфигурация JWT
type JWTConfig struct {
	SecretKey   string
	TokenExpiry time.Duration
	Issuer      string
}

// DefaultJWTConfig возвращает конфигурацию по умолчанию
func DefaultJWTConfig() *JWTConfig {
	return &JWTConfig{
		SecretKey:   "change-me-in-production",
		TokenExpiry: time.Hour,
		Issuer:      "workshop-reports",
	}
}

// Claims claims токена
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Principal возвращает субъект токена
func (c *Claims) Principal() Principal {
	return Principal{Subject: c.Subject, Role: c.Role}
}

// TokenManager выпускает и проверяет токены
type TokenManager struct {
	config *JWTConfig
}

// NewTokenManager создаёт менеджер токенов
func NewTokenManager(config *JWTConfig) *TokenManager {
	if config == nil {
		config = DefaultJWTConfig()
	}
	if config.TokenExpiry <= 0 {
		config.TokenExpiry = time.Hour
	}
	return &TokenManager{config: config}
}

// Generate выпускает токен для субъекта
func (m *TokenManager) Generate(subject, role string) (string, error) {
	return m.GenerateWithExpiry(subject, role, m.config.TokenExpiry)
}

// GenerateWithExpiry выпускает токен с заданным временем жизни
func (m *TokenManager) GenerateWithExpiry(subject, role string, expiry time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := time.Now()

	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// Validate проверяет подпись, срок и издателя токена
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.SecretKey), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	return claims, nil
}
