package identity

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashKey возвращает bcrypt-хэш ключа администратора для конфигурации
func HashKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("key is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyKey сравнивает ключ с хэшем; пустой хэш - ключ не настроен
func VerifyKey(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
