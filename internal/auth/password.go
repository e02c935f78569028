package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt молча обрезает всё длиннее 72 байт
const maxPasswordBytes = 72

var (
	ErrEmptyPassword   = errors.New("пустой пароль")
	ErrPasswordTooLong = fmt.Errorf("пароль длиннее %d байт", maxPasswordBytes)
)

// HashPassword хеширует пароль оператора
func HashPassword(password string) (string, error) {
	switch {
	case password == "":
		return "", ErrEmptyPassword
	case len(password) > maxPasswordBytes:
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

// CheckPassword сравнивает пароль с хешем. Пустой хеш не совпадает ни с чем.
func CheckPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsBcryptHash проверяет, что строка из конфигурации похожа на bcrypt-хеш
func IsBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}
