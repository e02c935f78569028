package auth

import (
	"errors"
	"time"
)

// User — учётная запись оператора REST API.
// Игроки учётных записей не имеют: они входят по нику.
type User struct {
	ID           uint64
	Username     string
	PasswordHash string // bcrypt
	CreatedAt    time.Time
	LastLogin    time.Time
	IsAdmin      bool
}

// UserRepository хранит операторов. Имена сравниваются без учёта регистра.
type UserRepository interface {
	GetUserByUsername(username string) (*User, error)
	// CreateUser ожидает уже захешированный пароль
	CreateUser(username, passwordHash string, isAdmin bool) (*User, error)
	ValidateCredentials(username, password string) (*User, error)
}

var (
	ErrUserNotFound       = errors.New("оператор не найден")
	ErrUserExists         = errors.New("оператор уже существует")
	ErrInvalidCredentials = errors.New("неверное имя или пароль")
)
