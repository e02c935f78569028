package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "voxel-server"

var (
	keyMu    sync.RWMutex
	jwtKey   = mustRandomKey()
	tokenTTL = 12 * time.Hour
)

// Роли операторов в токене
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Claims — содержимое токена оператора
type Claims struct {
	UserID   uint64 `json:"uid"`
	Username string `json:"name"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin — может ли оператор сохранять мир и кикать игроков
func (c *Claims) IsAdmin() bool { return c.Role == RoleAdmin }

func mustRandomKey() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("генерация ключа JWT: %v", err))
	}
	return b
}

func signingKey() []byte {
	keyMu.RLock()
	defer keyMu.RUnlock()
	return jwtKey
}

// GenerateJWT выписывает токен оператору
func GenerateJWT(user *User) (string, error) {
	role := RoleViewer
	if user.IsAdmin {
		role = RoleAdmin
	}

	keyMu.RLock()
	ttl := tokenTTL
	keyMu.RUnlock()

	now := time.Now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey())
}

// ValidateJWT проверяет подпись, срок и издателя токена
func ValidateJWT(tokenString string) (*Claims, bool) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return signingKey(), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, false
	}
	return claims, true
}

// GenerateSecureSecret возвращает случайный ключ в base64 для JWT_SECRET
func GenerateSecureSecret() string {
	return base64.StdEncoding.EncodeToString(mustRandomKey())
}

// SetJWTSecret задаёт ключ подписи из base64; нужно не меньше 32 байт
func SetJWTSecret(secret string) error {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return fmt.Errorf("JWT_SECRET не base64: %w", err)
	}
	if len(decoded) < 32 {
		return errors.New("ключ JWT короче 32 байт")
	}
	keyMu.Lock()
	jwtKey = decoded
	keyMu.Unlock()
	return nil
}

// SetTokenTTL задаёт срок жизни новых токенов
func SetTokenTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	keyMu.Lock()
	tokenTTL = ttl
	keyMu.Unlock()
}
