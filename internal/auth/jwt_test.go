package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGenerateJWT тестирует создание JWT токена
func TestGenerateJWT(t *testing.T) {
	token, err := GenerateJWT(&User{ID: 1, Username: "operator"})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "три части JWT")
}

// TestValidateJWT тестирует валидацию JWT токена
func TestValidateJWT(t *testing.T) {
	user := &User{ID: 42, Username: "admin", IsAdmin: true}

	token, err := GenerateJWT(user)
	require.NoError(t, err)

	claims, ok := ValidateJWT(token)
	require.True(t, ok)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, tokenIssuer, claims.Issuer)

	token, err = GenerateJWT(&User{ID: 7, Username: "viewer"})
	require.NoError(t, err)
	claims, ok = ValidateJWT(token)
	require.True(t, ok)
	assert.False(t, claims.IsAdmin())
}

func TestValidateJWT_Rejects(t *testing.T) {
	_, ok := ValidateJWT("not.a.token")
	assert.False(t, ok)

	// истёкший токен
	sign := func(c *Claims, key []byte) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, ok = ValidateJWT(sign(&Claims{Role: RoleAdmin, RegisteredClaims: expired}, signingKey()))
	assert.False(t, ok, "истёкший токен")

	_, ok = ValidateJWT(sign(&Claims{Role: RoleAdmin, RegisteredClaims: valid}, []byte("other-secret-other-secret-other!!")))
	assert.False(t, ok, "чужой ключ")

	foreign := valid
	foreign.Issuer = "someone-else"
	_, ok = ValidateJWT(sign(&Claims{Role: RoleAdmin, RegisteredClaims: foreign}, signingKey()))
	assert.False(t, ok, "чужой издатель")

	noExp := valid
	noExp.ExpiresAt = nil
	_, ok = ValidateJWT(sign(&Claims{Role: RoleAdmin, RegisteredClaims: noExp}, signingKey()))
	assert.False(t, ok, "без срока действия")

	_, ok = ValidateJWT(sign(&Claims{Role: RoleAdmin, RegisteredClaims: valid}, signingKey()))
	assert.True(t, ok)
}

func TestSetJWTSecret(t *testing.T) {
	old := signingKey()
	defer func() { jwtKey = old }()

	assert.Error(t, SetJWTSecret("c2hvcnQ="), "короткий ключ")
	assert.Error(t, SetJWTSecret("%%%"), "не base64")
	require.NoError(t, SetJWTSecret(GenerateSecureSecret()))
}

func TestPasswords(t *testing.T) {
	_, err := HashPassword("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
	_, err = HashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, IsBcryptHash(hash))
	assert.False(t, IsBcryptHash("hunter2"))
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, ""))
	assert.False(t, CheckPassword("", "hunter2"))
}

func TestMemoryUserRepo_Credentials(t *testing.T) {
	repo := NewMemoryUserRepo()
	_, err := repo.SeedAdmin("Admin", "s3cret", true)
	require.NoError(t, err)

	_, err = repo.SeedAdmin("admin", "again", true)
	assert.ErrorIs(t, err, ErrUserExists)

	user, err := repo.ValidateCredentials("ADMIN", "s3cret")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)
	assert.False(t, user.LastLogin.IsZero())

	_, err = repo.ValidateCredentials("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = repo.ValidateCredentials("ghost", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
