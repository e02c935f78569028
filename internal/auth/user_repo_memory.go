package auth

import (
	"strings"
	"sync"
	"time"
)

// MemoryUserRepo — операторы в памяти. Учётки заводятся при старте из конфигурации.
type MemoryUserRepo struct {
	mu    sync.RWMutex
	byKey map[string]*User
	seq   uint64
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{byKey: make(map[string]*User)}
}

func userKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// SeedAdmin заводит администратора. При plain == true password хешируется здесь,
// иначе это уже готовый bcrypt-хеш.
func (r *MemoryUserRepo) SeedAdmin(username, password string, plain bool) (*User, error) {
	if plain {
		hash, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		password = hash
	}
	return r.CreateUser(username, password, true)
}

func (r *MemoryUserRepo) GetUserByUsername(username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.byKey[userKey(username)]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (r *MemoryUserRepo) CreateUser(username, passwordHash string, isAdmin bool) (*User, error) {
	key := userKey(username)
	if key == "" {
		return nil, ErrInvalidCredentials
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byKey[key]; taken {
		return nil, ErrUserExists
	}
	r.seq++
	u := &User{
		ID:           r.seq,
		Username:     strings.TrimSpace(username),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		IsAdmin:      isAdmin,
	}
	r.byKey[key] = u
	return u, nil
}

// ValidateCredentials не различает «нет такого» и «неверный пароль»
func (r *MemoryUserRepo) ValidateCredentials(username, password string) (*User, error) {
	u, err := r.GetUserByUsername(username)
	if err != nil || !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	r.mu.Lock()
	u.LastLogin = time.Now()
	r.mu.Unlock()
	return u, nil
}
