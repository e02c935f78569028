package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// PositionRepo хранит последнюю известную позицию игрока.
// Позиции привязаны к нику в нижнем регистре: учётных записей нет,
// ник уникален без учёта регистра на время сессии.
type PositionRepo interface {
	// Save сохраняет позицию игрока
	Save(ctx context.Context, nick string, pos mgl64.Vec3) error

	// Load загружает позицию. bool == false, если игрок ещё не сохранялся.
	Load(ctx context.Context, nick string) (LastPosition, bool, error)

	// Delete удаляет сохранённую позицию
	Delete(ctx context.Context, nick string) error

	// BatchSave сохраняет позиции нескольких игроков (автосохранение)
	BatchSave(ctx context.Context, positions map[string]mgl64.Vec3) error

	Close() error
}

// LastPosition — сохранённая позиция с временем записи
type LastPosition struct {
	Nick      string     `json:"nick"`
	Position  mgl64.Vec3 `json:"position"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ErrInvalidNick возвращается для пустого ника
var ErrInvalidNick = errors.New("storage: invalid nickname")

// PositionKey нормализует ник в ключ хранилища
func PositionKey(nick string) string {
	return strings.ToLower(strings.TrimSpace(nick))
}

func validatePosition(nick string, pos mgl64.Vec3) (string, error) {
	key := PositionKey(nick)
	if key == "" {
		return "", ErrInvalidNick
	}
	for i := 0; i < 3; i++ {
		if math.IsNaN(pos[i]) || math.IsInf(pos[i], 0) {
			return "", fmt.Errorf("недействительная позиция для %s: %v", nick, pos)
		}
	}
	return key, nil
}
