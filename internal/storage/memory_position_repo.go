package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// MemoryPositionRepo держит последние позиции в памяти процесса.
// Бэкенд по умолчанию; после рестарта позиции теряются.
type MemoryPositionRepo struct {
	mu   sync.RWMutex
	data map[string]LastPosition
	now  func() time.Time
}

func NewMemoryPositionRepo() *MemoryPositionRepo {
	return &MemoryPositionRepo{data: make(map[string]LastPosition), now: time.Now}
}

func (r *MemoryPositionRepo) Save(ctx context.Context, nick string, pos mgl64.Vec3) error {
	return r.BatchSave(ctx, map[string]mgl64.Vec3{nick: pos})
}

func (r *MemoryPositionRepo) Load(ctx context.Context, nick string) (LastPosition, bool, error) {
	key := PositionKey(nick)
	if key == "" {
		return LastPosition{}, false, ErrInvalidNick
	}
	if err := ctx.Err(); err != nil {
		return LastPosition{}, false, err
	}

	r.mu.RLock()
	lp, ok := r.data[key]
	r.mu.RUnlock()
	return lp, ok, nil
}

func (r *MemoryPositionRepo) Delete(ctx context.Context, nick string) error {
	key := PositionKey(nick)
	if key == "" {
		return ErrInvalidNick
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[key]; !ok {
		return fmt.Errorf("позиция %s не сохранена", nick)
	}
	delete(r.data, key)
	return nil
}

// BatchSave пишет всё или ничего: одна плохая запись отменяет весь пакет
func (r *MemoryPositionRepo) BatchSave(ctx context.Context, positions map[string]mgl64.Vec3) error {
	if len(positions) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := make(map[string]LastPosition, len(positions))
	now := r.now()
	for nick, pos := range positions {
		key, err := validatePosition(nick, pos)
		if err != nil {
			return err
		}
		batch[key] = LastPosition{Nick: nick, Position: pos, UpdatedAt: now}
	}

	r.mu.Lock()
	for key, lp := range batch {
		r.data[key] = lp
	}
	r.mu.Unlock()
	return nil
}

// Count — число сохранённых позиций
func (r *MemoryPositionRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

func (r *MemoryPositionRepo) Close() error { return nil }
