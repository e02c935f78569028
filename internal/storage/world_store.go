package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/annel0/voxel-server/internal/world"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrNotLoaded оборачивает любую ошибку загрузки мира: файла нет, префикс
// повреждён, длина не совпадает с размерами. Вызывающий генерирует новый мир.
var ErrNotLoaded = errors.New("storage: world not loaded")

// WorldStore — хранилище снимка мира
type WorldStore interface {
	// Load восстанавливает мир размера sx×sy×sz
	Load(ctx context.Context, sx, sy, sz int) (*world.Grid, error)
	// Save записывает снимок мира целиком
	Save(ctx context.Context, g *world.Grid) error
	Close() error
}

// MarshalWorld формирует полезную нагрузку снимка:
// "<spawnX>,<spawnY>,<spawnZ>,<blocks>". Координаты точки появления
// усекаются до целых.
func MarshalWorld(g *world.Grid) []byte {
	spawn := g.Spawn()
	blocks := g.Encode()

	var sb strings.Builder
	sb.Grow(len(blocks) + 32)
	sb.WriteString(strconv.Itoa(int(spawn.X())))
	sb.WriteByte(',')
	sb.WriteString(strconv.Itoa(int(spawn.Y())))
	sb.WriteByte(',')
	sb.WriteString(strconv.Itoa(int(spawn.Z())))
	sb.WriteByte(',')
	sb.WriteString(blocks)
	return []byte(sb.String())
}

// UnmarshalWorld разбирает полезную нагрузку снимка в новый мир
func UnmarshalWorld(data []byte, sx, sy, sz int) (*world.Grid, error) {
	parts := strings.SplitN(string(data), ",", 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: expected 4 fields, got %d", ErrNotLoaded, len(parts))
	}

	var spawn mgl64.Vec3
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return nil, fmt.Errorf("%w: spawn component %d: %v", ErrNotLoaded, i, err)
		}
		spawn[i] = float64(v)
	}

	g, err := world.FromEncoded(sx, sy, sz, parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotLoaded, err)
	}
	g.SetSpawn(spawn)
	return g, nil
}
