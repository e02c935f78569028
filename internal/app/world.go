// Package app собирает сервер из частей: хранилища, мир, шина событий,
// автосохранение и завершение работы.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/annel0/voxel-server/internal/config"
	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/storage"
	"github.com/annel0/voxel-server/internal/world"
)

// OpenWorldStore открывает хранилище мира по настройкам storage.backend
func OpenWorldStore(cfg *config.StorageConfig) (storage.WorldStore, error) {
	switch backend := cfg.GetBackend(); backend {
	case "file":
		fs := storage.NewFileStore(cfg.GetDir(), cfg.GetFileName())
		if err := fs.PrepareDir(); err != nil {
			return nil, err
		}
		return fs, nil
	case "badger":
		bs, err := storage.NewBadgerStore(cfg.GetDir())
		if err != nil {
			return nil, err
		}
		return bs, nil
	case "bolt":
		if err := storage.NewFileStore(cfg.GetDir(), "").PrepareDir(); err != nil {
			return nil, err
		}
		bs, err := storage.NewBoltStore(filepath.Join(cfg.GetDir(), cfg.GetFileName()+".bolt"))
		if err != nil {
			return nil, err
		}
		return bs, nil
	default:
		return nil, fmt.Errorf("неизвестное хранилище мира %q", backend)
	}
}

// GenerateWorld создаёт новый мир по настройкам генератора
func GenerateWorld(cfg *config.WorldConfig) (*world.Grid, error) {
	sx, sy, sz := cfg.GetSize()
	ground := cfg.GetGroundHeight()
	if ground >= sz {
		return nil, fmt.Errorf("высота земли %d не меньше высоты мира %d", ground, sz)
	}

	g := world.NewGrid(sx, sy, sz)
	switch gen := cfg.GetGenerator(); gen {
	case "flat":
		world.FillFlat(g, ground)
	case "perlin":
		world.NewWorldGenerator(cfg.GetSeed(), ground, cfg.GetMagnitude()).Generate(g)
	default:
		return nil, fmt.Errorf("неизвестный генератор %q", gen)
	}
	return g, nil
}

// BootstrapWorld загружает мир из store. Если сохранения нет или оно повреждено,
// берёт файл-шаблон, а без него генерирует новый мир и сразу сохраняет его.
func BootstrapWorld(ctx context.Context, store storage.WorldStore, cfg *config.WorldConfig) (*world.Grid, error) {
	log := logging.GetStorageLogger()
	sx, sy, sz := cfg.GetSize()

	g, err := store.Load(ctx, sx, sy, sz)
	if err == nil {
		log.Info("🌍 Мир %dx%dx%d загружен", sx, sy, sz)
		return g, nil
	}
	if !errors.Is(err, storage.ErrNotLoaded) {
		return nil, err
	}
	log.Warn("Сохранение мира не загружено: %v", err)

	g = nil
	if path := cfg.GetFallbackWorld(); path != "" {
		fallback := storage.NewFileStore(filepath.Dir(path), filepath.Base(path))
		if g, err = fallback.Load(ctx, sx, sy, sz); err != nil {
			log.Warn("Шаблон мира %s не загружен: %v", path, err)
			g = nil
		} else {
			log.Info("🌍 Мир взят из шаблона %s", path)
		}
	}

	if g == nil {
		if g, err = GenerateWorld(cfg); err != nil {
			return nil, err
		}
		logging.GetWorldLogger().Info("🌱 Сгенерирован новый мир %dx%dx%d (%s)", sx, sy, sz, cfg.GetGenerator())
	}

	if err := store.Save(ctx, g); err != nil {
		return nil, fmt.Errorf("первое сохранение мира: %w", err)
	}
	return g, nil
}
