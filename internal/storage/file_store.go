package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/world"
)

// DefaultSaveDir — каталог сохранений по умолчанию
const DefaultSaveDir = "saved_world_data"

// FileStore хранит мир одним текстовым файлом.
// Запись идёт во временный файл рядом с целевым и завершается rename,
// поэтому читатель никогда не видит недописанный файл.
type FileStore struct {
	dir  string
	name string
}

// NewFileStore создаёт файловое хранилище dir/name
func NewFileStore(dir, name string) *FileStore {
	if dir == "" {
		dir = DefaultSaveDir
	}
	return &FileStore{dir: dir, name: name}
}

// Path возвращает полный путь к файлу мира
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, s.name)
}

// PrepareDir создаёт каталог сохранений
func (s *FileStore) PrepareDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("не удалось создать каталог %s: %w", s.dir, err)
	}
	return nil
}

// Load читает файл мира
func (s *FileStore) Load(ctx context.Context, sx, sy, sz int) (*world.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s не найден", ErrNotLoaded, s.Path())
		}
		return nil, fmt.Errorf("%w: %v", ErrNotLoaded, err)
	}

	g, err := UnmarshalWorld(data, sx, sy, sz)
	if err != nil {
		return nil, err
	}

	logging.GetStorageLogger().Info("Мир загружен из %s (%d байт)", s.Path(), len(data))
	return g, nil
}

// Save атомарно перезаписывает файл мира
func (s *FileStore) Save(ctx context.Context, g *world.Grid) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.PrepareDir(); err != nil {
		return err
	}

	data := MarshalWorld(g)
	if err := writeFileAtomic(s.Path(), data, 0o644); err != nil {
		return fmt.Errorf("ошибка сохранения мира: %w", err)
	}

	logging.GetStorageLogger().Debug("Мир сохранён в %s (%d байт)", s.Path(), len(data))
	return nil
}

// Close ничего не делает: файл не держится открытым
func (s *FileStore) Close() error { return nil }

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
