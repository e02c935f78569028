package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/world"
	"github.com/dgraph-io/badger/v3"
)

var badgerSnapshotKey = []byte("world:snapshot")

// BadgerStore хранит снимок мира в BadgerDB, сжатый zstd
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerStore открывает базу в dataPath/world
func NewBadgerStore(dataPath string) (*BadgerStore, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Close закрывает хранилище данных
func (bs *BadgerStore) Close() error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if !bs.isReady {
		return nil
	}

	bs.isReady = false
	return bs.db.Close()
}

// Save записывает снимок одной транзакцией
func (bs *BadgerStore) Save(ctx context.Context, g *world.Grid) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	data, err := compressSnapshot(MarshalWorld(g))
	if err != nil {
		return err
	}

	err = bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerSnapshotKey, data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	logging.GetStorageLogger().Debug("Снимок мира записан в BadgerDB (%d байт)", len(data))
	return nil
}

// Load читает снимок
func (bs *BadgerStore) Load(ctx context.Context, sx, sy, sz int) (*world.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return nil, fmt.Errorf("%w: хранилище не готово", ErrNotLoaded)
	}

	var raw []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerSnapshotKey)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: снимок отсутствует", ErrNotLoaded)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: ошибка чтения BadgerDB: %v", ErrNotLoaded, err)
	}

	data, err := decompressSnapshot(raw)
	if err != nil {
		return nil, err
	}
	return UnmarshalWorld(data, sx, sy, sz)
}
