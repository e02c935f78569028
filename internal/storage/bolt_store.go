package storage

import (
	"context"
	"fmt"

	"github.com/annel0/voxel-server/internal/world"
	"github.com/boltdb/bolt"
)

var (
	worldBucket = []byte("world")
	snapshotKey = []byte("snapshot")
)

// BoltStore хранит снимок мира в одном файле BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore открывает (или создаёт) файл базы
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0666, nil)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BoltDB: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(worldBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Save записывает снимок одной транзакцией
func (s *BoltStore) Save(ctx context.Context, g *world.Grid) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := compressSnapshot(MarshalWorld(g))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(worldBucket).Put(snapshotKey, data)
	})
}

// Load читает снимок
func (s *BoltStore) Load(ctx context.Context, sx, sy, sz int) (*world.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []byte
	s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(worldBucket).Get(snapshotKey)
		if v != nil {
			// значение действительно только внутри транзакции
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if raw == nil {
		return nil, fmt.Errorf("%w: снимок отсутствует", ErrNotLoaded)
	}

	data, err := decompressSnapshot(raw)
	if err != nil {
		return nil, err
	}
	return UnmarshalWorld(data, sx, sy, sz)
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
