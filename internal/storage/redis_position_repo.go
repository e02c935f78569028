package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/voxel-server/internal/logging"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-redis/redis/v8"
)

// RedisPositionRepository хранит позиции игроков в Redis.
// Запись буферизуется и сбрасывается пайплайном по таймеру или по заполнению батча.
type RedisPositionRepository struct {
	client      *redis.Client
	ctx         context.Context
	keyPrefix   string
	ttl         time.Duration
	batchSize   int
	batchMu     sync.Mutex
	batchBuffer map[string]LastPosition
	batchTicker *time.Ticker
	shutdown    chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr         string        // Адрес Redis сервера
	Password     string        // Пароль (пустой если не требуется)
	DB           int           // Номер базы данных
	KeyPrefix    string        // Префикс для ключей
	TTL          time.Duration // Время жизни записей
	BatchSize    int           // Размер батча для записи
	BatchFlushMs int           // Интервал сброса батча в миллисекундах
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "voxel:pos:",
		TTL:          24 * time.Hour,
		BatchSize:    100,
		BatchFlushMs: 100,
	}
}

// NewRedisPositionRepository создаёт новый Redis репозиторий для позиций
func NewRedisPositionRepository(config *RedisConfig) (*RedisPositionRepository, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.BatchFlushMs <= 0 {
		config.BatchFlushMs = 100
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx := context.Background()

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	repo := &RedisPositionRepository{
		client:      client,
		ctx:         ctx,
		keyPrefix:   config.KeyPrefix,
		ttl:         config.TTL,
		batchSize:   config.BatchSize,
		batchBuffer: make(map[string]LastPosition),
		batchTicker: time.NewTicker(time.Duration(config.BatchFlushMs) * time.Millisecond),
		shutdown:    make(chan struct{}),
	}

	// Запускаем фоновую горутину для сброса батчей
	repo.wg.Add(1)
	go repo.batchFlusher()

	logging.GetStorageLogger().Info("🔴 Connected to Redis at %s", config.Addr)
	return repo, nil
}

// Save ставит позицию в батч
func (rpr *RedisPositionRepository) Save(ctx context.Context, nick string, pos mgl64.Vec3) error {
	key, err := validatePosition(nick, pos)
	if err != nil {
		return err
	}
	return rpr.enqueue(ctx, map[string]LastPosition{
		key: {Nick: nick, Position: pos, UpdatedAt: time.Now()},
	})
}

// BatchSave ставит в батч сразу несколько позиций
func (rpr *RedisPositionRepository) BatchSave(ctx context.Context, positions map[string]mgl64.Vec3) error {
	if len(positions) == 0 {
		return nil
	}

	now := time.Now()
	entries := make(map[string]LastPosition, len(positions))
	for nick, pos := range positions {
		key, err := validatePosition(nick, pos)
		if err != nil {
			return err
		}
		entries[key] = LastPosition{Nick: nick, Position: pos, UpdatedAt: now}
	}
	return rpr.enqueue(ctx, entries)
}

func (rpr *RedisPositionRepository) enqueue(ctx context.Context, entries map[string]LastPosition) error {
	rpr.batchMu.Lock()
	for key, e := range entries {
		rpr.batchBuffer[key] = e
	}

	// Если буфер заполнен, сбрасываем немедленно
	if len(rpr.batchBuffer) >= rpr.batchSize {
		batch := rpr.batchBuffer
		rpr.batchBuffer = make(map[string]LastPosition)
		rpr.batchMu.Unlock()

		return rpr.flushBatch(ctx, batch)
	}

	rpr.batchMu.Unlock()
	return nil
}

// Load получает позицию игрока. Несброшенный батч имеет приоритет.
func (rpr *RedisPositionRepository) Load(ctx context.Context, nick string) (LastPosition, bool, error) {
	key := PositionKey(nick)
	if key == "" {
		return LastPosition{}, false, ErrInvalidNick
	}

	rpr.batchMu.Lock()
	pending, ok := rpr.batchBuffer[key]
	rpr.batchMu.Unlock()
	if ok {
		return pending, true, nil
	}

	data, err := rpr.client.Get(ctx, rpr.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return LastPosition{}, false, nil // Позиция не найдена
	} else if err != nil {
		return LastPosition{}, false, fmt.Errorf("failed to get position: %w", err)
	}

	var pos LastPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return LastPosition{}, false, fmt.Errorf("failed to unmarshal position: %w", err)
	}

	return pos, true, nil
}

// Delete удаляет позицию игрока
func (rpr *RedisPositionRepository) Delete(ctx context.Context, nick string) error {
	key := PositionKey(nick)
	if key == "" {
		return ErrInvalidNick
	}

	// Удаляем из батч-буфера если есть
	rpr.batchMu.Lock()
	delete(rpr.batchBuffer, key)
	rpr.batchMu.Unlock()

	if err := rpr.client.Del(ctx, rpr.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}

	return nil
}

// Count возвращает количество сохранённых позиций
func (rpr *RedisPositionRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	iter := rpr.client.Scan(ctx, 0, rpr.keyPrefix+"*", 0).Iterator()

	for iter.Next(ctx) {
		count++
	}

	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}

	return count, nil
}

// Close сбрасывает остаток батча и закрывает соединение
func (rpr *RedisPositionRepository) Close() error {
	var err error
	rpr.closeOnce.Do(func() {
		close(rpr.shutdown)
		rpr.wg.Wait()
		rpr.batchTicker.Stop()

		rpr.batchMu.Lock()
		batch := rpr.batchBuffer
		rpr.batchBuffer = make(map[string]LastPosition)
		rpr.batchMu.Unlock()

		if flushErr := rpr.flushBatch(rpr.ctx, batch); flushErr != nil {
			logging.GetStorageLogger().Error("❌ Failed to flush final batch: %v", flushErr)
		}
		err = rpr.client.Close()
	})
	return err
}

// batchFlusher периодически сбрасывает батч-буфер
func (rpr *RedisPositionRepository) batchFlusher() {
	defer rpr.wg.Done()

	for {
		select {
		case <-rpr.shutdown:
			return
		case <-rpr.batchTicker.C:
			rpr.batchMu.Lock()
			if len(rpr.batchBuffer) == 0 {
				rpr.batchMu.Unlock()
				continue
			}
			batch := rpr.batchBuffer
			rpr.batchBuffer = make(map[string]LastPosition)
			rpr.batchMu.Unlock()

			if err := rpr.flushBatch(rpr.ctx, batch); err != nil {
				logging.GetStorageLogger().Error("❌ Failed to flush batch: %v", err)
			}
		}
	}
}

// flushBatch записывает батч позиций в Redis
func (rpr *RedisPositionRepository) flushBatch(ctx context.Context, batch map[string]LastPosition) error {
	if len(batch) == 0 {
		return nil
	}

	pipe := rpr.client.Pipeline()

	for key, pos := range batch {
		data, err := json.Marshal(pos)
		if err != nil {
			logging.GetStorageLogger().Warn("⚠️ Failed to marshal position for %s: %v", key, err)
			continue
		}
		pipe.Set(ctx, rpr.keyPrefix+key, data, rpr.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	return nil
}
