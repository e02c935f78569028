package app

import (
	"fmt"

	"github.com/annel0/voxel-server/internal/audit"
	"github.com/annel0/voxel-server/internal/config"
	"github.com/annel0/voxel-server/internal/eventbus"
	"github.com/annel0/voxel-server/internal/storage"
)

// OpenPositionRepo открывает хранилище последних позиций игроков
func OpenPositionRepo(cfg *config.PositionsConfig) (storage.PositionRepo, error) {
	switch backend := cfg.GetBackend(); backend {
	case "memory":
		return storage.NewMemoryPositionRepo(), nil
	case "redis":
		rc := storage.DefaultRedisConfig()
		rc.Addr = cfg.GetRedisAddr()
		repo, err := storage.NewRedisPositionRepository(rc)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "maria", "mysql":
		if cfg.GetMariaDSN() == "" {
			return nil, fmt.Errorf("positions.maria_dsn не задан")
		}
		repo, err := storage.NewMariaPositionRepo(cfg.GetMariaDSN())
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("неизвестное хранилище позиций %q", backend)
	}
}

// OpenEventBus создаёт шину событий
func OpenEventBus(cfg *config.EventBusConfig) (eventbus.EventBus, error) {
	switch backend := cfg.GetBackend(); backend {
	case "memory":
		return eventbus.NewMemoryBus(cfg.GetBuffer()), nil
	case "jetstream", "nats":
		bus, err := eventbus.NewJetStreamBus(cfg.GetURL(), cfg.GetStream(), cfg.GetRetention())
		if err != nil {
			return nil, err
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("неизвестная шина событий %q", backend)
	}
}

// OpenAuditLog создаёт архив событий
func OpenAuditLog(cfg *config.AuditConfig) (audit.Log, error) {
	switch backend := cfg.GetBackend(); backend {
	case "memory":
		return audit.NewMemoryLog(1000), nil
	case "mongo", "mongodb":
		log, err := audit.NewMongoLog(audit.MongoConfig{
			URI:        cfg.GetMongoURI(),
			Database:   cfg.Database,
			Collection: cfg.Collection,
		})
		if err != nil {
			return nil, err
		}
		return log, nil
	default:
		return nil, fmt.Errorf("неизвестный архив событий %q", backend)
	}
}
