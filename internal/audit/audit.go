// Package audit архивирует события шины для истории в REST API и event-cli.
package audit

import (
	"context"

	"github.com/annel0/voxel-server/internal/eventbus"
	"github.com/annel0/voxel-server/internal/logging"
)

// Log — архив событий
type Log interface {
	// Record сохраняет событие
	Record(ctx context.Context, ev *eventbus.Envelope) error
	// Recent возвращает до limit последних событий, новые первыми.
	// Пустой eventType означает все типы.
	Recent(ctx context.Context, eventType string, limit int) ([]eventbus.Envelope, error)
	Close() error
}

// DefaultLimit — размер выборки по умолчанию
const DefaultLimit = 50

// Attach подписывает архив на все события шины
func Attach(ctx context.Context, bus eventbus.EventBus, log Log) (eventbus.Subscription, error) {
	return bus.Subscribe(ctx, eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		if err := log.Record(ctx, ev); err != nil {
			logging.Warn("audit: не удалось записать событие %s: %v", ev.ID, err)
		}
	})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
