package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/voxel-server/internal/eventbus"
	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/storage"
	"github.com/annel0/voxel-server/internal/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const eventSource = "voxel-server"

// Snapshotter отдаёт копию мира, снятую внутри игрового цикла
type Snapshotter interface {
	Snapshot(ctx context.Context) (*world.Grid, error)
}

// Saver сохраняет мир: по таймеру, по запросу администратора и при остановке.
// Снимок снимается в игровом цикле, запись идёт вне его.
type Saver struct {
	store   storage.WorldStore
	game    Snapshotter
	backend string

	mu sync.Mutex // одна запись за раз
}

// NewSaver создаёт Saver. backend — имя хранилища для логов и событий.
func NewSaver(store storage.WorldStore, game Snapshotter, backend string) *Saver {
	return &Saver{store: store, game: game, backend: backend}
}

// SaveNow снимает копию мира и записывает её
func (s *Saver) SaveNow(ctx context.Context) error {
	g, err := s.game.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("снимок мира: %w", err)
	}
	return s.write(ctx, g, false)
}

// SaveFinal записывает мир после остановки игрового цикла.
// Вызывать только когда сетку больше никто не меняет.
func (s *Saver) SaveFinal(ctx context.Context, g *world.Grid) error {
	return s.write(ctx, g, true)
}

// Run сохраняет мир каждые interval до отмены ctx
func (s *Saver) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SaveNow(ctx); err != nil && ctx.Err() == nil {
				logging.Error("Автосохранение мира: %v", err)
			}
		}
	}
}

func (s *Saver) write(ctx context.Context, g *world.Grid, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := otel.Tracer("voxel-server/app").Start(ctx, "world.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("storage.backend", s.backend),
		attribute.Int("world.cells", g.Volume()),
		attribute.Bool("world.final", final),
	)

	start := time.Now()
	if err := s.store.Save(ctx, g); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return err
	}
	took := time.Since(start)

	logging.GetStorageLogger().Info("💾 Мир сохранён (%s, %s)", s.backend, took)

	emitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := eventbus.Emit(emitCtx, eventbus.EventWorldSaved, eventSource, eventbus.PriorityNormal, eventbus.WorldSavedPayload{
		Backend:  s.backend,
		Cells:    g.Volume(),
		Final:    final,
		Duration: took.String(),
	})
	if err != nil {
		logging.Warn("Событие WorldSaved не опубликовано: %v", err)
	}
	return nil
}
