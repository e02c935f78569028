package eventbus

import (
	"context"

	"github.com/annel0/voxel-server/internal/logging"
)

// StartLoggingListener пишет события шины в лог компонента "events".
// Правки блоков идут на TRACE, их слишком много для INFO.
func StartLoggingListener(bus EventBus) error {
	log := logging.GetComponentLogger("events")
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		logEvent(log, ev)
	})
	if err != nil {
		return err
	}
	log.Debug("подписка на все события активирована")
	return nil
}

func logEvent(log *logging.Logger, ev *Envelope) {
	switch ev.EventType {
	case EventBlockChanged:
		var p BlockPayload
		if ev.Decode(&p) == nil {
			log.Trace("блок (%d,%d,%d) -> %d [%s]", p.X, p.Y, p.Z, p.Mat, p.Nick)
			return
		}
	case EventPlayerJoined, EventPlayerLeft, EventPlayerKicked:
		var p PlayerPayload
		if ev.Decode(&p) == nil {
			if p.Reason != "" {
				log.Info("%s: %s (%s)", ev.EventType, p.Nick, p.Reason)
			} else {
				log.Info("%s: %s", ev.EventType, p.Nick)
			}
			return
		}
	case EventChat:
		var p ChatPayload
		if ev.Decode(&p) == nil {
			log.Debug("<%s> %s", p.Nick, p.Msg)
			return
		}
	case EventWorldSaved:
		var p WorldSavedPayload
		if ev.Decode(&p) == nil {
			log.Debug("мир сохранён: %s за %s", p.Backend, p.Duration)
			return
		}
	}
	log.Debug("%s %s src=%s payload=%s", ev.ID, ev.EventType, ev.Source, ev.Payload)
}
