package eventbus

import "sync/atomic"

type busRef struct{ bus EventBus }

var current atomic.Pointer[busRef]

// Init ставит шину, в которую пишет Emit. nil отключает публикацию.
func Init(bus EventBus) {
	if bus == nil {
		current.Store(nil)
		return
	}
	current.Store(&busRef{bus: bus})
}

// Global возвращает текущую шину или nil
func Global() EventBus {
	if ref := current.Load(); ref != nil {
		return ref.bus
	}
	return nil
}
