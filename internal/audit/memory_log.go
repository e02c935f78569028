package audit

import (
	"context"
	"sync"

	"github.com/annel0/voxel-server/internal/eventbus"
)

// MemoryLog хранит последние события в кольцевом буфере
type MemoryLog struct {
	mu    sync.RWMutex
	ring  []eventbus.Envelope
	next  int
	count int
}

// NewMemoryLog создаёт архив на capacity событий
func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryLog{ring: make([]eventbus.Envelope, capacity)}
}

func (m *MemoryLog) Record(ctx context.Context, ev *eventbus.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ring[m.next] = *ev
	m.next = (m.next + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}
	return nil
}

func (m *MemoryLog) Recent(ctx context.Context, eventType string, limit int) ([]eventbus.Envelope, error) {
	limit = clampLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]eventbus.Envelope, 0, min(limit, m.count))
	for i := 1; i <= m.count && len(out) < limit; i++ {
		ev := m.ring[(m.next-i+len(m.ring))%len(m.ring)]
		if eventType != "" && ev.EventType != eventType {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *MemoryLog) Close() error { return nil }
