// Package eventbus разносит доменные события сервера (вход игроков, правки
// блоков, чат, сохранения) по подписчикам: логу, аудиту, метрикам и NATS.
package eventbus

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

var ErrClosed = errors.New("eventbus: closed")

// Envelope — конверт события. Payload хранит JSON, схема задаётся EventType и Version.
type Envelope struct {
	ID            string            `json:"id" bson:"_id"`
	Timestamp     time.Time         `json:"timestamp" bson:"timestamp"`
	Source        string            `json:"source" bson:"source"`
	EventType     string            `json:"event_type" bson:"event_type"`
	Version       int               `json:"version" bson:"version"`
	CorrelationID string            `json:"correlation_id,omitempty" bson:"correlation_id"` // ник игрока
	Priority      int               `json:"priority" bson:"priority"`
	Payload       []byte            `json:"payload" bson:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Filter: пустые списки означают «все»
type Filter struct {
	Types     []string
	Sources   []string
	FromStart bool // только JetStream: перечитать историю стрима
}

func (f Filter) match(ev *Envelope) bool {
	return (len(f.Types) == 0 || slices.Contains(f.Types, ev.EventType)) &&
		(len(f.Sources) == 0 || slices.Contains(f.Sources, ev.Source))
}


type Subscription interface {
	Unsubscribe()
}

type Handler func(ctx context.Context, ev *Envelope)

// Stats — счётчики с момента создания шины
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus — шина событий: в памяти процесса или JetStream
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

// memoryBus: общий входной буфер и по очереди на подписчика.
// Порядок событий у одного подписчика сохраняется; медленный подписчик
// теряет события, а не тормозит остальных.
type memoryBus struct {
	mu       sync.RWMutex
	subs     map[int]*memSub
	nextID   int
	capacity int
	closed   bool

	buffer  chan *Envelope
	done    chan struct{}
	workers sync.WaitGroup

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

type memSub struct {
	bus    *memoryBus
	id     int
	filter Filter
	queue  chan *Envelope
	ctx    context.Context
	cancel context.CancelFunc
}

// NewMemoryBus создаёт шину в памяти; capacity ограничивает и вход, и очередь каждого подписчика
func NewMemoryBus(capacity int) EventBus {
	if capacity < 1 {
		capacity = 1
	}
	mb := newMemoryBus(capacity)
	go mb.dispatch()
	return mb
}

func newMemoryBus(capacity int) *memoryBus {
	return &memoryBus{
		subs:     make(map[int]*memSub),
		capacity: capacity,
		buffer:   make(chan *Envelope, capacity),
		done:     make(chan struct{}),
	}
}

// Publish не блокируется, пока есть место. При полном буфере события ниже
// PriorityNormal отбрасываются, остальные ждут места или отмены ctx.
func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return ErrClosed
	}

	select {
	case mb.buffer <- ev:
		mb.published.Add(1)
		return nil
	default:
	}
	if ev.Priority < PriorityNormal {
		mb.dropped.Add(1)
		return nil
	}
	select {
	case mb.buffer <- ev:
		mb.published.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return nil, ErrClosed
	}

	cctx, cancel := context.WithCancel(ctx)
	s := &memSub{
		bus:    mb,
		id:     mb.nextID,
		filter: f,
		queue:  make(chan *Envelope, mb.capacity),
		ctx:    cctx,
		cancel: cancel,
	}
	mb.nextID++
	mb.subs[s.id] = s

	mb.workers.Add(1)
	go mb.serve(s, h)
	return s, nil
}

func (mb *memoryBus) serve(s *memSub, h Handler) {
	defer mb.workers.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.queue:
			if !ok {
				return
			}
			h(s.ctx, ev)
			mb.consumed.Add(1)
		}
	}
}

func (mb *memoryBus) dispatch() {
	defer close(mb.done)
	for ev := range mb.buffer {
		mb.mu.RLock()
		for _, s := range mb.subs {
			if !s.filter.match(ev) {
				continue
			}
			select {
			case s.queue <- ev:
			default:
				mb.dropped.Add(1)
			}
		}
		mb.mu.RUnlock()
	}
}

func (mb *memoryBus) Metrics() Stats {
	return Stats{
		Published: mb.published.Load(),
		Consumed:  mb.consumed.Load(),
		Dropped:   mb.dropped.Load(),
		InFlight:  len(mb.buffer),
	}
}

// Close перестаёт принимать события и ждёт, пока подписчики разберут свои очереди
func (mb *memoryBus) Close() error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return nil
	}
	mb.closed = true
	close(mb.buffer)
	mb.mu.Unlock()

	<-mb.done

	mb.mu.Lock()
	for id, s := range mb.subs {
		close(s.queue)
		delete(mb.subs, id)
	}
	mb.mu.Unlock()

	mb.workers.Wait()
	return nil
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.cancel()
}
