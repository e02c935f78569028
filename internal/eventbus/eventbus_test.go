package eventbus

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus_FilterAndDeliver(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 4)

	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventChat}}, func(ctx context.Context, ev *Envelope) {
		var p ChatPayload
		require.NoError(t, ev.Decode(&p))
		mu.Lock()
		got = append(got, p.Msg)
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)

	chat, err := NewEvent(EventChat, "test", PriorityNormal, ChatPayload{Nick: "Ann", Msg: "hi"})
	require.NoError(t, err)
	block, err := NewEvent(EventBlockChanged, "test", PriorityLow, BlockPayload{X: 1})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), block))
	require.NoError(t, bus.Publish(context.Background(), chat))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
	}

	mu.Lock()
	assert.Equal(t, []string{"hi"}, got)
	mu.Unlock()
	assert.Equal(t, uint64(2), bus.Metrics().Published)
}

func TestMemoryBus_DropsLowPriorityWhenFull(t *testing.T) {
	mb := newMemoryBus(1)
	// dispatch не запущен: буфер не разбирается

	ev := &Envelope{EventType: EventBlockChanged, Priority: PriorityLow}
	require.NoError(t, mb.Publish(context.Background(), ev))
	require.NoError(t, mb.Publish(context.Background(), ev))

	stats := mb.Metrics()
	assert.Equal(t, uint64(1), stats.Published)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, 1, stats.InFlight)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	high := &Envelope{EventType: EventPlayerKicked, Priority: PriorityHigh}
	assert.ErrorIs(t, mb.Publish(ctx, high), context.Canceled, "высокий приоритет ждёт места")
}

func TestMemoryBus_KeepsOrderPerSubscriber(t *testing.T) {
	bus := NewMemoryBus(64)

	var got []int
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventBlockChanged}}, func(ctx context.Context, ev *Envelope) {
		var p BlockPayload
		require.NoError(t, ev.Decode(&p))
		got = append(got, p.X)
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		ev, err := NewEvent(EventBlockChanged, "test", PriorityNormal, BlockPayload{X: i})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	// Close дожидается разбора очередей
	require.NoError(t, bus.Close())

	want := make([]int, 20)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(20), bus.Metrics().Consumed)
}

func TestMemoryBus_SubscribeAfterClose(t *testing.T) {
	bus := NewMemoryBus(1)
	require.NoError(t, bus.Close())
	_, err := bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBus_PublishAfterClose(t *testing.T) {
	bus := NewMemoryBus(4)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), &Envelope{}), ErrClosed)
}

func TestEmit_SetsCorrelation(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()
	Init(bus)
	defer Init(nil)

	received := make(chan *Envelope, 1)
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		received <- ev
	})
	require.NoError(t, err)

	require.NoError(t, Emit(context.Background(), EventPlayerJoined, "network", PriorityNormal, PlayerPayload{Nick: "Ann"}))

	select {
	case ev := <-received:
		assert.Equal(t, "Ann", ev.CorrelationID)
		assert.Equal(t, EventPlayerJoined, ev.EventType)
		assert.NotEmpty(t, ev.ID)
	case <-time.After(time.Second):
		t.Fatal("событие не доставлено")
	}
}

func TestRegisterMetrics(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(bus, reg))
	assert.Error(t, RegisterMetrics(bus, reg), "повторная регистрация")

	require.NoError(t, bus.Publish(context.Background(), &Envelope{EventType: EventChat}))

	expected := `
# HELP voxel_eventbus_published_total Событий принято шиной.
# TYPE voxel_eventbus_published_total counter
voxel_eventbus_published_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "voxel_eventbus_published_total"))
}

func TestInit_NilDisablesEmit(t *testing.T) {
	Init(nil)
	assert.Nil(t, Global())
	assert.NoError(t, Emit(context.Background(), EventChat, "test", PriorityNormal, ChatPayload{Nick: "Ann"}))

	bus := NewMemoryBus(1)
	defer bus.Close()
	Init(bus)
	defer Init(nil)
	assert.Same(t, bus, Global())
}
