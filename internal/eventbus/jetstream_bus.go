package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"
)

// subjectPrefix — события мира лежат в subject'ах voxel.<тип>
const subjectPrefix = "voxel."

// JetStreamBus хранит события в стриме JetStream: их видят внешние
// потребители и event-cli, история переживает рестарт сервера.
type JetStreamBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream string

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

// NewJetStreamBus подключается к NATS и создаёт стрим, если его нет.
// retention ограничивает возраст хранимых событий.
func NewJetStreamBus(url, stream string, retention time.Duration) (*JetStreamBus, error) {
	if stream == "" {
		stream = "EVENTS"
	}

	nc, err := nats.Connect(url,
		nats.Name("voxel-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       stream,
			Subjects:   []string{subjectPrefix + "*"},
			Retention:  nats.LimitsPolicy,
			MaxAge:     retention,
			Storage:    nats.FileStorage,
			Duplicates: time.Minute,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("стрим %s: %w", stream, err)
		}
	}

	return &JetStreamBus{nc: nc, js: js, stream: stream}, nil
}

func subjectFor(eventType string) string { return subjectPrefix + eventType }

// Publish кладёт конверт в стрим. ID конверта служит ключом дедупликации.
func (jb *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: %w", err)
	}
	if _, err := jb.js.Publish(subjectFor(ev.EventType), data, nats.Context(ctx), nats.MsgId(ev.ID)); err != nil {
		return fmt.Errorf("jetstream publish %s: %w", ev.EventType, err)
	}
	jb.published.Add(1)
	return nil
}

// Subscribe создаёт эфемерного потребителя на каждый тип из фильтра
// (или один на все типы). Потребители исчезают вместе с подпиской.
func (jb *JetStreamBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	subjects := []string{subjectPrefix + "*"}
	if len(f.Types) > 0 {
		subjects = subjects[:0]
		for _, t := range f.Types {
			subjects = append(subjects, subjectFor(t))
		}
	}

	onMsg := func(msg *nats.Msg) {
		defer func() { _ = msg.Ack() }()
		var ev Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			jb.dropped.Add(1)
			return
		}
		if !f.match(&ev) {
			return
		}
		h(ctx, &ev)
		jb.consumed.Add(1)
	}

	sub := &jetSub{}
	for _, subj := range subjects {
		s, err := jb.js.Subscribe(subj, onMsg, nats.BindStream(jb.stream), nats.ManualAck(), nats.AckWait(30*time.Second), deliverPolicy(f))
		if err != nil {
			sub.Unsubscribe()
			return nil, fmt.Errorf("jetstream subscribe %s: %w", subj, err)
		}
		sub.subs = append(sub.subs, s)
	}

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			sub.Unsubscribe()
		}()
	}
	return sub, nil
}

// Close отправляет накопленное и закрывает соединение
func (jb *JetStreamBus) Close() error {
	return jb.nc.Drain()
}

func deliverPolicy(f Filter) nats.SubOpt {
	if f.FromStart {
		return nats.DeliverAll()
	}
	return nats.DeliverNew()
}

type jetSub struct {
	subs []*nats.Subscription
}

func (j *jetSub) Unsubscribe() {
	for _, s := range j.subs {
		_ = s.Unsubscribe()
	}
}

func (jb *JetStreamBus) Metrics() Stats {
	return Stats{
		Published: jb.published.Load(),
		Consumed:  jb.consumed.Load(),
		Dropped:   jb.dropped.Load(),
	}
}
