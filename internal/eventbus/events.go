package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Типы событий мира
const (
	EventPlayerJoined = "PlayerJoined"
	EventPlayerLeft   = "PlayerLeft"
	EventPlayerKicked = "PlayerKicked"
	EventBlockChanged = "BlockChanged"
	EventChat         = "Chat"
	EventWorldSaved   = "WorldSaved"
)

// Приоритеты для back-pressure
const (
	PriorityLow    = 1
	PriorityNormal = 5
	PriorityHigh   = 8
)

// PlayerPayload — вход, выход или кик игрока
type PlayerPayload struct {
	Nick    string  `json:"nick"`
	Address string  `json:"address,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
}

// BlockPayload — принятое изменение блока. Nick пуст для гравитации.
type BlockPayload struct {
	Nick string `json:"nick,omitempty"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Z    int    `json:"z"`
	Mat  int    `json:"mat"`
}

// ChatPayload — сообщение чата
type ChatPayload struct {
	Nick string `json:"nick"`
	Msg  string `json:"msg"`
}

// WorldSavedPayload — результат сохранения мира
type WorldSavedPayload struct {
	Backend  string `json:"backend"`
	Cells    int    `json:"cells"`
	Final    bool   `json:"final,omitempty"`
	Duration string `json:"duration"`
}

// NewEvent собирает конверт с JSON-полезной нагрузкой
func NewEvent(eventType, source string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("eventbus: marshal %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   1,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// Decode разбирает полезную нагрузку конверта в v
func (ev *Envelope) Decode(v interface{}) error {
	return json.Unmarshal(ev.Payload, v)
}

// Emit собирает событие и публикует его в глобальную шину
func Emit(ctx context.Context, eventType, source string, priority int, payload interface{}) error {
	bus := Global()
	if bus == nil {
		return nil
	}
	ev, err := NewEvent(eventType, source, priority, payload)
	if err != nil {
		return err
	}
	if nick, ok := correlationOf(payload); ok {
		ev.CorrelationID = nick
	}
	return bus.Publish(ctx, ev)
}

func correlationOf(payload interface{}) (string, bool) {
	switch p := payload.(type) {
	case PlayerPayload:
		return p.Nick, p.Nick != ""
	case BlockPayload:
		return p.Nick, p.Nick != ""
	case ChatPayload:
		return p.Nick, p.Nick != ""
	}
	return "", false
}
