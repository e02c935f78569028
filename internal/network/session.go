package network

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionState — состояние подключения
type SessionState int

const (
	StateConnecting     SessionState = iota // соединение принято, допуск не проверен
	StateAuthenticating                     // ждём ник
	StateActive                             // игрок в мире
	StateDisconnected                       // сессия завершена
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// canTransition — допустимые переходы. Из Disconnected выхода нет.
func (s SessionState) canTransition(to SessionState) bool {
	switch s {
	case StateConnecting:
		return to == StateAuthenticating || to == StateDisconnected
	case StateAuthenticating:
		return to == StateActive || to == StateDisconnected
	case StateActive:
		return to == StateDisconnected
	default:
		return false
	}
}

// sendQueueSize — ёмкость очереди отправки; при половине заполнения
// сообщения без гарантии доставки отбрасываются.
const sendQueueSize = 256

// Session — одно websocket-подключение.
// Все поля, кроме conn и send, принадлежат циклу GameServer.run.
type Session struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	addr string

	state    SessionState
	admitted bool // занимает слот и адрес
	closed   bool // send закрыт

	nick  string
	pos   mgl64.Vec3
	pitch float64
	yaw   float64
	edits editWindow

	connectedAt time.Time
}

func newSession(conn *websocket.Conn, addr string) *Session {
	return &Session{
		id:          uuid.NewString(),
		conn:        conn,
		send:        make(chan []byte, sendQueueSize),
		addr:        addr,
		state:       StateConnecting,
		connectedAt: time.Now(),
	}
}

// ID возвращает идентификатор сессии
func (c *Session) ID() string { return c.id }

// Nick возвращает ник (пусто до рукопожатия)
func (c *Session) Nick() string { return c.nick }

// Addr возвращает адрес клиента
func (c *Session) Addr() string { return c.addr }

// State возвращает текущее состояние
func (c *Session) State() SessionState { return c.state }

// transition меняет состояние, если переход допустим
func (c *Session) transition(to SessionState) bool {
	if !c.state.canTransition(to) {
		return false
	}
	c.state = to
	return true
}

// enqueue кладёт кадр в очередь. false — очередь переполнена или закрыта.
func (c *Session) enqueue(frame []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// enqueueVolatile отбрасывает кадр, если очередь заполнена больше чем наполовину
func (c *Session) enqueueVolatile(frame []byte) bool {
	if c.closed || len(c.send) > cap(c.send)/2 {
		return false
	}
	return c.enqueue(frame)
}

// closeSend закрывает очередь; writePump допишет остаток и закроет соединение
func (c *Session) closeSend() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// PlayerInfo — снимок игрока для админки и /list
type PlayerInfo struct {
	Nick      string    `json:"nick"`
	Address   string    `json:"address"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Pitch     float64   `json:"pitch"`
	Yaw       float64   `json:"yaw"`
	Connected time.Time `json:"connected"`
}

func (c *Session) info() PlayerInfo {
	return PlayerInfo{
		Nick:      c.nick,
		Address:   c.addr,
		X:         c.pos.X(),
		Y:         c.pos.Y(),
		Z:         c.pos.Z(),
		Pitch:     c.pitch,
		Yaw:       c.yaw,
		Connected: c.connectedAt,
	}
}
