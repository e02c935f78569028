package network

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/annel0/voxel-server/internal/eventbus"
	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/annel0/voxel-server/internal/storage"
	"github.com/annel0/voxel-server/internal/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrStopped возвращается вызовами к остановленному серверу
var ErrStopped = errors.New("network: server stopped")

const (
	readLimit    = 4096
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	writeWait    = 10 * time.Second
	eventBacklog = 1024
	saveBacklog  = 256
)

// Config — параметры игрового сервера
type Config struct {
	MaxPlayers      int
	OneUserPerIP    bool
	BehindProxy     bool
	AdminIP         string
	AllowedOrigin   string        // пусто или "*" — любой Origin
	GravityInterval time.Duration // 0 — гравитация выключена
}

// Option настраивает GameServer
type Option func(*GameServer)

// WithPositionRepo сохраняет последнюю позицию игрока при отключении
func WithPositionRepo(repo storage.PositionRepo) Option {
	return func(s *GameServer) { s.positions = repo }
}

// WithRegisterer регистрирует метрики сервера в reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *GameServer) { s.metrics = NewMetrics(reg) }
}

// WithClock подменяет часы (ограничение частоты правок)
func WithClock(now func() time.Time) Option {
	return func(s *GameServer) { s.now = now }
}

type inboundFrame struct {
	sess *Session
	data []byte
}

type positionSave struct {
	nick string
	pos  mgl64.Vec3
}

type pendingEvent struct {
	eventType string
	priority  int
	payload   interface{}
}

// GameServer — авторитетный сервер мира.
// Сетка, список игроков и карта сессий принадлежат горутине Run:
// подключения, сообщения, тики гравитации и действия Do выполняются в ней строго по одному.
type GameServer struct {
	cfg       Config
	grid      *world.Grid
	positions storage.PositionRepo
	metrics   *Metrics
	upgrader  websocket.Upgrader
	log       *logging.Logger
	now       func() time.Time

	register   chan *Session
	unregister chan *Session
	inbound    chan inboundFrame
	actions    chan func()
	events     chan pendingEvent
	saves      chan positionSave
	done       chan struct{}

	// принадлежит Run
	sessions  map[string]*Session
	addresses map[string]bool
	usedSlots int
	nicknames map[string]*Session
	players   []*Session // в порядке входа
	editor    *Session   // автор текущей правки, nil для гравитации и админки
}

// NewGameServer создаёт сервер над сеткой grid. Сервер становится её слушателем изменений.
func NewGameServer(grid *world.Grid, cfg Config, opts ...Option) *GameServer {
	s := &GameServer{
		cfg:        cfg,
		grid:       grid,
		log:        logging.GetNetworkLogger(),
		now:        time.Now,
		register:   make(chan *Session),
		unregister: make(chan *Session),
		inbound:    make(chan inboundFrame, 64),
		actions:    make(chan func()),
		events:     make(chan pendingEvent, eventBacklog),
		saves:      make(chan positionSave, saveBacklog),
		done:       make(chan struct{}),
		sessions:   make(map[string]*Session),
		addresses:  make(map[string]bool),
		nicknames:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	grid.SetChangeListener(world.ChangeListenerFunc(s.blockChanged))
	return s
}

func (s *GameServer) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowedOrigin == "" || s.cfg.AllowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == s.cfg.AllowedOrigin
}

// Run обрабатывает события сервера до отмены ctx
func (s *GameServer) Run(ctx context.Context) {
	go s.publishLoop(ctx)
	go s.saveLoop(ctx)

	var gravity <-chan time.Time
	if s.cfg.GravityInterval > 0 {
		ticker := time.NewTicker(s.cfg.GravityInterval)
		defer ticker.Stop()
		gravity = ticker.C
	}

	s.log.Info("Игровой сервер запущен (слотов: %d)", s.cfg.MaxPlayers)

	for {
		select {
		case sess := <-s.register:
			s.admit(sess)

		case sess := <-s.unregister:
			if _, ok := s.sessions[sess.id]; ok {
				s.disconnect(sess)
				delete(s.sessions, sess.id)
			}

		case f := <-s.inbound:
			s.handleFrame(f.sess, f.data)

		case fn := <-s.actions:
			fn()

		case <-gravity:
			s.stepGravity()

		case <-ctx.Done():
			s.shutdown()
			return
		}
	}
}

// shutdown сохраняет позиции и закрывает все очереди отправки
func (s *GameServer) shutdown() {
	close(s.done)

	if s.positions != nil && len(s.players) > 0 {
		batch := make(map[string]mgl64.Vec3, len(s.players))
		for _, p := range s.players {
			batch[p.nick] = p.pos
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.positions.BatchSave(ctx, batch); err != nil {
			s.log.Warn("Не удалось сохранить позиции игроков: %v", err)
		}
		cancel()
	}

	for _, sess := range s.sessions {
		sess.state = StateDisconnected
		sess.closeSend()
	}
	s.metrics.sessions.Set(0)
	s.log.Info("Игровой сервер остановлен")
}

// Done закрывается, когда Run начинает остановку
func (s *GameServer) Done() <-chan struct{} {
	return s.done
}

// HandleConnection принимает websocket-подключение
func (s *GameServer) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Ошибка upgrade: %v", err)
		return
	}

	sess := newSession(conn, ClientAddress(r, s.cfg.BehindProxy))

	select {
	case s.register <- sess:
	case <-s.done:
		conn.Close()
		return
	}

	go s.writePump(sess)
	go s.readPump(sess)
}

// readPump читает кадры клиента и передаёт их в цикл сервера
func (s *GameServer) readPump(sess *Session) {
	defer func() {
		select {
		case s.unregister <- sess:
		case <-s.done:
		}
		sess.conn.Close()
	}()

	sess.conn.SetReadLimit(readLimit)
	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Debug("Ошибка чтения от %s: %v", sess.addr, err)
			}
			return
		}

		select {
		case s.inbound <- inboundFrame{sess: sess, data: data}:
		case <-s.done:
			return
		}
	}
}

// writePump отправляет очередь клиенту. Закрытая очередь — сигнал завершить соединение.
func (s *GameServer) writePump(sess *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sess.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sess.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := sess.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ===== Отправка (только из Run) =====

func (s *GameServer) encode(msg protocol.ServerMessage) []byte {
	frame, err := protocol.EncodeServer(msg)
	if err != nil {
		s.log.Error("Не удалось закодировать %s: %v", msg.Type(), err)
		return nil
	}
	return frame
}

// sendTo ставит сообщение в очередь сессии. Переполненная очередь закрывается,
// и сессия отключается, когда readPump заметит закрытие соединения.
func (s *GameServer) sendTo(sess *Session, msg protocol.ServerMessage) {
	frame := s.encode(msg)
	if frame == nil {
		return
	}
	s.sendFrame(sess, frame, msg.Type())
}

func (s *GameServer) sendFrame(sess *Session, frame []byte, t protocol.MsgType) {
	if sess.enqueue(frame) {
		s.metrics.messageOut(t)
		return
	}
	if !sess.closed {
		s.log.Warn("Очередь отправки %s переполнена, соединение закрывается", sess.addr)
		sess.closeSend()
	}
}

// sendVolatile отправляет без гарантии: при заполненной очереди сообщение отбрасывается
func (s *GameServer) sendVolatile(sess *Session, msg protocol.ServerMessage) {
	frame := s.encode(msg)
	if frame == nil {
		return
	}
	if sess.enqueueVolatile(frame) {
		s.metrics.messageOut(msg.Type())
		return
	}
	s.metrics.volatileDropped.Inc()
}

// broadcast отправляет сообщение всем активным игрокам, кроме except
func (s *GameServer) broadcast(msg protocol.ServerMessage, except *Session) {
	frame := s.encode(msg)
	if frame == nil {
		return
	}
	for _, p := range s.players {
		if p == except {
			continue
		}
		s.sendFrame(p, frame, msg.Type())
	}
}

// emit публикует событие мира вне цикла сервера
func (s *GameServer) emit(eventType string, priority int, payload interface{}) {
	select {
	case s.events <- pendingEvent{eventType: eventType, priority: priority, payload: payload}:
	default:
		s.log.Warn("Очередь событий переполнена, событие %s отброшено", eventType)
	}
}

func (s *GameServer) publishLoop(ctx context.Context) {
	for {
		select {
		case ev := <-s.events:
			pubCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := eventbus.Emit(pubCtx, ev.eventType, "network", ev.priority, ev.payload); err != nil {
				s.log.Debug("Событие %s не опубликовано: %v", ev.eventType, err)
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// ===== Жизненный цикл сессии (только из Run) =====

// admit проверяет допуск нового подключения
func (s *GameServer) admit(sess *Session) {
	s.sessions[sess.id] = sess

	if s.usedSlots >= s.cfg.MaxPlayers {
		s.kick(sess, ReasonServerFull)
		return
	}
	if s.cfg.OneUserPerIP && s.addresses[sess.addr] {
		s.kick(sess, ReasonSameAddress)
		return
	}

	s.addresses[sess.addr] = true
	s.usedSlots++
	sess.admitted = true
	sess.transition(StateAuthenticating)
	s.log.Info("Клиент %s подключился (%s)", sess.addr, sess.id)
}

// kick сообщает причину и отключает сессию
func (s *GameServer) kick(sess *Session, reason string) {
	if sess.state == StateDisconnected {
		return
	}
	s.log.Info("Клиент %s отключён ( %s ).", sess.addr, reason)
	s.metrics.kicked(reason)

	if sess.state == StateActive {
		s.broadcast(protocol.Generic(sess.nick+" was kicked ( "+reason+" )."), nil)
		s.emit(eventbus.EventPlayerKicked, eventbus.PriorityHigh, eventbus.PlayerPayload{
			Nick: sess.nick, Address: sess.addr, Reason: reason,
			X: sess.pos.X(), Y: sess.pos.Y(), Z: sess.pos.Z(),
		})
	}
	s.sendTo(sess, protocol.Kick{Msg: reason})
	s.disconnect(sess)
}

// disconnect освобождает слот, адрес, ник и место в списке игроков. Повторный вызов ничего не делает.
func (s *GameServer) disconnect(sess *Session) {
	if sess.state == StateDisconnected {
		sess.closeSend()
		return
	}
	wasActive := sess.state == StateActive
	sess.transition(StateDisconnected)

	if sess.admitted {
		s.usedSlots--
		delete(s.addresses, sess.addr)
		sess.admitted = false
	}

	if wasActive {
		delete(s.nicknames, NicknameKey(sess.nick))
		s.removePlayer(sess)
		s.metrics.sessions.Set(float64(len(s.players)))

		s.savePosition(sess)
		s.broadcast(protocol.Leave{Nick: sess.nick}, sess)
		s.broadcast(protocol.Generic(sess.nick+" left the game."), sess)
		s.emit(eventbus.EventPlayerLeft, eventbus.PriorityNormal, eventbus.PlayerPayload{
			Nick: sess.nick, Address: sess.addr,
			X: sess.pos.X(), Y: sess.pos.Y(), Z: sess.pos.Z(),
		})
		s.log.Info("Игрок %s вышел", sess.nick)
	}

	sess.closeSend()
}

func (s *GameServer) removePlayer(sess *Session) {
	for i, p := range s.players {
		if p == sess {
			s.players = append(s.players[:i], s.players[i+1:]...)
			return
		}
	}
}

// savePosition ставит запись позиции в очередь saveLoop, цикл сервера не ждёт хранилище
func (s *GameServer) savePosition(sess *Session) {
	if s.positions == nil {
		return
	}
	select {
	case s.saves <- positionSave{nick: sess.nick, pos: sess.pos}:
	default:
		s.log.Warn("Очередь сохранения позиций переполнена, позиция %s отброшена", sess.nick)
	}
}

// saveLoop пишет позиции вышедших игроков. После отмены ctx дописывает то, что уже в очереди.
func (s *GameServer) saveLoop(ctx context.Context) {
	write := func(ps positionSave) {
		wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.positions.Save(wctx, ps.nick, ps.pos); err != nil {
			s.log.Warn("Не удалось сохранить позицию %s: %v", ps.nick, err)
		}
	}
	for {
		select {
		case ps := <-s.saves:
			write(ps)
		case <-ctx.Done():
			for {
				select {
				case ps := <-s.saves:
					write(ps)
				default:
					return
				}
			}
		}
	}
}

// findPlayer ищет первого игрока, чей ник содержит name без учёта регистра
func (s *GameServer) findPlayer(name string) *Session {
	needle := NicknameKey(name)
	for _, p := range s.players {
		if containsFold(p.nick, needle) {
			return p
		}
	}
	return nil
}

// blockChanged рассылает каждую запись в сетку всем игрокам
func (s *GameServer) blockChanged(x, y, z int) {
	mat := int(s.grid.Get(x, y, z))
	s.broadcast(protocol.BlockSet{X: x, Y: y, Z: z, Mat: mat}, nil)

	payload := eventbus.BlockPayload{X: x, Y: y, Z: z, Mat: mat}
	if s.editor != nil {
		payload.Nick = s.editor.nick
	}
	s.emit(eventbus.EventBlockChanged, eventbus.PriorityLow, payload)
}

func (s *GameServer) stepGravity() {
	if changes := world.StepGravity(s.grid); len(changes) > 0 {
		s.log.Trace("Гравитация: %d изменений", len(changes))
	}
}

// ===== Доступ извне цикла =====

// State — доступ к миру и игрокам внутри цикла сервера
type State struct {
	srv *GameServer
}

// Grid возвращает сетку. Записи рассылаются игрокам как обычные правки.
func (st *State) Grid() *world.Grid { return st.srv.grid }

// Players возвращает игроков в порядке входа
func (st *State) Players() []PlayerInfo {
	out := make([]PlayerInfo, 0, len(st.srv.players))
	for _, p := range st.srv.players {
		out = append(out, p.info())
	}
	return out
}

// Kick отключает игрока по точному нику (без учёта регистра)
func (st *State) Kick(nick, reason string) bool {
	sess, ok := st.srv.nicknames[NicknameKey(nick)]
	if !ok {
		return false
	}
	st.srv.kick(sess, reason)
	return true
}

// Announce рассылает системное сообщение
func (st *State) Announce(msg string) {
	st.srv.broadcast(protocol.Generic(msg), nil)
}

// Do выполняет fn в цикле сервера и ждёт завершения.
// ctx ограничивает только ожидание очереди; начатое действие доводится до конца.
func (s *GameServer) Do(ctx context.Context, fn func(*State)) error {
	finished := make(chan struct{})
	action := func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("Паника в действии сервера: %v", r)
			}
		}()
		fn(&State{srv: s})
	}

	select {
	case s.actions <- action:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// действие уже в цикле и пишет в переменные вызывающего: дожидаемся его
	<-finished
	return nil
}

// Players возвращает снимок списка игроков
func (s *GameServer) Players(ctx context.Context) ([]PlayerInfo, error) {
	var out []PlayerInfo
	err := s.Do(ctx, func(st *State) { out = st.Players() })
	return out, err
}

// Kick отключает игрока; false — игрок не найден
func (s *GameServer) Kick(ctx context.Context, nick, reason string) (bool, error) {
	var ok bool
	err := s.Do(ctx, func(st *State) { ok = st.Kick(nick, reason) })
	return ok, err
}

// Snapshot возвращает копию мира, согласованную с рассылкой
func (s *GameServer) Snapshot(ctx context.Context) (*world.Grid, error) {
	var g *world.Grid
	err := s.Do(ctx, func(st *State) { g = st.Grid().Clone() })
	return g, err
}
