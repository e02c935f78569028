package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/voxel-server/internal/client"
	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/physics"
	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/annel0/voxel-server/internal/world/block"
	"github.com/gorilla/websocket"
)

const (
	frameInterval  = time.Second / 60
	reportInterval = time.Second / 20
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:3000/ws", "websocket сервера")
		nick   = flag.String("nick", "bot", "ник")
		walk   = flag.Bool("walk", true, "бродить по миру")
		build  = flag.Duration("build", 0, "ставить стеклянный блок под собой с этим интервалом (0 — не строить)")
		say    = flag.String("say", "", "сообщение в чат после входа")
		seed   = flag.Int64("seed", time.Now().UnixNano(), "сид случайного блуждания")
		status = flag.Duration("status", 10*time.Second, "интервал вывода состояния")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *url, nil)
	if err != nil {
		log.Fatalf("❌ Подключение к %s: %v", *url, err)
	}
	defer conn.Close()

	b := &bot{
		conn:   conn,
		mirror: client.NewMirror(),
		rng:    rand.New(rand.NewSource(*seed)),
		walk:   *walk,
	}
	if err := b.send(protocol.Nickname{Nickname: *nick}); err != nil {
		log.Fatalf("❌ Отправка ника: %v", err)
	}
	logging.Info("🤖 %s подключён к %s", *nick, *url)

	err = b.run(ctx, *say, *build, *status)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("❌ %v", err)
	}
}

type bot struct {
	conn   *websocket.Conn
	mirror *client.Mirror
	rng    *rand.Rand
	walk   bool
	input  physics.Input
}

func (b *bot) send(msg protocol.ClientMessage) error {
	frame, err := protocol.EncodeClient(msg)
	if err != nil {
		return err
	}
	b.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return b.conn.WriteMessage(websocket.TextMessage, frame)
}

// readLoop декодирует сообщения сервера; зеркало меняет только run
func (b *bot) readLoop(out chan<- protocol.ServerMessage, errc chan<- error) {
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		msg, err := protocol.DecodeServer(data)
		if err != nil {
			logging.Debug("Пропущено сообщение сервера: %v", err)
			continue
		}
		out <- msg
	}
}

func (b *bot) run(ctx context.Context, say string, buildEvery, statusEvery time.Duration) error {
	msgs := make(chan protocol.ServerMessage, 256)
	errc := make(chan error, 1)
	go b.readLoop(msgs, errc)

	frames := time.NewTicker(frameInterval)
	defer frames.Stop()
	reports := time.NewTicker(reportInterval)
	defer reports.Stop()
	statusTicker := time.NewTicker(statusEvery)
	defer statusTicker.Stop()

	var buildC <-chan time.Time
	if buildEvery > 0 {
		t := time.NewTicker(buildEvery)
		defer t.Stop()
		buildC = t.C
	}

	greeted := say == ""
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errc:
			if reason, kicked := b.mirror.Kicked(); kicked {
				logging.Warn("🚫 Сервер отключил бота: %s", reason)
				return nil
			}
			return err

		case msg := <-msgs:
			if err := b.mirror.Apply(msg); err != nil {
				logging.Warn("Сообщение %s не применено: %v", msg.Type(), err)
			}
			if _, ok := msg.(protocol.Text); ok {
				if chat := b.mirror.Chat(); len(chat) > 0 {
					logging.Info("💬 %s", chat[len(chat)-1])
				}
			}

		case now := <-frames.C:
			dt := now.Sub(last).Seconds()
			last = now
			if b.walk {
				b.steer()
			}
			b.mirror.Step(b.input, dt)

		case <-reports.C:
			if !b.mirror.Ready() {
				continue
			}
			if !greeted {
				greeted = true
				if err := b.send(protocol.Chat{Msg: say}); err != nil {
					return err
				}
			}
			if err := b.send(b.mirror.Report()); err != nil {
				return err
			}

		case <-buildC:
			if err := b.placeBelow(); err != nil {
				return err
			}

		case <-statusTicker.C:
			if b.mirror.Ready() {
				a := b.mirror.Actor()
				logging.Info("📍 (%.1f, %.1f, %.1f) игроков рядом: %d", a.Pos.X(), a.Pos.Y(), a.Pos.Z(), len(b.mirror.Peers()))
			}
		}
	}
}

// steer иногда меняет направление: идём вперёд и поворачиваем на случайный угол
func (b *bot) steer() {
	a := b.mirror.Actor()
	if b.rng.Float64() < 0.01 {
		a.Yaw = math.Mod(a.Yaw+(b.rng.Float64()-0.5)*math.Pi, 2*math.Pi)
	}
	b.input = physics.Input{Forward: true, Jump: b.rng.Float64() < 0.005}
}

// placeBelow ставит стекло в клетку под ногами, если она пуста
func (b *bot) placeBelow() error {
	g := b.mirror.Grid()
	if g == nil || !b.mirror.Ready() {
		return nil
	}
	p := b.mirror.Actor().Pos
	x, y, z := int(math.Floor(p.X())), int(math.Floor(p.Y())), int(math.Floor(p.Z()))-1
	if !g.InBounds(x, y, z) || !g.Get(x, y, z).IsAir() {
		return nil
	}
	return b.send(protocol.SetBlock{X: x, Y: y, Z: z, Mat: int(block.GlassBlockID)})
}
