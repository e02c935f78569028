package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/annel0/voxel-server/internal/storage"
	"github.com/annel0/voxel-server/internal/world"
	"github.com/annel0/voxel-server/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	srv  *GameServer
	grid *world.Grid
	url  string
}

// newTestEnv поднимает сервер над плоским миром 32x32x8, спавн (16.5, 16.5, 4)
func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()

	g := world.NewGrid(32, 32, 8)
	world.FillFlat(g, 4)

	if cfg.MaxPlayers == 0 {
		cfg.MaxPlayers = 8
	}
	srv := NewGameServer(g, cfg, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleConnection))
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})

	return &testEnv{
		srv:  srv,
		grid: g,
		url:  "ws" + strings.TrimPrefix(ts.URL, "http"),
	}
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *testEnv) dial(t *testing.T, forwardedFor string) *testClient {
	t.Helper()
	header := http.Header{}
	if forwardedFor != "" {
		header.Set("X-Forwarded-For", forwardedFor)
	}
	conn, _, err := websocket.DefaultDialer.Dial(e.url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(msg protocol.ClientMessage) {
	c.t.Helper()
	frame, err := protocol.EncodeClient(msg)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, frame))
}

func (c *testClient) next() protocol.ServerMessage {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	msg, err := protocol.DecodeServer(frame)
	require.NoError(c.t, err)
	return msg
}

// waitFor читает сообщения, пока не встретится подходящее
func (c *testClient) waitFor(match func(protocol.ServerMessage) bool) protocol.ServerMessage {
	c.t.Helper()
	for i := 0; i < 100; i++ {
		if msg := c.next(); match(msg) {
			return msg
		}
	}
	c.t.Fatal("сообщение не получено")
	return nil
}

func (c *testClient) waitText(text string) {
	c.t.Helper()
	c.waitFor(func(m protocol.ServerMessage) bool {
		tm, ok := m.(protocol.Text)
		return ok && tm.Msg == text
	})
}

// join проходит рукопожатие и дочитывает приветствие
func (c *testClient) join(nick string) {
	c.t.Helper()
	c.send(protocol.Nickname{Nickname: nick})
	c.waitText("Welcome! Enjoy your stay, " + nick + "!")
}

// sync отправляет /list и возвращает ответ; всё, что сервер отправил раньше, уже прочитано
func (c *testClient) sync() []protocol.ServerMessage {
	c.t.Helper()
	c.send(protocol.Chat{Msg: "/list"})
	var before []protocol.ServerMessage
	for {
		msg := c.next()
		if tm, ok := msg.(protocol.Text); ok && strings.HasPrefix(tm.Msg, "Players: ") {
			return before
		}
		before = append(before, msg)
	}
}

func (c *testClient) expectClosed() {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestServer_HandshakeSequence(t *testing.T) {
	env := newTestEnv(t, Config{})

	ann := env.dial(t, "")
	ann.send(protocol.Nickname{Nickname: "Ann"})

	w, ok := ann.next().(protocol.World)
	require.True(t, ok)
	assert.Equal(t, 32, w.SX)
	assert.Equal(t, 8, w.SZ)
	assert.Len(t, w.Blocks, 32*32*8)

	sp, ok := ann.next().(protocol.Spawn)
	require.True(t, ok)
	assert.Equal(t, protocol.Spawn{X: 16.5, Y: 16.5, Z: 4}, sp)

	assert.Equal(t, protocol.Generic("Welcome! Enjoy your stay, Ann!"), ann.next())

	bob := env.dial(t, "")
	bob.send(protocol.Nickname{Nickname: "Bob"})
	bob.waitFor(func(m protocol.ServerMessage) bool {
		j, ok := m.(protocol.Join)
		return ok && j.Nick == "Ann"
	})

	j, ok := ann.next().(protocol.Join)
	require.True(t, ok)
	assert.Equal(t, protocol.Join{Nick: "Bob", X: 16.5, Y: 16.5, Z: 4}, j)
	assert.Equal(t, protocol.Generic("Bob joined the game."), ann.next())
}

func TestServer_DuplicateNicknameKicked(t *testing.T) {
	env := newTestEnv(t, Config{})

	ann := env.dial(t, "")
	ann.join("Ann")

	dup := env.dial(t, "")
	dup.send(protocol.Nickname{Nickname: "ann"})
	assert.Equal(t, protocol.Kick{Msg: ReasonNicknameInUse}, dup.next())
	dup.expectClosed()

	players, err := env.srv.Players(context.Background())
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "Ann", players[0].Nick)
}

func TestServer_InvalidNicknameKicked(t *testing.T) {
	env := newTestEnv(t, Config{})

	c := env.dial(t, "")
	c.send(protocol.Nickname{Nickname: "this_nick_is_too_long"})
	assert.Equal(t, protocol.Kick{Msg: ReasonInvalidNickname}, c.next())
	c.expectClosed()
}

func TestServer_NicknameSanitized(t *testing.T) {
	env := newTestEnv(t, Config{})

	c := env.dial(t, "")
	c.join("<b>")

	players, err := env.srv.Players(context.Background())
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "&lt;b&gt;", players[0].Nick)
}

func TestServer_Admission(t *testing.T) {
	t.Run("server full", func(t *testing.T) {
		env := newTestEnv(t, Config{MaxPlayers: 1})

		first := env.dial(t, "")
		first.join("Ann")

		second := env.dial(t, "")
		assert.Equal(t, protocol.Kick{Msg: ReasonServerFull}, second.next())
		second.expectClosed()
	})

	t.Run("same address", func(t *testing.T) {
		env := newTestEnv(t, Config{OneUserPerIP: true, BehindProxy: true})

		first := env.dial(t, "203.0.113.1")
		first.join("Ann")

		second := env.dial(t, "203.0.113.1")
		assert.Equal(t, protocol.Kick{Msg: ReasonSameAddress}, second.next())
		second.expectClosed()

		other := env.dial(t, "203.0.113.2")
		other.join("Bob")
	})

	t.Run("slot freed on disconnect", func(t *testing.T) {
		env := newTestEnv(t, Config{MaxPlayers: 1})

		first := env.dial(t, "")
		first.join("Ann")
		first.conn.Close()

		require.Eventually(t, func() bool {
			players, err := env.srv.Players(context.Background())
			return err == nil && len(players) == 0
		}, 2*time.Second, 10*time.Millisecond)

		second := env.dial(t, "")
		second.join("Bob")
	})
}

func TestServer_BlockEdits(t *testing.T) {
	env := newTestEnv(t, Config{})

	ann := env.dial(t, "")
	ann.join("Ann")
	bob := env.dial(t, "")
	bob.join("Bob")
	ann.waitText("Bob joined the game.")

	ann.send(protocol.SetBlock{X: 1, Y: 1, Z: 4, Mat: int(block.CobblestoneBlockID)})
	want := protocol.BlockSet{X: 1, Y: 1, Z: 4, Mat: int(block.CobblestoneBlockID)}
	assert.Equal(t, want, ann.next())
	assert.Equal(t, want, bob.next())

	snap, err := env.srv.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, block.CobblestoneBlockID, snap.Get(1, 1, 4))

	// защита спавна, материал и границы отклоняются без ответа
	ann.send(protocol.SetBlock{X: 16, Y: 16, Z: 4, Mat: int(block.DirtBlockID)})
	ann.send(protocol.SetBlock{X: 1, Y: 1, Z: 4, Mat: int(block.BedrockBlockID)})
	ann.send(protocol.SetBlock{X: 40, Y: 1, Z: 4, Mat: int(block.DirtBlockID)})
	assert.Empty(t, ann.sync())

	snap, err = env.srv.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, block.AirBlockID, snap.Get(16, 16, 4))
}

func TestServer_EditBeforeNicknameIgnored(t *testing.T) {
	env := newTestEnv(t, Config{})

	c := env.dial(t, "")
	c.send(protocol.SetBlock{X: 1, Y: 1, Z: 4, Mat: int(block.DirtBlockID)})
	c.join("Ann")
	assert.Empty(t, c.sync())

	snap, err := env.srv.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, block.AirBlockID, snap.Get(1, 1, 4))
}

func TestServer_RateLimit(t *testing.T) {
	edit := func(i int) protocol.SetBlock {
		return protocol.SetBlock{X: 1 + i, Y: 1, Z: 4, Mat: int(block.BrickBlockID)}
	}

	t.Run("exactly at threshold", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		env := newTestEnv(t, Config{}, WithClock(clock.Now))

		c := env.dial(t, "")
		c.join("Ann")

		for i := 0; i < MaxEditsSeen; i++ {
			c.send(edit(i))
			assert.Equal(t, protocol.BlockSet(edit(i)), c.next())
		}
		assert.Empty(t, c.sync())

		// после паузы начинается новое окно
		clock.Advance(time.Second)
		c.send(edit(MaxEditsSeen))
		assert.Equal(t, protocol.BlockSet(edit(MaxEditsSeen)), c.next())
		assert.Empty(t, c.sync())
	})

	t.Run("above threshold", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1000, 0)}
		env := newTestEnv(t, Config{}, WithClock(clock.Now))

		c := env.dial(t, "")
		c.join("Ann")

		for i := 0; i < MaxEditsSeen; i++ {
			c.send(edit(i))
			assert.Equal(t, protocol.BlockSet(edit(i)), c.next())
		}
		// та же миллисекунда: шестая правка в окне
		c.send(edit(MaxEditsSeen))

		assert.Equal(t, protocol.Generic("Ann was kicked ( "+ReasonBlockSpam+" )."), c.next())
		assert.Equal(t, protocol.Kick{Msg: ReasonBlockSpam}, c.next())
		c.expectClosed()

		snap, err := env.srv.Snapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, block.AirBlockID, snap.Get(1+MaxEditsSeen, 1, 4), "правка-нарушитель не применяется")
	})
}

func TestServer_Chat(t *testing.T) {
	env := newTestEnv(t, Config{})

	ann := env.dial(t, "")
	ann.join("Ann")
	bob := env.dial(t, "")
	bob.join("Bob")
	ann.waitText("Bob joined the game.")

	ann.send(protocol.Chat{Msg: "  hello <b>  "})
	want := protocol.ChatLine("Ann", "hello &lt;b&gt;")
	assert.Equal(t, want, ann.next())
	assert.Equal(t, want, bob.next())

	// пустое и слишком длинное сообщение отбрасываются
	ann.send(protocol.Chat{Msg: "   "})
	ann.send(protocol.Chat{Msg: strings.Repeat("a", MaxChatLength+1)})
	assert.Empty(t, ann.sync())
}

func TestServer_Commands(t *testing.T) {
	env := newTestEnv(t, Config{BehindProxy: true, AdminIP: "10.0.0.1"})

	admin := env.dial(t, "10.0.0.1")
	admin.join("Root")
	ann := env.dial(t, "10.0.0.2")
	ann.join("Ann")
	bob := env.dial(t, "10.0.0.3")
	bob.join("Bob")
	admin.waitText("Bob joined the game.")
	ann.waitText("Bob joined the game.")

	// list
	ann.send(protocol.Chat{Msg: "/list"})
	assert.Equal(t, protocol.Generic("Players: Root, Ann, Bob"), ann.next())

	// spawn
	ann.send(protocol.Chat{Msg: "/spawn"})
	assert.Equal(t, protocol.SetPos{X: 16.5, Y: 16.5, Z: 4}, ann.next())

	// tp: поиск по подстроке без учёта регистра
	bob.send(protocol.PlayerUpdate{X: 3, Y: 4, Z: 5})
	bob.sync()

	ann.send(protocol.Chat{Msg: "/tp BO"})
	assert.Equal(t, protocol.SetPos{X: 3, Y: 4, Z: 5}, ann.next())
	ann.waitText("Ann was teleported to Bob.")
	bob.waitText("Ann was teleported to Bob.")

	ann.send(protocol.Chat{Msg: "/tp nobody"})
	assert.Equal(t, protocol.Generic(textPlayerNotFound), ann.next())

	// неизвестная команда и /kick не с адреса администратора
	ann.send(protocol.Chat{Msg: "/fly"})
	assert.Equal(t, protocol.Generic(textUnknownCommand), ann.next())

	ann.send(protocol.Chat{Msg: "/kick Bob"})
	assert.Equal(t, protocol.Generic(textUnknownCommand), ann.next())

	// kick от администратора
	admin.send(protocol.Chat{Msg: "/kick nobody"})
	admin.waitText(textPlayerNotFound)

	admin.send(protocol.Chat{Msg: "/kick bob"})
	bob.waitText("Bob was kicked ( " + ReasonAdminKick + " ).")
	assert.Equal(t, protocol.Kick{Msg: ReasonAdminKick}, bob.next())
	bob.expectClosed()

	ann.waitFor(func(m protocol.ServerMessage) bool {
		l, ok := m.(protocol.Leave)
		return ok && l.Nick == "Bob"
	})
	ann.waitText("Bob left the game.")
}

func TestServer_PositionRelayFrustum(t *testing.T) {
	env := newTestEnv(t, Config{})

	ann := env.dial(t, "")
	ann.join("Ann")
	bob := env.dial(t, "")
	bob.join("Bob")
	ann.waitText("Bob joined the game.")

	// Ann стоит на спавне с yaw 0 и смотрит в +y
	ann.send(protocol.PlayerUpdate{X: 16.5, Y: 16.5, Z: 4})
	ann.sync()
	bob.sync()

	bob.send(protocol.PlayerUpdate{X: 16.5, Y: 26.5, Z: 4, Yaw: 1})
	bob.sync()
	got := ann.sync()
	require.Len(t, got, 1)
	assert.Equal(t, protocol.PlayerState{Nick: "Bob", X: 16.5, Y: 26.5, Z: 4, Yaw: 1}, got[0])

	bob.send(protocol.PlayerUpdate{X: 16.5, Y: 6.5, Z: 4})
	bob.sync()
	assert.Empty(t, ann.sync(), "игрок за спиной не пересылается")
}

func TestServer_DisconnectSavesPosition(t *testing.T) {
	repo := storage.NewMemoryPositionRepo()
	env := newTestEnv(t, Config{}, WithPositionRepo(repo))

	ann := env.dial(t, "")
	ann.join("Ann")
	bob := env.dial(t, "")
	bob.join("Bob")
	ann.waitText("Bob joined the game.")

	bob.send(protocol.PlayerUpdate{X: 2, Y: 3, Z: 4.5})
	bob.sync()
	bob.conn.Close()

	ann.waitFor(func(m protocol.ServerMessage) bool {
		l, ok := m.(protocol.Leave)
		return ok && l.Nick == "Bob"
	})
	ann.waitText("Bob left the game.")

	require.Eventually(t, func() bool {
		_, ok, _ := repo.Load(context.Background(), "bob")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	last, ok, err := repo.Load(context.Background(), "bob")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, mgl64.Vec3{2, 3, 4.5}, last.Position)

	// ник снова свободен
	again := env.dial(t, "")
	again.join("Bob")
}

// blockingRepo держит Save, пока тест не отпустит release
type blockingRepo struct {
	*storage.MemoryPositionRepo
	release chan struct{}
}

func (r *blockingRepo) Save(ctx context.Context, nick string, pos mgl64.Vec3) error {
	<-r.release
	return r.MemoryPositionRepo.Save(ctx, nick, pos)
}

func TestServer_SlowPositionRepoDoesNotStallLoop(t *testing.T) {
	repo := &blockingRepo{MemoryPositionRepo: storage.NewMemoryPositionRepo(), release: make(chan struct{})}
	env := newTestEnv(t, Config{}, WithPositionRepo(repo))

	ann := env.dial(t, "")
	ann.join("Ann")
	bob := env.dial(t, "")
	bob.join("Bob")
	ann.waitText("Bob joined the game.")

	bob.conn.Close()
	ann.waitText("Bob left the game.")

	// хранилище ещё не ответило, а цикл уже обслуживает чат
	start := time.Now()
	ann.send(protocol.Chat{Msg: "still here"})
	assert.Equal(t, protocol.ChatLine("Ann", "still here"), ann.waitFor(func(m protocol.ServerMessage) bool {
		tm, ok := m.(protocol.Text)
		return ok && tm.Kind == protocol.TextChat
	}))
	assert.Less(t, time.Since(start), time.Second)
	_, saved, _ := repo.Load(context.Background(), "bob")
	assert.False(t, saved)

	close(repo.release)
	require.Eventually(t, func() bool {
		_, ok, _ := repo.Load(context.Background(), "bob")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_DoWaitsForStartedAction(t *testing.T) {
	env := newTestEnv(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var wrote bool
	err := env.srv.Do(ctx, func(st *State) {
		close(started)
		cancel()
		time.Sleep(20 * time.Millisecond)
		wrote = true
	})
	<-started
	require.NoError(t, err)
	assert.True(t, wrote, "Do возвращается только после завершения действия")
}

func TestServer_KickAPI(t *testing.T) {
	env := newTestEnv(t, Config{})

	ann := env.dial(t, "")
	ann.join("Ann")

	ok, err := env.srv.Kick(context.Background(), "nobody", ReasonAdminKick)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.srv.Kick(context.Background(), "ANN", "bye")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, protocol.Generic("Ann was kicked ( bye )."), ann.next())
	assert.Equal(t, protocol.Kick{Msg: "bye"}, ann.next())
	ann.expectClosed()
}

func TestServer_AdminEditsBroadcast(t *testing.T) {
	env := newTestEnv(t, Config{})

	ann := env.dial(t, "")
	ann.join("Ann")

	err := env.srv.Do(context.Background(), func(st *State) {
		st.Grid().Set(0, 0, 7, block.SandBlockID)
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.BlockSet{X: 0, Y: 0, Z: 7, Mat: int(block.SandBlockID)}, ann.next())
}

func TestServer_Gravity(t *testing.T) {
	env := newTestEnv(t, Config{GravityInterval: 20 * time.Millisecond})

	ann := env.dial(t, "")
	ann.join("Ann")

	require.NoError(t, env.srv.Do(context.Background(), func(st *State) {
		st.Grid().Set(0, 0, 5, block.SandBlockID)
	}))

	ann.waitFor(func(m protocol.ServerMessage) bool {
		b, ok := m.(protocol.BlockSet)
		return ok && b.Z == 4 && b.Mat == int(block.SandBlockID)
	})
}

func TestServer_DoAfterStop(t *testing.T) {
	g := world.NewGrid(4, 4, 4)
	srv := NewGameServer(g, Config{MaxPlayers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	cancel()
	<-srv.Done()

	err := srv.Do(context.Background(), func(*State) {})
	assert.ErrorIs(t, err, ErrStopped)
}
