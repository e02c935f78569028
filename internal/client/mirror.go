// Package client держит клиентскую копию мира: применяет сообщения сервера
// к локальной сетке и двигает своего игрока по физике.
package client

import (
	"fmt"
	"sort"

	"github.com/annel0/voxel-server/internal/physics"
	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/annel0/voxel-server/internal/world"
	"github.com/annel0/voxel-server/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
)

// ChatLimit — сколько последних строк чата хранит зеркало
const ChatLimit = 100

// PeerState — последнее известное положение другого игрока. Чужих игроков не симулируем.
type PeerState struct {
	Nick  string
	Pos   mgl64.Vec3
	Pitch float64
	Yaw   float64
}

// Mirror — локальное зеркало мира. Не потокобезопасно.
type Mirror struct {
	grid    *world.Grid
	actor   *physics.Actor
	spawned bool
	peers   map[string]PeerState
	chat    []string

	kicked     bool
	kickReason string
}

// NewMirror создаёт пустое зеркало; мир приходит первым сообщением сервера
func NewMirror() *Mirror {
	return &Mirror{
		actor: physics.NewActor(mgl64.Vec3{}),
		peers: make(map[string]PeerState),
	}
}

// Apply применяет сообщение сервера
func (m *Mirror) Apply(msg protocol.ServerMessage) error {
	switch v := msg.(type) {
	case protocol.World:
		g, err := world.FromEncoded(v.SX, v.SY, v.SZ, v.Blocks)
		if err != nil {
			return fmt.Errorf("мир от сервера: %w", err)
		}
		if m.grid != nil {
			g.SetSpawn(m.grid.Spawn())
		}
		m.grid = g

	case protocol.Spawn:
		spawn := mgl64.Vec3{v.X, v.Y, v.Z}
		if m.grid != nil {
			m.grid.SetSpawn(spawn)
		}
		m.actor.Teleport(spawn)
		m.spawned = true

	case protocol.BlockSet:
		if m.grid == nil || !m.grid.InBounds(v.X, v.Y, v.Z) {
			return nil
		}
		id, ok := block.FromInt(v.Mat)
		if !ok {
			return fmt.Errorf("неизвестный материал %d", v.Mat)
		}
		m.grid.Set(v.X, v.Y, v.Z, id)

	case protocol.Join:
		m.peers[v.Nick] = PeerState{Nick: v.Nick, Pos: mgl64.Vec3{v.X, v.Y, v.Z}, Pitch: v.Pitch, Yaw: v.Yaw}

	case protocol.PlayerState:
		m.peers[v.Nick] = PeerState{Nick: v.Nick, Pos: mgl64.Vec3{v.X, v.Y, v.Z}, Pitch: v.Pitch, Yaw: v.Yaw}

	case protocol.Leave:
		delete(m.peers, v.Nick)

	case protocol.SetPos:
		m.actor.Teleport(mgl64.Vec3{v.X, v.Y, v.Z})

	case protocol.Text:
		line := v.Msg
		if v.Kind == protocol.TextChat {
			line = "<" + v.User + "> " + v.Msg
		}
		m.chat = append(m.chat, line)
		if len(m.chat) > ChatLimit {
			m.chat = m.chat[len(m.chat)-ChatLimit:]
		}

	case protocol.Kick:
		m.kicked = true
		m.kickReason = v.Msg
	}
	return nil
}

// Ready — мир и точка появления получены
func (m *Mirror) Ready() bool {
	return m.grid != nil && m.spawned
}

// Step двигает своего игрока на dt секунд по локальной сетке
func (m *Mirror) Step(in physics.Input, dt float64) {
	if !m.Ready() || m.kicked {
		return
	}
	physics.Update(m.actor, in, m.grid, dt)
}

// Report — сообщение о собственной позиции для сервера
func (m *Mirror) Report() protocol.PlayerUpdate {
	return protocol.PlayerUpdate{
		X:     m.actor.Pos.X(),
		Y:     m.actor.Pos.Y(),
		Z:     m.actor.Pos.Z(),
		Pitch: m.actor.Pitch,
		Yaw:   m.actor.Yaw,
	}
}

// Grid возвращает локальную сетку (nil до сообщения world)
func (m *Mirror) Grid() *world.Grid { return m.grid }

// Actor возвращает своего игрока
func (m *Mirror) Actor() *physics.Actor { return m.actor }

// Peer возвращает состояние другого игрока
func (m *Mirror) Peer(nick string) (PeerState, bool) {
	p, ok := m.peers[nick]
	return p, ok
}

// Peers возвращает других игроков, упорядоченных по нику
func (m *Mirror) Peers() []PeerState {
	out := make([]PeerState, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nick < out[j].Nick })
	return out
}

// Chat возвращает последние строки чата
func (m *Mirror) Chat() []string {
	return append([]string(nil), m.chat...)
}

// Kicked сообщает причину отключения, если сервер его прислал
func (m *Mirror) Kicked() (string, bool) {
	return m.kickReason, m.kicked
}
