package network

import (
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/voxel-server/internal/eventbus"
	"github.com/annel0/voxel-server/internal/protocol"
	"github.com/annel0/voxel-server/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
)

// handleFrame декодирует кадр клиента и передаёт его обработчику по типу
func (s *GameServer) handleFrame(sess *Session, data []byte) {
	if sess.state == StateDisconnected || sess.state == StateConnecting {
		return
	}

	msg, err := protocol.DecodeClient(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			s.log.Debug("Неизвестное сообщение от %s: %v", sess.addr, err)
		} else {
			s.log.LogProtocolError(sess.id, err, data)
		}
		return
	}
	s.metrics.messageIn(msg.Type())

	if m, ok := msg.(protocol.Nickname); ok {
		s.onNickname(sess, m)
		return
	}

	// остальное — только в мире
	if sess.state != StateActive {
		if _, ok := msg.(protocol.SetBlock); ok {
			s.metrics.rejected(RejectInactive)
		}
		return
	}

	switch m := msg.(type) {
	case protocol.SetBlock:
		s.onSetBlock(sess, m)
	case protocol.Chat:
		s.onChat(sess, m)
	case protocol.PlayerUpdate:
		s.onPlayerUpdate(sess, m)
	}
}

// onNickname — рукопожатие: ник проверяется, экранируется и должен быть уникален
func (s *GameServer) onNickname(sess *Session, m protocol.Nickname) {
	if sess.state != StateAuthenticating {
		return
	}
	if !ValidNickname(m.Nickname) {
		s.kick(sess, ReasonInvalidNickname)
		return
	}

	nick := Sanitize(m.Nickname)
	key := NicknameKey(nick)
	if _, taken := s.nicknames[key]; taken {
		s.kick(sess, ReasonNicknameInUse)
		return
	}

	spawn := s.grid.Spawn()
	sx, sy, sz := s.grid.Size()

	s.sendTo(sess, protocol.World{SX: sx, SY: sy, SZ: sz, Blocks: s.grid.Encode()})
	s.sendTo(sess, protocol.Spawn{X: spawn.X(), Y: spawn.Y(), Z: spawn.Z()})
	for _, p := range s.players {
		s.sendTo(sess, protocol.Join{
			Nick:  p.nick,
			X:     p.pos.X(),
			Y:     p.pos.Y(),
			Z:     p.pos.Z(),
			Pitch: p.pitch,
			Yaw:   p.yaw,
		})
	}
	s.broadcast(protocol.Join{Nick: nick, X: spawn.X(), Y: spawn.Y(), Z: spawn.Z()}, nil)

	sess.nick = nick
	sess.pos = spawn
	sess.pitch, sess.yaw = 0, 0
	sess.edits = newEditWindow(s.now())
	sess.transition(StateActive)
	s.nicknames[key] = sess
	s.players = append(s.players, sess)
	s.metrics.sessions.Set(float64(len(s.players)))

	s.sendTo(sess, protocol.Generic(fmt.Sprintf("Welcome! Enjoy your stay, %s!", nick)))
	s.broadcast(protocol.Generic(nick+" joined the game."), sess)

	s.log.Info("Клиент %s вошёл как %s", sess.addr, nick)
	s.emit(eventbus.EventPlayerJoined, eventbus.PriorityNormal, eventbus.PlayerPayload{
		Nick: nick, Address: sess.addr, X: spawn.X(), Y: spawn.Y(), Z: spawn.Z(),
	})
}

// onSetBlock проверяет правку, ограничивает частоту и применяет её.
// Рассылку делает слушатель сетки (blockChanged).
func (s *GameServer) onSetBlock(sess *Session, m protocol.SetBlock) {
	if reason := CheckEdit(s.grid, m.X, m.Y, m.Z, m.Mat); reason != RejectNone {
		s.metrics.rejected(reason)
		return
	}

	if !sess.edits.allow(s.now()) {
		s.metrics.rejected(RejectRateLimited)
		s.kick(sess, ReasonBlockSpam)
		return
	}

	if err := s.applyEdit(sess, m.X, m.Y, m.Z, block.BlockID(m.Mat)); err != nil {
		s.metrics.rejected(RejectApplyFailed)
		s.log.Warn("Правка %s (%d,%d,%d) не применена: %v", sess.nick, m.X, m.Y, m.Z, err)
	}
}

// applyEdit пишет в сетку, превращая панику в ошибку
func (s *GameServer) applyEdit(sess *Session, x, y, z int, id block.BlockID) (err error) {
	s.editor = sess
	defer func() {
		s.editor = nil
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	s.grid.Set(x, y, z, id)
	return nil
}

// onChat обрабатывает команды и рассылает обычный текст
func (s *GameServer) onChat(sess *Session, m protocol.Chat) {
	if !ValidChat(m.Msg) {
		return
	}
	msg := Sanitize(m.Msg)

	s.log.Info("< %s > %s", sess.nick, msg)

	if strings.HasPrefix(msg, "/") {
		s.onCommand(sess, msg)
		return
	}

	s.broadcast(protocol.ChatLine(sess.nick, msg), nil)
	s.emit(eventbus.EventChat, eventbus.PriorityLow, eventbus.ChatPayload{Nick: sess.nick, Msg: msg})
}

// onCommand выполняет команду чата. Команды не рассылаются как чат.
func (s *GameServer) onCommand(sess *Session, msg string) {
	cmd, arg, _ := strings.Cut(msg, " ")
	arg = strings.TrimSpace(arg)

	switch {
	case cmd == "/spawn":
		spawn := s.grid.Spawn()
		s.sendTo(sess, protocol.SetPos{X: spawn.X(), Y: spawn.Y(), Z: spawn.Z()})

	case cmd == "/tp" && arg != "":
		target := s.findPlayer(arg)
		if target == nil {
			s.sendTo(sess, protocol.Generic(textPlayerNotFound))
			return
		}
		s.sendTo(sess, protocol.SetPos{X: target.pos.X(), Y: target.pos.Y(), Z: target.pos.Z()})
		s.broadcast(protocol.Generic(sess.nick+" was teleported to "+target.nick+"."), nil)

	case cmd == "/kick" && arg != "" && s.cfg.AdminIP != "" && sess.addr == s.cfg.AdminIP:
		target := s.findPlayer(arg)
		if target == nil {
			s.sendTo(sess, protocol.Generic(textPlayerNotFound))
			return
		}
		s.kick(target, ReasonAdminKick)

	case cmd == "/list":
		names := make([]string, 0, len(s.players))
		for _, p := range s.players {
			names = append(names, p.nick)
		}
		s.sendTo(sess, protocol.Generic("Players: "+strings.Join(names, ", ")))

	default:
		s.sendTo(sess, protocol.Generic(textUnknownCommand))
	}
}

// onPlayerUpdate сохраняет позицию и пересылает её тем, в чей обзор попадает игрок
func (s *GameServer) onPlayerUpdate(sess *Session, m protocol.PlayerUpdate) {
	sess.pos = mgl64.Vec3{m.X, m.Y, m.Z}
	sess.pitch = m.Pitch
	sess.yaw = m.Yaw

	state := protocol.PlayerState{
		Nick:  sess.nick,
		X:     m.X,
		Y:     m.Y,
		Z:     m.Z,
		Pitch: m.Pitch,
		Yaw:   m.Yaw,
	}
	for _, peer := range s.players {
		if peer == sess {
			continue
		}
		if InFrustum(peer.pos, peer.yaw, sess.pos) {
			s.sendVolatile(peer, state)
		}
	}
}

func containsFold(s, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(s), lowerNeedle)
}
