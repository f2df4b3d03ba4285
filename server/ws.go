package server

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/network"
	"github.com/wfunc/quizserver/session"
)

func (s *GameServer) handleWebSocket(c *gin.Context) {
	identity, err := s.verifier.FromRequest(c.Request)
	if err != nil {
		s.abort(c, err)
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn), identity)
}

func (s *GameServer) handleConnection(conn network.Connection, identity models.Identity) {
	sess := session.NewSession(conn, identity)
	if s.opts.Heartbeat > 0 {
		conn.SetHeartbeat(s.opts.Heartbeat)
	}
	s.sessions.Add(sess)
	s.monitor.IncConnectedPlayers()
	sess.BindUser(s.bus.SubscribeUser(identity.UserID, s.deliver(sess), s.overflow(sess)))

	s.log.Infof("New connection from %s, user %s, session ID: %s", conn.RemoteAddr(), identity.UserID, sess.GetID())

	defer func() {
		s.log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
		code := sess.RoomCode()
		s.sessions.Remove(sess.GetID())
		sess.Close()
		s.monitor.DecConnectedPlayers()
		s.release(identity.UserID, code)
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
		}
		packet, err := conn.ReadPacket()
		if err != nil {
			return
		}
		s.handlePacket(sess, packet)
	}
}

// release 用户在该房间已经没有任何连接时才标记为离线
func (s *GameServer) release(userID, code string) {
	if code == "" || s.sessions.InRoom(userID, code) > 0 {
		return
	}
	err := s.games.Disconnect(context.Background(), userID, code)
	if err != nil && !errors.Is(err, models.ErrRoomNotFound) && !errors.Is(err, models.ErrRoomClosed) && !errors.Is(err, models.ErrNotMember) {
		s.log.Warnf("Failed to mark %s disconnected in room %s: %v", userID, code, err)
	}
}

func (s *GameServer) deliver(sess *session.Session) broadcast.Handler {
	return func(evt models.Event) {
		if err := sess.SendEvent(evt); err != nil {
			s.log.Debugf("Send %s to session %s failed: %v", evt.Kind, sess.GetID(), err)
		}
	}
}

// overflow 客户端跟不上广播时直接断开，重连后用快照对齐
func (s *GameServer) overflow(sess *session.Session) func() {
	return func() {
		s.log.Warnf("Session %s of %s fell behind, closing", sess.GetID(), sess.UserID())
		sess.Conn.Close()
	}
}

func (s *GameServer) follow(sess *session.Session, code string) {
	prev := sess.RoomCode()
	sess.BindRoom(code, s.bus.Subscribe(code, s.deliver(sess), s.overflow(sess)))
	if prev != "" && prev != code {
		s.release(sess.UserID(), prev)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	ctx := context.Background()
	identity := sess.Identity

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Touch()
		return
	case network.MsgTypeCreateRoom:
		s.handleCreate(ctx, sess, packet)
		return
	}

	cmd, err := network.DecodeCommand(packet.MsgID, packet.Data)
	if err != nil {
		s.log.Infof("Bad packet %d from session %s: %v", packet.MsgID, sess.GetID(), err)
		s.games.Reject(ctx, identity, network.MessageName(packet.MsgID), err)
		return
	}

	if _, err := s.games.Dispatch(ctx, identity, cmd); err != nil {
		return
	}

	switch cmd := cmd.(type) {
	case models.JoinRoom:
		s.follow(sess, cmd.Code)
		if snap, err := s.games.Snapshot(ctx, cmd.Code); err == nil {
			s.bus.PublishToUser(identity.UserID, models.EventSnapshot, snap)
		}
	case models.LeaveRoom:
		for _, other := range s.sessions.GetByUserID(identity.UserID) {
			other.UnbindRoom(cmd.Code)
		}
	}
}

func (s *GameServer) handleCreate(ctx context.Context, sess *session.Session, packet *network.Packet) {
	identity := sess.Identity
	req, err := network.DecodeCreateRoom(packet.Data)
	if err != nil {
		s.games.Reject(ctx, identity, "create_room", err)
		return
	}
	snap, err := s.games.CreateRoom(ctx, identity, req.GameID, req.Options)
	if err != nil {
		s.games.Reject(ctx, identity, "create_room", err)
		return
	}
	s.log.Infof("Session %s created room %s", sess.GetID(), snap.Code)

	s.follow(sess, snap.Code)
	if err := s.games.Connect(ctx, identity.UserID, snap.Code); err != nil {
		s.log.Warnf("Host %s could not connect to new room %s: %v", identity.UserID, snap.Code, err)
	}
	if fresh, err := s.games.Snapshot(ctx, snap.Code); err == nil {
		snap = fresh
	}
	s.bus.PublishToUser(identity.UserID, models.EventSnapshot, snap)
}
