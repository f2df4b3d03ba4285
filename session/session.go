// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/network"
)

// Session 一条已认证的 websocket 连接
type Session struct {
	ID         string
	Conn       network.Connection
	Identity   models.Identity
	CreatedAt  time.Time
	LastActive time.Time

	roomCode string
	roomSub  broadcast.Subscription
	userSub  broadcast.Subscription
	closed   bool
	mutex    sync.RWMutex
}

func NewSession(conn network.Connection, identity models.Identity) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		Conn:       conn,
		Identity:   identity,
		CreatedAt:  now,
		LastActive: now,
	}
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.Touch()
	return s.Conn.Send(msgID, data)
}

// SendEvent 编码并下发一条服务器事件
func (s *Session) SendEvent(evt models.Event) error {
	id, data, err := network.EncodeEvent(evt)
	if err != nil {
		return err
	}
	return s.Send(id, data)
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) UserID() string {
	return s.Identity.UserID
}

// RoomCode is the room this connection currently follows, empty when none.
func (s *Session) RoomCode() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomCode
}

// BindRoom switches the room subscription. The previous one is unsubscribed.
func (s *Session) BindRoom(code string, sub broadcast.Subscription) {
	s.mutex.Lock()
	prev := s.roomSub
	if s.closed {
		s.mutex.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		return
	}
	s.roomCode = code
	s.roomSub = sub
	s.mutex.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}
}

// UnbindRoom drops the room subscription if it still points at code.
func (s *Session) UnbindRoom(code string) {
	s.mutex.Lock()
	if s.roomCode != code {
		s.mutex.Unlock()
		return
	}
	prev := s.roomSub
	s.roomCode = ""
	s.roomSub = nil
	s.mutex.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}
}

func (s *Session) BindUser(sub broadcast.Subscription) {
	s.mutex.Lock()
	prev := s.userSub
	s.userSub = sub
	s.mutex.Unlock()
	if prev != nil {
		prev.Unsubscribe()
	}
}

func (s *Session) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	roomSub, userSub := s.roomSub, s.userSub
	s.roomSub, s.userSub = nil, nil
	s.mutex.Unlock()

	if roomSub != nil {
		roomSub.Unsubscribe()
	}
	if userSub != nil {
		userSub.Unsubscribe()
	}
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByUserID(userID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.Identity.UserID == userID {
			result = append(result, session)
		}
	}
	return result
}

// InRoom counts the connections a user still has following the given room.
func (m *Manager) InRoom(userID, code string) int {
	n := 0
	for _, s := range m.GetByUserID(userID) {
		if s.RoomCode() == code {
			n++
		}
	}
	return n
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseAll 关闭所有连接，用于停服
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	for _, s := range all {
		s.Close()
	}
}
