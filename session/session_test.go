package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	mu     sync.Mutex
	sent   []uint16
	closed int
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msgID)
	return nil
}
func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

type fakeSub struct{ count int }

func (f *fakeSub) Unsubscribe() { f.count++ }

func TestManager_Add_Get_Remove(t *testing.T) {
	require := require.New(t)

	manager := NewManager()
	sess := NewSession(&MockConnection{}, models.Identity{UserID: "u1"})
	require.NotEmpty(sess.ID)

	manager.Add(sess)
	require.Equal(1, manager.Count())

	got, exists := manager.Get(sess.ID)
	require.True(exists)
	require.Same(sess, got)

	manager.Remove(sess.ID)
	require.Equal(0, manager.Count())
	_, exists = manager.Get(sess.ID)
	require.False(exists)
}

func TestManager_GetByUserID(t *testing.T) {
	require := require.New(t)
	manager := NewManager()

	manager.Add(NewSession(&MockConnection{}, models.Identity{UserID: "100"}))
	manager.Add(NewSession(&MockConnection{}, models.Identity{UserID: "200"}))
	manager.Add(NewSession(&MockConnection{}, models.Identity{UserID: "100"}))

	require.Len(manager.GetByUserID("100"), 2)
	require.Len(manager.GetByUserID("200"), 1)
	require.Empty(manager.GetByUserID("300"))
}

func TestSession_BindRoomReplacesSubscription(t *testing.T) {
	require := require.New(t)
	manager := NewManager()
	sess := NewSession(&MockConnection{}, models.Identity{UserID: "u1"})
	manager.Add(sess)

	first, second := &fakeSub{}, &fakeSub{}
	sess.BindRoom("AAAAAA", first)
	require.Equal("AAAAAA", sess.RoomCode())
	require.Equal(1, manager.InRoom("u1", "AAAAAA"))

	sess.BindRoom("BBBBBB", second)
	require.Equal(1, first.count)
	require.Equal(0, manager.InRoom("u1", "AAAAAA"))

	// 旧房间的解绑不影响当前房间
	sess.UnbindRoom("AAAAAA")
	require.Equal("BBBBBB", sess.RoomCode())
	require.Equal(0, second.count)

	sess.UnbindRoom("BBBBBB")
	require.Equal("", sess.RoomCode())
	require.Equal(1, second.count)
}

func TestSession_CloseReleasesSubscriptions(t *testing.T) {
	require := require.New(t)
	conn := &MockConnection{}
	sess := NewSession(conn, models.Identity{UserID: "u1"})

	room, user := &fakeSub{}, &fakeSub{}
	sess.BindRoom("AAAAAA", room)
	sess.BindUser(user)

	require.NoError(sess.Close())
	require.NoError(sess.Close())
	require.Equal(1, room.count)
	require.Equal(1, user.count)
	require.Equal(1, conn.closed)

	// 关闭后再绑定的订阅立即释放
	late := &fakeSub{}
	sess.BindRoom("CCCCCC", late)
	require.Equal(1, late.count)
}

func TestSession_SendEvent(t *testing.T) {
	require := require.New(t)
	conn := &MockConnection{}
	sess := NewSession(conn, models.Identity{UserID: "u1"})

	require.NoError(sess.SendEvent(models.Event{Kind: models.EventRoster, Room: "AAAAAA"}))
	require.Equal([]uint16{network.MsgTypeRoster}, conn.sent)

	require.Error(sess.SendEvent(models.Event{Kind: "bogus"}))
}

func TestManager_CloseAll(t *testing.T) {
	manager := NewManager()
	c1, c2 := &MockConnection{}, &MockConnection{}
	manager.Add(NewSession(c1, models.Identity{UserID: "a"}))
	manager.Add(NewSession(c2, models.Identity{UserID: "b"}))

	manager.CloseAll()
	require.Equal(t, 0, manager.Count())
	require.Equal(t, 1, c1.closed)
	require.Equal(t, 1, c2.closed)
}
