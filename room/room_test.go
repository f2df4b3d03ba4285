package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/mocks"
	"github.com/wfunc/quizserver/models"
)

type published struct {
	Target  string
	Kind    models.EventKind
	Payload interface{}
}

// MockBus is a test double for broadcast.Bus that records what was published.
type MockBus struct {
	mu     sync.Mutex
	events []published
}

func (m *MockBus) PublishToRoom(code string, kind models.EventKind, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, published{code, kind, payload})
}

func (m *MockBus) PublishToUser(userID string, kind models.EventKind, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, published{"user:" + userID, kind, payload})
}

func (m *MockBus) Subscribe(string, broadcast.Handler, func()) broadcast.Subscription { return nil }
func (m *MockBus) SubscribeUser(string, broadcast.Handler, func()) broadcast.Subscription {
	return nil
}
func (m *MockBus) CloseRoom(string) {}

func (m *MockBus) kinds(target string) []models.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EventKind
	for _, e := range m.events {
		if e.Target == target {
			out = append(out, e.Kind)
		}
	}
	return out
}

func (m *MockBus) lastRoster(code string) models.RosterPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Target == code && m.events[i].Kind == models.EventRoster {
			return m.events[i].Payload.(models.RosterPayload)
		}
	}
	return models.RosterPayload{}
}

var trivia = models.GameConfig{
	GameID:         "trivia",
	Title:          "General Trivia",
	Variant:        models.VariantBuzzer,
	MinPlayers:     2,
	MaxPlayers:     4,
	TotalQuestions: 3,
	QuestionTime:   30 * time.Second,
}

var host = models.Identity{UserID: "host", Username: "Host"}

func newRegistry(t *testing.T, bus *MockBus, opts ...RegistryOption) *Registry {
	t.Helper()
	reg, err := NewRegistry(bus, 10, 5*time.Minute, opts...)
	require.NoError(t, err)
	return reg
}

func TestRegistry_CreateAndGetRoom(t *testing.T) {
	require := require.New(t)

	bus := &MockBus{}
	reg := newRegistry(t, bus)

	room, err := reg.CreateRoom(context.Background(), host, trivia, models.RoomOptions{})
	require.NoError(err)
	require.Regexp(`^[A-Z0-9]{6}$`, room.Code)
	require.Equal(2, room.MinPlayers)
	require.Equal(4, room.MaxPlayers)
	require.Equal(models.StatusWaiting, room.GetStatus())
	require.Equal("host", room.HostUserID())

	got, err := reg.GetRoom(room.Code)
	require.NoError(err)
	require.Same(room, got)

	lower, err := reg.GetRoom(" " + strings.ToLower(room.Code))
	require.NoError(err)
	require.Same(room, lower)

	require.Equal([]models.EventKind{models.EventRoomCreated}, bus.kinds(broadcast.LobbyChannel))
}

func TestRegistry_GetRoomNotFound(t *testing.T) {
	reg := newRegistry(t, &MockBus{})
	_, err := reg.GetRoom("ZZZZZZ")
	require.ErrorIs(t, err, models.ErrRoomNotFound)
}

func TestRegistry_Capacity(t *testing.T) {
	require := require.New(t)
	reg := newRegistry(t, &MockBus{})
	ctx := context.Background()

	_, err := reg.CreateRoom(ctx, host, trivia, models.RoomOptions{MaxPlayers: 1})
	require.ErrorIs(err, models.ErrCapacity)

	big := trivia
	big.MinPlayers = 3
	_, err = reg.CreateRoom(ctx, host, big, models.RoomOptions{MaxPlayers: 2})
	require.ErrorIs(err, models.ErrCapacity)

	_, err = reg.CreateRoom(ctx, host, trivia, models.RoomOptions{MaxPlayers: 3, MinPlayers: 4})
	require.ErrorIs(err, models.ErrCapacity)

	_, err = reg.CreateRoom(ctx, host, trivia, models.RoomOptions{MaxPlayers: 100})
	require.ErrorIs(err, models.ErrInvalidPayload)

	room, err := reg.CreateRoom(ctx, host, trivia, models.RoomOptions{MaxPlayers: 2})
	require.NoError(err)
	require.Equal(2, room.MaxPlayers)
}

func TestRegistry_RetriesCollisions(t *testing.T) {
	require := require.New(t)

	// Given a generator that repeats a code twice before producing a new one
	codes := []string{"AAAAAA", "AAAAAA", "AAAAAA", "BBBBBB"}
	i := 0
	gen := func() string { c := codes[i]; i++; return c }
	reg := newRegistry(t, &MockBus{}, WithCodeGenerator(gen))

	// When
	first, err := reg.CreateRoom(context.Background(), host, trivia, models.RoomOptions{})
	require.NoError(err)
	second, err := reg.CreateRoom(context.Background(), host, trivia, models.RoomOptions{})
	require.NoError(err)

	// Then
	require.Equal("AAAAAA", first.Code)
	require.Equal("BBBBBB", second.Code)
}

func TestRegistry_GenerationGivesUp(t *testing.T) {
	reg, err := NewRegistry(&MockBus{}, 3, time.Minute, WithCodeGenerator(func() string { return "AAAAAA" }))
	require.NoError(t, err)

	_, err = reg.CreateRoom(context.Background(), host, trivia, models.RoomOptions{})
	require.NoError(t, err)
	_, err = reg.CreateRoom(context.Background(), host, trivia, models.RoomOptions{})
	require.ErrorIs(t, err, models.ErrCodeGeneration)
	require.Equal(t, 1, reg.Len())
}

type fakeReserver struct {
	taken map[string]bool
}

func (f *fakeReserver) Reserve(_ context.Context, code string) (bool, error) {
	if f.taken[code] {
		return false, nil
	}
	f.taken[code] = true
	return true, nil
}

func (f *fakeReserver) Refresh(_ context.Context, code string) error {
	f.taken[code] = true
	return nil
}

func (f *fakeReserver) Release(_ context.Context, code string) error {
	delete(f.taken, code)
	return nil
}

func TestRegistry_RemoteReservation(t *testing.T) {
	require := require.New(t)

	res := &fakeReserver{taken: map[string]bool{"AAAAAA": true}}
	codes := []string{"AAAAAA", "CCCCCC"}
	i := 0
	reg := newRegistry(t, &MockBus{}, WithCodeReserver(res), WithCodeGenerator(func() string { c := codes[i]; i++; return c }))

	room, err := reg.CreateRoom(context.Background(), host, trivia, models.RoomOptions{})
	require.NoError(err)
	require.Equal("CCCCCC", room.Code)

	require.True(reg.RemoveRoom("cccccc"))
	require.False(res.taken["CCCCCC"])
	require.False(reg.RemoveRoom("CCCCCC"))
}

// Given two live rooms whose codes are reserved in redis
// When the codes are refreshed and one refresh fails
// Then every live code is refreshed and only successes are counted
func TestRegistry_RefreshCodes(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	reserver := mocks.NewMockCodeReserver(ctrl)

	codes := []string{"BBBBBB", "AAAAAA"}
	i := 0
	reg := newRegistry(t, &MockBus{}, WithCodeReserver(reserver), WithCodeGenerator(func() string { c := codes[i]; i++; return c }))
	ctx := context.Background()

	reserver.EXPECT().Reserve(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	_, err := reg.CreateRoom(ctx, host, trivia, models.RoomOptions{})
	require.NoError(err)
	_, err = reg.CreateRoom(ctx, host, trivia, models.RoomOptions{})
	require.NoError(err)

	gomock.InOrder(
		reserver.EXPECT().Refresh(gomock.Any(), "AAAAAA").Return(nil),
		reserver.EXPECT().Refresh(gomock.Any(), "BBBBBB").Return(errors.New("held elsewhere")),
	)
	require.Equal(1, reg.RefreshCodes(ctx))

	reserver.EXPECT().Release(gomock.Any(), "AAAAAA").Return(nil)
	require.True(reg.RemoveRoom("AAAAAA"))
	reserver.EXPECT().Refresh(gomock.Any(), "BBBBBB").Return(nil)
	require.Equal(1, reg.RefreshCodes(ctx))
}

func TestRegistry_RefreshWithoutReserver(t *testing.T) {
	reg := newRegistry(t, &MockBus{})
	_, err := reg.CreateRoom(context.Background(), host, trivia, models.RoomOptions{})
	require.NoError(t, err)
	require.Zero(t, reg.RefreshCodes(context.Background()))
}

func TestRegistry_ExpiryAndListing(t *testing.T) {
	require := require.New(t)

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	bus := &MockBus{}
	reg := newRegistry(t, bus, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	old, err := reg.CreateRoom(ctx, host, trivia, models.RoomOptions{})
	require.NoError(err)
	playing, err := reg.CreateRoom(ctx, host, trivia, models.RoomOptions{})
	require.NoError(err)
	playing.SetStatus(models.StatusInProgress)

	now = now.Add(4 * time.Minute)
	fresh, err := reg.CreateRoom(ctx, host, trivia, models.RoomOptions{})
	require.NoError(err)

	now = now.Add(2 * time.Minute)
	require.Equal([]string{old.Code}, reg.Expired(now))

	list := reg.ListActiveRooms()
	require.Len(list, 2)
	codes := []string{list[0].Code, list[1].Code}
	require.ElementsMatch([]string{playing.Code, fresh.Code}, codes)
	require.Equal(fresh.Code, list[1].Code)

	require.True(reg.RemoveRoom(old.Code))
	require.Contains(bus.kinds(broadcast.LobbyChannel), models.EventRoomRemoved)
}

func newRoom(max int) (*Room, *Tracker, *MockBus) {
	bus := &MockBus{}
	game := trivia
	game.MaxPlayers = max
	r := NewRoom("ABC123", "host", game, 2, max, time.Now())
	return r, NewTracker(bus), bus
}

func TestTracker_JoinAndFull(t *testing.T) {
	require := require.New(t)

	r, tr, bus := newRoom(2)
	p, err := tr.Join(r, "host", "Host")
	require.NoError(err)
	require.True(p.IsHost)
	require.True(p.IsConnected)

	_, err = tr.Join(r, "u2", "Two")
	require.NoError(err)

	_, err = tr.Join(r, "u3", "Three")
	require.ErrorIs(err, models.ErrRoomFull)
	require.Equal(2, r.Count())

	roster := bus.lastRoster("ABC123")
	require.Equal("host", roster.HostUserID)
	require.Len(roster.Participants, 2)
	require.Equal("host", roster.Participants[0].UserID)
	require.Equal("u2", roster.Participants[1].UserID)
}

func TestTracker_JoinRejectedAfterStart(t *testing.T) {
	r, tr, _ := newRoom(4)
	_, err := tr.Join(r, "host", "Host")
	require.NoError(t, err)

	r.SetStatus(models.StatusInProgress)
	_, err = tr.Join(r, "late", "Late")
	require.ErrorIs(t, err, models.ErrGameInProgress)

	r.SetStatus(models.StatusFinished)
	_, err = tr.Join(r, "late", "Late")
	require.ErrorIs(t, err, models.ErrRoomFinished)

	p, err := tr.Join(r, "host", "Host")
	require.NoError(t, err)
	require.Equal(t, "host", p.UserID)
}

// 重连不会重置分数和准备状态
func TestTracker_RejoinKeepsScoreAndReady(t *testing.T) {
	require := require.New(t)

	// Given a ready participant with points who disconnected
	r, tr, _ := newRoom(4)
	_, err := tr.Join(r, "u1", "One")
	require.NoError(err)
	require.NoError(tr.SetReady(r, "u1", "u1", true))
	tr.ApplyScores(r, map[string]int{"u1": 30})
	require.NoError(tr.MarkDisconnected(r, "u1"))

	// When they join again
	p, err := tr.Join(r, "u1", "One")

	// Then
	require.NoError(err)
	require.True(p.IsConnected)
	require.True(p.IsReady)
	require.Equal(30, p.Score)
	require.Equal(1, r.Count())
}

func TestTracker_EnrollStartsDisconnected(t *testing.T) {
	r, tr, _ := newRoom(4)
	p, err := tr.Enroll(r, "u1", "One")
	require.NoError(t, err)
	require.False(t, p.IsConnected)

	require.NoError(t, tr.MarkConnected(r, "u1"))
	p, _ = r.GetParticipant("u1")
	require.True(t, p.IsConnected)

	p, err = tr.Enroll(r, "u1", "One")
	require.NoError(t, err)
	require.True(t, p.IsConnected)
}

func TestTracker_SetReadyOnlySelf(t *testing.T) {
	require := require.New(t)

	r, tr, _ := newRoom(4)
	_, _ = tr.Join(r, "host", "Host")
	_, _ = tr.Join(r, "u2", "Two")

	require.ErrorIs(tr.SetReady(r, "host", "u2", true), models.ErrForbidden)
	require.ErrorIs(tr.SetReady(r, "ghost", "", true), models.ErrNotMember)
	require.NoError(tr.SetReady(r, "u2", "", true))

	p, _ := r.GetParticipant("u2")
	require.True(p.IsReady)

	r.SetStatus(models.StatusInProgress)
	require.ErrorIs(tr.SetReady(r, "u2", "u2", false), models.ErrGameInProgress)
}

func TestTracker_AllReady(t *testing.T) {
	require := require.New(t)

	// one ready participant is below the minimum
	r, tr, _ := newRoom(4)
	_, _ = tr.Join(r, "a", "A")
	require.NoError(tr.SetReady(r, "a", "a", true))
	require.False(tr.AllReady(r))

	_, _ = tr.Join(r, "b", "B")
	require.False(tr.AllReady(r))
	require.NoError(tr.SetReady(r, "b", "b", true))
	require.True(tr.AllReady(r))

	// a disconnected participant does not count as ready
	require.NoError(tr.MarkDisconnected(r, "b"))
	require.False(tr.AllReady(r))
	require.NoError(tr.MarkConnected(r, "b"))
	require.True(tr.AllReady(r))
}

func TestTracker_DisconnectKeepsMember(t *testing.T) {
	r, tr, _ := newRoom(4)
	_, _ = tr.Join(r, "a", "A")

	require.NoError(t, tr.MarkDisconnected(r, "a"))
	require.True(t, r.IsMember("a"))
	require.ErrorIs(t, tr.MarkDisconnected(r, "nobody"), models.ErrNotMember)
}

func TestTracker_HostLeaveTransfersToEarliest(t *testing.T) {
	require := require.New(t)

	// Given host joined first, then b, then c
	r, tr, bus := newRoom(4)
	_, _ = tr.Join(r, "host", "Host")
	_, _ = tr.Join(r, "b", "B")
	_, _ = tr.Join(r, "c", "C")

	// When a non-host leaves nothing changes hands
	res, err := tr.Leave(r, "c")
	require.NoError(err)
	require.False(res.HostChanged())
	require.Equal("host", r.HostUserID())

	// When the host leaves
	res, err = tr.Leave(r, "host")

	// Then
	require.NoError(err)
	require.True(res.HostChanged())
	require.Equal("b", res.NewHost)
	require.Equal("b", r.HostUserID())
	require.Contains(bus.kinds("ABC123"), models.EventHostChanged)
	p, _ := r.GetParticipant("b")
	require.True(p.IsHost)

	res, err = tr.Leave(r, "b")
	require.NoError(err)
	require.True(res.Empty)

	_, err = tr.Leave(r, "b")
	require.ErrorIs(err, models.ErrNotMember)
}

func TestTracker_RosterOnEveryMutation(t *testing.T) {
	r, tr, bus := newRoom(4)
	_, _ = tr.Join(r, "a", "A")
	_ = tr.SetReady(r, "a", "a", true)
	_ = tr.MarkDisconnected(r, "a")
	_ = tr.MarkConnected(r, "a")
	_, _ = tr.Leave(r, "a")

	require.Equal(t, []models.EventKind{
		models.EventRoster, models.EventRoster, models.EventRoster, models.EventRoster, models.EventRoster,
	}, bus.kinds("ABC123"))
}

// 结束后的房间名单冻结
func TestTracker_FinishedRoomIsReadOnly(t *testing.T) {
	require := require.New(t)

	// Given a finished room with two connected members
	r, tr, bus := newRoom(4)
	_, _ = tr.Join(r, "host", "Host")
	_, _ = tr.Join(r, "b", "B")
	tr.ApplyScores(r, map[string]int{"b": 20})
	r.SetStatus(models.StatusFinished)
	before := len(bus.kinds("ABC123"))

	// When members leave, drop and rejoin
	_, err := tr.Leave(r, "host")
	require.ErrorIs(err, models.ErrRoomFinished)
	require.NoError(tr.MarkDisconnected(r, "b"))
	p, err := tr.Join(r, "b", "B")
	require.NoError(err)

	// Then nothing changed and no roster went out
	require.Equal(20, p.Score)
	require.True(p.IsConnected)
	require.Equal(2, r.Count())
	require.Equal("host", r.HostUserID())
	require.Len(bus.kinds("ABC123"), before)
	require.ErrorIs(tr.MarkConnected(r, "nobody"), models.ErrNotMember)
}

func TestRoom_RankingTieBreak(t *testing.T) {
	r, tr, _ := newRoom(4)
	_, _ = tr.Join(r, "a", "A")
	_, _ = tr.Join(r, "b", "B")
	_, _ = tr.Join(r, "c", "C")
	tr.ApplyScores(r, map[string]int{"a": 10, "b": 20, "c": 20, "ghost": 50})

	ranks := r.Ranking()

	require.Equal(t, []models.Ranking{
		{Rank: 1, UserID: "b", Username: "B", Score: 20},
		{Rank: 2, UserID: "c", Username: "C", Score: 20},
		{Rank: 3, UserID: "a", Username: "A", Score: 10},
	}, ranks)
}
