package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"

	"github.com/wfunc/quizserver/auth"
	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/game"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/monitor"
	"github.com/wfunc/quizserver/network"
	"github.com/wfunc/quizserver/persistence"
	"github.com/wfunc/quizserver/room"
	"github.com/wfunc/quizserver/services"
	"github.com/wfunc/quizserver/timer"
)

const secret = "server-test-secret"

var (
	alice = models.Identity{UserID: "u1", Username: "alice"}
	bob   = models.Identity{UserID: "u2", Username: "bob"}
)

type testServer struct {
	t     *testing.T
	srv   *GameServer
	http  *httptest.Server
	games *game.Service
	store *persistence.GormStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop().Sugar()
	hub := broadcast.NewHub(64, log)
	registry, err := room.NewRegistry(hub, 10, 5*time.Minute)
	require.NoError(t, err)

	store, err := persistence.NewGormStore(sqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mon := monitor.NewMonitor("test")
	games := game.NewService(game.Dependencies{
		Registry: registry,
		Bus:      hub,
		Content:  persistence.NewSeededContent(),
		Scores:   store,
		Timers:   timer.NewManual(),
		Monitor:  mon,
	}, game.Settings{
		CountdownTicks:    3,
		TickInterval:      time.Second,
		RoundIntermission: time.Second,
		ResultsGrace:      time.Minute,
		PersistTimeout:    time.Second,
	}, game.WithLogger(log))

	verifier, err := auth.NewVerifier(secret)
	require.NoError(t, err)

	srv := NewGameServer(Options{Heartbeat: time.Minute}, Dependencies{
		Games:    games,
		Bus:      hub,
		Verifier: verifier,
		Scores:   services.NewScoreService(store),
		Monitor:  mon,
		Log:      log,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
	})
	return &testServer{t: t, srv: srv, http: ts, games: games, store: store}
}

func (s *testServer) token(identity models.Identity) string {
	token, err := auth.Issue(secret, identity, time.Hour)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) request(method, path string, who *models.Identity, body interface{}) (int, []byte) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.http.URL+path, reader)
	require.NoError(s.t, err)
	if who != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(*who))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, data
}

func (s *testServer) dial(identity models.Identity) *network.WSConnection {
	s.t.Helper()
	url := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws?token=" + s.token(identity)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(s.t, err)
	conn := network.NewWSConnection(ws)
	conn.SetHeartbeat(2 * time.Second)
	s.t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *network.WSConnection, cmd interface{}) {
	t.Helper()
	id, data, err := network.EncodeCommand(cmd)
	require.NoError(t, err)
	require.NoError(t, conn.Send(id, data))
}

// readUntil skips events until one of kind arrives and decodes its payload into out.
func readUntil(t *testing.T, conn *network.WSConnection, kind models.EventKind, out interface{}) models.Event {
	t.Helper()
	for {
		p, err := conn.ReadPacket()
		require.NoError(t, err, "waiting for %s", kind)
		evt, payload, err := network.DecodeEvent(p.MsgID, p.Data)
		require.NoError(t, err)
		if evt.Kind != kind {
			continue
		}
		if out != nil {
			require.NoError(t, json.Unmarshal(payload, out))
		}
		return evt
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		models.ErrInvalidPayload:                        http.StatusBadRequest,
		models.ErrUnauthenticated:                       http.StatusUnauthorized,
		models.ErrForbidden:                             http.StatusForbidden,
		models.ErrNotAllReady:                           http.StatusConflict,
		models.ErrRoomFull:                              http.StatusConflict,
		models.ErrRoomNotFound:                          http.StatusNotFound,
		fmt.Errorf("load: %w", models.ErrGameNotFound): http.StatusNotFound,
		models.ErrInternal:                              http.StatusInternalServerError,
		io.ErrUnexpectedEOF:                             http.StatusInternalServerError,
	}
	for err, status := range cases {
		require.Equal(t, status, statusFor(err), err.Error())
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	status, body := s.request("GET", "/health", nil, nil)
	require.Equal(http.StatusOK, status)
	require.Contains(string(body), `"status":"ok"`)

	status, body = s.request("GET", "/metrics", nil, nil)
	require.Equal(http.StatusOK, status)
	require.Contains(string(body), "active_rooms")
}

func TestServer_RequiresToken(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	status, body := s.request("GET", "/api/v1/rooms", nil, nil)
	require.Equal(http.StatusUnauthorized, status)
	require.Contains(string(body), "unauthenticated")

	url := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(err, websocket.ErrBadHandshake)
	require.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_RoomLifecycleOverREST(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	// Given alice creates a room
	status, body := s.request("POST", "/api/v1/rooms", &alice, models.CreateRoom{GameID: "general-buzzer"})
	require.Equal(http.StatusCreated, status, string(body))
	var snap models.RoomSnapshot
	require.NoError(json.Unmarshal(body, &snap))
	require.Len(snap.Code, 6)
	require.Equal(models.StatusWaiting, snap.Status)

	status, body = s.request("GET", "/api/v1/rooms", &bob, nil)
	require.Equal(http.StatusOK, status)
	require.Contains(string(body), snap.Code)

	// When bob joins with a lower case code
	status, body = s.request("POST", "/api/v1/rooms/"+strings.ToLower(snap.Code)+"/join", &bob, nil)
	require.Equal(http.StatusOK, status, string(body))
	require.NoError(json.Unmarshal(body, &snap))

	// Then both are listed, neither connected yet
	require.Len(snap.Participants, 2)
	for _, p := range snap.Participants {
		require.False(p.IsConnected)
	}

	status, _ = s.request("GET", "/api/v1/rooms/"+snap.Code, &bob, nil)
	require.Equal(http.StatusOK, status)

	status, body = s.request("POST", "/api/v1/rooms/"+snap.Code+"/leave", &alice, nil)
	require.Equal(http.StatusOK, status)
	require.Contains(string(body), `"new_host":"u2"`)

	status, body = s.request("POST", "/api/v1/rooms/"+snap.Code+"/leave", &alice, nil)
	require.Equal(http.StatusConflict, status)
	require.Contains(string(body), "not_member")
}

func TestServer_RESTRejections(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	status, body := s.request("POST", "/api/v1/rooms", &alice, models.CreateRoom{GameID: "nope"})
	require.Equal(http.StatusNotFound, status)
	require.Contains(string(body), "game_not_found")

	status, _ = s.request("POST", "/api/v1/rooms", &alice, models.CreateRoom{})
	require.Equal(http.StatusBadRequest, status)

	status, _ = s.request("POST", "/api/v1/rooms", &alice, models.CreateRoom{
		GameID:  "general-buzzer",
		Options: models.RoomOptions{MaxPlayers: 500},
	})
	require.Equal(http.StatusBadRequest, status)

	status, _ = s.request("GET", "/api/v1/rooms/ZZZZZZ", &alice, nil)
	require.Equal(http.StatusNotFound, status)

	status, _ = s.request("POST", "/api/v1/rooms/ZZZZZZ/join", &alice, nil)
	require.Equal(http.StatusNotFound, status)
}

func TestServer_LeaderboardAndStats(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)
	ctx := context.Background()
	now := time.Now()

	for i, r := range []models.ScoreRecord{
		{UserID: "u1", Username: "alice", GameID: "general-buzzer", RoomCode: "AAAAAA", Score: 30, Rank: 1},
		{UserID: "u2", Username: "bob", GameID: "general-buzzer", RoomCode: "AAAAAA", Score: 10, Rank: 2},
	} {
		r.Mode = models.ModeMultiplayer
		r.RecordedAt = now.Add(time.Duration(i) * time.Second)
		require.NoError(s.store.RecordFinalScore(ctx, r))
	}

	status, body := s.request("GET", "/api/v1/games/general-buzzer/leaderboard?limit=1", &alice, nil)
	require.Equal(http.StatusOK, status)
	var board struct {
		GameID  string                    `json:"game_id"`
		Entries []models.LeaderboardEntry `json:"entries"`
	}
	require.NoError(json.Unmarshal(body, &board))
	require.Len(board.Entries, 1)
	require.Equal("u1", board.Entries[0].UserID)

	status, body = s.request("GET", "/api/v1/players/u2/stats", &alice, nil)
	require.Equal(http.StatusOK, status)
	var stats models.PlayerStats
	require.NoError(json.Unmarshal(body, &stats))
	require.Equal(1, stats.TotalGames)
	require.Equal(0, stats.Wins)

	status, _ = s.request("GET", "/api/v1/players/ghost/stats", &alice, nil)
	require.Equal(http.StatusNotFound, status)
}

// Given alice creates a room over the websocket and bob joins it
// When bob tries to start and then drops his connection
// Then bob alone is told why, and the room shows him disconnected but still a member
func TestServer_WebSocketSession(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	a := s.dial(alice)
	send(t, a, models.CreateRoom{GameID: "general-buzzer"})
	var created models.RoomSnapshot
	readUntil(t, a, models.EventSnapshot, &created)
	require.Len(created.Code, 6)
	require.True(created.Participants[0].IsConnected)

	b := s.dial(bob)
	send(t, b, models.JoinRoom{Code: strings.ToLower(created.Code)})
	var joined models.RoomSnapshot
	readUntil(t, b, models.EventSnapshot, &joined)
	require.Len(joined.Participants, 2)

	var roster models.RosterPayload
	for len(roster.Participants) < 2 {
		readUntil(t, a, models.EventRoster, &roster)
	}

	send(t, b, models.StartGame{Code: created.Code})
	var rejected models.RejectedPayload
	readUntil(t, b, models.EventRejected, &rejected)
	require.Equal("start_game", rejected.Command)
	require.Equal("forbidden", rejected.Code)

	// 格式错误的包也只回给发送者
	require.NoError(b.Send(network.MsgTypeSubmitAnswer, []byte(`{"code":`)))
	readUntil(t, b, models.EventRejected, &rejected)
	require.Equal("submit_answer", rejected.Command)
	require.Equal(models.KindValidation, rejected.Kind)

	b.Close()
	require.Eventually(func() bool {
		snap, err := s.games.Snapshot(context.Background(), created.Code)
		if err != nil || len(snap.Participants) != 2 {
			return false
		}
		for _, p := range snap.Participants {
			if p.UserID == bob.UserID {
				return !p.IsConnected
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(func() bool { return s.srv.Sessions().Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_WebSocketGameStart(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t)

	a := s.dial(alice)
	send(t, a, models.CreateRoom{GameID: "general-buzzer"})
	var created models.RoomSnapshot
	readUntil(t, a, models.EventSnapshot, &created)

	b := s.dial(bob)
	send(t, b, models.JoinRoom{Code: created.Code})
	readUntil(t, b, models.EventSnapshot, nil)

	send(t, a, models.SetReady{Code: created.Code, Ready: true})
	send(t, b, models.SetReady{Code: created.Code, Ready: true})
	var countdown models.CountdownPayload
	readUntil(t, b, models.EventCountdown, &countdown)
	require.Equal(3, countdown.Remaining)

	// 倒计时中房主直接开始
	send(t, a, models.StartGame{Code: created.Code})
	var view models.RoundView
	readUntil(t, b, models.EventRoundStarted, &view)
	require.Equal(0, view.Index)
	require.NotEmpty(view.Question.Text)

	send(t, b, models.Buzz{Code: created.Code})
	var buzz models.BuzzAcceptedPayload
	readUntil(t, a, models.EventBuzzAccepted, &buzz)
	require.Equal(bob.UserID, buzz.UserID)
}
