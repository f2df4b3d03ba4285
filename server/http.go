package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/network"
	"github.com/wfunc/quizserver/persistence"
	"github.com/wfunc/quizserver/room"
)

const identityKey = "identity"

func (s *GameServer) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.monitor.Handler()))
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api/v1", s.requireAuth)
	api.GET("/rooms", s.handleListRooms)
	api.POST("/rooms", s.handleCreateRoom)
	api.GET("/rooms/:code", s.handleGetRoom)
	api.POST("/rooms/:code/join", s.handleJoinRoom)
	api.POST("/rooms/:code/leave", s.handleLeaveRoom)
	api.GET("/games/:id/leaderboard", s.handleLeaderboard)
	api.GET("/players/:id/stats", s.handlePlayerStats)
	return r
}

// statusFor 错误类型到 HTTP 状态码
func statusFor(err error) int {
	e := models.AsError(err)
	if errors.Is(e, models.ErrUnauthenticated) {
		return http.StatusUnauthorized
	}
	switch e.Kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindAuthorization:
		return http.StatusForbidden
	case models.KindConflict, models.KindCapacity:
		return http.StatusConflict
	case models.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *GameServer) abort(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, models.AsError(err))
}

func (s *GameServer) requireAuth(c *gin.Context) {
	identity, err := s.verifier.FromRequest(c.Request)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.Set(identityKey, identity)
	c.Next()
}

func identityOf(c *gin.Context) models.Identity {
	v, _ := c.Get(identityKey)
	identity, _ := v.(models.Identity)
	return identity
}

func (s *GameServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"rooms":       s.games.Len(),
		"connections": s.sessions.Count(),
	})
}

func (s *GameServer) handleListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.games.ListRooms()})
}

func (s *GameServer) handleCreateRoom(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		s.abort(c, models.ErrInvalidPayload)
		return
	}
	req, err := network.DecodeCreateRoom(data)
	if err != nil {
		s.abort(c, err)
		return
	}
	snap, err := s.games.CreateRoom(c.Request.Context(), identityOf(c), req.GameID, req.Options)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (s *GameServer) handleGetRoom(c *gin.Context) {
	snap, err := s.games.Snapshot(c.Request.Context(), c.Param("code"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleJoinRoom 通过 REST 加入的玩家在 websocket 连上之前显示为离线
func (s *GameServer) handleJoinRoom(c *gin.Context) {
	snap, err := s.games.Enroll(c.Request.Context(), identityOf(c), c.Param("code"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *GameServer) handleLeaveRoom(c *gin.Context) {
	identity := identityOf(c)
	code := c.Param("code")
	reply, err := s.games.Dispatch(c.Request.Context(), identity, models.LeaveRoom{Code: code})
	if err != nil {
		s.abort(c, err)
		return
	}
	for _, sess := range s.sessions.GetByUserID(identity.UserID) {
		sess.UnbindRoom(room.NormalizeCode(code))
	}
	body := gin.H{"left": true}
	if reply.Leave != nil && reply.Leave.HostChanged() {
		body["new_host"] = reply.Leave.NewHost
	}
	c.JSON(http.StatusOK, body)
}

func (s *GameServer) handleLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	entries, err := s.scores.Leaderboard(c.Param("id"), limit)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_id": c.Param("id"), "entries": entries})
}

func (s *GameServer) handlePlayerStats(c *gin.Context) {
	stats, err := s.scores.PlayerStats(c.Param("id"))
	if errors.Is(err, persistence.ErrRecordNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"kind": models.KindNotFound, "code": "player_not_found", "message": "no games recorded for player"})
		return
	}
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
