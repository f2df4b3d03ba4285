// room/room.go
package room

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/wfunc/quizserver/models"
)

// Room 是游戏房间的核心结构
// 房间只由注册表持有；成员变更只经由 Tracker，状态只由房间协调协程推进
type Room struct {
	Code           string
	GameID         string
	Title          string
	Variant        models.Variant
	MinPlayers     int
	MaxPlayers     int
	TotalQuestions int
	QuestionTime   time.Duration
	CreatedAt      time.Time

	status      models.RoomStatus
	hostUserID  string
	statusMutex sync.RWMutex

	players     map[string]*models.Participant // userID -> participant
	nextJoin    int64
	playerMutex sync.RWMutex
}

// NewRoom 创建一个新房间
func NewRoom(code, hostUserID string, game models.GameConfig, minPlayers, maxPlayers int, now time.Time) *Room {
	return &Room{
		Code:           code,
		GameID:         game.GameID,
		Title:          game.Title,
		Variant:        game.Variant,
		MinPlayers:     minPlayers,
		MaxPlayers:     maxPlayers,
		TotalQuestions: game.TotalQuestions,
		QuestionTime:   game.QuestionTime,
		CreatedAt:      now,
		status:         models.StatusWaiting,
		hostUserID:     hostUserID,
		players:        make(map[string]*models.Participant),
	}
}

// SetStatus 设置房间的业务状态
func (r *Room) SetStatus(status models.RoomStatus) {
	r.statusMutex.Lock()
	defer r.statusMutex.Unlock()
	r.status = status
}

// GetStatus 获取房间的业务状态
func (r *Room) GetStatus() models.RoomStatus {
	r.statusMutex.RLock()
	defer r.statusMutex.RUnlock()
	return r.status
}

func (r *Room) HostUserID() string {
	r.statusMutex.RLock()
	defer r.statusMutex.RUnlock()
	return r.hostUserID
}

func (r *Room) setHost(userID string) {
	r.statusMutex.Lock()
	defer r.statusMutex.Unlock()
	r.hostUserID = userID
}

// Participants returns copies ordered by join order.
func (r *Room) Participants() []models.Participant {
	host := r.HostUserID()

	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	list := lo.MapToSlice(r.players, func(_ string, p *models.Participant) models.Participant {
		cp := *p
		cp.IsHost = cp.UserID == host
		return cp
	})
	sort.Slice(list, func(i, j int) bool { return list[i].JoinOrder < list[j].JoinOrder })
	return list
}

// GetParticipant 获取单个玩家
func (r *Room) GetParticipant(userID string) (models.Participant, bool) {
	host := r.HostUserID()

	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	p, ok := r.players[userID]
	if !ok {
		return models.Participant{}, false
	}
	cp := *p
	cp.IsHost = cp.UserID == host
	return cp, true
}

func (r *Room) IsMember(userID string) bool {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	_, ok := r.players[userID]
	return ok
}

func (r *Room) Count() int {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()
	return len(r.players)
}

// Summary is the lobby view of the room.
func (r *Room) Summary() models.RoomSummary {
	return models.RoomSummary{
		Code:       r.Code,
		GameID:     r.GameID,
		HostUserID: r.HostUserID(),
		Variant:    r.Variant,
		Status:     r.GetStatus(),
		Players:    r.Count(),
		MinPlayers: r.MinPlayers,
		MaxPlayers: r.MaxPlayers,
		CreatedAt:  r.CreatedAt,
	}
}

// Roster 完整名单，每次成员变更都整体广播
func (r *Room) Roster() models.RosterPayload {
	return models.RosterPayload{HostUserID: r.HostUserID(), Participants: r.Participants()}
}

// Ranking sorts participants by score, ties going to whoever joined first.
func (r *Room) Ranking() []models.Ranking {
	list := r.Participants()
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].JoinOrder < list[j].JoinOrder
	})
	return lo.Map(list, func(p models.Participant, i int) models.Ranking {
		return models.Ranking{Rank: i + 1, UserID: p.UserID, Username: p.Username, Score: p.Score}
	})
}
