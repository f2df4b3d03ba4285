package room

import (
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
)

// Tracker 维护房间成员：加入、准备、断线、离开
// 每次变更之后都会把完整名单广播给房间
type Tracker struct {
	bus broadcast.Bus
	now func() time.Time
	log *zap.SugaredLogger
}

func NewTracker(bus broadcast.Bus) *Tracker {
	return &Tracker{bus: bus, now: time.Now, log: logger.Log}
}

// LeaveResult describes what a departure changed.
type LeaveResult struct {
	PreviousHost string
	NewHost      string
	Empty        bool
}

func (l LeaveResult) HostChanged() bool {
	return l.NewHost != "" && l.NewHost != l.PreviousHost
}

func (t *Tracker) publishRoster(r *Room) {
	t.bus.PublishToRoom(r.Code, models.EventRoster, r.Roster())
}

// Join is the live join. Rejoining restores the connection flag and keeps score and readiness.
func (t *Tracker) Join(r *Room, userID, username string) (models.Participant, error) {
	return t.add(r, userID, username, true)
}

// Enroll is the durable join used by the REST surface; new members start disconnected.
func (t *Tracker) Enroll(r *Room, userID, username string) (models.Participant, error) {
	return t.add(r, userID, username, false)
}

func (t *Tracker) add(r *Room, userID, username string, connect bool) (models.Participant, error) {
	status := r.GetStatus()

	r.playerMutex.Lock()
	if p, ok := r.players[userID]; ok {
		// 结束后的房间只读，老成员看到的是原样的结果
		if status == models.StatusFinished {
			r.playerMutex.Unlock()
			cp, _ := r.GetParticipant(userID)
			return cp, nil
		}
		if connect {
			p.IsConnected = true
		}
		r.playerMutex.Unlock()
		if connect {
			t.publishRoster(r)
		}
		cp, _ := r.GetParticipant(userID)
		return cp, nil
	}

	switch {
	case status == models.StatusFinished:
		r.playerMutex.Unlock()
		return models.Participant{}, models.ErrRoomFinished
	case status == models.StatusInProgress:
		r.playerMutex.Unlock()
		return models.Participant{}, models.ErrGameInProgress
	case len(r.players) >= r.MaxPlayers:
		r.playerMutex.Unlock()
		return models.Participant{}, models.ErrRoomFull
	}

	r.nextJoin++
	r.players[userID] = &models.Participant{
		UserID:      userID,
		Username:    username,
		IsConnected: connect,
		JoinOrder:   r.nextJoin,
		JoinedAt:    t.now(),
	}
	r.playerMutex.Unlock()

	t.log.Infof("User %s joined room %s", userID, r.Code)
	t.publishRoster(r)
	cp, _ := r.GetParticipant(userID)
	return cp, nil
}

// SetReady toggles readiness; only the participant themself may do it.
func (t *Tracker) SetReady(r *Room, actorID, targetID string, ready bool) error {
	if targetID == "" {
		targetID = actorID
	}
	if actorID != targetID {
		t.log.Warnf("User %s tried to set readiness of %s in room %s", actorID, targetID, r.Code)
		return models.ErrForbidden
	}
	switch r.GetStatus() {
	case models.StatusInProgress:
		return models.ErrGameInProgress
	case models.StatusFinished:
		return models.ErrRoomFinished
	}

	r.playerMutex.Lock()
	p, ok := r.players[targetID]
	if !ok {
		r.playerMutex.Unlock()
		return models.ErrNotMember
	}
	p.IsReady = ready
	r.playerMutex.Unlock()

	t.publishRoster(r)
	return nil
}

// MarkDisconnected and MarkConnected only flip the connection flag; both are no-ops once the room finished.
func (t *Tracker) MarkDisconnected(r *Room, userID string) error {
	return t.setConnected(r, userID, false)
}

func (t *Tracker) MarkConnected(r *Room, userID string) error {
	return t.setConnected(r, userID, true)
}

func (t *Tracker) setConnected(r *Room, userID string, connected bool) error {
	finished := r.GetStatus() == models.StatusFinished
	r.playerMutex.Lock()
	p, ok := r.players[userID]
	if !ok {
		r.playerMutex.Unlock()
		return models.ErrNotMember
	}
	if finished {
		r.playerMutex.Unlock()
		return nil
	}
	changed := p.IsConnected != connected
	p.IsConnected = connected
	r.playerMutex.Unlock()

	if changed {
		t.publishRoster(r)
	}
	return nil
}

// Leave removes the participant. A departing host hands over to the earliest joined remaining member.
// A finished room keeps its roster until it is removed.
func (t *Tracker) Leave(r *Room, userID string) (LeaveResult, error) {
	if r.GetStatus() == models.StatusFinished {
		return LeaveResult{}, models.ErrRoomFinished
	}
	r.playerMutex.Lock()
	if _, ok := r.players[userID]; !ok {
		r.playerMutex.Unlock()
		return LeaveResult{}, models.ErrNotMember
	}
	delete(r.players, userID)

	var next *models.Participant
	for _, p := range r.players {
		if next == nil || p.JoinOrder < next.JoinOrder {
			next = p
		}
	}
	empty := len(r.players) == 0
	r.playerMutex.Unlock()

	res := LeaveResult{PreviousHost: r.HostUserID(), Empty: empty}
	if res.PreviousHost == userID && next != nil {
		r.setHost(next.UserID)
		res.NewHost = next.UserID
		t.log.Infof("Host of room %s moved from %s to %s", r.Code, userID, next.UserID)
	}

	t.log.Infof("User %s left room %s", userID, r.Code)
	if res.HostChanged() {
		t.bus.PublishToRoom(r.Code, models.EventHostChanged, models.HostChangedPayload{
			Previous: res.PreviousHost,
			Current:  res.NewHost,
		})
	}
	t.publishRoster(r)
	return res, nil
}

// AllReady is true when enough players are present and every one is connected and ready.
func (t *Tracker) AllReady(r *Room) bool {
	r.playerMutex.RLock()
	defer r.playerMutex.RUnlock()

	if len(r.players) < r.MinPlayers {
		return false
	}
	for _, p := range r.players {
		if !p.IsReady || !p.IsConnected {
			return false
		}
	}
	return true
}

// ApplyScores adds resolved round deltas. It is the only path that changes a score.
func (t *Tracker) ApplyScores(r *Room, deltas map[string]int) {
	r.playerMutex.Lock()
	for id, delta := range deltas {
		if p, ok := r.players[id]; ok {
			p.Score += delta
		}
	}
	r.playerMutex.Unlock()

	t.publishRoster(r)
}
