package game

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/monitor"
	"github.com/wfunc/quizserver/persistence"
	"github.com/wfunc/quizserver/room"
	"github.com/wfunc/quizserver/timer"
)

// Dependencies are the collaborators shared by every room.
type Dependencies struct {
	Registry *room.Registry
	Bus      broadcast.Bus
	Content  persistence.ContentStore
	Scores   persistence.ScoreRecorder
	Timers   timer.Scheduler
	Monitor  *monitor.Monitor
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) { s.log = log }
}

// Service 把命令路由到各房间的协调协程
type Service struct {
	registry *room.Registry
	tracker  *room.Tracker
	bus      broadcast.Bus
	content  persistence.ContentStore
	scores   persistence.ScoreRecorder
	timers   timer.Scheduler
	monitor  *monitor.Monitor
	settings Settings
	log      *zap.SugaredLogger
	now      func() time.Time

	coordinators map[string]*Coordinator
	mutex        sync.RWMutex
	persistWG    sync.WaitGroup
	sweepTimer   int64
}

func NewService(deps Dependencies, settings Settings, opts ...Option) *Service {
	s := &Service{
		registry:     deps.Registry,
		tracker:      room.NewTracker(deps.Bus),
		bus:          deps.Bus,
		content:      deps.Content,
		scores:       deps.Scores,
		timers:       deps.Timers,
		monitor:      deps.Monitor,
		settings:     settings,
		log:          logger.Log,
		now:          time.Now,
		coordinators: make(map[string]*Coordinator),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRoom opens a room for gameID with the caller as host and first participant.
func (s *Service) CreateRoom(ctx context.Context, host models.Identity, gameID string, opts models.RoomOptions) (models.RoomSnapshot, error) {
	game, err := s.content.GetGameConfig(ctx, gameID)
	if err != nil {
		return models.RoomSnapshot{}, fmt.Errorf("load game %s: %w", gameID, err)
	}
	r, err := s.registry.CreateRoom(ctx, host, game, opts)
	if err != nil {
		return models.RoomSnapshot{}, err
	}
	c, err := newCoordinator(r, s)
	if err != nil {
		s.registry.RemoveRoom(r.Code)
		return models.RoomSnapshot{}, err
	}

	s.mutex.Lock()
	s.coordinators[r.Code] = c
	count := len(s.coordinators)
	s.mutex.Unlock()
	s.monitor.SetActiveRooms(count)

	if _, err := c.Enroll(ctx, host); err != nil {
		c.Close()
		return models.RoomSnapshot{}, err
	}
	return c.Snapshot(ctx)
}

// Coordinator looks up the live coordinator of a room.
func (s *Service) Coordinator(code string) (*Coordinator, error) {
	code = room.NormalizeCode(code)
	s.mutex.RLock()
	c, ok := s.coordinators[code]
	s.mutex.RUnlock()
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	return c, nil
}

// Enroll is the REST join.
func (s *Service) Enroll(ctx context.Context, identity models.Identity, code string) (models.RoomSnapshot, error) {
	c, err := s.Coordinator(code)
	if err != nil {
		return models.RoomSnapshot{}, err
	}
	if _, err := c.Enroll(ctx, identity); err != nil {
		return models.RoomSnapshot{}, err
	}
	return c.Snapshot(ctx)
}

// Dispatch routes a command to its room. Rejections are also delivered to the caller's
// user channel, followed by the unchanged room state when a member was out of sync.
func (s *Service) Dispatch(ctx context.Context, identity models.Identity, cmd models.Command) (Reply, error) {
	name := models.CommandName(cmd)
	started := time.Now()
	s.monitor.IncCommand(name)
	defer func() { s.monitor.ObserveCommandLatency(time.Since(started)) }()

	c, err := s.Coordinator(cmd.RoomCode())
	if err != nil {
		s.reject(ctx, identity, name, nil, err)
		return Reply{}, err
	}
	reply, err := c.Handle(ctx, identity, cmd)
	if err != nil {
		s.reject(ctx, identity, name, c, err)
		return reply, err
	}
	if reply.Duplicate {
		s.log.Infof("Duplicate start for room %s from %s ignored", c.Code(), identity.UserID)
		s.sendSnapshot(ctx, identity.UserID, c)
	}
	return reply, nil
}

// Reject reports a failure that happened before a command reached any room, e.g. a bad packet.
func (s *Service) Reject(ctx context.Context, identity models.Identity, command string, err error) {
	s.reject(ctx, identity, command, nil, err)
}

func (s *Service) reject(ctx context.Context, identity models.Identity, command string, c *Coordinator, err error) {
	e := models.AsError(err)
	s.monitor.IncRejected(e.Code)
	if e.Kind == models.KindInternal {
		s.log.Errorf("Command %s from %s failed: %v", command, identity.UserID, err)
	}
	s.bus.PublishToUser(identity.UserID, models.EventRejected, models.RejectedPayload{
		Command: command,
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
	})
	// 只给房间成员补发快照，非成员不能借此看到房间内容
	if c != nil && e.Kind == models.KindConflict && c.room.IsMember(identity.UserID) {
		s.sendSnapshot(ctx, identity.UserID, c)
	}
}

func (s *Service) sendSnapshot(ctx context.Context, userID string, c *Coordinator) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return
	}
	s.bus.PublishToUser(userID, models.EventSnapshot, snap)
}

// Connect marks a member's socket as live again.
func (s *Service) Connect(ctx context.Context, userID, code string) error {
	c, err := s.Coordinator(code)
	if err != nil {
		return err
	}
	return c.Connect(ctx, userID)
}

func (s *Service) Disconnect(ctx context.Context, userID, code string) error {
	c, err := s.Coordinator(code)
	if err != nil {
		return err
	}
	return c.Disconnect(ctx, userID)
}

func (s *Service) Snapshot(ctx context.Context, code string) (models.RoomSnapshot, error) {
	c, err := s.Coordinator(code)
	if err != nil {
		return models.RoomSnapshot{}, err
	}
	return c.Snapshot(ctx)
}

func (s *Service) ListRooms() []models.RoomSummary {
	return s.registry.ListActiveRooms()
}

// StartSweeper periodically closes unstarted rooms past their soft expiry.
func (s *Service) StartSweeper() {
	if s.settings.SweepInterval <= 0 {
		return
	}
	s.sweepTimer = s.timers.AddTimer(s.settings.SweepInterval, s.settings.SweepInterval, func() { s.Sweep() })
}

// Sweep closes expired rooms, keeps the codes of live rooms reserved and returns how many were closed.
func (s *Service) Sweep() int {
	codes := s.registry.Expired(s.now())
	sort.Strings(codes)
	for _, code := range codes {
		s.log.Infof("Room %s expired before starting", code)
		if c, err := s.Coordinator(code); err == nil {
			c.Close()
		} else {
			s.registry.RemoveRoom(code)
		}
	}
	s.registry.RefreshCodes(context.Background())
	return len(codes)
}

// forget runs after a coordinator stopped.
func (s *Service) forget(code string) {
	s.mutex.Lock()
	delete(s.coordinators, code)
	count := len(s.coordinators)
	s.mutex.Unlock()

	s.registry.RemoveRoom(code)
	s.bus.CloseRoom(code)
	s.monitor.SetActiveRooms(count)
}

func (s *Service) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.coordinators)
}

// Close stops every room and waits for pending score writes.
func (s *Service) Close() {
	if s.sweepTimer != 0 {
		s.timers.RemoveTimer(s.sweepTimer)
	}
	s.mutex.RLock()
	all := make([]*Coordinator, 0, len(s.coordinators))
	for _, c := range s.coordinators {
		all = append(all, c)
	}
	s.mutex.RUnlock()

	for _, c := range all {
		c.Close()
	}
	s.persistWG.Wait()
}

// WaitPersisted blocks until every finished room wrote its results.
func (s *Service) WaitPersisted() {
	s.persistWG.Wait()
}
