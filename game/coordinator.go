package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/config"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/monitor"
	"github.com/wfunc/quizserver/persistence"
	"github.com/wfunc/quizserver/room"
	"github.com/wfunc/quizserver/round"
	"github.com/wfunc/quizserver/state"
	"github.com/wfunc/quizserver/timer"
)

const inboxSize = 256

// Settings are the timing knobs of a room.
type Settings struct {
	CountdownTicks    int
	TickInterval      time.Duration
	RoundIntermission time.Duration
	ResultsGrace      time.Duration
	PersistTimeout    time.Duration
	SweepInterval     time.Duration
}

func SettingsFrom(cfg config.GameConfig) Settings {
	return Settings{
		CountdownTicks:    cfg.CountdownTicks,
		TickInterval:      cfg.TickInterval,
		RoundIntermission: cfg.RoundIntermission,
		ResultsGrace:      cfg.ResultsGrace,
		PersistTimeout:    cfg.PersistTimeout,
		SweepInterval:     cfg.SweepInterval,
	}
}

// Reply is what a command produced besides the broadcasts it triggered.
type Reply struct {
	// Duplicate is set when a start arrived after the game already started.
	Duplicate   bool
	Participant *models.Participant
	Leave       *room.LeaveResult
}

type outcome struct {
	value interface{}
	err   error
}

type envelope struct {
	run   func() (interface{}, error)
	reply chan outcome
}

// Coordinator 房间的单一所有者
// 所有命令、定时器回调和快照读取都在同一个协程里按到达顺序执行
type Coordinator struct {
	room     *room.Room
	tracker  *room.Tracker
	bus      broadcast.Bus
	content  persistence.ContentStore
	scores   persistence.ScoreRecorder
	timers   timer.Scheduler
	monitor  *monitor.Monitor
	settings Settings
	log      *zap.SugaredLogger
	now      func() time.Time

	machine *state.BaseStateMachine
	states  map[models.RoomStatus]state.State
	engine  *round.Engine

	inbox    chan envelope
	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once
	stopping bool
	onClose  func(code string)
	persist  *sync.WaitGroup

	countdown      int
	countdownTimer int64
	countdownGen   uint64

	roundGen          uint64
	roundTimer        int64
	intermissionTimer int64
	graceTimer        int64
	lastResult        *models.RoundResult
	startedAt         time.Time
	rankings          []models.Ranking
}

func newCoordinator(r *room.Room, s *Service) (*Coordinator, error) {
	engine, err := round.NewEngine(r.Variant, r.QuestionTime)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		room:     r,
		tracker:  s.tracker,
		bus:      s.bus,
		content:  s.content,
		scores:   s.scores,
		timers:   s.timers,
		monitor:  s.monitor,
		settings: s.settings,
		log:      s.log,
		now:      s.now,
		engine:   engine,
		inbox:    make(chan envelope, inboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		onClose:  s.forget,
		persist:  &s.persistWG,
	}
	c.machine, c.states = newStateMachine(c)
	go c.run()
	return c, nil
}

func (c *Coordinator) Code() string {
	return c.room.Code
}

// Done is closed once the coordinator stopped accepting work.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Close stops the actor and waits for it. Must not be called from inside the actor.
func (c *Coordinator) Close() {
	c.quitOnce.Do(func() { close(c.quit) })
	<-c.done
}

func (c *Coordinator) run() {
	defer func() {
		c.cancelCountdown()
		c.cancelRoundTimers()
		c.timers.RemoveTimer(c.graceTimer)
		if c.onClose != nil {
			c.onClose(c.room.Code)
		}
		close(c.done)
	}()

	for {
		select {
		case env := <-c.inbox:
			c.exec(env)
			if c.stopping {
				return
			}
		case <-c.quit:
			return
		}
	}
}

func (c *Coordinator) exec(env envelope) {
	var out outcome
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Errorf("Room %s recovered from panic: %v", c.room.Code, r)
				out = outcome{err: models.ErrInternal}
			}
		}()
		v, err := env.run()
		out = outcome{value: v, err: err}
	}()
	if env.reply != nil {
		env.reply <- out
	}
}

// call runs fn on the actor and waits for its result.
func (c *Coordinator) call(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	env := envelope{run: fn, reply: make(chan outcome, 1)}
	select {
	case c.inbox <- env:
	case <-c.done:
		return nil, models.ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-env.reply:
		return out.value, out.err
	case <-c.done:
		// 回复先于 done 写入
		select {
		case out := <-env.reply:
			return out.value, out.err
		default:
			return nil, models.ErrRoomClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// post queues fn without waiting; timer callbacks use it.
func (c *Coordinator) post(fn func()) {
	env := envelope{run: func() (interface{}, error) {
		fn()
		return nil, nil
	}}
	select {
	case c.inbox <- env:
	case <-c.done:
	}
}

func (c *Coordinator) status() models.RoomStatus {
	return models.RoomStatus(c.machine.GetCurrentState().GetID())
}

// transition is the single-writer check for every status change.
func (c *Coordinator) transition(from, to models.RoomStatus) bool {
	if err := c.machine.CompareAndChange(string(from), c.states[to]); err != nil {
		return false
	}
	return true
}

// Handle applies one room command on behalf of identity.
func (c *Coordinator) Handle(ctx context.Context, identity models.Identity, cmd models.Command) (Reply, error) {
	v, err := c.call(ctx, func() (interface{}, error) {
		return c.handle(identity, cmd)
	})
	reply, _ := v.(Reply)
	return reply, err
}

func (c *Coordinator) handle(identity models.Identity, cmd models.Command) (Reply, error) {
	userID := identity.UserID
	switch cmd := cmd.(type) {
	case models.JoinRoom:
		p, err := c.tracker.Join(c.room, userID, identity.Username)
		if err != nil {
			return Reply{}, err
		}
		c.reconcileReadiness()
		return Reply{Participant: &p}, nil

	case models.LeaveRoom:
		res, err := c.leave(userID)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Leave: &res}, nil

	case models.SetReady:
		if err := c.tracker.SetReady(c.room, userID, cmd.UserID, cmd.Ready); err != nil {
			return Reply{}, err
		}
		c.reconcileReadiness()
		return Reply{}, nil

	case models.StartGame:
		return c.start(userID)

	case models.Buzz:
		if err := c.playable(userID); err != nil {
			return Reply{}, err
		}
		if err := c.engine.SubmitBuzz(userID, c.now()); err != nil {
			return Reply{}, err
		}
		c.bus.PublishToRoom(c.room.Code, models.EventBuzzAccepted, models.BuzzAcceptedPayload{
			Index:  c.engine.Index(),
			UserID: userID,
		})
		return Reply{}, nil

	case models.SubmitAnswer:
		if err := c.playable(userID); err != nil {
			return Reply{}, err
		}
		if err := c.engine.SubmitAnswer(userID, cmd.Answer, c.now()); err != nil {
			return Reply{}, err
		}
		c.bus.PublishToRoom(c.room.Code, models.EventAnswerReceived, models.AnswerReceivedPayload{
			Index:  c.engine.Index(),
			UserID: userID,
		})
		if c.engine.Complete() {
			c.resolveRound(models.ReasonAllAnswered)
		}
		return Reply{}, nil

	case models.AdvanceRound:
		return Reply{}, c.advance(userID)
	}
	return Reply{}, models.ErrUnknownCommand
}

func (c *Coordinator) playable(userID string) error {
	if !c.room.IsMember(userID) {
		return models.ErrNotMember
	}
	switch c.status() {
	case models.StatusInProgress:
		return nil
	case models.StatusFinished:
		return models.ErrRoomFinished
	}
	return models.ErrNotInProgress
}

func (c *Coordinator) requireHost(userID, action string) error {
	if c.room.HostUserID() != userID {
		c.log.Warnf("User %s is not the host of room %s, %s ignored", userID, c.room.Code, action)
		return models.ErrForbidden
	}
	return nil
}

func (c *Coordinator) start(userID string) (Reply, error) {
	if err := c.requireHost(userID, "start"); err != nil {
		return Reply{}, err
	}
	switch c.status() {
	case models.StatusInProgress, models.StatusFinished:
		return Reply{Duplicate: true}, nil
	case models.StatusStarting:
		if !c.transition(models.StatusStarting, models.StatusInProgress) {
			return Reply{Duplicate: true}, nil
		}
		return Reply{}, nil
	}

	if c.room.Count() < c.room.MinPlayers {
		return Reply{}, models.ErrTooFewPlayers
	}
	if !c.tracker.AllReady(c.room) {
		return Reply{}, models.ErrNotAllReady
	}
	if !c.transition(models.StatusWaiting, models.StatusInProgress) {
		return Reply{}, models.ErrTransition
	}
	return Reply{}, nil
}

// reconcileReadiness re-evaluates AllReady right after every readiness-affecting mutation.
func (c *Coordinator) reconcileReadiness() {
	ready := c.tracker.AllReady(c.room)
	switch c.status() {
	case models.StatusWaiting:
		if ready {
			c.transition(models.StatusWaiting, models.StatusStarting)
		}
	case models.StatusStarting:
		if !ready {
			c.log.Infof("Room %s countdown cancelled", c.room.Code)
			c.transition(models.StatusStarting, models.StatusWaiting)
		}
	}
}

func (c *Coordinator) leave(userID string) (room.LeaveResult, error) {
	res, err := c.tracker.Leave(c.room, userID)
	if err != nil {
		return res, err
	}
	if res.Empty {
		c.log.Infof("Room %s is empty, closing", c.room.Code)
		c.stopping = true
		return res, nil
	}
	if c.status() == models.StatusInProgress && c.engine.Active() {
		c.engine.Forfeit(userID)
		if c.engine.Complete() {
			c.resolveRound(models.ReasonAllAnswered)
		}
	}
	c.reconcileReadiness()
	return res, nil
}

func (c *Coordinator) startCountdown() {
	c.countdownGen++
	gen := c.countdownGen
	c.countdown = c.settings.CountdownTicks
	c.bus.PublishToRoom(c.room.Code, models.EventCountdown, models.CountdownPayload{Remaining: c.countdown})
	if c.countdown <= 0 {
		c.transition(models.StatusStarting, models.StatusInProgress)
		return
	}
	c.countdownTimer = c.timers.AddTimer(c.settings.TickInterval, c.settings.TickInterval, func() {
		c.post(func() { c.tick(gen) })
	})
}

func (c *Coordinator) tick(gen uint64) {
	if gen != c.countdownGen || c.status() != models.StatusStarting {
		return
	}
	c.countdown--
	c.bus.PublishToRoom(c.room.Code, models.EventCountdown, models.CountdownPayload{Remaining: c.countdown})
	if c.countdown <= 0 {
		c.transition(models.StatusStarting, models.StatusInProgress)
	}
}

func (c *Coordinator) cancelCountdown() {
	c.countdownGen++
	if c.countdownTimer != 0 {
		c.timers.RemoveTimer(c.countdownTimer)
		c.countdownTimer = 0
	}
	c.countdown = 0
}

func (c *Coordinator) cancelRoundTimers() {
	c.roundGen++
	if c.roundTimer != 0 {
		c.timers.RemoveTimer(c.roundTimer)
		c.roundTimer = 0
	}
	if c.intermissionTimer != 0 {
		c.timers.RemoveTimer(c.intermissionTimer)
		c.intermissionTimer = 0
	}
}

func (c *Coordinator) beginGame() {
	c.startedAt = c.now()
	c.bus.PublishToRoom(c.room.Code, models.EventGameStarted, models.GameStartedPayload{
		TotalQuestions: c.room.TotalQuestions,
		StartedAt:      c.startedAt,
	})
	c.nextRound()
}

func (c *Coordinator) contentContext() (context.Context, context.CancelFunc) {
	if c.settings.PersistTimeout > 0 {
		return context.WithTimeout(context.Background(), c.settings.PersistTimeout)
	}
	return context.WithCancel(context.Background())
}

// nextRound starts round index+1, or finishes the game after the last one.
func (c *Coordinator) nextRound() {
	index := c.engine.Index() + 1
	if index >= c.room.TotalQuestions {
		c.transition(models.StatusInProgress, models.StatusFinished)
		return
	}

	ctx, cancel := c.contentContext()
	q, err := c.content.GetQuestion(ctx, c.room.GameID, index)
	cancel()
	if err != nil {
		c.log.Errorf("Room %s failed to load question %d of %s, ending game: %v", c.room.Code, index, c.room.GameID, err)
		c.transition(models.StatusInProgress, models.StatusFinished)
		return
	}

	eligible := lo.Map(c.room.Participants(), func(p models.Participant, _ int) string { return p.UserID })
	now := c.now()
	view := c.engine.StartRound(index, q, eligible, now)

	c.cancelRoundTimers()
	gen := c.roundGen
	c.roundTimer = c.timers.AddTimer(view.DeadlineAt.Sub(now), 0, func() {
		c.post(func() {
			if gen != c.roundGen {
				return
			}
			c.roundTimer = 0
			c.resolveRound(models.ReasonDeadline)
		})
	})
	c.bus.PublishToRoom(c.room.Code, models.EventRoundStarted, view)
}

// resolveRound closes the current round once; scores move only here.
func (c *Coordinator) resolveRound(reason models.ResolveReason) {
	result, fresh := c.engine.Resolve(reason, c.now())
	if !fresh {
		return
	}
	c.cancelRoundTimers()
	c.lastResult = &result
	c.monitor.IncRoundResolved(string(reason))

	c.bus.PublishToRoom(c.room.Code, models.EventRoundResult, result)
	c.tracker.ApplyScores(c.room, result.ScoreDeltas)

	if reason == models.ReasonHostAdvance || c.settings.RoundIntermission <= 0 {
		c.nextRound()
		return
	}
	gen := c.roundGen
	c.intermissionTimer = c.timers.AddTimer(c.settings.RoundIntermission, 0, func() {
		c.post(func() {
			if gen != c.roundGen {
				return
			}
			c.intermissionTimer = 0
			c.nextRound()
		})
	})
}

func (c *Coordinator) advance(userID string) error {
	if err := c.requireHost(userID, "advance"); err != nil {
		return err
	}
	switch c.status() {
	case models.StatusInProgress:
	case models.StatusFinished:
		return models.ErrRoomFinished
	default:
		return models.ErrNotInProgress
	}
	if c.engine.Active() {
		c.resolveRound(models.ReasonHostAdvance)
		return nil
	}
	// 回合已结算，跳过间歇
	c.cancelRoundTimers()
	c.nextRound()
	return nil
}

func (c *Coordinator) finishGame() {
	c.cancelRoundTimers()
	finishedAt := c.now()
	c.rankings = c.room.Ranking()
	c.bus.PublishToRoom(c.room.Code, models.EventGameFinished, models.GameFinishedPayload{Rankings: c.rankings})

	record := models.GameRecord{
		RoomCode:   c.room.Code,
		GameID:     c.room.GameID,
		Variant:    c.room.Variant,
		HostUserID: c.room.HostUserID(),
		Rounds:     c.engine.Index() + 1,
		Rankings:   append([]models.Ranking(nil), c.rankings...),
		StartedAt:  c.startedAt,
		FinishedAt: finishedAt,
	}
	c.persist.Add(1)
	go c.persistResults(record)

	if c.settings.ResultsGrace > 0 {
		c.graceTimer = c.timers.AddTimer(c.settings.ResultsGrace, 0, func() {
			c.post(func() {
				c.log.Infof("Room %s results grace elapsed, removing", c.room.Code)
				c.stopping = true
			})
		})
	}
}

// persistResults writes final scores. Failures are logged and counted; the live result stands.
func (c *Coordinator) persistResults(record models.GameRecord) {
	defer c.persist.Done()
	if c.scores == nil {
		return
	}

	timeout := c.settings.PersistTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, r := range record.Rankings {
		err := c.scores.RecordFinalScore(ctx, models.ScoreRecord{
			UserID:   r.UserID,
			Username: r.Username,
			GameID:   record.GameID,
			RoomCode: record.RoomCode,
			Score:    r.Score,
			Rank:     r.Rank,
			Mode:     models.ModeMultiplayer,
			Metadata: map[string]interface{}{
				"variant": string(record.Variant),
				"rounds":  record.Rounds,
				"players": len(record.Rankings),
			},
			RecordedAt: record.FinishedAt,
		})
		if err != nil {
			c.monitor.IncPersistenceFailure()
			errs = append(errs, fmt.Errorf("score of %s: %w", r.UserID, err))
		}
	}
	if err := c.scores.SaveGameRecord(ctx, record); err != nil {
		c.monitor.IncPersistenceFailure()
		errs = append(errs, fmt.Errorf("game record: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		c.log.Errorf("Room %s failed to persist results: %v", record.RoomCode, err)
	}
}

// Enroll is the durable join used by REST; the member shows up disconnected until a socket connects.
func (c *Coordinator) Enroll(ctx context.Context, identity models.Identity) (models.Participant, error) {
	v, err := c.call(ctx, func() (interface{}, error) {
		p, err := c.tracker.Enroll(c.room, identity.UserID, identity.Username)
		if err != nil {
			return nil, err
		}
		c.reconcileReadiness()
		return p, nil
	})
	p, _ := v.(models.Participant)
	return p, err
}

func (c *Coordinator) Connect(ctx context.Context, userID string) error {
	_, err := c.call(ctx, func() (interface{}, error) {
		if err := c.tracker.MarkConnected(c.room, userID); err != nil {
			return nil, err
		}
		c.reconcileReadiness()
		return nil, nil
	})
	return err
}

// Disconnect keeps the participant; an in-progress round simply times out for them.
func (c *Coordinator) Disconnect(ctx context.Context, userID string) error {
	_, err := c.call(ctx, func() (interface{}, error) {
		if err := c.tracker.MarkDisconnected(c.room, userID); err != nil {
			return nil, err
		}
		c.reconcileReadiness()
		return nil, nil
	})
	return err
}

// Snapshot is the authoritative room state with the current answer redacted.
func (c *Coordinator) Snapshot(ctx context.Context) (models.RoomSnapshot, error) {
	v, err := c.call(ctx, func() (interface{}, error) {
		return c.snapshot(), nil
	})
	snap, _ := v.(models.RoomSnapshot)
	return snap, err
}

func (c *Coordinator) snapshot() models.RoomSnapshot {
	snap := models.RoomSnapshot{
		RoomSummary:    c.room.Summary(),
		TotalQuestions: c.room.TotalQuestions,
		RoundIndex:     c.engine.Index(),
		Participants:   c.room.Participants(),
		Round:          c.engine.View(),
	}
	snap.Status = c.status()
	if snap.Status == models.StatusStarting {
		snap.Countdown = c.countdown
	}
	if c.lastResult != nil {
		res := *c.lastResult
		res.Outcomes = append([]models.ParticipantOutcome(nil), c.lastResult.Outcomes...)
		res.ScoreDeltas = lo.Assign(c.lastResult.ScoreDeltas)
		snap.LastResult = &res
	}
	if c.rankings != nil {
		snap.Rankings = append([]models.Ranking(nil), c.rankings...)
	}
	return snap
}
