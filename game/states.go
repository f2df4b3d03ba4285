package game

import (
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/state"
)

// roomStateBase 房间状态的公共部分：进入时同步 Room.Status 并广播
type roomStateBase struct {
	state.Base
	c *Coordinator
}

func (s *roomStateBase) enter() {
	status := models.RoomStatus(s.ID)
	s.c.room.SetStatus(status)
	s.c.bus.PublishToRoom(s.c.room.Code, models.EventRoomState, models.RoomStatePayload{Status: status})
}

// WaitingState 等待玩家加入和准备
type WaitingState struct {
	roomStateBase
}

func (s *WaitingState) OnEnter() {
	s.c.log.Infof("房间 %s 进入等待状态", s.c.room.Code)
	s.enter()
}

// StartingState 倒计时，任何人取消准备都会回到等待状态
type StartingState struct {
	roomStateBase
}

func (s *StartingState) OnEnter() {
	s.c.log.Infof("房间 %s 开始倒计时: %d", s.c.room.Code, s.c.settings.CountdownTicks)
	s.enter()
	s.c.startCountdown()
}

func (s *StartingState) OnExit() {
	s.c.cancelCountdown()
}

// InProgressState 逐题进行
type InProgressState struct {
	roomStateBase
}

func (s *InProgressState) OnEnter() {
	s.c.log.Infof("房间 %s 游戏开始，共 %d 题", s.c.room.Code, s.c.room.TotalQuestions)
	s.enter()
	s.c.beginGame()
}

func (s *InProgressState) OnExit() {
	s.c.cancelRoundTimers()
}

// FinishedState 终态：排名、持久化、延迟回收
type FinishedState struct {
	roomStateBase
}

func (s *FinishedState) OnEnter() {
	s.c.log.Infof("房间 %s 游戏结束", s.c.room.Code)
	s.enter()
	s.c.finishGame()
}

func newStateMachine(c *Coordinator) (*state.BaseStateMachine, map[models.RoomStatus]state.State) {
	states := map[models.RoomStatus]state.State{
		models.StatusWaiting:    &WaitingState{roomStateBase{state.Base{ID: string(models.StatusWaiting)}, c}},
		models.StatusStarting:   &StartingState{roomStateBase{state.Base{ID: string(models.StatusStarting)}, c}},
		models.StatusInProgress: &InProgressState{roomStateBase{state.Base{ID: string(models.StatusInProgress)}, c}},
		models.StatusFinished:   &FinishedState{roomStateBase{state.Base{ID: string(models.StatusFinished)}, c}},
	}

	// NewBaseStateMachine 会调用初始状态的 OnEnter，这里用一个不广播的占位状态起步
	machine := state.NewBaseStateMachine(&state.Base{ID: string(models.StatusWaiting)})
	edges := [][2]models.RoomStatus{
		{models.StatusWaiting, models.StatusStarting},
		{models.StatusStarting, models.StatusWaiting},
		{models.StatusStarting, models.StatusInProgress},
		{models.StatusWaiting, models.StatusInProgress},
		{models.StatusInProgress, models.StatusFinished},
	}
	for _, e := range edges {
		machine.AddTransition(string(e[0]), string(e[1]), nil)
	}
	return machine, states
}
