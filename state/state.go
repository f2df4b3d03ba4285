package state

import (
	"errors"
	"sync"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	CompareAndChange(expected string, state State) error
	GetCurrentState() State
	AddTransition(from, to string, condition func() bool) error
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	GetID() string
}

var (
	// ErrTransitionNotAllowed is returned when a state transition is not allowed.
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	// ErrStateChanged is returned by CompareAndChange when the current state is not the expected one.
	ErrStateChanged = errors.New("current state does not match expected state")
)

// 基础状态机实现
// 一旦声明过任何转换，转换图即封闭：未声明的转换全部拒绝
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	mutex        sync.Mutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	return sm.change("", newState)
}

// CompareAndChange only transitions when the current state id equals expected.
// Two racing triggers for the same edge collapse into one transition.
func (sm *BaseStateMachine) CompareAndChange(expected string, newState State) error {
	if expected == "" {
		return ErrStateChanged
	}
	return sm.change(expected, newState)
}

func (sm *BaseStateMachine) change(expected string, newState State) error {
	sm.mutex.Lock()
	old := sm.currentState
	currentID := old.GetID()
	if expected != "" && currentID != expected {
		sm.mutex.Unlock()
		return ErrStateChanged
	}
	if !sm.allowed(currentID, newState.GetID()) {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	sm.currentState = newState
	sm.mutex.Unlock()

	// hooks run outside the lock so OnEnter may read the machine
	old.OnExit()
	newState.OnEnter()
	return nil
}

func (sm *BaseStateMachine) allowed(fromID, toID string) bool {
	if len(sm.transitions) == 0 {
		return true
	}
	conditions, exists := sm.transitions[fromID]
	if !exists {
		return false
	}
	condition, exists := conditions[toID]
	if !exists {
		return false
	}
	return condition == nil || condition()
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(fromID, toID string, condition func() bool) error {
	if fromID == "" || toID == "" {
		return errors.New("transition ids must not be empty")
	}
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}
	sm.transitions[fromID][toID] = condition
	return nil
}

// 状态基础结构，具体状态嵌入后按需覆盖钩子
type Base struct {
	ID string
}

func (s *Base) GetID() string {
	return s.ID
}

func (s *Base) OnEnter() {}

func (s *Base) OnExit() {}
