package state

import (
	"sync"
	"sync/atomic"
	"testing"
)

// MockState is a test double for the State interface.
// It helps us track which methods have been called.
type MockState struct {
	ID            string
	OnEnterCalled int32
	OnExitCalled  int32
}

func (m *MockState) OnEnter() {
	atomic.AddInt32(&m.OnEnterCalled, 1)
}

func (m *MockState) OnExit() {
	atomic.AddInt32(&m.OnExitCalled, 1)
}

func (m *MockState) GetID() string {
	return m.ID
}

// reset clears the call tracking counters.
func (m *MockState) reset() {
	atomic.StoreInt32(&m.OnEnterCalled, 0)
	atomic.StoreInt32(&m.OnExitCalled, 0)
}

func TestStateMachine_InitialState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	sm := NewBaseStateMachine(initialState)

	if initialState.OnEnterCalled != 1 {
		t.Error("Expected OnEnter to be called on the initial state")
	}

	if sm.GetCurrentState() != initialState {
		t.Error("GetCurrentState should return the initial state")
	}
}

func TestStateMachine_ChangeState(t *testing.T) {
	initialState := &MockState{ID: "initial"}
	nextState := &MockState{ID: "next"}

	sm := NewBaseStateMachine(initialState)
	initialState.reset() // Reset after initialization

	err := sm.ChangeState(nextState)
	if err != nil {
		t.Fatalf("ChangeState should not return an error, but got: %v", err)
	}

	if initialState.OnExitCalled != 1 {
		t.Error("Expected OnExit to be called on the old state")
	}

	if nextState.OnEnterCalled != 1 {
		t.Error("Expected OnEnter to be called on the new state")
	}

	if sm.GetCurrentState() != nextState {
		t.Error("GetCurrentState should return the new state")
	}
}

func TestStateMachine_AddAndUseTransition(t *testing.T) {
	stateA := &MockState{ID: "A"}
	stateB := &MockState{ID: "B"}
	stateC := &MockState{ID: "C"}

	sm := NewBaseStateMachine(stateA)

	// Add a valid transition from A to B
	if err := sm.AddTransition("A", "B", func() bool { return true }); err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	// Add a blocked transition from B to C
	if err := sm.AddTransition("B", "C", func() bool { return false }); err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	// --- Test valid transition ---
	stateA.reset()
	if err := sm.ChangeState(stateB); err != nil {
		t.Errorf("Expected transition from A to B to be allowed, but got error: %v", err)
	}
	if sm.GetCurrentState().GetID() != "B" {
		t.Errorf("Expected current state to be B, but got %s", sm.GetCurrentState().GetID())
	}

	// --- Test blocked transition ---
	stateB.reset()
	err := sm.ChangeState(stateC)
	if err != ErrTransitionNotAllowed {
		t.Errorf("Expected ErrTransitionNotAllowed, but got: %v", err)
	}
	if sm.GetCurrentState().GetID() != "B" {
		t.Errorf("Expected current state to remain B after a blocked transition, but got %s", sm.GetCurrentState().GetID())
	}
	if stateB.OnExitCalled != 0 {
		t.Error("OnExit should not be called on the current state if transition is blocked")
	}
	if stateC.OnEnterCalled != 0 {
		t.Error("OnEnter should not be called on the new state if transition is blocked")
	}
}

func TestStateMachine_ClosedGraphRejectsUndeclared(t *testing.T) {
	sm := NewBaseStateMachine(&MockState{ID: "A"})
	if err := sm.AddTransition("A", "B", nil); err != nil {
		t.Fatalf("AddTransition failed: %v", err)
	}

	if err := sm.ChangeState(&MockState{ID: "C"}); err != ErrTransitionNotAllowed {
		t.Fatalf("Expected undeclared A->C to be rejected, got: %v", err)
	}
	if err := sm.ChangeState(&MockState{ID: "B"}); err != nil {
		t.Fatalf("Expected A->B to be allowed, got: %v", err)
	}
	// B declares nothing, so it is terminal
	if err := sm.ChangeState(&MockState{ID: "A"}); err != ErrTransitionNotAllowed {
		t.Fatalf("Expected terminal state to reject transitions, got: %v", err)
	}
}

func TestStateMachine_CompareAndChange_SingleWinner(t *testing.T) {
	sm := NewBaseStateMachine(&MockState{ID: "starting"})
	_ = sm.AddTransition("starting", "in_progress", nil)

	var wins int32
	var entered int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := &MockState{ID: "in_progress"}
			if err := sm.CompareAndChange("starting", next); err == nil {
				atomic.AddInt32(&wins, 1)
				atomic.AddInt32(&entered, atomic.LoadInt32(&next.OnEnterCalled))
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("Expected exactly one winning transition, got %d", wins)
	}
	if entered != 1 {
		t.Fatalf("Expected OnEnter once, got %d", entered)
	}
	if err := sm.CompareAndChange("starting", &MockState{ID: "in_progress"}); err != ErrStateChanged {
		t.Fatalf("Expected ErrStateChanged for a stale expectation, got: %v", err)
	}
}
