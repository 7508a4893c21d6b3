// Package models provides data structures and state management for covered call positions.
package models

import (
	"fmt"
	"time"
)

// PositionState represents the current state of a position
type PositionState string

const (
	StateNone         PositionState = "none"          // No position held
	StateOpen         PositionState = "open"          // Stock bought and call written
	StateOpenAdjusted PositionState = "open_adjusted" // Call rolled up once
	StateClosed       PositionState = "closed"        // Position closed
)

// Transition conditions
const (
	CondEntry     = "entry"
	CondRollUp    = "roll_up"
	CondAssigned  = "assigned"
	CondExpired   = "expired"
	CondEarlyExit = "early_exit"
	CondEndOfRun  = "end_of_backtest"
)

// StateTransition defines valid state transitions
type StateTransition struct {
	From        PositionState
	To          PositionState
	Condition   string
	Description string
}

// ValidTransitions lists every allowed lifecycle move.
var ValidTransitions = []StateTransition{
	{StateNone, StateOpen, CondEntry, "Bought lot and sold call"},

	{StateOpen, StateOpenAdjusted, CondRollUp, "Bought back call and sold a higher strike"},

	{StateOpen, StateClosed, CondAssigned, "Spot at or above strike on expiry"},
	{StateOpen, StateClosed, CondExpired, "Call expired worthless"},
	{StateOpen, StateClosed, CondEarlyExit, "Exit rule triggered"},
	{StateOpen, StateClosed, CondEndOfRun, "Forced close at end date"},

	{StateOpenAdjusted, StateClosed, CondAssigned, "Spot at or above rolled strike on expiry"},
	{StateOpenAdjusted, StateClosed, CondExpired, "Rolled call expired worthless"},
	{StateOpenAdjusted, StateClosed, CondEarlyExit, "Exit rule triggered after roll"},
	{StateOpenAdjusted, StateClosed, CondEndOfRun, "Forced close at end date"},
}

// StateMachine manages position state transitions
type StateMachine struct {
	transitionTime  time.Time
	transitionCount map[PositionState]int
	currentState    PositionState
	previousState   PositionState
	maxAdjustments  int
}

// NewStateMachine creates a state machine in StateNone allowing one adjustment.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:    StateNone,
		previousState:   StateNone,
		transitionCount: make(map[PositionState]int),
		maxAdjustments:  1,
	}
}

// GetCurrentState returns the current state
func (sm *StateMachine) GetCurrentState() PositionState {
	return sm.currentState
}

// GetPreviousState returns the previous state
func (sm *StateMachine) GetPreviousState() PositionState {
	return sm.previousState
}

// IsValidTransition checks if a transition is valid
func (sm *StateMachine) IsValidTransition(to PositionState, condition string) error {
	if !sm.isTransitionDefined(to, condition) {
		return fmt.Errorf("invalid transition from %s to %s with condition '%s'",
			sm.currentState, to, condition)
	}
	if to == StateOpenAdjusted && sm.transitionCount[StateOpenAdjusted] >= sm.maxAdjustments {
		return fmt.Errorf("maximum adjustments (%d) exceeded", sm.maxAdjustments)
	}
	return nil
}

func (sm *StateMachine) isTransitionDefined(to PositionState, condition string) bool {
	for _, t := range ValidTransitions {
		if t.From == sm.currentState && t.To == to && t.Condition == condition {
			return true
		}
	}
	return false
}

// Transition moves to a new state at simulated time at.
func (sm *StateMachine) Transition(to PositionState, condition string, at time.Time) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}

	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = at
	sm.transitionCount[to]++
	return nil
}

// TransitionTime returns the simulated time of the last transition.
func (sm *StateMachine) TransitionTime() time.Time {
	return sm.transitionTime
}

// GetTransitionCount returns how many times we've been in a state
func (sm *StateMachine) GetTransitionCount(state PositionState) int {
	return sm.transitionCount[state]
}

// IsOpen reports whether a position is currently held.
func (sm *StateMachine) IsOpen() bool {
	return sm.currentState == StateOpen || sm.currentState == StateOpenAdjusted
}

// CanAdjust returns true if the position is open and has not been rolled.
func (sm *StateMachine) CanAdjust() bool {
	return sm.currentState == StateOpen && sm.transitionCount[StateOpenAdjusted] < sm.maxAdjustments
}

// Reset returns the machine to StateNone.
func (sm *StateMachine) Reset() {
	sm.currentState = StateNone
	sm.previousState = StateNone
	sm.transitionTime = time.Time{}
	sm.transitionCount = make(map[PositionState]int)
}

// GetStateDescription returns a human-readable description of the current state
func (sm *StateMachine) GetStateDescription() string {
	switch sm.currentState {
	case StateNone:
		return "No position, waiting for an entry window"
	case StateOpen:
		return "Holding stock with a short call"
	case StateOpenAdjusted:
		return "Holding stock with a rolled-up short call, no further adjustments"
	case StateClosed:
		return "Position closed, ready for next entry window"
	default:
		return "Unknown state"
	}
}

// Copy creates a deep copy of the StateMachine
func (sm *StateMachine) Copy() *StateMachine {
	if sm == nil {
		return nil
	}

	newSM := &StateMachine{
		currentState:   sm.currentState,
		previousState:  sm.previousState,
		transitionTime: sm.transitionTime,
		maxAdjustments: sm.maxAdjustments,
	}

	newSM.transitionCount = make(map[PositionState]int, len(sm.transitionCount))
	for k, v := range sm.transitionCount {
		newSM.transitionCount[k] = v
	}

	return newSM
}
