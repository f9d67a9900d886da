package model

import (
	"fmt"
	"strings"
)

// LoopState represents the lifecycle state of a scheduler loop.
type LoopState string

const (
	LoopStateRunning LoopState = "RUNNING"
	LoopStateDrained LoopState = "DRAINED"
	LoopStateFailed  LoopState = "FAILED"
)

// String returns the string representation of the loop state.
func (s LoopState) String() string {
	return string(s)
}

// IsTerminal returns true if the loop will not advance any further.
func (s LoopState) IsTerminal() bool {
	switch s {
	case LoopStateDrained, LoopStateFailed:
		return true
	}
	return false
}

// ValidLoopTransitions defines the allowed state transitions for a loop.
var ValidLoopTransitions = map[LoopState][]LoopState{
	LoopStateRunning: {LoopStateDrained, LoopStateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s LoopState) CanTransitionTo(next LoopState) bool {
	for _, allowed := range ValidLoopTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RunStatus is the persisted outcome of a simulation run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusTruncated RunStatus = "TRUNCATED"
	RunStatusFailed    RunStatus = "FAILED"
)

// ParseRunStatus accepts a status name in any case.
func ParseRunStatus(s string) (RunStatus, error) {
	switch st := RunStatus(strings.ToUpper(s)); st {
	case RunStatusCompleted, RunStatusTruncated, RunStatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown run status %q (want COMPLETED, TRUNCATED or FAILED)", s)
}

// String returns the string representation of the run status.
func (s RunStatus) String() string {
	return string(s)
}
