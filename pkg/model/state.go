package model

// State represents the lifecycle state of a Run or StageRun.
type State string

const (
	StateRunning State = "RUNNING"
	StateSuccess State = "SUCCESS"
	StateFailed  State = "FAILED"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if the state is final.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailed
}

// ValidTransitions defines the allowed state transitions.
var ValidTransitions = map[State][]State{
	StateRunning: {StateSuccess, StateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
