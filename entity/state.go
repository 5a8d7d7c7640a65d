package entity

type State string

const (
	StateSent      State = "SENT"
	StateConfirmed State = "CONFIRMED"
	StateExecuted  State = "EXECUTED"
	StateFailed    State = "FAILED"
)

var transitions = map[State][]State{
	StateSent:      {StateConfirmed, StateFailed},
	StateConfirmed: {StateConfirmed, StateExecuted, StateFailed},
}

func (s State) IsValid() bool {
	switch s {
	case StateSent, StateConfirmed, StateExecuted, StateFailed:
		return true
	}
	return false
}

func (s State) IsTerminal() bool {
	return s == StateExecuted || s == StateFailed
}

// CanTransitionTo reports whether a record in state s may be moved to next.
// CONFIRMED -> CONFIRMED is the only self transition, used to record a retry.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
