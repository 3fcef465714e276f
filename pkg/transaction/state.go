package transaction

import "fmt"

// State is a step of the transaction protocol for one wrapped invocation.
type State int32

// Protocol states, in the order a successful invocation visits them.
const (
	StateIdle State = iota
	StateAutocommitDisabling
	StateRunning
	StateCommitting
	StateRollingBack
	StateAutocommitRestoring
	StateDone
)

var stateNames = map[State]string{
	StateIdle:                "idle",
	StateAutocommitDisabling: "autocommit_disabling",
	StateRunning:             "running",
	StateCommitting:          "committing",
	StateRollingBack:         "rolling_back",
	StateAutocommitRestoring: "autocommit_restoring",
	StateDone:                "done",
}

// transitions lists every legal successor. A failed begin goes straight to
// done; every other path restores autocommit first.
var transitions = map[State][]State{
	StateIdle:                {StateAutocommitDisabling},
	StateAutocommitDisabling: {StateRunning, StateDone},
	StateRunning:             {StateCommitting, StateRollingBack},
	StateCommitting:          {StateAutocommitRestoring},
	StateRollingBack:         {StateAutocommitRestoring},
	StateAutocommitRestoring: {StateDone},
}

// String returns the snake_case state name used in logs and metrics.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// CanTransition reports whether to is a legal successor of s.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is the final state.
func (s State) Terminal() bool {
	return s == StateDone
}

// Result classifies how an invocation ended.
type Result string

const (
	// ResultCommitted means the work succeeded and the commit went through.
	ResultCommitted Result = "committed"
	// ResultRolledBack means the work failed and a rollback was attempted.
	ResultRolledBack Result = "rolled_back"
	// ResultBeginFailed means autocommit could not be disabled; the work never ran.
	ResultBeginFailed Result = "begin_failed"
	// ResultCommitFailed means the work succeeded but the commit failed.
	ResultCommitFailed Result = "commit_failed"
)
