package transaction

import "testing"

func TestState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateAutocommitDisabling, true},
		{StateIdle, StateRunning, false},
		{StateAutocommitDisabling, StateRunning, true},
		{StateAutocommitDisabling, StateDone, true},
		{StateAutocommitDisabling, StateAutocommitRestoring, false},
		{StateRunning, StateCommitting, true},
		{StateRunning, StateRollingBack, true},
		{StateRunning, StateDone, false},
		{StateCommitting, StateAutocommitRestoring, true},
		{StateCommitting, StateRollingBack, false},
		{StateRollingBack, StateAutocommitRestoring, true},
		{StateAutocommitRestoring, StateDone, true},
		{StateDone, StateIdle, false},
		{StateDone, StateAutocommitDisabling, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Fatalf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	if StateAutocommitRestoring.String() != "autocommit_restoring" {
		t.Fatalf("unexpected name %q", StateAutocommitRestoring.String())
	}
	if State(99).String() != "state(99)" {
		t.Fatalf("unexpected name for unknown state %q", State(99).String())
	}
}

func TestState_Terminal(t *testing.T) {
	for s := StateIdle; s <= StateDone; s++ {
		if got := s.Terminal(); got != (s == StateDone) {
			t.Fatalf("%s.Terminal() = %v", s, got)
		}
	}
}
