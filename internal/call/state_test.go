package call

import "testing"

func TestMachineForwardOnly(t *testing.T) {
	m := NewMachine("c1", nil)

	steps := []State{StateCalling, StateRinging, StateConnecting, StateConnected}
	for _, s := range steps {
		if !m.Transition(s, nil, "") {
			t.Fatalf("transition to %v rejected", s)
		}
	}
	if m.Current() != StateConnected {
		t.Fatalf("current = %v", m.Current())
	}

	// Backward and repeated transitions are rejected.
	if m.Transition(StateRinging, nil, "") {
		t.Fatalf("backward transition accepted")
	}
	if m.Transition(StateConnected, nil, "") {
		t.Fatalf("same-state transition accepted")
	}
}

func TestMachineCalleeEntersViaConnecting(t *testing.T) {
	m := NewMachine("c1", nil)
	if !m.Transition(StateConnecting, nil, "") {
		t.Fatalf("idle to connecting rejected")
	}
	if !m.Transition(StateConnected, nil, "") {
		t.Fatalf("connecting to connected rejected")
	}
}

func TestMachineRingingSkippedUnderRace(t *testing.T) {
	m := NewMachine("c1", nil)
	m.Transition(StateCalling, nil, "")
	// The answered status can arrive before the ringing snapshot.
	if !m.Transition(StateConnecting, nil, "") {
		t.Fatalf("calling to connecting rejected")
	}
}

func TestMachineEndedIsAbsorbing(t *testing.T) {
	var events []Event
	m := NewMachine("c1", func(ev Event) { events = append(events, ev) })

	m.Transition(StateCalling, nil, "")
	if !m.Transition(StateEnded, nil, StatusMissed) {
		t.Fatalf("ended rejected")
	}
	if m.Transition(StateEnded, nil, StatusCompleted) {
		t.Fatalf("duplicate ended accepted")
	}
	if m.Transition(StateConnected, nil, "") {
		t.Fatalf("transition after ended accepted")
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	last := events[len(events)-1]
	if last.State != StateEnded || last.Reason != StatusMissed {
		t.Fatalf("last event: %+v", last)
	}
}

func TestMachineEndedReachableFromEverywhere(t *testing.T) {
	for _, start := range []State{StateIdle, StateCalling, StateRinging, StateConnecting, StateConnected} {
		m := NewMachine("c1", nil)
		for _, s := range []State{StateCalling, StateRinging, StateConnecting, StateConnected} {
			if s > start {
				break
			}
			m.Transition(s, nil, "")
		}
		if !m.Transition(StateEnded, nil, StatusError) {
			t.Fatalf("ended rejected from %v", start)
		}
	}
}
