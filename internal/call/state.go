package call

import "sync"

// State is the single coarse-grained call state exposed to the UI layer.
type State int

const (
	StateIdle State = iota
	StateCalling
	StateRinging
	StateConnecting
	StateConnected
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalling:
		return "calling"
	case StateRinging:
		return "ringing"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event is the coarse per-transition notification consumed by the UI layer.
type Event struct {
	CallID string `json:"call_id"`
	State  State  `json:"state"`
	Err    error  `json:"-"`

	// Reason carries the terminal status on ENDED events.
	Reason Status `json:"reason,omitempty"`
}

// validTransitions encodes the forward-only lifecycle. ENDED is reachable
// from every state and is absorbing; a new call id starts a new machine.
// IDLE→CONNECTING is the answering device's entry into an already-ringing call.
var validTransitions = map[State][]State{
	StateIdle:       {StateCalling, StateConnecting},
	StateCalling:    {StateRinging, StateConnecting},
	StateRinging:    {StateConnecting},
	StateConnecting: {StateConnected},
	StateConnected:  {},
}

// Machine validates and tracks one call's lifecycle. It performs no I/O; each
// accepted transition is emitted as a single event through the sink.
type Machine struct {
	mu      sync.Mutex
	callID  string
	current State
	sink    func(Event)
}

// NewMachine returns a machine in StateIdle. sink may be nil.
func NewMachine(callID string, sink func(Event)) *Machine {
	if sink == nil {
		sink = func(Event) {}
	}
	return &Machine{callID: callID, current: StateIdle, sink: sink}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition attempts to move to the target state, emitting one event on
// success. Re-entering the current state and invalid (backward) transitions
// are rejected and report false; duplicate channel deliveries therefore
// produce no duplicate events.
func (m *Machine) Transition(to State, err error, reason Status) bool {
	m.mu.Lock()
	if to == m.current {
		m.mu.Unlock()
		return false
	}
	if to != StateEnded && !allowed(m.current, to) {
		m.mu.Unlock()
		return false
	}
	if m.current == StateEnded {
		m.mu.Unlock()
		return false
	}
	m.current = to
	sink := m.sink
	ev := Event{CallID: m.callID, State: to, Err: err, Reason: reason}
	m.mu.Unlock()

	sink(ev)
	return true
}

func allowed(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
