package live

import (
	"fmt"
	"sync"
)

// State is the voice tutoring session lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateListening  State = "listening"
	StateSpeaking   State = "speaking"
	StateError      State = "error"
)

// transitions is the allowed edge set. Listening and Speaking flip back and
// forth as turns complete and barge-ins land; Error always drains to Idle.
var transitions = map[State][]State{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateListening, StateIdle, StateError},
	StateListening:  {StateSpeaking, StateIdle, StateError},
	StateSpeaking:   {StateListening, StateIdle, StateError},
	StateError:      {StateIdle},
}

// Label renders the student-facing status line for a state.
func Label(s State) string {
	switch s {
	case StateIdle:
		return "কথা বলতে স্টার্ট চাপো"
	case StateConnecting:
		return "এআই বন্ধুর সাথে সংযোগ হচ্ছে..."
	case StateListening:
		return "এখন বলো! আমি শুনছি..."
	case StateSpeaking:
		return "বাডি বলছে, শোনো..."
	case StateError:
		return "সংযোগ সমস্যা। আবার চেষ্টা করুন..."
	default:
		return ""
	}
}

// Machine guards state transitions for one session.
type Machine struct {
	mu      sync.Mutex
	current State
}

func NewMachine() *Machine {
	return &Machine{current: StateIdle}
}

func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves to the target state, rejecting edges outside the table.
// Moving to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	for _, allowed := range transitions[m.current] {
		if allowed == to {
			m.current = to
			return nil
		}
	}
	return fmt.Errorf("invalid state transition %s -> %s", m.current, to)
}
