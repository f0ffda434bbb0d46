// Package state holds the assistant's dialogue state machine and the
// interruption signal shared between the capture and playback loops.
//
// The assistant is always in exactly one of four states. The capture loop,
// response pipeline, and playback engine coordinate exclusively through this
// package, so a single mutex-guarded machine is the source of truth for what
// the assistant is doing.
package state

import "sync"

// State is the assistant's dialogue state.
type State int

const (
	// Idle means the assistant is waiting for the wake word.
	Idle State = iota

	// Listening means a transcription session is open and the assistant is
	// capturing a command.
	Listening

	// Thinking means a finalized utterance is being routed and a response is
	// being generated.
	Thinking

	// Speaking means synthesized audio is being played back.
	Speaking
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Machine is a mutex-guarded state holder. The zero value starts in Idle.
type Machine struct {
	mu       sync.Mutex
	current  State
	onChange func(from, to State)
}

// NewMachine creates a Machine in Idle. onChange, if non-nil, is invoked
// after every successful transition while the machine's lock is NOT held, so
// the callback may read the machine but observers must tolerate a transition
// racing the notification.
func NewMachine(onChange func(from, to State)) *Machine {
	return &Machine{onChange: onChange}
}

// Get returns the current state.
func (m *Machine) Get() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set unconditionally transitions to the given state.
func (m *Machine) Set(to State) {
	m.mu.Lock()
	from := m.current
	m.current = to
	m.mu.Unlock()
	if m.onChange != nil && from != to {
		m.onChange(from, to)
	}
}

// CompareAndSwap transitions to the given state only if the machine is
// currently in the expected state. It reports whether the swap happened.
func (m *Machine) CompareAndSwap(expect, to State) bool {
	m.mu.Lock()
	if m.current != expect {
		m.mu.Unlock()
		return false
	}
	m.current = to
	m.mu.Unlock()
	if m.onChange != nil && expect != to {
		m.onChange(expect, to)
	}
	return true
}
