package state

import "sync"

// InterruptSignal is a latched flag raised when the wake word fires during
// response generation or playback. Raising it is idempotent; the pipeline and
// playback engine poll Raised between chunks and abandon their work as soon
// as it reports true. The capture loop clears it before the next listening
// cycle begins.
type InterruptSignal struct {
	mu     sync.Mutex
	raised bool
	raises int
}

// Raise latches the signal. It reports whether this call changed the signal
// from clear to raised, so callers can count distinct interruptions.
func (s *InterruptSignal) Raise() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raised {
		return false
	}
	s.raised = true
	s.raises++
	return true
}

// Clear resets the signal.
func (s *InterruptSignal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raised = false
}

// Raised reports whether the signal is currently latched.
func (s *InterruptSignal) Raised() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raised
}

// Count returns the total number of distinct raises since startup.
func (s *InterruptSignal) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raises
}
