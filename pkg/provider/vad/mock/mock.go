// Package mock provides a test double for the vad.Gate interface.
//
// Use Gate to script a fixed sequence of speech/silence verdicts for
// endpointing tests.
//
// Example:
//
//	g := &mock.Gate{Verdicts: []bool{false, true, true, false}}
//	speech, _ := g.IsSpeech(sub) // false, then true, true, false, false…
package mock

import (
	"sync"

	"github.com/wisp-assistant/wisp/pkg/provider/vad"
)

// Gate is a mock implementation of vad.Gate.
type Gate struct {
	mu sync.Mutex

	// Verdicts is the scripted sequence of IsSpeech results. Calls beyond the
	// end of the slice return false (silence).
	Verdicts []bool

	// Err, if non-nil, is returned by every IsSpeech call.
	Err error

	// Calls counts invocations of IsSpeech.
	Calls int

	// Resets counts invocations of Reset.
	Resets int
}

// Compile-time assertion that Gate satisfies the vad.Gate interface.
var _ vad.Gate = (*Gate)(nil)

// IsSpeech implements vad.Gate using the scripted verdict sequence.
func (g *Gate) IsSpeech(_ []byte) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.Calls
	g.Calls++
	if g.Err != nil {
		return false, g.Err
	}
	if idx < len(g.Verdicts) {
		return g.Verdicts[idx], nil
	}
	return false, nil
}

// Reset implements vad.Gate.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Resets++
}

// Close implements vad.Gate.
func (g *Gate) Close() error { return nil }
