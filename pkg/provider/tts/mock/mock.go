// Package mock provides a test double for the tts.Provider interface.
//
// Each Synthesize call returns a reader over the configured Audio bytes and
// records the text it was asked to speak.
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/wisp-assistant/wisp/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the sentence passed to Synthesize.
	Text string
	// Voice is the voice profile passed to Synthesize.
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is the byte stream returned for every Synthesize call.
	Audio []byte

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// Calls records every invocation of Synthesize in order.
	Calls []SynthesizeCall
}

// Compile-time assertion that Provider satisfies the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns a reader over Audio.
func (p *Provider) Synthesize(_ context.Context, text string, voice tts.VoiceProfile) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Voice: voice})
	if p.Err != nil {
		return nil, p.Err
	}
	return io.NopCloser(bytes.NewReader(p.Audio)), nil
}

// SpokenTexts returns the text of every recorded call, in order.
func (p *Provider) SpokenTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}
