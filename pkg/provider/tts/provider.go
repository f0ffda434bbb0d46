// Package tts defines the Provider interface for text-to-speech backends.
//
// Synthesis is per-sentence: the response pipeline splits streamed LLM output
// into sentences and synthesizes each one as soon as it is complete, so
// playback of the first sentence starts while later ones are still being
// generated.
package tts

import (
	"context"
	"io"
)

// VoiceProfile identifies a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-assigned voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider names the backend the voice belongs to (e.g., "elevenlabs").
	Provider string
}

// Provider is the abstraction over any text-to-speech backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Synthesize converts one sentence of text into an audio stream. The
	// returned reader yields encoded audio as the service produces it; the
	// caller must close it. Cancelling ctx aborts the stream mid-read.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (io.ReadCloser, error)
}
