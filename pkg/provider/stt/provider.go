// Package stt defines the streaming speech-to-text provider interface.
//
// A Session is a single live transcription stream: the capture loop pushes
// raw PCM16 chunks in with SendAudio and receives cumulative transcript
// updates on the Updates channel. Each update carries the full text of the
// utterance so far, so consumers keep only the latest one.
package stt

import (
	"context"
	"time"
)

// Transcript is one transcription update from a streaming session. Updates are
// cumulative: Text is the complete recognised text of the utterance so far,
// not a delta.
type Transcript struct {
	// Text is the cumulative transcribed text of the utterance.
	Text string

	// ReceivedAt marks when the update arrived from the service.
	ReceivedAt time.Time
}

// SessionConfig holds per-session parameters passed to OpenSession.
type SessionConfig struct {
	// SampleRate is the audio sample rate in Hz of the chunks that will be sent.
	SampleRate int

	// Language is the BCP-47 language code for recognition (e.g., "en").
	// Empty means the provider default.
	Language string
}

// Provider opens streaming transcription sessions.
type Provider interface {
	// OpenSession dials the transcription service and returns a live session.
	// The dial is bound by ctx: callers typically pass a context with a short
	// timeout so a slow handshake fails the listening cycle instead of
	// hanging it.
	OpenSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is a live streaming transcription session.
type Session interface {
	// SendAudio queues one PCM16 chunk for delivery. It is fire-and-forget:
	// the chunk is buffered and sent asynchronously. An error means the
	// session can no longer accept audio.
	SendAudio(chunk []byte) error

	// Updates returns the channel of cumulative transcript updates. The
	// channel is closed when the session ends.
	Updates() <-chan Transcript

	// Close terminates the session. Safe to call more than once.
	Close() error
}
