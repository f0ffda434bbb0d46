package audio

import "context"

// Source abstracts the microphone. Implementations own the device lifecycle:
// the device is opened during construction and released exactly once by Close.
//
// ReadFrame and Close may be called from different goroutines; a Close issued
// while a ReadFrame is blocked must unblock the reader promptly.
type Source interface {
	// ReadFrame blocks until a full frame of the configured size is available
	// and returns it. It returns an error wrapping [ErrDevice] on hardware or
	// driver failure, and a plain error once the source has been closed.
	ReadFrame(ctx context.Context) (Frame, error)

	// Close stops capture and releases the device. Safe to call from a
	// different goroutine than the reader, and safe to call more than once.
	Close() error
}
