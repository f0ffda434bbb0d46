// Package vad defines the Gate interface for voice activity detection.
//
// A gate is a per-sub-frame classifier: given a short PCM16 sub-frame of
// exactly 10, 20, or 30 ms, it reports speech or silence. The capture loop
// uses the verdicts to drive endpoint detection (deciding when the speaker
// has finished a command).
//
// Gates are synchronous by design: IsSpeech returns immediately, making it
// suitable for the frame-rate capture loop. A single Gate is driven by one
// goroutine and is not required to be safe for concurrent use.
package vad

// Config holds the parameters for constructing a gate.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// sub-frames passed to IsSpeech. Common values: 8000, 16000, 32000, 48000.
	SampleRate int

	// Aggressiveness selects noise-rejection strength in [0, 3], 3 being the
	// most aggressive (fewest false speech verdicts, most clipped speech).
	Aggressiveness int
}

// Gate is the abstraction over any voice activity detector.
type Gate interface {
	// IsSpeech classifies one sub-frame of exactly 10, 20, or 30 ms of PCM16
	// audio at the configured sample rate. Returns an error for malformed
	// sub-frame sizes or internal engine failures.
	IsSpeech(subFrame []byte) (bool, error)

	// Reset clears accumulated smoothing state, if any. Call at the start of
	// each listening cycle.
	Reset()

	// Close releases engine resources. Safe to call more than once.
	Close() error
}
