// Package wake defines the Detector interface for wake-word engines.
//
// A wake detector is a per-frame classifier: the capture loop feeds it every
// microphone frame while the assistant is not actively listening, and the
// detector reports when the wake phrase was just uttered. Detectors keep an
// opaque internal rolling buffer, so frames must be delivered in capture order.
//
// False positives are the primary nuisance failure mode; engines expose an
// operator-tunable sensitivity in [0, 1] trading recall against false-trigger
// rate. No auto-tuning is attempted.
package wake

// Detector is the abstraction over any wake-word engine.
//
// A Detector is driven by a single capture goroutine and is not required to be
// safe for concurrent use.
type Detector interface {
	// Detect processes one frame of exactly FrameLength samples and reports
	// whether the wake phrase completed within it.
	Detect(pcm []int16) (bool, error)

	// FrameLength returns the number of samples the engine requires per frame.
	FrameLength() int

	// SampleRate returns the sample rate in Hz the engine expects.
	SampleRate() int

	// Close releases engine resources. Safe to call more than once.
	Close() error
}
