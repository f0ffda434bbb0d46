// Package audio defines the frame types and capture abstractions used by the
// Wisp pipeline.
//
// Frames are the atomic unit of audio transport: the capture device produces
// fixed-length PCM16 mono frames at a fixed cadence, the wake detector consumes
// them whole, and the [Rechunker] re-slices them into the exact sub-frame sizes
// required by the voice activity gate.
package audio

import (
	"encoding/binary"
	"errors"
	"time"
)

// ErrDevice indicates a microphone hardware or driver failure. Callers should
// treat it as transient: log, back off briefly, and resume reading.
var ErrDevice = errors.New("audio: capture device failure")

// Frame is a single fixed-length frame of PCM16 mono audio.
// A Frame is owned by the reader for the duration of one loop iteration and
// must not be retained across reads.
type Frame struct {
	// Data is raw little-endian PCM16 sample data.
	Data []byte

	// SampleRate in Hz (16000 for the wake/STT pipeline).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the frame's data decoded as int16 samples.
// Wake engines operate on sample slices rather than raw bytes.
func (f Frame) Samples() []int16 {
	out := make([]int16, len(f.Data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(f.Data[i*2:]))
	}
	return out
}

// Duration returns the wall-clock length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	samples := len(f.Data) / 2
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
