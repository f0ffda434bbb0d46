package audio

import "fmt"

// Rechunker re-slices a stream of capture frames into fixed-duration
// sub-frames for the voice activity gate. WebRTC-style VAD models only accept
// sub-frames of exactly 10, 20, or 30 ms, which rarely divides the capture
// frame length evenly, so leftover bytes are carried into the next push.
//
// A Rechunker is not safe for concurrent use; it belongs to the capture loop.
type Rechunker struct {
	subFrameBytes int
	buf           []byte
}

// NewRechunker creates a Rechunker emitting sub-frames of durationMs
// milliseconds at the given sample rate. durationMs must be 10, 20, or 30.
func NewRechunker(sampleRate, durationMs int) (*Rechunker, error) {
	switch durationMs {
	case 10, 20, 30:
	default:
		return nil, fmt.Errorf("audio: sub-frame duration %dms is invalid; must be 10, 20, or 30", durationMs)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: sample rate %d is invalid", sampleRate)
	}
	samples := sampleRate * durationMs / 1000
	return &Rechunker{subFrameBytes: samples * 2}, nil
}

// Push appends frame data to the internal buffer and returns all complete
// sub-frames now available. Each returned slice is an independent copy.
func (r *Rechunker) Push(data []byte) [][]byte {
	r.buf = append(r.buf, data...)

	var out [][]byte
	for len(r.buf) >= r.subFrameBytes {
		sub := make([]byte, r.subFrameBytes)
		copy(sub, r.buf[:r.subFrameBytes])
		r.buf = r.buf[r.subFrameBytes:]
		out = append(out, sub)
	}
	return out
}

// Reset discards any buffered partial sub-frame. Call at the start of each
// listening cycle so stale audio from a previous cycle never leaks forward.
func (r *Rechunker) Reset() {
	r.buf = r.buf[:0]
}

// SubFrameBytes returns the byte length of each emitted sub-frame.
func (r *Rechunker) SubFrameBytes() int {
	return r.subFrameBytes
}
