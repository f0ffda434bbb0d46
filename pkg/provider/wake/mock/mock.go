// Package mock provides a test double for the wake.Detector interface.
//
// Use Detector in unit tests to script wake hits at specific frame indices
// without a live engine.
//
// Example:
//
//	d := &mock.Detector{HitFrames: map[int]bool{3: true}}
//	hit, _ := d.Detect(pcm) // true on the 4th call
package mock

import (
	"sync"

	"github.com/wisp-assistant/wisp/pkg/provider/wake"
)

// Detector is a mock implementation of wake.Detector.
type Detector struct {
	mu sync.Mutex

	// HitFrames maps zero-based Detect call indices to hit results. Calls not
	// present in the map report no hit.
	HitFrames map[int]bool

	// Err, if non-nil, is returned by every Detect call.
	Err error

	// Frames is the value returned by FrameLength. Defaults to 512 when zero.
	Frames int

	// Rate is the value returned by SampleRate. Defaults to 16000 when zero.
	Rate int

	// DetectCalls counts invocations of Detect.
	DetectCalls int

	// Closed reports whether Close has been called.
	Closed bool
}

// Compile-time assertion that Detector satisfies the wake.Detector interface.
var _ wake.Detector = (*Detector)(nil)

// Detect implements wake.Detector using the scripted HitFrames map.
func (d *Detector) Detect(_ []int16) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.DetectCalls
	d.DetectCalls++
	if d.Err != nil {
		return false, d.Err
	}
	return d.HitFrames[idx], nil
}

// FrameLength implements wake.Detector.
func (d *Detector) FrameLength() int {
	if d.Frames == 0 {
		return 512
	}
	return d.Frames
}

// SampleRate implements wake.Detector.
func (d *Detector) SampleRate() int {
	if d.Rate == 0 {
		return 16000
	}
	return d.Rate
}

// Close implements wake.Detector.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}
