// Package porcupine provides a Picovoice Porcupine-backed wake-word detector.
// It implements the wake.Detector interface.
package porcupine

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	pv "github.com/Picovoice/porcupine/binding/go/v3"

	"github.com/wisp-assistant/wisp/pkg/provider/wake"
)

// Option is a functional option for configuring the Detector.
type Option func(*Detector)

// WithSensitivity sets the detection sensitivity in [0, 1]. Higher values
// increase recall at the cost of more false triggers. Default: 0.5.
func WithSensitivity(s float64) Option {
	return func(d *Detector) {
		d.sensitivity = float32(s)
	}
}

// WithKeywordPath points the engine at a custom .ppn keyword file instead of
// a built-in keyword.
func WithKeywordPath(path string) Option {
	return func(d *Detector) {
		d.keywordPath = path
	}
}

// Detector implements wake.Detector backed by the Porcupine engine.
type Detector struct {
	engine      pv.Porcupine
	sensitivity float32
	keywordPath string

	once   sync.Once
	closed bool
}

// Compile-time assertion that Detector satisfies the wake.Detector interface.
var _ wake.Detector = (*Detector)(nil)

// New creates a Detector for the given built-in keyword (e.g. "jarvis",
// "porcupine"). accessKey must be a valid Picovoice access key.
func New(accessKey, keyword string, opts ...Option) (*Detector, error) {
	if accessKey == "" {
		return nil, errors.New("porcupine: accessKey must not be empty")
	}

	d := &Detector{sensitivity: 0.5}
	for _, o := range opts {
		o(d)
	}
	if d.sensitivity < 0 || d.sensitivity > 1 {
		return nil, fmt.Errorf("porcupine: sensitivity %.2f is out of range [0, 1]", d.sensitivity)
	}

	d.engine = pv.Porcupine{
		AccessKey:     accessKey,
		Sensitivities: []float32{d.sensitivity},
	}
	if d.keywordPath != "" {
		d.engine.KeywordPaths = []string{d.keywordPath}
	} else {
		if keyword == "" {
			return nil, errors.New("porcupine: keyword must not be empty")
		}
		d.engine.BuiltInKeywords = []pv.BuiltInKeyword{pv.BuiltInKeyword(strings.ToLower(keyword))}
	}

	if err := d.engine.Init(); err != nil {
		return nil, fmt.Errorf("porcupine: init: %w", err)
	}
	return d, nil
}

// Detect implements wake.Detector. It reports whether the wake phrase
// completed within the supplied frame.
func (d *Detector) Detect(pcm []int16) (bool, error) {
	if d.closed {
		return false, errors.New("porcupine: detector is closed")
	}
	idx, err := d.engine.Process(pcm)
	if err != nil {
		return false, fmt.Errorf("porcupine: process: %w", err)
	}
	return idx >= 0, nil
}

// FrameLength returns the engine's required samples per frame (512).
func (d *Detector) FrameLength() int { return pv.FrameLength }

// SampleRate returns the engine's required sample rate (16000 Hz).
func (d *Detector) SampleRate() int { return pv.SampleRate }

// Close releases the engine. Safe to call more than once.
func (d *Detector) Close() error {
	d.once.Do(func() {
		d.closed = true
		d.engine.Delete()
	})
	return nil
}
