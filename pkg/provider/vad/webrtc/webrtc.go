// Package webrtc provides a WebRTC VAD-backed voice activity gate.
// It implements the vad.Gate interface.
package webrtc

import (
	"errors"
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/wisp-assistant/wisp/pkg/provider/vad"
)

// Gate implements vad.Gate using the WebRTC voice activity detector.
type Gate struct {
	inner      *webrtcvad.VAD
	sampleRate int
}

// Compile-time assertion that Gate satisfies the vad.Gate interface.
var _ vad.Gate = (*Gate)(nil)

// New creates a Gate with the given configuration. Aggressiveness must be in
// [0, 3]; 3 applies the most aggressive noise rejection.
func New(cfg vad.Config) (*Gate, error) {
	if cfg.Aggressiveness < 0 || cfg.Aggressiveness > 3 {
		return nil, fmt.Errorf("webrtc vad: aggressiveness %d is out of range [0, 3]", cfg.Aggressiveness)
	}
	if cfg.SampleRate <= 0 {
		return nil, errors.New("webrtc vad: sample rate must be positive")
	}

	inner, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create: %w", err)
	}
	if err := inner.SetMode(cfg.Aggressiveness); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %d: %w", cfg.Aggressiveness, err)
	}
	return &Gate{inner: inner, sampleRate: cfg.SampleRate}, nil
}

// IsSpeech implements vad.Gate.
func (g *Gate) IsSpeech(subFrame []byte) (bool, error) {
	if !g.inner.ValidRateAndFrameLength(g.sampleRate, len(subFrame)/2) {
		return false, fmt.Errorf("webrtc vad: invalid sub-frame of %d bytes at %d Hz", len(subFrame), g.sampleRate)
	}
	ok, err := g.inner.Process(g.sampleRate, subFrame)
	if err != nil {
		return false, fmt.Errorf("webrtc vad: process: %w", err)
	}
	return ok, nil
}

// Reset implements vad.Gate. The WebRTC detector is stateless per sub-frame,
// so there is nothing to clear.
func (g *Gate) Reset() {}

// Close implements vad.Gate.
func (g *Gate) Close() error { return nil }
