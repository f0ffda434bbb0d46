// Package energy provides a pure-Go voice activity gate based on RMS energy
// with hysteresis, for builds where the WebRTC detector is unavailable.
// It implements the vad.Gate interface.
package energy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wisp-assistant/wisp/pkg/provider/vad"
)

// Thresholds per aggressiveness level. Higher aggressiveness raises the RMS
// level required to enter speech and the level below which speech ends.
var levelThresholds = [4]struct{ speech, silence float64 }{
	{0.008, 0.004},
	{0.012, 0.006},
	{0.015, 0.008},
	{0.020, 0.011},
}

// Gate implements vad.Gate using RMS energy with hysteresis: a few consecutive
// loud sub-frames are needed to enter speech, and a few quiet ones to leave it,
// so the verdict does not flicker at the threshold boundary.
type Gate struct {
	speechThreshold  float64
	silenceThreshold float64
	entryFrames      int
	exitFrames       int

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// Compile-time assertion that Gate satisfies the vad.Gate interface.
var _ vad.Gate = (*Gate)(nil)

// New creates a Gate with the given configuration.
func New(cfg vad.Config) (*Gate, error) {
	if cfg.Aggressiveness < 0 || cfg.Aggressiveness > 3 {
		return nil, fmt.Errorf("energy vad: aggressiveness %d is out of range [0, 3]", cfg.Aggressiveness)
	}
	th := levelThresholds[cfg.Aggressiveness]
	return &Gate{
		speechThreshold:  th.speech,
		silenceThreshold: th.silence,
		entryFrames:      2,
		exitFrames:       3,
	}, nil
}

// IsSpeech implements vad.Gate.
func (g *Gate) IsSpeech(subFrame []byte) (bool, error) {
	if len(subFrame) == 0 || len(subFrame)%2 != 0 {
		return false, fmt.Errorf("energy vad: sub-frame of %d bytes is not PCM16", len(subFrame))
	}

	level := rms(subFrame)

	if g.inSpeech {
		if level < g.silenceThreshold {
			g.silenceCount++
			if g.silenceCount >= g.exitFrames {
				g.inSpeech = false
				g.silenceCount = 0
			}
		} else {
			g.silenceCount = 0
		}
	} else {
		if level >= g.speechThreshold {
			g.speechCount++
			if g.speechCount >= g.entryFrames {
				g.inSpeech = true
				g.speechCount = 0
			}
		} else {
			g.speechCount = 0
		}
	}
	return g.inSpeech, nil
}

// Reset implements vad.Gate.
func (g *Gate) Reset() {
	g.inSpeech = false
	g.speechCount = 0
	g.silenceCount = 0
}

// Close implements vad.Gate.
func (g *Gate) Close() error { return nil }

// rms computes the root-mean-square level of a PCM16 buffer, normalised to [0, 1].
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / math.MaxInt16
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
