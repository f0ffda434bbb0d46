package energy

import (
	"encoding/binary"
	"testing"

	"github.com/wisp-assistant/wisp/pkg/provider/vad"
)

// tone builds a PCM16 sub-frame of n samples all at the given amplitude.
func tone(n int, amplitude int16) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func TestNew_RejectsBadAggressiveness(t *testing.T) {
	t.Parallel()

	for _, a := range []int{-1, 4} {
		if _, err := New(vad.Config{SampleRate: 16000, Aggressiveness: a}); err == nil {
			t.Errorf("New with aggressiveness %d: expected error", a)
		}
	}
}

func TestIsSpeech_HysteresisEntryAndExit(t *testing.T) {
	t.Parallel()

	g, err := New(vad.Config{SampleRate: 16000, Aggressiveness: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	loud := tone(480, 8000)
	quiet := tone(480, 10)

	// A single loud sub-frame must not flip the gate to speech.
	if got, _ := g.IsSpeech(loud); got {
		t.Fatal("single loud sub-frame should not enter speech")
	}
	// The second consecutive loud sub-frame does.
	if got, _ := g.IsSpeech(loud); !got {
		t.Fatal("two consecutive loud sub-frames should enter speech")
	}

	// Two quiet sub-frames are not enough to leave speech.
	g.IsSpeech(quiet)
	if got, _ := g.IsSpeech(quiet); !got {
		t.Fatal("two quiet sub-frames should not yet exit speech")
	}
	// The third quiet sub-frame exits.
	if got, _ := g.IsSpeech(quiet); got {
		t.Fatal("three consecutive quiet sub-frames should exit speech")
	}
}

func TestIsSpeech_RejectsOddLengthBuffer(t *testing.T) {
	t.Parallel()

	g, _ := New(vad.Config{SampleRate: 16000, Aggressiveness: 1})
	if _, err := g.IsSpeech(make([]byte, 3)); err == nil {
		t.Error("odd-length buffer should be rejected")
	}
}

func TestReset_ClearsSpeechState(t *testing.T) {
	t.Parallel()

	g, _ := New(vad.Config{SampleRate: 16000, Aggressiveness: 2})
	loud := tone(480, 8000)
	g.IsSpeech(loud)
	g.IsSpeech(loud)
	g.Reset()

	if got, _ := g.IsSpeech(tone(480, 10)); got {
		t.Error("after Reset the gate should report silence for quiet input")
	}
}
