package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// deviceBufferFrames is the depth of the internal frame channel. The capture
// callback runs on the audio driver's thread and must never block; if the
// reader falls behind by more than this many frames, frames are dropped and
// counted as overflows.
const deviceBufferFrames = 32

// DeviceConfig describes the capture format for a [DeviceSource].
type DeviceConfig struct {
	// SampleRate in Hz. The wake engine and STT pipeline expect 16000.
	SampleRate int

	// FrameLength is the number of samples per frame. This must match the
	// wake detector's expected frame length (512 for Porcupine).
	FrameLength int
}

// DeviceSource captures PCM16 mono frames from the default system microphone
// via the miniaudio bindings. It implements [Source].
type DeviceSource struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	cfg    DeviceConfig

	frames chan Frame
	done   chan struct{}
	once   sync.Once

	mu        sync.Mutex
	carry     []byte
	captured  time.Duration
	overflows int
}

// NewDeviceSource opens the default capture device and starts the stream.
// The returned source emits frames of exactly cfg.FrameLength samples.
func NewDeviceSource(cfg DeviceConfig) (*DeviceSource, error) {
	if cfg.SampleRate <= 0 || cfg.FrameLength <= 0 {
		return nil, errors.New("audio: sample rate and frame length must be positive")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", ErrDevice)
	}

	s := &DeviceSource{
		ctx:    mctx,
		cfg:    cfg,
		frames: make(chan Frame, deviceBufferFrames),
		done:   make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{Data: s.onRecvFrames}
	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("audio: init device: %w", ErrDevice)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("audio: start device: %w", ErrDevice)
	}
	return s, nil
}

// onRecvFrames runs on the audio driver's thread. It slices incoming sample
// data into fixed-length frames and hands them to the reader without blocking.
func (s *DeviceSource) onRecvFrames(_, pSample []byte, frameCount uint32) {
	if frameCount == 0 {
		return
	}

	frameBytes := s.cfg.FrameLength * 2

	s.mu.Lock()
	s.carry = append(s.carry, pSample...)
	for len(s.carry) >= frameBytes {
		data := make([]byte, frameBytes)
		copy(data, s.carry[:frameBytes])
		s.carry = s.carry[frameBytes:]

		f := Frame{Data: data, SampleRate: s.cfg.SampleRate, Timestamp: s.captured}
		s.captured += f.Duration()

		select {
		case s.frames <- f:
		default:
			s.overflows++
			if s.overflows%100 == 1 {
				slog.Warn("audio: capture buffer overflow, dropping frames", "dropped", s.overflows)
			}
		}
	}
	s.mu.Unlock()
}

// ReadFrame implements [Source]. It blocks until a frame is available, the
// source is closed, or ctx is cancelled.
func (s *DeviceSource) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.done:
		return Frame{}, errors.New("audio: source closed")
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close stops the device and releases it exactly once. Subsequent calls are no-ops.
func (s *DeviceSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.device.Uninit()
		_ = s.ctx.Uninit()
		s.ctx.Free()
	})
	return nil
}

// Overflows reports how many frames were dropped because the reader fell behind.
func (s *DeviceSource) Overflows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflows
}
