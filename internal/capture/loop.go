// Package capture runs the microphone-facing loop of the assistant: wake-word
// gating, VAD endpointing, and driving the streaming transcription session.
//
// The loop owns the listening half of the state machine. It is the only
// goroutine that opens transcription sessions, and at most one session is
// live at any time. Finalized utterances are handed to the response pipeline
// over a single-producer/single-consumer channel.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/wisp-assistant/wisp/internal/observe"
	"github.com/wisp-assistant/wisp/internal/state"
	"github.com/wisp-assistant/wisp/pkg/audio"
	"github.com/wisp-assistant/wisp/pkg/provider/stt"
	"github.com/wisp-assistant/wisp/pkg/provider/vad"
	"github.com/wisp-assistant/wisp/pkg/provider/wake"
)

// ConfirmToken is the synthetic utterance enqueued ahead of the raw text when
// a pending confirmation matched the fixed phrase vocabulary. The response
// pipeline treats it as an immediate confirmation.
const ConfirmToken = "__confirm__"

// maxSendFailures is the number of consecutive SendAudio failures that forces
// early finalization of the listening cycle.
const maxSendFailures = 3

// deviceBackoff is how long the loop pauses after a device failure before
// reading again.
const deviceBackoff = time.Second

// Aborter stops in-flight playback. Implemented by the playback engine.
type Aborter interface {
	Abort()
}

// ConfirmGate exposes the dialogue context bits the capture loop needs: is a
// confirmation pending, and does a transcript count as one.
type ConfirmGate interface {
	AwaitingConfirmation() bool
	MatchesConfirmation(text string) bool
}

// Config holds capture loop tuning derived from the application config.
type Config struct {
	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// SubFrameMs is the VAD sub-frame duration (10, 20, or 30).
	SubFrameMs int

	// Language is the transcription language code.
	Language string

	// MaxSilence is how much trailing silence after speech ends the
	// utterance.
	MaxSilence time.Duration

	// PauseThreshold is the interim-transcript pause used for the stall
	// fallback; the loop finalizes after twice this without an update.
	PauseThreshold time.Duration

	// OpenTimeout bounds the transcription session handshake.
	OpenTimeout time.Duration
}

// Loop is the capture loop. Construct with New and drive with Run.
type Loop struct {
	cfg       Config
	source    audio.Source
	wake      wake.Detector
	gate      vad.Gate
	stt       stt.Provider
	machine   *state.Machine
	interrupt *state.InterruptSignal
	playback  Aborter
	dialogue  ConfirmGate
	out       chan<- string
	metrics   *observe.Metrics
	log       *slog.Logger

	rechunker *audio.Rechunker
	maxFrames int
}

// New builds a capture loop. out receives finalized utterances (and synthetic
// confirmation tokens); the channel should be buffered so a busy pipeline
// does not stall audio capture.
func New(
	cfg Config,
	source audio.Source,
	wakeDet wake.Detector,
	gate vad.Gate,
	provider stt.Provider,
	machine *state.Machine,
	interrupt *state.InterruptSignal,
	playback Aborter,
	dialogue ConfirmGate,
	out chan<- string,
	metrics *observe.Metrics,
) (*Loop, error) {
	rechunker, err := audio.NewRechunker(cfg.SampleRate, cfg.SubFrameMs)
	if err != nil {
		return nil, err
	}
	subFrame := time.Duration(cfg.SubFrameMs) * time.Millisecond
	maxFrames := int(cfg.MaxSilence / subFrame)
	if maxFrames <= 0 {
		maxFrames = 1
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Loop{
		cfg:       cfg,
		source:    source,
		wake:      wakeDet,
		gate:      gate,
		stt:       provider,
		machine:   machine,
		interrupt: interrupt,
		playback:  playback,
		dialogue:  dialogue,
		out:       out,
		metrics:   metrics,
		log:       slog.Default().With("component", "capture"),
		rechunker: rechunker,
		maxFrames: maxFrames,
	}, nil
}

// Run drives the loop until ctx is cancelled. It never returns a non-nil
// error for per-turn failures; only context cancellation ends it.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("capture loop running",
		"sample_rate", l.cfg.SampleRate,
		"sub_frame_ms", l.cfg.SubFrameMs,
		"max_silence_frames", l.maxFrames)

	for {
		frame, err := l.source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.handleDeviceError(ctx, err)
			continue
		}

		// Wake detection runs in every state except Listening; Listening is
		// handled as its own inner loop.
		if l.machine.Get() == state.Listening {
			// Should not happen: listen() owns the Listening state.
			l.machine.Set(state.Idle)
			continue
		}

		hit, err := l.wake.Detect(frame.Samples())
		if err != nil {
			l.log.Warn("wake detector error", "err", err)
			continue
		}
		if !hit {
			continue
		}

		l.onWake(ctx)
	}
}

// onWake handles a wake-word hit: preempts any in-flight turn, opens a
// transcription session, and runs the listening phase.
func (l *Loop) onWake(ctx context.Context) {
	prev := l.machine.Get()
	l.log.Info("wake word detected", "while", prev.String())
	l.metrics.RecordWake(ctx, prev.String())

	// Preempt whatever the assistant was doing. Raise is idempotent; the
	// pipeline and playback poll it between chunks.
	if l.interrupt.Raise() && prev != state.Idle {
		l.metrics.Interruptions.Add(ctx, 1)
	}
	l.playback.Abort()

	// The signal is cleared exactly once per new listening cycle, after the
	// preempted turn has been torn down.
	l.interrupt.Clear()
	l.gate.Reset()
	l.rechunker.Reset()

	openCtx, cancel := context.WithTimeout(ctx, l.cfg.OpenTimeout)
	sess, err := l.stt.OpenSession(openCtx, stt.SessionConfig{
		SampleRate: l.cfg.SampleRate,
		Language:   l.cfg.Language,
	})
	cancel()
	if err != nil {
		// No retry until the next wake word.
		l.log.Warn("transcription session open failed, returning to idle", "err", err)
		l.metrics.RecordProviderError(ctx, "stt", "open")
		l.machine.Set(state.Idle)
		return
	}

	l.machine.Set(state.Listening)
	l.listen(ctx, sess)
}

// listen runs one listening cycle: it forwards speech to the session, counts
// silence for endpointing, and finalizes exactly once.
func (l *Loop) listen(ctx context.Context, sess stt.Session) {
	var (
		voiceFrames   int
		silenceFrames int
		sendFailures  int
		transcript    string
		finalized     bool
		startedAt     = time.Now()
		lastUpdate    = startedAt
	)

	// finalize closes the session and routes the transcript. The guard makes
	// end-of-utterance fire exactly once per cycle even when the VAD endpoint
	// and the stall timeout race.
	finalize := func() {
		if finalized {
			return
		}
		finalized = true
		sess.Close()
		l.metrics.ListenDuration.Record(ctx, time.Since(startedAt).Seconds())

		text := strings.ToLower(strings.TrimSpace(transcript))
		if text == "" {
			l.log.Info("no command heard, returning to idle")
			l.metrics.EmptyCaptures.Add(ctx, 1)
			l.machine.Set(state.Idle)
			return
		}

		l.log.Info("utterance finalized", "text", text)
		l.machine.Set(state.Thinking)
		if l.dialogue.AwaitingConfirmation() && l.dialogue.MatchesConfirmation(text) {
			l.deliver(ctx, ConfirmToken)
		}
		l.deliver(ctx, text)
	}

	for !finalized {
		frame, err := l.source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				sess.Close()
				l.machine.Set(state.Idle)
				return
			}
			sess.Close()
			finalized = true
			l.handleDeviceError(ctx, err)
			return
		}

		// Apply any transcript updates that arrived since the last frame.
		for drained := false; !drained; {
			select {
			case t, ok := <-sess.Updates():
				if !ok {
					drained = true
					break
				}
				transcript = t.Text
				lastUpdate = time.Now()
			default:
				drained = true
			}
		}

		for _, sub := range l.rechunker.Push(frame.Data) {
			speech, verr := l.gate.IsSpeech(sub)
			if verr != nil {
				l.log.Warn("vad error, treating sub-frame as silence", "err", verr)
			}

			if speech {
				silenceFrames = 0
				voiceFrames++
				l.sendAudio(sess, sub, &sendFailures)
			} else {
				silenceFrames++
				// Forward brief trailing silence so the service hears the
				// natural end of the phrase.
				if voiceFrames > 0 && silenceFrames <= l.maxFrames {
					l.sendAudio(sess, sub, &sendFailures)
				}
				if voiceFrames > 0 && silenceFrames >= l.maxFrames {
					finalize()
					return
				}
			}

			if sendFailures >= maxSendFailures {
				l.log.Warn("transcription transport failing, finalizing early",
					"consecutive_failures", sendFailures)
				l.metrics.RecordProviderError(ctx, "stt", "send")
				finalize()
				return
			}
		}

		// Stall fallback: the transcriber has gone quiet even though frames
		// keep flowing. Twice the pause threshold, per the capture contract.
		if time.Since(lastUpdate) > 2*l.cfg.PauseThreshold {
			l.log.Info("transcript stalled, finalizing", "idle", time.Since(lastUpdate).Round(time.Millisecond))
			finalize()
			return
		}
	}
}

// sendAudio forwards one sub-frame, tracking consecutive failures. Send
// errors are non-fatal: the frame is dropped and the counter advances.
func (l *Loop) sendAudio(sess stt.Session, sub []byte, failures *int) {
	if err := sess.SendAudio(sub); err != nil {
		*failures++
		l.log.Debug("send audio failed", "err", err, "consecutive", *failures)
		return
	}
	*failures = 0
}

// deliver pushes an utterance (or token) to the pipeline without blocking
// forever on a stuck consumer.
func (l *Loop) deliver(ctx context.Context, text string) {
	select {
	case l.out <- text:
	case <-ctx.Done():
	}
}

// handleDeviceError logs a microphone failure, forces Idle, and backs off
// briefly so a dead device does not spin the loop.
func (l *Loop) handleDeviceError(ctx context.Context, err error) {
	if !errors.Is(err, audio.ErrDevice) {
		l.log.Error("unexpected read error", "err", err)
	} else {
		l.log.Error("capture device failure", "err", err)
	}
	l.machine.Set(state.Idle)
	select {
	case <-time.After(deviceBackoff):
	case <-ctx.Done():
	}
}
