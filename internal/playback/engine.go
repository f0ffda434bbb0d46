// Package playback turns sentences into audible speech: a single consumer
// loop pulls from the sentence queue, synthesizes each sentence, and pipes
// the encoded audio into a spawned player process.
//
// The engine is the other half of barge-in. Abort kills the in-flight player
// and drains the queue, so a wake word mid-answer silences the assistant
// within one audio chunk.
package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/wisp-assistant/wisp/internal/observe"
	"github.com/wisp-assistant/wisp/internal/state"
	"github.com/wisp-assistant/wisp/pkg/provider/tts"
)

// queueCapacity bounds the sentence backlog. A streamed answer produces
// sentences faster than they play; the queue absorbs the difference.
const queueCapacity = 64

// copyChunkSize is how much synthesized audio is piped per write. Small
// enough that an abort lands within tens of milliseconds of playback.
const copyChunkSize = 4096

// abortWait bounds how long an abort waits for the player to die.
const abortWait = time.Second

// playerCandidates are tried in order when no player is configured.
var playerCandidates = []string{"mpv", "ffplay"}

// playerArgs maps a player binary to the flags that make it read encoded
// audio from stdin with minimal buffering.
var playerArgs = map[string][]string{
	"mpv":    {"--no-cache", "--audio-buffer=0.1", "-", "--no-msg-color"},
	"ffplay": {"-autoexit", "-", "-nodisp"},
}

// ConfirmWatcher is the slice of the dialogue context the engine reads when
// it drains a turn: a pending confirmation keeps the exchange open, so the
// sentinel must not force Idle.
type ConfirmWatcher interface {
	AwaitingConfirmation() bool
}

// playerProc is a running player process. The engine writes audio to Stdin
// and tears the process down through Kill/Wait.
type playerProc interface {
	Stdin() io.WriteCloser
	Kill() error
	Wait() error
}

// spawnFunc launches a player process. Swapped for a fake in tests.
type spawnFunc func(ctx context.Context, name string, args []string) (playerProc, error)

// execProc is the production playerProc backed by os/exec.
type execProc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func (p *execProc) Stdin() io.WriteCloser { return p.stdin }
func (p *execProc) Kill() error           { return p.cmd.Process.Kill() }
func (p *execProc) Wait() error           { return p.cmd.Wait() }

func spawnExec(ctx context.Context, name string, args []string) (playerProc, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProc{cmd: cmd, stdin: stdin}, nil
}

// item is one queue entry: a sentence, or the end-of-turn sentinel.
type item struct {
	text string
	end  bool
}

// Config holds playback tuning.
type Config struct {
	// Voice selects the synthesis voice.
	Voice tts.VoiceProfile

	// Player overrides player discovery with an explicit binary name.
	Player string
}

// Engine is the playback engine. It implements the response pipeline's
// Speaker and the capture loop's Aborter.
type Engine struct {
	tts       tts.Provider
	voice     tts.VoiceProfile
	player    string
	args      []string
	machine   *state.Machine
	interrupt *state.InterruptSignal
	dialogue  ConfirmWatcher
	metrics   *observe.Metrics
	log       *slog.Logger
	spawn     spawnFunc
	lookPath  func(string) (string, error)

	queue chan item

	mu      sync.Mutex
	current playerProc
}

// NewEngine builds a playback engine. Player discovery happens here: the
// configured binary, else mpv, else ffplay; a missing player is logged once
// and every sentence is skipped until restart.
func NewEngine(
	cfg Config,
	provider tts.Provider,
	machine *state.Machine,
	interrupt *state.InterruptSignal,
	dialogue ConfirmWatcher,
	metrics *observe.Metrics,
) *Engine {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	e := &Engine{
		tts:       provider,
		voice:     cfg.Voice,
		machine:   machine,
		interrupt: interrupt,
		dialogue:  dialogue,
		metrics:   metrics,
		log:       slog.Default().With("component", "playback"),
		spawn:     spawnExec,
		lookPath:  exec.LookPath,
		queue:     make(chan item, queueCapacity),
	}
	e.player, e.args = e.discoverPlayer(cfg.Player)
	return e
}

func (e *Engine) discoverPlayer(configured string) (string, []string) {
	candidates := playerCandidates
	if configured != "" {
		candidates = []string{configured}
	}
	for _, name := range candidates {
		if _, err := e.lookPath(name); err == nil {
			args, ok := playerArgs[name]
			if !ok {
				// An unknown binary still gets audio on stdin.
				args = []string{"-"}
			}
			e.log.Info("audio player selected", "player", name)
			return name, args
		}
	}
	e.log.Warn("no audio player found, responses will be silent",
		"tried", candidates)
	return "", nil
}

// Say enqueues one sentence for synthesis and playback.
func (e *Engine) Say(sentence string) {
	e.queue <- item{text: sentence}
}

// EndTurn enqueues the end-of-turn sentinel.
func (e *Engine) EndTurn() {
	e.queue <- item{end: true}
}

// Run consumes the sentence queue until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("playback engine running", "voice", e.voice.ID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it := <-e.queue:
			if it.end {
				e.finishTurn()
				continue
			}
			e.play(ctx, it.text)
		}
	}
}

// finishTurn handles the sentinel: the turn's audio has drained, so the
// assistant goes back to Idle unless a confirmation keeps the exchange open
// or a barge-in has already claimed the state.
func (e *Engine) finishTurn() {
	if e.interrupt.Raised() {
		return
	}
	if e.dialogue != nil && e.dialogue.AwaitingConfirmation() {
		return
	}
	e.machine.CompareAndSwap(state.Speaking, state.Idle)
}

// play synthesizes one sentence and pipes it into the player. All failures
// are per-sentence: log, count, move on.
func (e *Engine) play(ctx context.Context, sentence string) {
	if e.interrupt.Raised() || e.player == "" {
		return
	}

	start := time.Now()
	stream, err := e.tts.Synthesize(ctx, sentence, e.voice)
	if err != nil {
		e.log.Warn("synthesis failed", "err", err)
		e.metrics.RecordProviderError(ctx, "tts", "synthesize")
		return
	}
	defer stream.Close()
	e.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())

	proc, err := e.spawn(ctx, e.player, e.args)
	if err != nil {
		e.log.Warn("player spawn failed", "player", e.player, "err", err)
		return
	}

	e.mu.Lock()
	if e.interrupt.Raised() {
		// Abort raced the spawn; the new process dies immediately.
		e.mu.Unlock()
		proc.Stdin().Close()
		proc.Kill()
		proc.Wait()
		return
	}
	e.current = proc
	e.mu.Unlock()

	e.pipe(stream, proc)

	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()
}

// pipe copies the synthesized audio into the player in small chunks,
// re-checking the interrupt flag between writes, then waits the process out.
func (e *Engine) pipe(stream io.Reader, proc playerProc) {
	stdin := proc.Stdin()
	buf := make([]byte, copyChunkSize)

	for {
		if e.interrupt.Raised() {
			break
		}
		n, err := stream.Read(buf)
		if n > 0 {
			if _, werr := stdin.Write(buf[:n]); werr != nil {
				// Player went away (killed by Abort, or crashed).
				break
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.log.Warn("audio stream read failed", "err", err)
			}
			break
		}
	}

	stdin.Close()

	done := make(chan struct{})
	go func() {
		proc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(abortWait):
		proc.Kill()
		<-done
	}
}

// Abort silences the engine: the in-flight player is killed and the queued
// remainder of the turn is dropped. Idempotent; safe against a concurrently
// starting process.
func (e *Engine) Abort() {
	e.mu.Lock()
	proc := e.current
	e.current = nil
	e.mu.Unlock()

	if proc != nil {
		proc.Stdin().Close()
		proc.Kill()
	}

	for {
		select {
		case <-e.queue:
		default:
			return
		}
	}
}
