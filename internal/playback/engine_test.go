package playback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/wisp-assistant/wisp/internal/observe"
	"github.com/wisp-assistant/wisp/internal/state"
	"github.com/wisp-assistant/wisp/pkg/provider/tts"
	ttsmock "github.com/wisp-assistant/wisp/pkg/provider/tts/mock"
)

// fakeProc is a scripted player process capturing written audio.
type fakeProc struct {
	writeDelay time.Duration

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	killed bool
	waited bool
}

func (p *fakeProc) Stdin() io.WriteCloser { return &fakeStdin{proc: p} }

type fakeStdin struct {
	proc *fakeProc
}

func (s *fakeStdin) Write(b []byte) (int, error) {
	if s.proc.writeDelay > 0 {
		time.Sleep(s.proc.writeDelay)
	}
	s.proc.mu.Lock()
	defer s.proc.mu.Unlock()
	if s.proc.killed || s.proc.closed {
		return 0, errors.New("broken pipe")
	}
	return s.proc.buf.Write(b)
}

func (s *fakeStdin) Close() error {
	s.proc.mu.Lock()
	defer s.proc.mu.Unlock()
	s.proc.closed = true
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	return nil
}

func (p *fakeProc) Wait() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waited = true
	return nil
}

func (p *fakeProc) written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.buf.Bytes()...)
}

func (p *fakeProc) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// fakeWatcher scripts the dialogue confirmation flag.
type fakeWatcher struct {
	awaiting bool
}

func (w *fakeWatcher) AwaitingConfirmation() bool { return w.awaiting }

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

type engineFixture struct {
	engine    *Engine
	provider  *ttsmock.Provider
	machine   *state.Machine
	interrupt *state.InterruptSignal
	watcher   *fakeWatcher
	procDelay time.Duration

	mu    sync.Mutex
	procs []*fakeProc
}

func (f *engineFixture) spawned() []*fakeProc {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeProc, len(f.procs))
	copy(out, f.procs)
	return out
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		provider:  &ttsmock.Provider{Audio: []byte("encoded-audio-bytes")},
		machine:   state.NewMachine(nil),
		interrupt: &state.InterruptSignal{},
		watcher:   &fakeWatcher{},
	}
	f.engine = &Engine{
		tts:       f.provider,
		voice:     tts.VoiceProfile{ID: "voice-1", Provider: "elevenlabs"},
		player:    "mpv",
		args:      playerArgs["mpv"],
		machine:   f.machine,
		interrupt: f.interrupt,
		dialogue:  f.watcher,
		metrics:   testMetrics(t),
		log:       slog.Default().With("component", "playback"),
		lookPath:  func(string) (string, error) { return "/usr/bin/mpv", nil },
		queue:     make(chan item, queueCapacity),
	}
	f.engine.spawn = func(context.Context, string, []string) (playerProc, error) {
		p := &fakeProc{writeDelay: f.procDelay}
		f.mu.Lock()
		f.procs = append(f.procs, p)
		f.mu.Unlock()
		return p, nil
	}
	return f
}

func TestEngine_RoundTripAndSentinel(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.machine.Set(state.Speaking)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.engine.Run(ctx)

	f.engine.Say("Hello there.")
	f.engine.EndTurn()

	waitFor(t, func() bool { return f.machine.Get() == state.Idle })

	procs := f.spawned()
	if len(procs) != 1 {
		t.Fatalf("want 1 player process, got %d", len(procs))
	}
	if got := string(procs[0].written()); got != "encoded-audio-bytes" {
		t.Errorf("piped audio: got %q", got)
	}
	if texts := f.provider.SpokenTexts(); len(texts) != 1 || texts[0] != "Hello there." {
		t.Errorf("synthesized texts: %v", texts)
	}
}

func TestEngine_SentinelKeepsSpeakingWhileAwaitingConfirmation(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.watcher.awaiting = true
	f.machine.Set(state.Speaking)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.engine.Run(ctx)

	f.engine.EndTurn()
	time.Sleep(20 * time.Millisecond)

	if got := f.machine.Get(); got != state.Speaking {
		t.Errorf("state: want Speaking while a confirmation is pending, got %v", got)
	}
}

func TestEngine_AbortKillsPlayerAndDrainsQueue(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	// Enough audio, piped slowly, that playback is still running when the
	// abort lands.
	f.provider.Audio = bytes.Repeat([]byte("x"), copyChunkSize*64)
	f.procDelay = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.engine.Run(ctx)

	f.engine.Say("A very long answer.")
	f.engine.Say("That keeps going.")
	f.engine.EndTurn()

	waitFor(t, func() bool { return len(f.spawned()) == 1 })

	// Barge-in: the capture loop raises the interrupt, then aborts.
	f.interrupt.Raise()
	f.engine.Abort()

	waitFor(t, func() bool { return f.spawned()[0].wasKilled() })

	// The queued second sentence must never play.
	time.Sleep(20 * time.Millisecond)
	if n := len(f.spawned()); n != 1 {
		t.Errorf("processes after abort: want 1, got %d", n)
	}
}

func TestEngine_AbortIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.engine.Abort()
	f.engine.Abort()
	// Nothing to assert beyond "no panic, no deadlock".
}

func TestEngine_MissingPlayerSkipsSynthesis(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.engine.player = ""
	f.machine.Set(state.Speaking)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.engine.Run(ctx)

	f.engine.Say("Silent sentence.")
	f.engine.EndTurn()

	waitFor(t, func() bool { return f.machine.Get() == state.Idle })
	if n := len(f.provider.SpokenTexts()); n != 0 {
		t.Errorf("no synthesis without a player, got %d calls", n)
	}
}

func TestEngine_SynthesisFailureSkipsSentence(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.provider.Err = errors.New("429 too many requests")
	f.machine.Set(state.Speaking)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.engine.Run(ctx)

	f.engine.Say("Doomed sentence.")
	f.engine.EndTurn()

	waitFor(t, func() bool { return f.machine.Get() == state.Idle })
	if n := len(f.spawned()); n != 0 {
		t.Errorf("no player should spawn when synthesis fails, got %d", n)
	}
}

func TestEngine_DiscoverPlayerFallsBack(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.engine.lookPath = func(name string) (string, error) {
		if name == "ffplay" {
			return "/usr/bin/ffplay", nil
		}
		return "", errors.New("not found")
	}

	player, args := f.engine.discoverPlayer("")
	if player != "ffplay" {
		t.Errorf("player: want ffplay, got %q", player)
	}
	if len(args) == 0 || args[0] != "-autoexit" {
		t.Errorf("args: got %v", args)
	}

	f.engine.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	if player, _ := f.engine.discoverPlayer(""); player != "" {
		t.Errorf("want empty player when nothing resolves, got %q", player)
	}
}
