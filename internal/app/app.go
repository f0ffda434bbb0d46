// Package app wires all Wisp subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture, dialogue, and playback loops, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithHistoryStore,
// WithMetrics). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wisp-assistant/wisp/internal/capture"
	"github.com/wisp-assistant/wisp/internal/config"
	"github.com/wisp-assistant/wisp/internal/dialogue"
	"github.com/wisp-assistant/wisp/internal/history"
	"github.com/wisp-assistant/wisp/internal/observe"
	"github.com/wisp-assistant/wisp/internal/playback"
	"github.com/wisp-assistant/wisp/internal/resilience"
	"github.com/wisp-assistant/wisp/internal/skills"
	"github.com/wisp-assistant/wisp/internal/state"
	"github.com/wisp-assistant/wisp/pkg/audio"
	"github.com/wisp-assistant/wisp/pkg/provider/llm"
	"github.com/wisp-assistant/wisp/pkg/provider/stt"
	"github.com/wisp-assistant/wisp/pkg/provider/tts"
	"github.com/wisp-assistant/wisp/pkg/provider/vad"
	"github.com/wisp-assistant/wisp/pkg/provider/wake"
)

// utteranceBuffer is the depth of the channel between the capture loop and
// the response pipeline. A busy pipeline must not stall audio capture.
const utteranceBuffer = 8

// Providers holds one interface value per provider slot. Populated by
// main.go from the config. RouterLLM and ChatLLM are separate because the
// completion model is fixed per provider instance, and intent routing may
// use a smaller, faster model than conversation.
type Providers struct {
	Source    audio.Source
	Wake      wake.Detector
	Gate      vad.Gate
	STT       stt.Provider
	RouterLLM llm.Provider
	ChatLLM   llm.Provider
	TTS       tts.Provider
}

// App owns all subsystem lifetimes and orchestrates the Wisp voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	machine   *state.Machine
	interrupt *state.InterruptSignal
	metrics   *observe.Metrics
	store     history.Store

	capture  *capture.Loop
	pipeline *dialogue.Pipeline
	engine   *playback.Engine
	server   *http.Server

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a turn log store instead of creating one from
// config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics bundle instead of using the default provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go. All required provider slots must be non-nil.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── Shared state ─────────────────────────────────────────────────────
	a.interrupt = &state.InterruptSignal{}
	a.machine = state.NewMachine(func(from, to state.State) {
		a.metrics.AssistantState.Record(context.Background(), int64(to))
		slog.Debug("state transition", "from", from, "to", to)
	})

	// ── Turn log ─────────────────────────────────────────────────────────
	if a.store == nil {
		if dsn := cfg.History.PostgresDSN; dsn != "" {
			store, err := history.NewPostgresStore(ctx, dsn)
			if err != nil {
				return nil, fmt.Errorf("app: open history store: %w", err)
			}
			a.store = store
		} else {
			a.store = history.NopStore{}
		}
	}

	// ── Dialogue context and playback ────────────────────────────────────
	dlg := dialogue.NewContext(nil)

	a.engine = playback.NewEngine(
		playback.Config{
			Voice:  tts.VoiceProfile{ID: cfg.Speech.VoiceID, Provider: "elevenlabs"},
			Player: cfg.Speech.Player,
		},
		providers.TTS,
		a.machine,
		a.interrupt,
		dlg,
		a.metrics,
	)

	// ── Capture loop ─────────────────────────────────────────────────────
	utterances := make(chan string, utteranceBuffer)

	loop, err := capture.New(
		capture.Config{
			SampleRate:     cfg.Audio.SampleRate,
			SubFrameMs:     cfg.VAD.SubFrameMs,
			Language:       cfg.Transcription.Language,
			MaxSilence:     cfg.Transcription.MaxSilence(),
			PauseThreshold: cfg.Transcription.PauseThreshold(),
			OpenTimeout:    cfg.Transcription.OpenTimeout(),
		},
		providers.Source,
		providers.Wake,
		providers.Gate,
		providers.STT,
		a.machine,
		a.interrupt,
		a.engine,
		dlg,
		utterances,
		a.metrics,
	)
	if err != nil {
		return nil, fmt.Errorf("app: build capture loop: %w", err)
	}
	a.capture = loop

	// ── Response pipeline ────────────────────────────────────────────────
	routerModel := cfg.Response.RouterModel
	if routerModel == "" {
		routerModel = cfg.Response.Model
	}
	router := dialogue.NewRouter(
		providers.RouterLLM,
		routerModel,
		resilience.NewBreaker(resilience.BreakerConfig{Name: "response"}),
		a.metrics,
	)

	runner := skills.ExecRunner{}
	set := skills.NewSet(
		skills.NewSystem(runner),
		skills.NewMusic(runner, skills.MusicCredentials{
			ClientID:     cfg.Music.ClientID,
			ClientSecret: cfg.Music.ClientSecret,
			RefreshToken: cfg.Music.RefreshToken,
		}),
		skills.NewLauncher(runner),
		skills.NewBrowser(runner),
	)
	messenger := skills.NewMessaging(runner, cfg.Messaging.Contacts)

	a.pipeline = dialogue.NewPipeline(
		dialogue.PipelineConfig{Model: cfg.Response.Model},
		utterances,
		router,
		providers.ChatLLM,
		dlg,
		set,
		messenger,
		a.engine,
		a.machine,
		a.interrupt,
		a.store,
		a.metrics,
	)

	// ── Telemetry listener ───────────────────────────────────────────────
	if addr := cfg.Telemetry.ListenAddr; addr != "" {
		var checkers []observe.Checker
		if pg, ok := a.store.(*history.PostgresStore); ok {
			checkers = append(checkers, observe.Checker{Name: "history", Check: pg.Ping})
		}
		a.server = observe.NewServer(addr, checkers...)
	}

	return a, nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the capture loop, response pipeline, playback engine, and the
// telemetry listener, then blocks until ctx is cancelled or a loop fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.capture.Run(ctx) })
	g.Go(func() error { return a.pipeline.Run(ctx) })
	g.Go(func() error { return a.engine.Run(ctx) })

	if a.server != nil {
		g.Go(func() error {
			slog.Info("telemetry listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: telemetry server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.server.Shutdown(sctx)
			return ctx.Err()
		})
	}

	slog.Info("wisp running")
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases all held resources: the telemetry listener, the audio
// device, the wake and VAD engines, and the history store. Safe to call
// after Run has returned, and safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("telemetry server shutdown error", "err", err)
			}
		}

		closers := []struct {
			name  string
			close func() error
		}{
			{"audio source", a.providers.Source.Close},
			{"wake engine", a.providers.Wake.Close},
			{"vad engine", a.providers.Gate.Close},
			{"history store", a.store.Close},
		}
		for _, c := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "pending", c.name)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := c.close(); err != nil {
				slog.Warn("close error", "what", c.name, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
