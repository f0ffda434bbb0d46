// Command wisp is the main entry point for the Wisp desktop voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wisp-assistant/wisp/internal/app"
	"github.com/wisp-assistant/wisp/internal/config"
	"github.com/wisp-assistant/wisp/internal/observe"
	"github.com/wisp-assistant/wisp/pkg/audio"
	llmfireworks "github.com/wisp-assistant/wisp/pkg/provider/llm/fireworks"
	sttfireworks "github.com/wisp-assistant/wisp/pkg/provider/stt/fireworks"
	"github.com/wisp-assistant/wisp/pkg/provider/tts/elevenlabs"
	"github.com/wisp-assistant/wisp/pkg/provider/vad"
	"github.com/wisp-assistant/wisp/pkg/provider/vad/energy"
	"github.com/wisp-assistant/wisp/pkg/provider/vad/webrtc"
	"github.com/wisp-assistant/wisp/pkg/provider/wake/porcupine"
)

// defaultKeyword is the built-in wake word used when no custom keyword model
// is configured.
const defaultKeyword = "porcupine"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "wisp: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "wisp: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Telemetry.LogLevel)
	slog.SetDefault(logger)

	slog.Info("wisp starting",
		"config", *configPath,
		"vad_engine", cfg.VAD.Engine,
		"log_level", cfg.Telemetry.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	metricsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "wisp"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("assistant ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders constructs the real provider implementations from the
// config. The router and chat LLM slots are separate instances because the
// completion model is fixed at construction.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	source, err := audio.NewDeviceSource(audio.DeviceConfig{
		SampleRate:  cfg.Audio.SampleRate,
		FrameLength: 512,
	})
	if err != nil {
		return nil, fmt.Errorf("audio source: %w", err)
	}

	var wakeOpts []porcupine.Option
	if cfg.Wake.Sensitivity > 0 {
		wakeOpts = append(wakeOpts, porcupine.WithSensitivity(cfg.Wake.Sensitivity))
	}
	if cfg.Wake.KeywordPath != "" {
		wakeOpts = append(wakeOpts, porcupine.WithKeywordPath(cfg.Wake.KeywordPath))
	}
	wakeDet, err := porcupine.New(cfg.Wake.AccessKey, defaultKeyword, wakeOpts...)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("wake engine: %w", err)
	}

	vadCfg := vad.Config{
		SampleRate:     cfg.Audio.SampleRate,
		Aggressiveness: cfg.VAD.Aggressiveness,
	}
	var gate vad.Gate
	switch cfg.VAD.Engine {
	case "energy":
		gate, err = energy.New(vadCfg)
	default:
		gate, err = webrtc.New(vadCfg)
	}
	if err != nil {
		source.Close()
		wakeDet.Close()
		return nil, fmt.Errorf("vad engine %q: %w", cfg.VAD.Engine, err)
	}

	// Everything below here must release the already-opened engines on
	// failure.
	cleanup := func() {
		source.Close()
		wakeDet.Close()
		gate.Close()
	}

	sttProvider, err := sttfireworks.New(cfg.Transcription.APIKey,
		sttfireworks.WithLanguage(cfg.Transcription.Language))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("stt provider: %w", err)
	}

	var llmOpts []llmfireworks.Option
	if cfg.Response.BaseURL != "" {
		llmOpts = append(llmOpts, llmfireworks.WithBaseURL(cfg.Response.BaseURL))
	}
	chatLLM, err := llmfireworks.New(cfg.Response.APIKey, cfg.Response.Model, llmOpts...)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("chat llm: %w", err)
	}
	routerModel := cfg.Response.RouterModel
	if routerModel == "" {
		routerModel = cfg.Response.Model
	}
	routerLLM, err := llmfireworks.New(cfg.Response.APIKey, routerModel, llmOpts...)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("router llm: %w", err)
	}

	var ttsOpts []elevenlabs.Option
	if cfg.Speech.Model != "" {
		ttsOpts = append(ttsOpts, elevenlabs.WithModel(cfg.Speech.Model))
	}
	ttsProvider, err := elevenlabs.New(cfg.Speech.APIKey, ttsOpts...)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("tts provider: %w", err)
	}

	return &app.Providers{
		Source:    source,
		Wake:      wakeDet,
		Gate:      gate,
		STT:       sttProvider,
		RouterLLM: routerLLM,
		ChatLLM:   chatLLM,
		TTS:       ttsProvider,
	}, nil
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
