package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Wake.Sensitivity == 0 {
		cfg.Wake.Sensitivity = 0.8
	}
	if cfg.VAD.Engine == "" {
		cfg.VAD.Engine = "webrtc"
	}
	if cfg.VAD.Aggressiveness == 0 {
		cfg.VAD.Aggressiveness = 3
	}
	if cfg.VAD.SubFrameMs == 0 {
		cfg.VAD.SubFrameMs = 30
	}
	if cfg.Transcription.Language == "" {
		cfg.Transcription.Language = "en"
	}
	if cfg.Transcription.PauseSeconds == 0 {
		cfg.Transcription.PauseSeconds = 2.0
	}
	if cfg.Transcription.MaxSilenceSeconds == 0 {
		cfg.Transcription.MaxSilenceSeconds = 1.5
	}
	if cfg.Transcription.OpenTimeoutSeconds == 0 {
		cfg.Transcription.OpenTimeoutSeconds = 5.0
	}
	if cfg.Telemetry.LogLevel == "" {
		cfg.Telemetry.LogLevel = LogInfo
	}
}

// Validate checks that cfg contains a coherent set of values. Missing
// credentials are hard errors; soft misconfiguration is logged as warnings.
// Returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Required credentials. The assistant cannot run without these.
	if cfg.Wake.AccessKey == "" {
		errs = append(errs, errors.New("wake.access_key is required"))
	}
	if cfg.Transcription.APIKey == "" {
		errs = append(errs, errors.New("transcription.api_key is required"))
	}
	if cfg.Response.APIKey == "" {
		errs = append(errs, errors.New("response.api_key is required"))
	}
	if cfg.Response.Model == "" {
		errs = append(errs, errors.New("response.model is required"))
	}
	if cfg.Speech.APIKey == "" {
		errs = append(errs, errors.New("speech.api_key is required"))
	}
	if cfg.Speech.VoiceID == "" {
		errs = append(errs, errors.New("speech.voice_id is required"))
	}

	// Ranges.
	if cfg.Wake.Sensitivity < 0 || cfg.Wake.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("wake.sensitivity %.2f is out of range [0, 1]", cfg.Wake.Sensitivity))
	}
	if cfg.VAD.Aggressiveness < 0 || cfg.VAD.Aggressiveness > 3 {
		errs = append(errs, fmt.Errorf("vad.aggressiveness %d is out of range [0, 3]", cfg.VAD.Aggressiveness))
	}
	switch cfg.VAD.SubFrameMs {
	case 10, 20, 30:
	default:
		errs = append(errs, fmt.Errorf("vad.sub_frame_ms %d is invalid; valid values: 10, 20, 30", cfg.VAD.SubFrameMs))
	}
	switch cfg.VAD.Engine {
	case "webrtc", "energy":
	default:
		errs = append(errs, fmt.Errorf("vad.engine %q is invalid; valid values: webrtc, energy", cfg.VAD.Engine))
	}
	if cfg.Transcription.PauseSeconds <= 0 {
		errs = append(errs, fmt.Errorf("transcription.pause_seconds %.2f must be positive", cfg.Transcription.PauseSeconds))
	}
	if cfg.Telemetry.LogLevel != "" && !cfg.Telemetry.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("telemetry.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Telemetry.LogLevel))
	}

	// Soft misconfiguration.
	if len(cfg.Messaging.Contacts) == 0 {
		slog.Warn("messaging.contacts is empty; the send_message skill will refuse all requests")
	}
	if cfg.Music.ClientID == "" {
		slog.Info("music credentials not configured; music control falls back to media keys")
	}
	if cfg.History.PostgresDSN == "" {
		slog.Info("history.postgres_dsn is empty; turns will not be persisted")
	}

	return errors.Join(errs...)
}
