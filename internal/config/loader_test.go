package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
wake:
  access_key: pv-key
transcription:
  api_key: fw-key
response:
  api_key: fw-key
  model: accounts/fireworks/models/llama-v3p1-70b-instruct
speech:
  api_key: el-key
  voice_id: voice-1
`

func TestLoadFromReader_ValidWithDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("sample_rate default: want 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Wake.Sensitivity != 0.8 {
		t.Errorf("sensitivity default: want 0.8, got %.2f", cfg.Wake.Sensitivity)
	}
	if cfg.VAD.Engine != "webrtc" || cfg.VAD.Aggressiveness != 3 || cfg.VAD.SubFrameMs != 30 {
		t.Errorf("vad defaults: got %+v", cfg.VAD)
	}
	if cfg.Transcription.Language != "en" {
		t.Errorf("language default: want en, got %q", cfg.Transcription.Language)
	}
	if got := cfg.Transcription.PauseThreshold(); got != 2*time.Second {
		t.Errorf("pause threshold: want 2s, got %v", got)
	}
	if got := cfg.Transcription.MaxSilence(); got != 1500*time.Millisecond {
		t.Errorf("max silence: want 1.5s, got %v", got)
	}
	if got := cfg.Transcription.OpenTimeout(); got != 5*time.Second {
		t.Errorf("open timeout: want 5s, got %v", got)
	}
	if cfg.Telemetry.LogLevel != LogInfo {
		t.Errorf("log level default: want info, got %q", cfg.Telemetry.LogLevel)
	}
}

func TestLoadFromReader_MissingCredentialsAreFatal(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader(`
transcription:
  language: en
`))
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
	for _, want := range []string{
		"wake.access_key",
		"transcription.api_key",
		"response.api_key",
		"response.model",
		"speech.api_key",
		"speech.voice_id",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader(validYAML + "\nbogus_section:\n  x: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestLoadFromReader_RangeValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"sensitivity", "wake:\n  access_key: k\n  sensitivity: 1.5\n", "wake.sensitivity"},
		{"aggressiveness", "vad:\n  aggressiveness: 7\n", "vad.aggressiveness"},
		{"sub_frame", "vad:\n  sub_frame_ms: 25\n", "vad.sub_frame_ms"},
		{"engine", "vad:\n  engine: quantum\n", "vad.engine"},
		{"log_level", "telemetry:\n  log_level: loud\n", "telemetry.log_level"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should mention %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load("/nonexistent/wisp.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
