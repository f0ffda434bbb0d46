// Package config provides the configuration schema, loader, and validation
// for the Wisp voice assistant.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Wisp.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Wake          WakeConfig          `yaml:"wake"`
	VAD           VADConfig           `yaml:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Response      ResponseConfig      `yaml:"response"`
	Speech        SpeechConfig        `yaml:"speech"`
	Messaging     MessagingConfig     `yaml:"messaging"`
	Music         MusicConfig         `yaml:"music"`
	History       HistoryConfig       `yaml:"history"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

// AudioConfig holds microphone capture settings.
type AudioConfig struct {
	// SampleRate is the capture sample rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`
}

// WakeConfig holds wake-word engine settings.
type WakeConfig struct {
	// AccessKey is the Picovoice access key. Required.
	AccessKey string `yaml:"access_key"`

	// Sensitivity is the detection sensitivity in [0, 1]. Higher values
	// reduce misses at the cost of more false activations. Default: 0.8.
	Sensitivity float64 `yaml:"sensitivity"`

	// KeywordPath is the path to a custom keyword model file. Empty means
	// the built-in "porcupine" keyword.
	KeywordPath string `yaml:"keyword_path"`
}

// VADConfig holds voice activity detection settings.
type VADConfig struct {
	// Engine selects the detector: "webrtc" or "energy". Default: "webrtc".
	Engine string `yaml:"engine"`

	// Aggressiveness is the noise-rejection level in [0, 3]. Default: 3.
	Aggressiveness int `yaml:"aggressiveness"`

	// SubFrameMs is the sub-frame duration fed to the detector: 10, 20, or
	// 30. Default: 30.
	SubFrameMs int `yaml:"sub_frame_ms"`
}

// TranscriptionConfig holds streaming speech-to-text settings.
type TranscriptionConfig struct {
	// APIKey is the Fireworks API key. Required.
	APIKey string `yaml:"api_key"`

	// Language is the BCP-47 recognition language. Default: "en".
	Language string `yaml:"language"`

	// PauseSeconds is how long the interim transcript may go without an
	// update before the utterance is considered complete. Default: 2.0.
	PauseSeconds float64 `yaml:"pause_seconds"`

	// MaxSilenceSeconds is how much trailing silence ends the utterance.
	// Default: 1.5.
	MaxSilenceSeconds float64 `yaml:"max_silence_seconds"`

	// OpenTimeoutSeconds bounds the session handshake. Default: 5.0.
	OpenTimeoutSeconds float64 `yaml:"open_timeout_seconds"`
}

// ResponseConfig holds the response/classification service settings.
type ResponseConfig struct {
	// APIKey authenticates against the inference service. Required.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default inference endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the account path of the conversational model. Required.
	Model string `yaml:"model"`

	// RouterModel is the model used for intent classification. Empty means
	// use Model.
	RouterModel string `yaml:"router_model"`
}

// SpeechConfig holds text-to-speech settings.
type SpeechConfig struct {
	// APIKey is the ElevenLabs API key. Required.
	APIKey string `yaml:"api_key"`

	// VoiceID selects the synthesis voice. Required.
	VoiceID string `yaml:"voice_id"`

	// Model is the synthesis model ID. Empty means the provider default.
	Model string `yaml:"model"`

	// Player overrides audio player discovery with an explicit binary name.
	Player string `yaml:"player"`
}

// MessagingConfig holds the contact book for the send_message skill.
type MessagingConfig struct {
	// Contacts maps lowercase contact names to phone numbers in
	// international format.
	Contacts map[string]string `yaml:"contacts"`
}

// MusicConfig holds Spotify Web API credentials for the music skill.
// All fields empty disables the API path; playback falls back to media keys.
type MusicConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
}

// HistoryConfig holds the optional turn log settings.
type HistoryConfig struct {
	// PostgresDSN enables the persisted turn log when non-empty.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// TelemetryConfig holds metrics and logging settings.
type TelemetryConfig struct {
	// ListenAddr is the address for /metrics and /healthz. Empty disables
	// the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default: "info".
	LogLevel LogLevel `yaml:"log_level"`
}

// PauseThreshold returns the interim-transcript stall threshold as a Duration.
func (c TranscriptionConfig) PauseThreshold() time.Duration {
	return time.Duration(c.PauseSeconds * float64(time.Second))
}

// MaxSilence returns the trailing-silence endpoint threshold as a Duration.
func (c TranscriptionConfig) MaxSilence() time.Duration {
	return time.Duration(c.MaxSilenceSeconds * float64(time.Second))
}

// OpenTimeout returns the session handshake bound as a Duration.
func (c TranscriptionConfig) OpenTimeout() time.Duration {
	return time.Duration(c.OpenTimeoutSeconds * float64(time.Second))
}
