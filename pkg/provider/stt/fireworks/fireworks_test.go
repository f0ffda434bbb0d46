package fireworks

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/wisp-assistant/wisp/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.SessionConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "authorization", "Bearer test-key", q.Get("authorization"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "scheme", "wss", u.Scheme)
	assertEqual(t, "path", "/v1/audio/transcriptions/streaming", u.Path)
}

func TestBuildURL_LanguageOverridenByCfg(t *testing.T) {
	// cfg.Language should take precedence over the provider-level default.
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.SessionConfig{Language: "de"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "de", u.Query().Get("language"))
}

func TestBuildURL_CustomEndpoint(t *testing.T) {
	p, err := New("key", WithEndpoint("ws://localhost:9000/listen"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.SessionConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "host", "localhost:9000", u.Host)
	assertEqual(t, "path", "/listen", u.Path)
}

// ---- JSON parsing tests ----

func TestParseTranscript_CumulativeText(t *testing.T) {
	tr, ok := parseTranscript([]byte(`{"text":"turn off the lights"}`))
	if !ok {
		t.Fatal("expected ok=true for a message with text")
	}
	assertEqual(t, "text", "turn off the lights", tr.Text)
	if tr.ReceivedAt.IsZero() {
		t.Error("expected ReceivedAt to be set")
	}
}

func TestParseTranscript_EmptyText(t *testing.T) {
	_, ok := parseTranscript([]byte(`{"text":""}`))
	if ok {
		t.Error("expected ok=false for a message with empty text")
	}
}

func TestParseTranscript_InvalidJSON(t *testing.T) {
	_, ok := parseTranscript([]byte(`{invalid`))
	if ok {
		t.Error("expected ok=false for invalid JSON")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "endpoint", fireworksEndpoint, p.endpoint)
	assertEqual(t, "language", defaultLanguage, p.language)
}

// ---- session tests ----

func TestSendAudio_SaturatedQueueDoesNotBlock(t *testing.T) {
	// No write loop drains the queue here, simulating a stalled connection.
	s := &session{
		updates: make(chan stt.Transcript, 1),
		audio:   make(chan []byte, 1),
		done:    make(chan struct{}),
	}

	if err := s.SendAudio([]byte{0x01}); err != nil {
		t.Fatalf("first send: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.SendAudio([]byte{0x02}) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("want ErrQueueFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("SendAudio blocked on a saturated queue")
	}
}

func TestSendAudio_ClosedSession(t *testing.T) {
	s := &session{
		updates: make(chan stt.Transcript, 1),
		audio:   make(chan []byte, 1),
		done:    make(chan struct{}),
	}
	close(s.done)

	if err := s.SendAudio([]byte{0x01}); err == nil {
		t.Fatal("send on a closed session must fail")
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
