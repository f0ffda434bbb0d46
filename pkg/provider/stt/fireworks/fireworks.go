// Package fireworks provides a Fireworks-backed STT provider using the
// Fireworks streaming WebSocket API. It implements the stt.Provider interface.
package fireworks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/wisp-assistant/wisp/pkg/provider/stt"
)

const (
	fireworksEndpoint = "wss://audio-streaming-v2.api.fireworks.ai/v1/audio/transcriptions/streaming"
	defaultLanguage   = "en"

	// writeTimeout bounds each websocket write. A peer that stops reading
	// must fail the session instead of wedging the write loop.
	writeTimeout = 5 * time.Second
)

// ErrQueueFull is returned by SendAudio when the outbound queue is
// saturated, which means the write loop has stopped draining it.
var ErrQueueFull = errors.New("fireworks stt: send queue saturated")

// Option is a functional option for configuring the Fireworks Provider.
type Option func(*Provider)

// WithEndpoint overrides the streaming endpoint URL. Useful for tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithLanguage sets the default BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// Provider implements stt.Provider backed by the Fireworks streaming API.
type Provider struct {
	apiKey   string
	endpoint string
	language string
}

// New creates a new Fireworks Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("fireworks stt: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: fireworksEndpoint,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// OpenSession dials the Fireworks streaming endpoint. The dial is bound by
// ctx; pass a context with a deadline to cap the handshake time.
func (p *Provider) OpenSession(ctx context.Context, cfg stt.SessionConfig) (stt.Session, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("fireworks stt: build URL: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fireworks stt: dial: %w", err)
	}

	sess := &session{
		conn:    conn,
		updates: make(chan stt.Transcript, 64),
		audio:   make(chan []byte, 256),
		done:    make(chan struct{}),
	}

	sess.readWG.Add(1)
	go sess.readLoop()
	sess.writeWG.Add(1)
	go sess.writeLoop()

	return sess, nil
}

// buildURL constructs the streaming endpoint URL for the given config.
// Fireworks passes authentication as a query parameter rather than a header.
func (p *Provider) buildURL(cfg stt.SessionConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("authorization", "Bearer "+p.apiKey)
	q.Set("language", lang)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// transcriptMessage is the JSON structure of a Fireworks transcription update.
// Each message carries the cumulative text of the utterance so far.
type transcriptMessage struct {
	Text string `json:"text"`
}

// session is a live Fireworks streaming session. It implements stt.Session.
type session struct {
	conn    *websocket.Conn
	updates chan stt.Transcript
	audio   chan []byte

	done    chan struct{}
	once    sync.Once
	readWG  sync.WaitGroup
	writeWG sync.WaitGroup
}

// SendAudio queues a PCM16 chunk for delivery to Fireworks. It never blocks:
// a saturated queue drops the chunk and returns [ErrQueueFull] so the caller
// can count the failure instead of stalling audio capture.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("fireworks stt: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("fireworks stt: session is closed")
	default:
		return ErrQueueFull
	}
}

// Updates returns the channel of cumulative transcript updates.
func (s *session) Updates() <-chan stt.Transcript { return s.updates }

// Close terminates the session cleanly. The write loop is allowed to flush
// queued audio before the connection is torn down; the per-write deadline
// bounds that wait even against a stalled peer. The connection close is what
// unblocks the read loop.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.writeWG.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.readWG.Wait()
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to
// Fireworks. Every write carries a deadline so a stalled connection fails
// the loop instead of blocking it forever, which would saturate the queue
// and deadlock Close behind writeWG.Wait.
func (s *session) writeLoop() {
	defer s.writeWG.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.write(chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain the audio channel before exiting so trailing chunks
			// still reach the service. The first failed write abandons the
			// rest; the connection is going away anyway.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					if err := s.write(chunk); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// write sends one binary frame with a per-write deadline.
func (s *session) write(chunk []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageBinary, chunk)
}

// readLoop receives JSON messages from Fireworks and dispatches transcript
// updates to the updates channel.
func (s *session) readLoop() {
	defer s.readWG.Done()
	defer close(s.updates)

	ctx := context.Background()
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or connection failure: end the stream.
			return
		}

		t, ok := parseTranscript(msg)
		if !ok {
			continue
		}

		select {
		case s.updates <- t:
		case <-s.done:
		}
	}
}

// parseTranscript parses a raw Fireworks WebSocket message into a Transcript.
// Returns (zero, false) for messages with no text, which should be ignored.
func parseTranscript(data []byte) (stt.Transcript, bool) {
	var msg transcriptMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return stt.Transcript{}, false
	}
	if msg.Text == "" {
		return stt.Transcript{}, false
	}
	return stt.Transcript{Text: msg.Text, ReceivedAt: time.Now()}, true
}
