// Package mock provides test doubles for the stt.Provider and stt.Session
// interfaces.
//
// The Session exposes its updates channel directly so tests can feed
// transcript updates at controlled points, and records every audio chunk it
// receives.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/wisp-assistant/wisp/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by OpenSession.
	OpenErr error

	// Sessions holds the sessions handed out, in order.
	Sessions []*Session

	// NewSession, if set, supplies the next session instead of a default one.
	NewSession func() *Session

	// OpenCalls counts invocations of OpenSession.
	OpenCalls int
}

// Compile-time assertion that Provider satisfies the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// OpenSession implements stt.Provider.
func (p *Provider) OpenSession(_ context.Context, _ stt.SessionConfig) (stt.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenCalls++
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	var s *Session
	if p.NewSession != nil {
		s = p.NewSession()
	} else {
		s = NewSession()
	}
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// Session is a mock implementation of stt.Session.
type Session struct {
	mu sync.Mutex

	// SendErr, if non-nil, is returned by every SendAudio call.
	SendErr error

	// SendErrAfter, when > 0, makes SendAudio fail once more than that many
	// chunks have been accepted.
	SendErrAfter int

	// Chunks records every audio chunk accepted by SendAudio.
	Chunks [][]byte

	// Closed reports whether Close has been called.
	Closed bool

	updates chan stt.Transcript
	once    sync.Once
}

// Compile-time assertion that Session satisfies the stt.Session interface.
var _ stt.Session = (*Session)(nil)

// NewSession creates a Session with a buffered updates channel.
func NewSession() *Session {
	return &Session{updates: make(chan stt.Transcript, 64)}
}

// Push delivers one cumulative transcript update to the session's consumer.
func (s *Session) Push(text string) {
	s.updates <- stt.Transcript{Text: text}
}

// SendAudio implements stt.Session.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	if s.SendErrAfter > 0 && len(s.Chunks) >= s.SendErrAfter {
		return errSendFailed
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.Chunks = append(s.Chunks, cp)
	return nil
}

// Updates implements stt.Session.
func (s *Session) Updates() <-chan stt.Transcript { return s.updates }

// Close implements stt.Session.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.Closed = true
		s.mu.Unlock()
		close(s.updates)
	})
	return nil
}

// SentChunks returns a copy of the recorded audio chunks.
func (s *Session) SentChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.Chunks))
	copy(out, s.Chunks)
	return out
}

var errSendFailed = errors.New("mock stt: send failed")
