package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wisp-assistant/wisp/internal/capture"
	"github.com/wisp-assistant/wisp/internal/history"
	"github.com/wisp-assistant/wisp/internal/state"
	"github.com/wisp-assistant/wisp/pkg/provider/llm"
	llmmock "github.com/wisp-assistant/wisp/pkg/provider/llm/mock"
)

// fakeSpeaker records spoken sentences and end-of-turn sentinels.
type fakeSpeaker struct {
	mu        sync.Mutex
	sentences []string
	turns     int
}

func (s *fakeSpeaker) Say(sentence string) {
	s.mu.Lock()
	s.sentences = append(s.sentences, sentence)
	s.mu.Unlock()
}

func (s *fakeSpeaker) EndTurn() {
	s.mu.Lock()
	s.turns++
	s.mu.Unlock()
}

func (s *fakeSpeaker) said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sentences))
	copy(out, s.sentences)
	return out
}

func (s *fakeSpeaker) turnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// skillCall records one skill invocation.
type skillCall struct {
	kind string
	args []string
}

// fakeSkills answers every skill with a canned sentence.
type fakeSkills struct {
	mu    sync.Mutex
	calls []skillCall
	err   error
}

func (f *fakeSkills) record(kind string, args ...string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, skillCall{kind: kind, args: args})
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "Done with " + kind + ".", nil
}

func (f *fakeSkills) System(_ context.Context, action, value string) (string, error) {
	return f.record("system", action, value)
}

func (f *fakeSkills) Music(_ context.Context, action, query string) (string, error) {
	return f.record("music", action, query)
}

func (f *fakeSkills) Launch(_ context.Context, target, targetType, searchQuery string) (string, error) {
	return f.record("launch", target, targetType, searchQuery)
}

func (f *fakeSkills) Browser(_ context.Context, action string) (string, error) {
	return f.record("browser", action)
}

func (f *fakeSkills) recorded() []skillCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]skillCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeMessenger implements the prepare/confirm messaging flow with canned
// replies.
type fakeMessenger struct {
	mu       sync.Mutex
	contacts map[string]bool
	prepared []string
	sent     []string
	sendErr  error
}

func (f *fakeMessenger) HasContact(name string) bool {
	return f.contacts[name]
}

func (f *fakeMessenger) Prepare(_ context.Context, contact, message string) (string, error) {
	f.mu.Lock()
	f.prepared = append(f.prepared, contact+": "+message)
	f.mu.Unlock()
	return fmt.Sprintf("I have typed the message to %s. Should I send it?", contact), nil
}

func (f *fakeMessenger) Send(_ context.Context, contact string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, contact)
	f.mu.Unlock()
	return fmt.Sprintf("The message has been sent to %s.", contact), nil
}

func (f *fakeMessenger) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	copy(out, f.sent)
	return out
}

// recordStore captures history writes.
type recordStore struct {
	mu    sync.Mutex
	turns []history.Turn
}

func (s *recordStore) WriteTurn(_ context.Context, t history.Turn) error {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.mu.Unlock()
	return nil
}

func (s *recordStore) Recent(context.Context, int) ([]history.Turn, error) { return nil, nil }
func (s *recordStore) Close() error                                       { return nil }

func (s *recordStore) recorded() []history.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// waitFor polls cond until it holds or the deadline passes.
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

// routerReply builds a classification reply for the mock response service.
func routerReply(intent string, slots map[string]string) *llm.CompletionResponse {
	body := `{"intent": "` + intent + `", "slots": {`
	first := true
	for k, v := range slots {
		if !first {
			body += ", "
		}
		body += `"` + k + `": "` + v + `"`
		first = false
	}
	body += "}}"
	return &llm.CompletionResponse{Content: body}
}

type pipeFixture struct {
	in        chan string
	routerLLM *llmmock.Provider
	genLLM    *llmmock.Provider
	speaker   *fakeSpeaker
	skills    *fakeSkills
	messenger *fakeMessenger
	dlg       *Context
	machine   *state.Machine
	interrupt *state.InterruptSignal
	store     *recordStore
	pipe      *Pipeline
}

func newPipeFixture(t *testing.T) *pipeFixture {
	t.Helper()
	f := &pipeFixture{
		in:        make(chan string, 8),
		routerLLM: &llmmock.Provider{},
		genLLM:    &llmmock.Provider{},
		speaker:   &fakeSpeaker{},
		skills:    &fakeSkills{},
		messenger: &fakeMessenger{contacts: map[string]bool{"Bob": true}},
		dlg:       NewContext(nil),
		machine:   state.NewMachine(nil),
		interrupt: &state.InterruptSignal{},
		store:     &recordStore{},
	}
	router := NewRouter(f.routerLLM, "router-model", nil, testMetrics(t))
	f.pipe = NewPipeline(
		PipelineConfig{Model: "chat-model", Settle: time.Millisecond},
		f.in, router, f.genLLM, f.dlg, f.skills, f.messenger, f.speaker,
		f.machine, f.interrupt, f.store, testMetrics(t),
	)
	return f
}

func (f *pipeFixture) start(t *testing.T) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go f.pipe.Run(ctx)
	return cancel
}

func TestPipeline_GeneralQueryStreamsSentences(t *testing.T) {
	t.Parallel()

	f := newPipeFixture(t)
	f.routerLLM.CompleteResponse = routerReply(IntentGeneralQuery, map[string]string{"query": "how tall is everest"})
	f.genLLM.StreamChunks = []llm.Chunk{
		{Text: "Everest is about"},
		{Text: " 8,849 meters tall."},
		{Text: " It is the highest"},
		{Text: " mountain on Earth"},
		{FinishReason: "stop"},
	}

	cancel := f.start(t)
	defer cancel()
	f.in <- "how tall is everest"

	waitFor(t, func() bool { return f.speaker.turnCount() == 1 })

	want := []string{
		"Everest is about 8,849 meters tall.",
		"It is the highest mountain on Earth.",
	}
	got := f.speaker.said()
	if len(got) != len(want) {
		t.Fatalf("sentences: want %d, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: want %q, got %q", i, want[i], got[i])
		}
	}
	if st := f.machine.Get(); st != state.Speaking {
		t.Errorf("state during playback: want Speaking, got %v", st)
	}

	turns := f.store.recorded()
	if len(turns) != 1 || turns[0].Status != "ok" || turns[0].Action != IntentGeneralQuery {
		t.Errorf("unexpected history record: %+v", turns)
	}
}

func TestPipeline_InterruptedStreamStopsSpeaking(t *testing.T) {
	t.Parallel()

	f := newPipeFixture(t)
	f.interrupt.Raise()
	f.routerLLM.CompleteResponse = routerReply(IntentGeneralQuery, map[string]string{"query": "tell me a story"})
	f.genLLM.StreamChunks = []llm.Chunk{
		{Text: "Once upon a time."},
		{Text: " There was a test."},
		{FinishReason: "stop"},
	}

	cancel := f.start(t)
	defer cancel()
	f.in <- "tell me a story"

	waitFor(t, func() bool { return len(f.store.recorded()) == 1 })

	if n := len(f.speaker.said()); n != 0 {
		t.Errorf("no sentences should be spoken after barge-in, got %d", n)
	}
	if f.speaker.turnCount() != 1 {
		t.Error("the end-of-turn sentinel must be enqueued even when interrupted")
	}
	if got := f.store.recorded()[0].Status; got != "interrupted" {
		t.Errorf("status: want interrupted, got %q", got)
	}
}

func TestPipeline_MessagingSlotFillingFlow(t *testing.T) {
	t.Parallel()

	f := newPipeFixture(t)
	f.routerLLM.CompleteResponse = routerReply(IntentSendMessage, map[string]string{})

	cancel := f.start(t)
	defer cancel()

	f.in <- "send a message"
	waitFor(t, func() bool { return len(f.speaker.said()) == 1 })
	if got := f.speaker.said()[0]; got != askContact {
		t.Fatalf("want contact prompt, got %q", got)
	}

	f.in <- "bob"
	waitFor(t, func() bool { return len(f.speaker.said()) == 2 })
	if got := f.speaker.said()[1]; got != "What should the message to Bob say?" {
		t.Fatalf("want message prompt, got %q", got)
	}

	f.in <- "i will be ten minutes late"
	waitFor(t, func() bool { return f.dlg.AwaitingConfirmation() })
	if got := f.speaker.said()[2]; got != "I have typed the message to Bob. Should I send it?" {
		t.Fatalf("want confirmation question, got %q", got)
	}

	// The capture loop enqueues the token first, then the raw phrase.
	f.in <- capture.ConfirmToken
	f.in <- "yes"
	waitFor(t, func() bool { return len(f.messenger.sentTo()) == 1 })
	if got := f.messenger.sentTo()[0]; got != "Bob" {
		t.Errorf("sent to: want Bob, got %q", got)
	}
	waitFor(t, func() bool { return len(f.speaker.said()) == 4 })
	if got := f.speaker.said()[3]; got != "The message has been sent to Bob." {
		t.Errorf("want send acknowledgement, got %q", got)
	}
	if f.dlg.Active() {
		t.Error("dialogue context should be cleared after the send")
	}

	// The trailing raw phrase is spent by the token; only one classifier
	// call should have happened across the whole exchange.
	time.Sleep(20 * time.Millisecond)
	if n := len(f.routerLLM.CompleteCalls); n != 1 {
		t.Errorf("classifier calls: want 1, got %d", n)
	}
	if n := len(f.store.recorded()); n != 4 {
		t.Errorf("history turns: want 4, got %d", n)
	}
}

func TestPipeline_UnknownContactClearsContext(t *testing.T) {
	t.Parallel()

	f := newPipeFixture(t)
	f.routerLLM.CompleteResponse = routerReply(IntentSendMessage,
		map[string]string{"contact": "zed", "message": "hello"})

	cancel := f.start(t)
	defer cancel()
	f.in <- "tell zed hello"

	waitFor(t, func() bool { return len(f.speaker.said()) == 1 })
	if got := f.speaker.said()[0]; got != "I'm sorry, I couldn't find Zed in your contacts." {
		t.Errorf("unexpected reply: %q", got)
	}
	if f.dlg.Active() {
		t.Error("context must be cleared after an unknown contact")
	}
}

func TestPipeline_CancelAbandonsPendingSend(t *testing.T) {
	t.Parallel()

	f := newPipeFixture(t)
	f.dlg.Begin(IntentSendMessage)
	f.dlg.SetSlot("contact", "Bob")
	f.dlg.SetSlot("message", "hello")
	f.dlg.SetAwaiting(true)
	f.routerLLM.CompleteResponse = routerReply(IntentCancel, map[string]string{"query": "forget it"})

	cancel := f.start(t)
	defer cancel()
	f.in <- "forget it"

	waitFor(t, func() bool { return len(f.speaker.said()) == 1 })
	if got := f.speaker.said()[0]; got != cancelledReply {
		t.Errorf("want cancellation reply, got %q", got)
	}
	if f.dlg.Active() {
		t.Error("context must be cleared after cancellation")
	}
	if len(f.messenger.sentTo()) != 0 {
		t.Error("nothing should be sent after cancellation")
	}
}

func TestPipeline_UnclearConfirmationReprompts(t *testing.T) {
	t.Parallel()

	f := newPipeFixture(t)
	f.dlg.Begin(IntentSendMessage)
	f.dlg.SetSlot("contact", "Bob")
	f.dlg.SetSlot("message", "hello")
	f.dlg.SetAwaiting(true)
	f.routerLLM.CompleteResponse = routerReply(IntentGeneralQuery, map[string]string{"query": "what was it again"})

	cancel := f.start(t)
	defer cancel()
	f.in <- "what was it again"

	waitFor(t, func() bool { return len(f.speaker.said()) == 1 })
	if got := f.speaker.said()[0]; got != confirmReprompt {
		t.Errorf("want reprompt, got %q", got)
	}
	if !f.dlg.AwaitingConfirmation() {
		t.Error("exchange must stay open after an unclear answer")
	}
}

func TestPipeline_SkillDispatch(t *testing.T) {
	t.Parallel()

	f := newPipeFixture(t)
	f.routerLLM.CompleteResponse = routerReply(IntentSystemControl,
		map[string]string{"action": "volume_up", "value": "20"})

	cancel := f.start(t)
	defer cancel()
	f.in <- "turn the volume up by twenty"

	waitFor(t, func() bool { return len(f.skills.recorded()) == 1 })
	call := f.skills.recorded()[0]
	if call.kind != "system" || call.args[0] != "volume_up" || call.args[1] != "20" {
		t.Errorf("unexpected skill call: %+v", call)
	}
	waitFor(t, func() bool { return len(f.speaker.said()) == 1 })
}

func TestPipeline_WakeDuringThinkingDropsReply(t *testing.T) {
	t.Parallel()

	f := newPipeFixture(t)
	f.routerLLM.CompleteResponse = routerReply(IntentSystemControl,
		map[string]string{"action": "volume_up", "value": "20"})

	// A wake word landed while the turn was still routing: the capture loop
	// has already aborted playback and moved the machine to Listening.
	f.machine.Set(state.Listening)

	cancel := f.start(t)
	defer cancel()
	f.in <- "turn the volume up"

	waitFor(t, func() bool { return len(f.store.recorded()) == 1 })

	if n := len(f.speaker.said()); n != 0 {
		t.Errorf("superseded reply must not be spoken, got %v", f.speaker.said())
	}
	if f.speaker.turnCount() != 0 {
		t.Error("no sentinel for a turn that never started speaking")
	}
	if st := f.machine.Get(); st != state.Listening {
		t.Errorf("state: want Listening preserved, got %v", st)
	}
}

func TestPipeline_WakeDuringThinkingDropsStream(t *testing.T) {
	t.Parallel()

	f := newPipeFixture(t)
	f.routerLLM.CompleteResponse = routerReply(IntentGeneralQuery, map[string]string{"query": "tell me a story"})
	f.genLLM.StreamChunks = []llm.Chunk{
		{Text: "Once upon a time."},
		{FinishReason: "stop"},
	}
	f.machine.Set(state.Listening)

	cancel := f.start(t)
	defer cancel()
	f.in <- "tell me a story"

	waitFor(t, func() bool { return len(f.store.recorded()) == 1 })

	if n := len(f.speaker.said()); n != 0 {
		t.Errorf("superseded answer must not play, got %v", f.speaker.said())
	}
	if f.speaker.turnCount() != 0 {
		t.Error("no sentinel for a turn that never started speaking")
	}
	if st := f.machine.Get(); st != state.Listening {
		t.Errorf("state: want Listening preserved, got %v", st)
	}
	if got := f.store.recorded()[0].Status; got != "interrupted" {
		t.Errorf("status: want interrupted, got %q", got)
	}
}

func TestPipeline_StrayConfirmTokenSpeaksReply(t *testing.T) {
	t.Parallel()

	f := newPipeFixture(t)
	f.machine.Set(state.Thinking)

	cancel := f.start(t)
	defer cancel()
	f.in <- capture.ConfirmToken

	waitFor(t, func() bool { return len(f.speaker.said()) == 1 })
	if got := f.speaker.said()[0]; got != nothingPrepared {
		t.Errorf("want nothing-prepared reply, got %q", got)
	}
	if st := f.machine.Get(); st != state.Speaking {
		t.Errorf("state: want Speaking so playback can settle to Idle, got %v", st)
	}
	if f.speaker.turnCount() != 1 {
		t.Error("the reply must carry an end-of-turn sentinel")
	}
}

func TestPipeline_RouterFailureSpeaksApology(t *testing.T) {
	t.Parallel()

	f := newPipeFixture(t)
	f.routerLLM.CompleteErr = errors.New("connection refused")

	cancel := f.start(t)
	defer cancel()
	f.in <- "hello"

	waitFor(t, func() bool { return len(f.speaker.said()) == 1 })
	if got := f.speaker.said()[0]; got != fatalApology {
		t.Errorf("want apology, got %q", got)
	}
	turns := f.store.recorded()
	if len(turns) != 1 || turns[0].Status != "error" {
		t.Errorf("unexpected history record: %+v", turns)
	}
}
