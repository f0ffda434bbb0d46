package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wisp-assistant/wisp/internal/capture"
	"github.com/wisp-assistant/wisp/internal/history"
	"github.com/wisp-assistant/wisp/internal/observe"
	"github.com/wisp-assistant/wisp/internal/state"
	"github.com/wisp-assistant/wisp/pkg/provider/llm"
)

// Spoken fragments with fixed wording. The assistant reads these out, so
// they are phrased for the ear, not the log.
const (
	fatalApology    = "I'm sorry, I encountered a critical error while processing your request."
	askContact      = "Who should I send that message to?"
	cancelledReply  = "Message cancelled. Returning to idle."
	confirmReprompt = "I'm sorry, I didn't understand. Should I send the message or cancel?"
	nothingPrepared = "There's no message waiting to be sent."
)

// defaultPersona keeps generated answers short enough to speak.
const defaultPersona = "You are Wisp, a hands-free desktop voice assistant. Your answers are read aloud by a speech synthesizer, so keep them brief, conversational, and free of markdown, lists, and code."

// sentenceBoundary are the characters that end a spoken sentence. A chunk
// containing any of them flushes the accumulated text to the speaker.
const sentenceBoundary = ".?!"

// Turn outcome labels recorded in metrics and history.
const (
	statusOK          = "ok"
	statusInterrupted = "interrupted"
	statusError       = "error"
)

// Speaker is the sentence sink, implemented by the playback engine. Say
// enqueues one sentence; EndTurn enqueues the end-of-turn sentinel that
// returns the assistant to Idle once playback drains.
type Speaker interface {
	Say(sentence string)
	EndTurn()
}

// Skills executes classified intents against the desktop. Implementations
// return the sentence to speak; an error means the skill itself blew up, not
// that the request was merely unserviceable.
type Skills interface {
	System(ctx context.Context, action, value string) (string, error)
	Music(ctx context.Context, action, query string) (string, error)
	Launch(ctx context.Context, target, targetType, searchQuery string) (string, error)
	Browser(ctx context.Context, action string) (string, error)
}

// Messenger drives the prepare/confirm messaging flow.
type Messenger interface {
	// HasContact reports whether name resolves in the contact book.
	HasContact(name string) bool

	// Prepare stages a message for sending and returns the confirmation
	// question to speak.
	Prepare(ctx context.Context, contact, message string) (string, error)

	// Send delivers the previously prepared message.
	Send(ctx context.Context, contact string) (string, error)
}

// PipelineConfig holds response pipeline tuning.
type PipelineConfig struct {
	// Model is the generative model for general queries.
	Model string

	// MaxTokens caps generated answers. Default: 150, which is plenty for
	// something that has to be spoken.
	MaxTokens int

	// SystemPrompt overrides the default spoken-answer persona.
	SystemPrompt string

	// Settle is how long an open dialogue turn waits before forcing the
	// state back to Idle. Default: 1.5s.
	Settle time.Duration
}

// Pipeline consumes finalized utterances and produces spoken turns. One
// goroutine runs it; turns are strictly sequential.
type Pipeline struct {
	cfg       PipelineConfig
	in        <-chan string
	router    *Router
	llm       llm.Provider
	dlg       *Context
	skills    Skills
	messenger Messenger
	speaker   Speaker
	machine   *state.Machine
	interrupt *state.InterruptSignal
	store     history.Store
	metrics   *observe.Metrics
	log       *slog.Logger

	// swallowConfirm is set after a confirm token was executed so the raw
	// confirmation phrase queued right behind it is not routed as a fresh
	// command. Only the pipeline goroutine touches it.
	swallowConfirm bool
}

type turnResult struct {
	action   string
	response string
	status   string
}

// NewPipeline wires a response pipeline. in carries finalized utterances
// from the capture loop; store may be nil to disable history; metrics nil
// means the process-wide default instruments.
func NewPipeline(
	cfg PipelineConfig,
	in <-chan string,
	router *Router,
	provider llm.Provider,
	dlg *Context,
	sk Skills,
	messenger Messenger,
	speaker Speaker,
	machine *state.Machine,
	interrupt *state.InterruptSignal,
	store history.Store,
	metrics *observe.Metrics,
) *Pipeline {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultPersona
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 1500 * time.Millisecond
	}
	if store == nil {
		store = history.NopStore{}
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Pipeline{
		cfg:       cfg,
		in:        in,
		router:    router,
		llm:       provider,
		dlg:       dlg,
		skills:    sk,
		messenger: messenger,
		speaker:   speaker,
		machine:   machine,
		interrupt: interrupt,
		store:     store,
		metrics:   metrics,
		log:       slog.Default().With("component", "pipeline"),
	}
}

// Run processes utterances until ctx is cancelled or the input channel
// closes.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.Info("response pipeline running", "model", p.cfg.Model)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text, ok := <-p.in:
			if !ok {
				return nil
			}
			p.handle(ctx, text)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, text string) {
	// The capture loop enqueues the raw phrase right behind a confirm
	// token; once the token has executed the send, the phrase itself is
	// spent.
	if text != capture.ConfirmToken && p.swallowConfirm {
		p.swallowConfirm = false
		if p.dlg.MatchesConfirmation(text) {
			return
		}
	}

	startedAt := time.Now()
	res := p.dispatch(ctx, text)

	p.metrics.TurnDuration.Record(ctx, time.Since(startedAt).Seconds())
	p.metrics.RecordTurn(ctx, res.action, res.status)
	p.writeHistory(ctx, history.Turn{
		StartedAt: startedAt,
		Utterance: text,
		Action:    res.action,
		Response:  res.response,
		Status:    res.status,
	})
}

func (p *Pipeline) dispatch(ctx context.Context, text string) turnResult {
	if text == capture.ConfirmToken {
		p.swallowConfirm = true
		return p.sendPrepared(ctx)
	}
	if p.dlg.AwaitingConfirmation() {
		return p.resolveConfirmation(ctx, text)
	}
	if p.dlg.Active() && p.dlg.Intent() == IntentSendMessage {
		return p.fillSlot(ctx, text)
	}

	intent, err := p.router.Classify(ctx, text)
	if err != nil {
		p.log.Error("intent classification failed", "err", err)
		p.metrics.RecordProviderError(ctx, "llm", "route")
		p.speak(ctx, fatalApology)
		return turnResult{action: "route", response: fatalApology, status: statusError}
	}
	return p.execute(ctx, text, intent)
}

// execute runs one classified intent to completion.
func (p *Pipeline) execute(ctx context.Context, text string, intent Intent) turnResult {
	p.log.Info("executing intent", "intent", intent.Name)

	switch intent.Name {
	case IntentSendMessage:
		return p.advanceMessage(ctx, intent.Slot("contact"), intent.Slot("message"))

	case IntentSystemControl:
		action := intent.Slot("action")
		res := p.runSkill(ctx, intent.Name, func(ctx context.Context) (string, error) {
			return p.skills.System(ctx, action, intent.Slot("value"))
		})
		if action == "sleep" {
			p.settleToIdle(ctx)
		}
		return res

	case IntentMusicControl:
		return p.runSkill(ctx, intent.Name, func(ctx context.Context) (string, error) {
			return p.skills.Music(ctx, intent.Slot("action"), intent.Slot("query"))
		})

	case IntentLaunchTarget:
		return p.runSkill(ctx, intent.Name, func(ctx context.Context) (string, error) {
			return p.skills.Launch(ctx, intent.Slot("target"), intent.Slot("target_type"), intent.Slot("search_query"))
		})

	case IntentBrowserNavigator:
		return p.runSkill(ctx, intent.Name, func(ctx context.Context) (string, error) {
			return p.skills.Browser(ctx, intent.Slot("action"))
		})

	default:
		// general_query, plus confirm/cancel with nothing pending: just
		// talk to the model.
		query := intent.Slot("query")
		if query == "" {
			query = text
		}
		return p.generalQuery(ctx, query)
	}
}

// runSkill executes one skill call and speaks its reply.
func (p *Pipeline) runSkill(ctx context.Context, action string, fn func(context.Context) (string, error)) turnResult {
	resp, err := fn(ctx)
	if err != nil {
		p.log.Error("skill execution failed", "action", action, "err", err)
		p.speak(ctx, fatalApology)
		return turnResult{action: action, response: fatalApology, status: statusError}
	}
	p.speak(ctx, resp)
	return turnResult{action: action, response: resp, status: statusOK}
}

// advanceMessage moves the messaging exchange forward with whatever slots
// are known so far: ask for the contact, then the message, then prepare and
// ask for confirmation.
func (p *Pipeline) advanceMessage(ctx context.Context, contact, message string) turnResult {
	if !p.dlg.Active() {
		p.dlg.Begin(IntentSendMessage)
	}
	if contact != "" {
		p.dlg.SetSlot("contact", titleCase(contact))
	}
	if message != "" {
		p.dlg.SetSlot("message", message)
	}

	contact = p.dlg.Slot("contact")
	message = p.dlg.Slot("message")

	switch {
	case contact == "":
		p.speak(ctx, askContact)
		p.settleToIdle(ctx)
		return turnResult{action: IntentSendMessage, response: askContact, status: statusOK}

	case !p.messenger.HasContact(contact):
		resp := fmt.Sprintf("I'm sorry, I couldn't find %s in your contacts.", contact)
		p.dlg.Clear()
		p.speak(ctx, resp)
		return turnResult{action: IntentSendMessage, response: resp, status: statusError}

	case message == "":
		resp := fmt.Sprintf("What should the message to %s say?", contact)
		p.speak(ctx, resp)
		p.settleToIdle(ctx)
		return turnResult{action: IntentSendMessage, response: resp, status: statusOK}

	default:
		resp, err := p.messenger.Prepare(ctx, contact, message)
		if err != nil {
			p.log.Error("message preparation failed", "contact", contact, "err", err)
			p.dlg.Clear()
			p.speak(ctx, fatalApology)
			return turnResult{action: IntentSendMessage, response: fatalApology, status: statusError}
		}
		p.dlg.SetAwaiting(true)
		p.speak(ctx, resp)
		p.settleToIdle(ctx)
		return turnResult{action: IntentSendMessage, response: resp, status: statusOK}
	}
}

// fillSlot routes a follow-up utterance into the open messaging exchange.
// The first missing slot wins: contact, then message.
func (p *Pipeline) fillSlot(ctx context.Context, text string) turnResult {
	if p.dlg.Slot("contact") == "" {
		return p.advanceMessage(ctx, text, "")
	}
	return p.advanceMessage(ctx, "", text)
}

// resolveConfirmation handles an utterance that arrived while a prepared
// action was pending but did not match the fixed vocabulary; the classifier
// gets the final word.
func (p *Pipeline) resolveConfirmation(ctx context.Context, text string) turnResult {
	intent, err := p.router.Classify(ctx, text)
	if err != nil {
		p.log.Error("confirmation classification failed", "err", err)
		p.metrics.RecordProviderError(ctx, "llm", "route")
		p.speak(ctx, fatalApology)
		return turnResult{action: IntentConfirm, response: fatalApology, status: statusError}
	}

	switch intent.Name {
	case IntentConfirm:
		return p.sendPrepared(ctx)
	case IntentCancel:
		p.dlg.Clear()
		p.speak(ctx, cancelledReply)
		return turnResult{action: IntentCancel, response: cancelledReply, status: statusOK}
	default:
		// Keep the exchange open and ask again.
		p.speak(ctx, confirmReprompt)
		p.settleToIdle(ctx)
		return turnResult{action: IntentConfirm, response: confirmReprompt, status: statusOK}
	}
}

// sendPrepared executes the pending send and closes the exchange.
func (p *Pipeline) sendPrepared(ctx context.Context) turnResult {
	contact := p.dlg.Slot("contact")
	if contact == "" || !p.dlg.AwaitingConfirmation() {
		p.log.Warn("confirmation received with nothing prepared")
		p.dlg.Clear()
		p.speak(ctx, nothingPrepared)
		return turnResult{action: IntentConfirm, response: nothingPrepared, status: statusOK}
	}

	resp, err := p.messenger.Send(ctx, contact)
	p.dlg.Clear()
	if err != nil {
		p.log.Error("message send failed", "contact", contact, "err", err)
		p.speak(ctx, fatalApology)
		return turnResult{action: IntentSendMessage, response: fatalApology, status: statusError}
	}
	p.speak(ctx, resp)
	return turnResult{action: IntentSendMessage, response: resp, status: statusOK}
}

// generalQuery streams a conversational answer, emitting complete sentences
// to the speaker as they form and checking for barge-in between chunks.
func (p *Pipeline) generalQuery(ctx context.Context, query string) turnResult {
	req := llm.CompletionRequest{
		Messages:     []llm.Message{{Role: "user", Content: query}},
		SystemPrompt: p.cfg.SystemPrompt,
		MaxTokens:    p.cfg.MaxTokens,
	}

	start := time.Now()
	chunks, err := p.llm.StreamCompletion(ctx, req)
	if err != nil {
		p.log.Error("completion stream failed to start", "err", err)
		p.metrics.RecordProviderError(ctx, "llm", "stream")
		p.speak(ctx, fatalApology)
		return turnResult{action: IntentGeneralQuery, response: fatalApology, status: statusError}
	}

	if !p.claimSpeaking() {
		// A wake word claimed the exchange while the stream was starting;
		// the superseded answer must not play over the new capture.
		for range chunks {
		}
		return turnResult{action: IntentGeneralQuery, response: "", status: statusInterrupted}
	}
	defer p.speaker.EndTurn()

	var (
		sb     strings.Builder
		spoken []string
		status = statusOK
	)

	for chunk := range chunks {
		if p.interrupt.Raised() {
			status = statusInterrupted
			for range chunks {
			}
			break
		}
		if chunk.FinishReason == "error" {
			p.log.Error("completion stream failed mid-answer")
			p.metrics.RecordProviderError(ctx, "llm", "stream")
			status = statusError
			if len(spoken) == 0 {
				p.speaker.Say(fatalApology)
				spoken = append(spoken, fatalApology)
			}
			break
		}

		sb.WriteString(chunk.Text)
		if strings.ContainsAny(chunk.Text, sentenceBoundary) {
			if sentence := strings.TrimSpace(sb.String()); sentence != "" {
				p.speaker.Say(sentence)
				spoken = append(spoken, sentence)
			}
			sb.Reset()
		}
	}

	if status == statusOK {
		// Flush whatever the model left unterminated.
		if rest := strings.TrimSpace(sb.String()); rest != "" {
			p.speaker.Say(rest + ".")
			spoken = append(spoken, rest+".")
		}
	}

	p.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	p.log.Info("general query answered",
		"sentences", len(spoken),
		"status", status,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return turnResult{action: IntentGeneralQuery, response: strings.Join(spoken, " "), status: status}
}

// speak queues one reply and ends the turn. Used for every non-streamed
// response. A reply whose turn was superseded by a new wake word is dropped.
func (p *Pipeline) speak(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if !p.claimSpeaking() {
		p.log.Info("reply dropped, superseded by new wake word")
		return
	}
	p.speaker.Say(text)
	p.speaker.EndTurn()
}

// claimSpeaking transitions the machine to Speaking unless a barge-in has
// moved it to Listening. A new wake event always wins over an in-flight
// turn, so a turn that lost the race never emits audio.
func (p *Pipeline) claimSpeaking() bool {
	for _, from := range []state.State{state.Thinking, state.Speaking, state.Idle} {
		if p.machine.CompareAndSwap(from, state.Speaking) {
			return true
		}
	}
	return false
}

// settleToIdle waits out the settle delay and then forces Idle, but only if
// the assistant is still Speaking; a wake word in between wins.
func (p *Pipeline) settleToIdle(ctx context.Context) {
	select {
	case <-time.After(p.cfg.Settle):
	case <-ctx.Done():
	}
	p.machine.CompareAndSwap(state.Speaking, state.Idle)
}

// writeHistory appends the turn record. History is best-effort; failures are
// logged and forgotten.
func (p *Pipeline) writeHistory(ctx context.Context, turn history.Turn) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.store.WriteTurn(wctx, turn); err != nil {
		p.log.Warn("history write failed", "err", err)
	}
}

// titleCase capitalizes each word so spoken contact names read naturally in
// replies and match the contact book's display form.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
