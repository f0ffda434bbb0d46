// Package dialogue turns finalized utterances into assistant behaviour: it
// classifies intents, runs multi-turn slot filling for messaging, streams
// conversational answers sentence by sentence, and hands spoken text to the
// playback engine.
//
// The package has two moving parts. [Router] performs a single structured
// classification call against the response service. [Pipeline] consumes the
// utterance queue produced by the capture loop and drives one turn at a time.
// [Context] carries the in-between-turns state they share.
package dialogue

import "sync"

// Context is the multi-turn dialogue state. The pipeline is the only writer;
// the capture loop reads AwaitingConfirmation and MatchesConfirmation when it
// finalizes an utterance, so all access is mutex-guarded.
type Context struct {
	mu       sync.Mutex
	active   bool
	intent   string
	slots    map[string]string
	awaiting bool

	confirm *ConfirmMatcher
}

// NewContext returns an empty dialogue context. The matcher decides which
// transcripts count as confirmation phrases; nil means a default matcher.
func NewContext(matcher *ConfirmMatcher) *Context {
	if matcher == nil {
		matcher = NewConfirmMatcher()
	}
	return &Context{
		slots:   make(map[string]string),
		confirm: matcher,
	}
}

// Begin opens a dialogue turn for the given intent, clearing any previous
// slots.
func (c *Context) Begin(intent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	c.intent = intent
	c.awaiting = false
	c.slots = make(map[string]string)
}

// Active reports whether a multi-turn exchange is in progress.
func (c *Context) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Intent returns the intent the open exchange belongs to, or "" when idle.
func (c *Context) Intent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return ""
	}
	return c.intent
}

// SetSlot stores a filled slot value. No-op when the context is not active.
func (c *Context) SetSlot(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.slots[key] = value
}

// Slot returns the stored value for key, or "" when unset.
func (c *Context) Slot(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[key]
}

// SetAwaiting marks whether the exchange is waiting for a yes/no from the
// user before executing a prepared action.
func (c *Context) SetAwaiting(awaiting bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awaiting = awaiting
}

// AwaitingConfirmation reports whether a prepared action is pending user
// approval. Read by the capture loop on every finalized utterance.
func (c *Context) AwaitingConfirmation() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && c.awaiting
}

// MatchesConfirmation reports whether text is close enough to the fixed
// confirmation vocabulary to count as approval without a classifier call.
func (c *Context) MatchesConfirmation(text string) bool {
	return c.confirm.IsConfirm(text)
}

// Clear resets the context to idle.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.intent = ""
	c.awaiting = false
	c.slots = make(map[string]string)
}
