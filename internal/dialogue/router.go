package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wisp-assistant/wisp/internal/observe"
	"github.com/wisp-assistant/wisp/internal/resilience"
	"github.com/wisp-assistant/wisp/pkg/provider/llm"
)

// Intent names produced by the router. The taxonomy is fixed; anything the
// model invents degrades to general_query.
const (
	IntentSendMessage      = "send_message"
	IntentSystemControl    = "system_control"
	IntentMusicControl     = "music_control"
	IntentLaunchTarget     = "launch_target"
	IntentBrowserNavigator = "browser_navigator"
	IntentGeneralQuery     = "general_query"
	IntentConfirm          = "confirm"
	IntentCancel           = "cancel"
)

// routerMaxTokens caps the classification response. The JSON object is tiny;
// the cap keeps a rambling model cheap to cut off.
const routerMaxTokens = 256

// routerPrompt instructs the model to emit a single JSON object naming one
// intent from the fixed taxonomy.
const routerPrompt = `You are the intent router for a hands-free desktop voice assistant. Classify the user's request into exactly one intent and reply with a single JSON object of the form {"intent": "...", "slots": {...}}. No prose, no markdown, no code fences.

Intents and their slots:
- send_message: send a message to a person. Slots: {"contact": "person's name", "message": "full message text"}. Leave a slot empty if the user did not provide it.
- system_control: volume, screen brightness, battery status, window management, or telling the assistant to go to sleep. Slots: {"action": "volume_up|volume_down|set_volume|brightness_up|brightness_down|set_brightness|check_status|minimize_window|maximize_window|close_window|switch_app|sleep", "value": "a number, or battery|volume|brightness for check_status, else empty"}.
- music_control: music playback. Slots: {"action": "play|pause|next|previous|search_and_play", "query": "song, artist, or playlist when searching, else empty"}.
- launch_target: open or search for an application or website. Slots: {"target": "name of the app or site", "target_type": "app|website", "search_query": "what to search on the target, else empty"}.
- browser_navigator: act inside the currently open browser window. Slots: {"action": "back|forward|close_tab|new_tab|switch_tab_next|switch_tab_prev|click_link_1"}.
- general_query: any question, fact lookup, or conversation. Slots: {"query": "the original request"}.
- confirm: the user approves a previously prepared action. Slots: {"query": "the original request"}.
- cancel: the user abandons a previously prepared action. Slots: {"query": "the original request"}.

Classify this request:`

// Intent is one classified utterance: a name from the fixed taxonomy plus
// its extracted slots. Slot values are plain strings; numeric values are
// stringified and null/none become "".
type Intent struct {
	Name  string
	Slots map[string]string
}

// Slot returns the slot value for key, or "" when unset.
func (i Intent) Slot(key string) string {
	return i.Slots[key]
}

// Router classifies utterances with a single structured completion call,
// guarded by a circuit breaker so a dead response service fails turns fast.
type Router struct {
	llm     llm.Provider
	model   string
	breaker *resilience.Breaker
	metrics *observe.Metrics
	log     *slog.Logger
}

// NewRouter builds a router. breaker may be nil for unguarded calls; metrics
// nil means the process-wide default instruments.
func NewRouter(provider llm.Provider, model string, breaker *resilience.Breaker, metrics *observe.Metrics) *Router {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Router{
		llm:     provider,
		model:   model,
		breaker: breaker,
		metrics: metrics,
		log:     slog.Default().With("component", "router"),
	}
}

// Classify routes query to one intent. Transport failures (including an open
// breaker) are returned as errors; a malformed model reply is not an error
// and degrades to general_query so the turn still produces an answer.
func (r *Router) Classify(ctx context.Context, query string) (Intent, error) {
	req := llm.CompletionRequest{
		Messages:     []llm.Message{{Role: "user", Content: query}},
		SystemPrompt: routerPrompt,
		MaxTokens:    routerMaxTokens,
	}

	start := time.Now()
	var resp *llm.CompletionResponse
	call := func() error {
		var err error
		resp, err = r.llm.Complete(ctx, req)
		return err
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Do(call)
	} else {
		err = call()
	}
	r.metrics.RouteDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return Intent{}, fmt.Errorf("dialogue: classify: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return fallbackIntent(query), nil
	}

	intent := parseIntent(resp.Content, query)
	r.log.Debug("utterance classified", "intent", intent.Name, "model", r.model)
	return intent, nil
}

// parseIntent decodes the model reply. Code fences are stripped first;
// models wrap JSON in them no matter how firmly told not to.
func parseIntent(raw, query string) Intent {
	cleaned := stripCodeFence(raw)

	var decoded struct {
		Intent string         `json:"intent"`
		Slots  map[string]any `json:"slots"`
	}
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return fallbackIntent(query)
	}

	name := strings.ToLower(strings.TrimSpace(decoded.Intent))
	switch name {
	case IntentSendMessage, IntentSystemControl, IntentMusicControl,
		IntentLaunchTarget, IntentBrowserNavigator, IntentGeneralQuery,
		IntentConfirm, IntentCancel:
	default:
		return fallbackIntent(query)
	}

	slots := make(map[string]string, len(decoded.Slots))
	for k, v := range decoded.Slots {
		slots[strings.ToLower(k)] = normalizeSlot(v)
	}
	return Intent{Name: name, Slots: slots}
}

// fallbackIntent is the degraded classification: treat the utterance as
// conversation and let the generative model answer it.
func fallbackIntent(query string) Intent {
	return Intent{
		Name:  IntentGeneralQuery,
		Slots: map[string]string{"query": query},
	}
}

// normalizeSlot flattens a decoded JSON slot value to a string. Models emit
// numbers for percentages and null/"None" for absent slots.
func normalizeSlot(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(t)
		if strings.EqualFold(s, "none") || strings.EqualFold(s, "null") {
			return ""
		}
		return s
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// stripCodeFence removes a surrounding markdown code fence, with or without
// a language tag, and any prose before the first fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	s = s[start+3:]
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop a language tag such as "json" on the fence line.
		if tag := strings.TrimSpace(s[:nl]); tag == "" || !strings.ContainsAny(tag, "{}") {
			s = s[nl+1:]
		}
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
