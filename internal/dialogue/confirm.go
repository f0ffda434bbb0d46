package dialogue

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// defaultConfirmThreshold is the minimum Jaro-Winkler score for a transcript
// to count as one of the fixed confirmation/cancellation phrases. Spoken
// answers arrive mangled ("yep" as "yeah", "send it" as "sent it"), so exact
// membership is too brittle.
const defaultConfirmThreshold = 0.85

// confirmVocab are phrases that approve a pending action.
var confirmVocab = []string{"yes", "send it", "confirm", "go ahead", "yep"}

// cancelVocab are phrases that abandon a pending action.
var cancelVocab = []string{"stop listening", "never mind", "cancel"}

// ConfirmOption is a functional option for configuring a [ConfirmMatcher].
type ConfirmOption func(*ConfirmMatcher)

// WithConfirmThreshold sets the minimum Jaro-Winkler similarity required for
// a fuzzy vocabulary match. Default: 0.85.
func WithConfirmThreshold(threshold float64) ConfirmOption {
	return func(m *ConfirmMatcher) {
		m.threshold = threshold
	}
}

// ConfirmMatcher tests transcripts against the fixed confirmation and
// cancellation vocabularies. Read-only after construction, so safe for
// concurrent use.
type ConfirmMatcher struct {
	threshold float64
}

// NewConfirmMatcher returns a matcher configured with the supplied options.
func NewConfirmMatcher(opts ...ConfirmOption) *ConfirmMatcher {
	m := &ConfirmMatcher{threshold: defaultConfirmThreshold}
	for _, o := range opts {
		o(m)
	}
	return m
}

// IsConfirm reports whether text approves the pending action.
func (m *ConfirmMatcher) IsConfirm(text string) bool {
	return m.matches(text, confirmVocab)
}

// IsCancel reports whether text abandons the pending action.
func (m *ConfirmMatcher) IsCancel(text string) bool {
	return m.matches(text, cancelVocab)
}

// matches scores text against each phrase in vocab. Two strategies per
// phrase: the full strings, and the best pairwise token score so "yes please"
// still lands on "yes".
func (m *ConfirmMatcher) matches(text string, vocab []string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	textTokens := strings.Fields(text)

	for _, phrase := range vocab {
		if text == phrase {
			return true
		}
		if matchr.JaroWinkler(text, phrase, false) >= m.threshold {
			return true
		}
		for _, pt := range strings.Fields(phrase) {
			if len(pt) < 3 {
				// Tokens like "it" match half the language.
				continue
			}
			for _, tt := range textTokens {
				if len(tt) < 3 {
					continue
				}
				if matchr.JaroWinkler(tt, pt, false) >= m.threshold {
					return true
				}
			}
		}
	}
	return false
}
