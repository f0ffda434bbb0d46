package dialogue

import "testing"

func TestConfirmMatcher_IsConfirm(t *testing.T) {
	t.Parallel()

	m := NewConfirmMatcher()

	cases := []struct {
		text string
		want bool
	}{
		{"yes", true},
		{"yep", true},
		{"confirm", true},
		{"go ahead", true},
		{"yes please", true},          // token match
		{"oh yes definitely", true},   // token match inside a longer phrase
		{"sent it", true},             // near miss for "send it"
		{"what time is it", false},
		{"play some jazz", false},
		{"", false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			if got := m.IsConfirm(tc.text); got != tc.want {
				t.Errorf("IsConfirm(%q): want %v, got %v", tc.text, tc.want, got)
			}
		})
	}
}

func TestConfirmMatcher_IsCancel(t *testing.T) {
	t.Parallel()

	m := NewConfirmMatcher()

	cases := []struct {
		text string
		want bool
	}{
		{"cancel", true},
		{"never mind", true},
		{"stop listening", true},
		{"stop", true}, // token match
		{"yes", false},
		{"turn up the volume", false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			if got := m.IsCancel(tc.text); got != tc.want {
				t.Errorf("IsCancel(%q): want %v, got %v", tc.text, tc.want, got)
			}
		})
	}
}

func TestConfirmMatcher_ThresholdOption(t *testing.T) {
	t.Parallel()

	strict := NewConfirmMatcher(WithConfirmThreshold(1.0))
	if strict.IsConfirm("sent it") {
		t.Error("threshold 1.0 should reject near misses")
	}
	if !strict.IsConfirm("send it") {
		t.Error("threshold 1.0 should still accept exact phrases")
	}
}

func TestContext_ConfirmationLifecycle(t *testing.T) {
	t.Parallel()

	c := NewContext(nil)
	if c.Active() || c.AwaitingConfirmation() {
		t.Fatal("fresh context should be idle")
	}

	c.Begin(IntentSendMessage)
	c.SetSlot("contact", "Bob")
	if got := c.Slot("contact"); got != "Bob" {
		t.Errorf("slot: want Bob, got %q", got)
	}
	if c.AwaitingConfirmation() {
		t.Error("awaiting should be false until a prepare completes")
	}

	c.SetAwaiting(true)
	if !c.AwaitingConfirmation() {
		t.Error("awaiting should be true after SetAwaiting")
	}
	if !c.MatchesConfirmation("yes") {
		t.Error("vocabulary phrase should match")
	}

	c.Clear()
	if c.Active() || c.AwaitingConfirmation() || c.Slot("contact") != "" {
		t.Error("Clear should reset all state")
	}
}
