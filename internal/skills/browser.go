package skills

import (
	"context"
	"log/slog"
)

// clickFirstResultScript is typed into the address bar to click the top
// result on the common search engines. Crude, but it works on pages where
// no accessibility API is available.
const clickFirstResultScript = `javascript:(function(){var a=document.querySelector('div.g a, #rso a, .b_algo a, .web-result a'); if(a) {a.click();}})();`

// Browser performs actions inside the currently focused browser window by
// synthesizing keystrokes with xdotool.
type Browser struct {
	runner Runner
	log    *slog.Logger
}

// NewBrowser builds the browser-navigation skill.
func NewBrowser(runner Runner) *Browser {
	return &Browser{
		runner: runner,
		log:    slog.Default().With("component", "skills.browser"),
	}
}

// Do performs one browser action and returns the sentence to speak.
func (b *Browser) Do(ctx context.Context, action string) (string, error) {
	type keyAction struct {
		keys  string
		reply string
	}
	actions := map[string]keyAction{
		"back":            {"alt+Left", "Going back in the browser history."},
		"forward":         {"alt+Right", "Going forward in the browser history."},
		"close_tab":       {"ctrl+w", "Closing the current tab."},
		"new_tab":         {"ctrl+t", "Opening a new browser tab."},
		"switch_tab_next": {"ctrl+Tab", "Switching to the next browser tab."},
		"switch_tab_prev": {"ctrl+shift+Tab", "Switching to the previous browser tab."},
	}

	if ka, ok := actions[action]; ok {
		if _, err := b.runner.Run(ctx, "xdotool", "key", ka.keys); err != nil {
			b.log.Warn("keystroke failed", "action", action, "err", err)
			return "I am unable to perform that browser action.", nil
		}
		return ka.reply, nil
	}

	if action == "click_link_1" {
		return b.clickFirstResult(ctx), nil
	}
	return "I am unable to perform that browser action.", nil
}

// clickFirstResult focuses the address bar, types a javascript: URL that
// clicks the top search result, and submits it.
func (b *Browser) clickFirstResult(ctx context.Context) string {
	steps := [][]string{
		{"key", "ctrl+l"},
		{"type", "--delay", "1", clickFirstResultScript},
		{"key", "Return"},
	}
	for _, args := range steps {
		if _, err := b.runner.Run(ctx, "xdotool", args...); err != nil {
			b.log.Warn("click-first-result step failed", "args", args, "err", err)
			return "I could not execute the script to click the link."
		}
	}
	return "Clicking the top search result."
}
