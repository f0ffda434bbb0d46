package skills

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Launcher opens applications and websites. Apps are executed directly;
// websites go through xdg-open so the user's default browser handles them.
type Launcher struct {
	runner Runner
	log    *slog.Logger
}

// NewLauncher builds the launch skill.
func NewLauncher(runner Runner) *Launcher {
	return &Launcher{
		runner: runner,
		log:    slog.Default().With("component", "skills.launcher"),
	}
}

// Do launches target. targetType is "app" or "website"; searchQuery, when
// set, searches on the target site instead of just opening it.
func (l *Launcher) Do(ctx context.Context, target, targetType, searchQuery string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "I received a launch command, but I couldn't tell what to open.", nil
	}

	switch strings.ToLower(strings.TrimSpace(targetType)) {
	case "app":
		return l.launchApp(ctx, target), nil
	case "website":
		return l.openWebsite(ctx, target, searchQuery), nil
	}
	return "I received a launch command, but I couldn't determine its type.", nil
}

func (l *Launcher) launchApp(ctx context.Context, target string) string {
	// App names arrive as spoken words ("code editor"); try the first
	// token as the binary name.
	binary := strings.ToLower(strings.Fields(target)[0])
	if _, err := l.runner.LookPath(binary); err != nil {
		l.log.Warn("application not found on PATH", "target", target, "binary", binary)
		return fmt.Sprintf("I had trouble launching the application '%s'.", target)
	}
	if err := l.runner.Start(ctx, binary); err != nil {
		l.log.Warn("application launch failed", "binary", binary, "err", err)
		return fmt.Sprintf("I had trouble launching the application '%s'.", target)
	}
	return fmt.Sprintf("Launching the '%s' application.", target)
}

func (l *Launcher) openWebsite(ctx context.Context, target, searchQuery string) string {
	target = strings.ToLower(target)

	var dest, reply string
	switch {
	case searchQuery != "":
		dest = platformSearchURL(target, searchQuery)
		reply = fmt.Sprintf("Searching %s for: %s.", target, searchQuery)
	case looksLikeSite(target):
		dest = directSiteURL(target)
		reply = fmt.Sprintf("Opening the web browser to %s.", hostOf(dest))
	default:
		dest = "https://www.google.com/search?q=" + url.QueryEscape(target)
		reply = fmt.Sprintf("Searching the web for: %s.", target)
	}

	if err := l.runner.Start(ctx, "xdg-open", dest); err != nil {
		l.log.Warn("browser open failed", "url", dest, "err", err)
		return "I had trouble opening the browser to complete your request."
	}
	return reply
}

// platformSearchURL builds a search URL on the named platform. A couple of
// popular sites use non-standard search paths; everything else gets the
// conventional /search?q= form.
func platformSearchURL(platform, query string) string {
	name := strings.ReplaceAll(platform, " ", "")
	escaped := url.QueryEscape(strings.TrimSpace(query))

	switch name {
	case "youtube":
		return "https://www.youtube.com/results?search_query=" + escaped
	case "wikipedia":
		return "https://en.wikipedia.org/w/index.php?search=" + escaped
	case "google":
		return "https://www.google.com/search?q=" + escaped
	}
	return "https://www." + name + ".com/search?q=" + escaped
}

// looksLikeSite reports whether the spoken target is a site name rather
// than a search phrase.
func looksLikeSite(target string) bool {
	for _, ext := range []string{".com", ".org", ".net", ".co.uk"} {
		if strings.Contains(target, ext) {
			return true
		}
	}
	switch target {
	case "youtube", "reddit", "google":
		return true
	}
	return false
}

// directSiteURL normalizes a spoken site name into an https URL.
func directSiteURL(target string) string {
	clean := strings.Fields(target)[0]
	clean = strings.TrimPrefix(clean, "https://")
	clean = strings.TrimPrefix(clean, "http://")
	clean = strings.TrimPrefix(clean, "www.")
	if i := strings.IndexByte(clean, '/'); i >= 0 {
		clean = clean[:i]
	}
	if !strings.Contains(clean, ".") {
		clean += ".com"
	}
	return "https://www." + clean
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}
