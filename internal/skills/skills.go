package skills

import "context"

// Set bundles the individual executors behind the dispatch surface the
// response pipeline expects.
type Set struct {
	system   *System
	music    *Music
	launcher *Launcher
	browser  *Browser
}

// NewSet wires the executors into one dispatcher.
func NewSet(system *System, music *Music, launcher *Launcher, browser *Browser) *Set {
	return &Set{
		system:   system,
		music:    music,
		launcher: launcher,
		browser:  browser,
	}
}

// System executes a system_control action.
func (s *Set) System(ctx context.Context, action, value string) (string, error) {
	return s.system.Do(ctx, action, value)
}

// Music executes a music_control action.
func (s *Set) Music(ctx context.Context, action, query string) (string, error) {
	return s.music.Do(ctx, action, query)
}

// Launch executes a launch_target action.
func (s *Set) Launch(ctx context.Context, target, targetType, searchQuery string) (string, error) {
	return s.launcher.Do(ctx, target, targetType, searchQuery)
}

// Browser executes a browser_navigator action.
func (s *Set) Browser(ctx context.Context, action string) (string, error) {
	return s.browser.Do(ctx, action)
}
