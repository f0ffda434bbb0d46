// Package skills implements the desktop-facing intent executors: system
// control, application and website launching, in-browser navigation,
// messaging, and music playback.
//
// Every skill talks to the desktop through the [Runner] interface so the
// logic can be tested against a fake without touching the host. Replies are
// sentences meant to be spoken, so soft failures ("I had trouble...") are
// returned as the reply, not as an error; errors are reserved for the skill
// itself breaking.
package skills

import (
	"context"
	"os/exec"
	"strings"
)

// Runner executes desktop commands.
type Runner interface {
	// Run executes a command, waits for it, and returns its combined
	// output with surrounding whitespace trimmed.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// Start launches a command without waiting for it to exit. Used for
	// applications and browser opens that outlive the turn.
	Start(ctx context.Context, name string, args ...string) error

	// LookPath reports where name resolves on PATH.
	LookPath(name string) (string, error)
}

// ExecRunner is the production [Runner] backed by os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// Start implements Runner. The child is released so it keeps running after
// the assistant moves on.
func (ExecRunner) Start(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// LookPath implements Runner.
func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

var _ Runner = ExecRunner{}
