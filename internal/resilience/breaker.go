// Package resilience provides a circuit breaker used around remote provider
// calls. A tripped breaker lets the assistant fail a turn quickly with a
// spoken apology instead of hanging on a provider that keeps timing out.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed is the normal state; calls pass through.
	Closed State = iota

	// Open means the breaker tripped on consecutive failures. Calls fail
	// immediately with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen is the probe state after the cooldown. A limited number of
	// calls are let through; success closes the breaker, failure re-opens it.
	HalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker]. Zero-value fields are
// replaced with defaults.
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// FailureThreshold is the number of consecutive failures that trips the
	// breaker. Default: 3.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 20s.
	Cooldown time.Duration

	// ProbeBudget is how many calls may run in the half-open state before the
	// breaker decides. Default: 1.
	ProbeBudget int
}

// Breaker is a three-state circuit breaker (closed, open, half-open).
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	probes    int

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probeCalls  int
	probeFailed bool
}

// NewBreaker creates a [Breaker] with the supplied configuration.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 20 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 1
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.FailureThreshold,
		cooldown:  cfg.Cooldown,
		probes:    cfg.ProbeBudget,
	}
}

// Do runs fn if the breaker allows it. While open it returns [ErrOpen]
// without calling fn. In half-open a limited number of probe calls run.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probeCalls = 0
		b.probeFailed = false
		slog.Info("breaker probing", "name", b.name)
	case HalfOpen:
		if b.probeCalls >= b.probes {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == HalfOpen
	if probing {
		b.probeCalls++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	if probing {
		// A failed probe re-opens immediately.
		b.state = Open
		b.openedAt = time.Now()
		b.probeFailed = true
		slog.Warn("breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = Open
		b.openedAt = time.Now()
		slog.Warn("breaker opened", "name", b.name, "failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if !b.probeFailed && b.probeCalls >= b.probes {
			b.state = Closed
			b.failures = 0
			slog.Info("breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State returns the breaker's current state. An open breaker whose cooldown
// has elapsed reports [HalfOpen]; the actual transition happens on the next
// [Breaker.Do] call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [Closed], clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probeCalls = 0
	b.probeFailed = false
}
