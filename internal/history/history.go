// Package history persists dialogue turns so conversations survive restarts
// and can be inspected later. The primary implementation is backed by
// PostgreSQL; [NopStore] is used when no database is configured.
package history

import (
	"context"
	"time"
)

// Turn is one completed exchange: what the user said and what the assistant
// did about it.
type Turn struct {
	// StartedAt marks when the utterance was finalized.
	StartedAt time.Time

	// Utterance is the user's transcribed command.
	Utterance string

	// Action is the routed intent (e.g. "general_query", "send_message").
	Action string

	// Response is the assistant's spoken reply. Empty when the turn was
	// interrupted before any reply was produced.
	Response string

	// Status records the outcome: "ok", "interrupted", or "error".
	Status string
}

// Store records completed dialogue turns.
type Store interface {
	// WriteTurn appends one turn. Failures are logged by callers, not
	// surfaced to the user; history is best-effort.
	WriteTurn(ctx context.Context, t Turn) error

	// Recent returns the most recent turns, newest first, up to limit.
	Recent(ctx context.Context, limit int) ([]Turn, error)

	// Close releases store resources.
	Close() error
}

// NopStore is a Store that discards writes and returns no history.
type NopStore struct{}

// WriteTurn implements Store.
func (NopStore) WriteTurn(context.Context, Turn) error { return nil }

// Recent implements Store.
func (NopStore) Recent(context.Context, int) ([]Turn, error) { return nil, nil }

// Close implements Store.
func (NopStore) Close() error { return nil }

// Compile-time assertion that NopStore satisfies the Store interface.
var _ Store = NopStore{}
