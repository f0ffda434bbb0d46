package history

import (
	"context"
	"testing"
	"time"
)

func TestNopStore(t *testing.T) {
	t.Parallel()

	var s NopStore
	err := s.WriteTurn(context.Background(), Turn{
		StartedAt: time.Now(),
		Utterance: "what time is it",
		Action:    "general_query",
		Status:    "ok",
	})
	if err != nil {
		t.Fatalf("WriteTurn: %v", err)
	}

	turns, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("NopStore should return no turns, got %d", len(turns))
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
