package memory

import (
	"context"
	"testing"
	"time"

	"github.com/agentflux/core/learning"
)

func TestFakeStoreAndFind(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	if err := f.StoreAction(ctx, learning.ActionRecord{
		ActionType: "restart_service",
		Context:    "endpoint=api-1 status=down",
		Success:    true,
		Timestamp:  time.Now(),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := f.FindMemories(ctx, "restart_service", 10, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("expected stored record to round-trip Success=true")
	}
}

func TestFakeFindRespectsLimit(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.StoreAction(ctx, learning.ActionRecord{ActionType: "notify", Timestamp: time.Now()})
	}
	results, err := f.FindMemories(ctx, "notify", 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(results))
	}
}
