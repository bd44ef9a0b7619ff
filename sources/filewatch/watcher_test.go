package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/agentflux/core/eventbus"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) snapshot() []eventbus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]eventbus.Event, len(r.events))
	copy(out, r.events)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestWatcherEmitsCreated(t *testing.T) {
	dir := t.TempDir()
	pub := &recordingPublisher{}
	w := New(pub)
	w.AddWatch(WatchConfig{ID: "w1", Path: dir, PollInterval: 50 * time.Millisecond, DebounceSeconds: 0})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		for _, e := range pub.snapshot() {
			if e.EventType == "file_change" && e.Payload["event_type"] == string(Created) {
				return true
			}
		}
		return false
	})

	for _, e := range pub.snapshot() {
		if e.EventType != "file_change" {
			continue
		}
		if e.Source != "file_watcher:w1" {
			t.Fatalf("expected source file_watcher:w1, got %s", e.Source)
		}
		if e.Payload["watch_path"] != dir {
			t.Fatalf("expected watch_path %s in payload, got %v", dir, e.Payload["watch_path"])
		}
	}
}

func TestWatcherDebounceCollapsesModifiedThenDeleted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pub := &recordingPublisher{}
	w := New(pub)
	w.AddWatch(WatchConfig{ID: "w1", Path: dir, PollInterval: 30 * time.Millisecond, DebounceSeconds: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// Modify, then delete, both within the 1s debounce window.
	time.Sleep(60 * time.Millisecond)
	os.WriteFile(path, []byte("changed"), 0o644)
	time.Sleep(60 * time.Millisecond)
	os.Remove(path)

	waitFor(t, 3*time.Second, func() bool {
		return len(pub.snapshot()) > 0
	})
	// Give any further debounce cycles a chance to fire before asserting
	// no duplicate events land for the same path.
	time.Sleep(300 * time.Millisecond)

	events := pub.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 collapsed event, got %d: %+v", len(events), events)
	}
	if events[0].EventType != "file_change" {
		t.Fatalf("expected event_type file_change, got %s", events[0].EventType)
	}
	if events[0].Payload["event_type"] != string(Deleted) {
		t.Fatalf("expected the final observed type (deleted) to win, got %v", events[0].Payload["event_type"])
	}
	if events[0].Payload["watch_path"] != dir {
		t.Fatalf("expected watch_path %s in payload, got %v", dir, events[0].Payload["watch_path"])
	}
}
