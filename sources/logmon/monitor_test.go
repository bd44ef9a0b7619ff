package logmon

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

func TestLogMonitorEmitsOnThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pub := &recordingPublisher{}
	m := New(pub)
	if err := m.AddMonitor(Config{
		ID: "m1", Path: path, Patterns: []string{"regex:^ERROR"},
		WindowSeconds: 60, ThresholdCount: 2, PollInterval: 30 * time.Millisecond,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.WriteString("ERROR something broke\n")
	f.Sync()
	time.Sleep(100 * time.Millisecond)
	f.WriteString("ERROR something broke again\n")
	f.Sync()
	f.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(pub.snapshot()) > 0 {
			break
		}
		time.Sleep(30 * time.Millisecond)
	}

	events := pub.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 threshold event, got %d", len(events))
	}
	if events[0].EventType != "log_pattern" {
		t.Fatalf("expected log_pattern, got %s", events[0].EventType)
	}
	if events[0].Source != "log_monitor:m1" {
		t.Fatalf("expected source log_monitor:m1, got %s", events[0].Source)
	}
	if events[0].Priority != eventbus.High {
		t.Fatalf("expected default HIGH priority, got %s", events[0].Priority)
	}
	patterns, _ := events[0].Payload["patterns_matched"].([]string)
	if len(patterns) != 1 || patterns[0] != "regex:^ERROR" {
		t.Fatalf("expected patterns_matched to contain the matched pattern, got %v", events[0].Payload["patterns_matched"])
	}
	samples, _ := events[0].Payload["sample_lines"].([]string)
	if len(samples) != 2 {
		t.Fatalf("expected 2 sample_lines, got %v", events[0].Payload["sample_lines"])
	}
}

func TestLogMonitorIgnoresNonMatchingLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	os.WriteFile(path, []byte(""), 0o644)

	pub := &recordingPublisher{}
	m := New(pub)
	m.AddMonitor(Config{ID: "m1", Path: path, Patterns: []string{"regex:^ERROR"}, ThresholdCount: 1, PollInterval: 30 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString("INFO all fine\n")
	f.Close()

	time.Sleep(300 * time.Millisecond)
	if len(pub.snapshot()) != 0 {
		t.Fatalf("expected no events for non-matching lines")
	}
}
