package httpmon

import (
	"context"
	"net/http"
	"net/http/httptest"
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

func TestMonitorEmitsFailureOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	pub := &recordingPublisher{}
	m := New(pub)
	m.AddEndpoint(Endpoint{ID: "svc", URL: server.URL, IntervalSeconds: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(pub.snapshot()) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	events := pub.snapshot()
	if len(events) == 0 {
		t.Fatalf("expected at least one event to be emitted")
	}
	if events[0].EventType != "http_check" {
		t.Fatalf("expected http_check, got %s", events[0].EventType)
	}
	if events[0].Source != "http_monitor:svc" {
		t.Fatalf("expected source http_monitor:svc, got %s", events[0].Source)
	}
	if events[0].Priority != eventbus.High {
		t.Fatalf("expected HIGH priority for an alerting failure, got %s", events[0].Priority)
	}
	if success, _ := events[0].Payload["success"].(bool); success {
		t.Fatalf("expected success=false in payload")
	}
}

func TestMonitorEmitsNothingForNonAlertingFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	pub := &recordingPublisher{}
	m := New(pub)
	m.AddEndpoint(Endpoint{ID: "svc", URL: server.URL, IntervalSeconds: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	time.Sleep(1500 * time.Millisecond)

	if events := pub.snapshot(); len(events) != 0 {
		t.Fatalf("expected no events for a 404 outside the default alert_on_status list, got %d", len(events))
	}
}

func TestMonitorEmitsRecoveryAfterFailure(t *testing.T) {
	var fail = true
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		f := fail
		mu.Unlock()
		if f {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pub := &recordingPublisher{}
	m := New(pub)
	m.AddEndpoint(Endpoint{ID: "svc", URL: server.URL, IntervalSeconds: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	time.Sleep(1200 * time.Millisecond)
	mu.Lock()
	fail = false
	mu.Unlock()

	deadline := time.Now().Add(3 * time.Second)
	var sawRecovery bool
	for time.Now().Before(deadline) {
		for _, e := range pub.snapshot() {
			if e.EventType == "http_check" {
				if recovered, _ := e.Payload["recovered"].(bool); recovered {
					sawRecovery = true
				}
			}
		}
		if sawRecovery {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !sawRecovery {
		t.Fatalf("expected an http_check event with recovered=true after the endpoint recovered")
	}
}
