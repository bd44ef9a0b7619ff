// Package eventbus implements the autonomous runtime's central event router:
// a priority queue fed by observation sources, with deduplication, retrying
// subscriptions, and a dead letter queue for handlers that never recover.
//
// The scheduling core is adapted from the teacher's reconciliation
// scheduler (container/heap priority queue, single consumer loop); the
// event envelope and dedup-key semantics are ported from the Python
// original (ag3nt_agent/autonomous/event_bus.py).
package eventbus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority orders events for dispatch. Lower values are dequeued first.
type Priority int

const (
	Critical Priority = iota
	High
	Medium
	Low
)

func (p Priority) String() string {
	switch p {
	case Critical:
		return "CRITICAL"
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	case Low:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// ParsePriority maps a priority name back to its ordinal, defaulting to
// Medium for unrecognized input (mirrors the Python EventPriority[name]
// lookup, but never panics).
func ParsePriority(s string) Priority {
	switch strings.ToUpper(s) {
	case "CRITICAL":
		return Critical
	case "HIGH":
		return High
	case "LOW":
		return Low
	default:
		return Medium
	}
}

// Event is an immutable observation flowing through the bus.
type Event struct {
	EventID            string
	EventType          string
	Source             string
	Payload            map[string]any
	Priority           Priority
	Timestamp          time.Time
	Metadata           map[string]any
	DedupKey           string
	DedupWindowSeconds int
}

// NewEvent constructs an Event with a generated ID, timestamp, and dedup
// key, mirroring the convenience create_event() helper in the Python
// original.
func NewEvent(eventType, source string, payload map[string]any, priority Priority, metadata map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	e := Event{
		EventID:            uuid.NewString(),
		EventType:          eventType,
		Source:             source,
		Payload:            payload,
		Priority:           priority,
		Timestamp:          time.Now().UTC(),
		Metadata:           metadata,
		DedupWindowSeconds: 60,
	}
	e.DedupKey = DedupKeyOf(e)
	return e
}

// DedupKeyOf computes the deterministic fingerprint used for deduplication:
// event_type | source | sorted payload "k=v" pairs, hashed with SHA-256 and
// truncated to 16 hex characters. Insertion order of the payload map never
// affects the result.
func DedupKeyOf(e Event) string {
	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.EventType)
	b.WriteByte('|')
	b.WriteString(e.Source)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%v", e.Payload[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// ScalarPayload returns the subset of the payload whose values are scalar
// (string, bool, or a numeric type) in a stable (sorted by key) order. The
// Decision Engine's context builder uses exactly this subset per spec open
// question 1: structured payload values are deliberately excluded, never
// stringified.
func (e Event) ScalarPayload() []KV {
	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]KV, 0, len(keys))
	for _, k := range keys {
		if isScalar(e.Payload[k]) {
			out = append(out, KV{Key: k, Value: e.Payload[k]})
		}
	}
	return out
}

// KV is an ordered key/value pair drawn from an event payload.
type KV struct {
	Key   string
	Value any
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

// EventHandler processes a single Event. Handlers run on their own
// goroutine from the bus's consumer loop and are retried on error up to the
// bus's configured max attempts.
type EventHandler func(Event) error

// Subscription is a handler registration. An empty EventTypes set means
// "every event type" (a global handler).
type Subscription struct {
	ID             string
	Handler        EventHandler
	EventTypes     map[string]struct{}
	PriorityFilter *Priority
	SourceFilter   string
}

func newSubscription(h EventHandler, types []string, priorityFilter *Priority, sourceFilter string) Subscription {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return Subscription{
		ID:             uuid.NewString(),
		Handler:        h,
		EventTypes:     set,
		PriorityFilter: priorityFilter,
		SourceFilter:   sourceFilter,
	}
}

func (s Subscription) interestedIn(e Event) bool {
	if s.PriorityFilter != nil && e.Priority > *s.PriorityFilter {
		return false
	}
	if s.SourceFilter != "" && s.SourceFilter != e.Source {
		return false
	}
	return true
}

func (s Subscription) global() bool {
	return len(s.EventTypes) == 0
}

// Metrics is a point-in-time snapshot of bus counters, matching the
// get_metrics() surface of spec.md §4.A.
type Metrics struct {
	EventsReceived     int64
	EventsProcessed    int64
	EventsDeduplicated int64
	EventsFailed       int64
	HandlersInvoked    int64
	QueueSize          int
	Subscriptions      int
	DLQSize            int
	DedupCacheSize     int
}

// DLQEntry pairs a failed Event with the error that exhausted its retries.
type DLQEntry struct {
	Event Event
	Err   error
}
