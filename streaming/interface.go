// Package streaming carries decision and bus-metric snapshots out of the
// runtime to observers: a log-backed default, a WebSocket hub for live
// dashboards, and an optional NATS publisher for other processes. Adapted
// from control_plane/streaming/interface.go.
package streaming

import "context"

// Event is a timestamped payload pushed to subscribers. Kind identifies the
// payload shape ("decision", "bus_metrics", "goal_status", ...).
type Event struct {
	Kind      string
	Payload   any
	Timestamp int64
}

// Publisher fans an Event out to whatever transport it wraps.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}
