package streaming

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSPublisher mirrors runtime Events onto a NATS subject for other
// agent-runtime instances or external dashboards to subscribe to. This is
// an observability tap, not the bus's core transport: the Event Bus queue
// itself remains exclusively in-memory. Grounded on the subject-based
// pub/sub wiring style of the pack's NATS event bus wrapper.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to a NATS server and returns a Publisher
// mirroring every event onto subject.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("streaming: connecting to nats: %w", err)
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// Publish marshals e to JSON and publishes it on the configured subject.
func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("streaming: encoding event: %w", err)
	}
	if err := p.conn.Publish(p.subject, body); err != nil {
		return fmt.Errorf("streaming: publishing to nats: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Flush(); err != nil {
		// best-effort flush; still proceed to close
		_ = err
	}
	p.conn.Close()
	return nil
}

// Multi fans a single Publish out to several underlying publishers,
// letting the runtime mirror decisions to the log, the dashboard hub, and
// NATS simultaneously.
type Multi struct {
	publishers []Publisher
}

// NewMulti constructs a Multi wrapping the given publishers.
func NewMulti(publishers ...Publisher) *Multi {
	return &Multi{publishers: publishers}
}

// Publish forwards e to every wrapped publisher, collecting the first
// error but still attempting the rest.
func (m *Multi) Publish(ctx context.Context, e Event) error {
	var firstErr error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every wrapped publisher.
func (m *Multi) Close() error {
	var firstErr error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
