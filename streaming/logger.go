package streaming

import (
	"context"
	"encoding/json"
	"log"
)

// LogPublisher is the default Publisher: it writes every event to the
// process log, used when no dashboard or message broker is configured.
// Adapted from control_plane/streaming/logger.go.
type LogPublisher struct {
	logger *log.Logger
}

// NewLogPublisher wraps logger, or the standard logger if nil.
func NewLogPublisher(logger *log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish marshals e to JSON and logs it.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	p.logger.Printf("[STREAMING] PUBLISH %s: %s", e.Kind, body)
	return nil
}

// Close only logs that the publisher is closing; there is no underlying
// connection to release.
func (p *LogPublisher) Close() error {
	p.logger.Printf("[STREAMING] closing log publisher")
	return nil
}
