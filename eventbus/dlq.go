package eventbus

import "sync"

// deadLetterQueue holds events whose handler retries were exhausted,
// trimmed to a maximum size exactly like event_bus.py's _dlq deque
// (maxlen=1000, oldest dropped first).
type deadLetterQueue struct {
	mu      sync.Mutex
	entries []DLQEntry
	maxSize int
}

func newDeadLetterQueue(maxSize int) *deadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &deadLetterQueue{maxSize: maxSize}
}

func (d *deadLetterQueue) add(e Event, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, DLQEntry{Event: e, Err: err})
	if len(d.entries) > d.maxSize {
		d.entries = d.entries[len(d.entries)-d.maxSize:]
	}
}

func (d *deadLetterQueue) list() []DLQEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DLQEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

func (d *deadLetterQueue) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// remove pulls the first entry matching eventID out of the queue for replay,
// mirroring event_bus.py's replay_from_dlq pop-by-id semantics.
func (d *deadLetterQueue) remove(eventID string) (DLQEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.entries {
		if e.Event.EventID == eventID {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return e, true
		}
	}
	return DLQEntry{}, false
}
