package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/agentflux/core/learning"
)

// Fake is an in-memory semantic memory collaborator for tests and for
// degraded-mode operation when no external memory service is configured.
// Similarity is approximated by substring overlap between the query and
// the stored context, since the fake has no embedding model to call.
type Fake struct {
	mu      sync.Mutex
	records []learning.ActionRecord
}

// NewFake constructs an empty Fake.
func NewFake() *Fake {
	return &Fake{}
}

// StoreAction appends rec to the fake's in-memory log.
func (f *Fake) StoreAction(_ context.Context, rec learning.ActionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

// FindMemories returns every stored record whose action type or context
// contains query (case-insensitive), assigning a similarity of 1.0 to
// matches and skipping the rest, trimmed to limit results and ordered most
// recent first. minScore is honored only to the extent that non-matches
// already score 0 and are excluded.
func (f *Fake) FindMemories(_ context.Context, query string, limit int, minScore float64) ([]learning.MemoryMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := strings.ToLower(query)
	var out []learning.MemoryMatch
	for i := len(f.records) - 1; i >= 0; i-- {
		r := f.records[i]
		similarity := 1.0
		if q != "" && !strings.Contains(strings.ToLower(r.ActionType+" "+r.Context), q) {
			continue
		}
		if similarity < minScore {
			continue
		}
		out = append(out, learning.MemoryMatch{
			ActionType: r.ActionType,
			GoalID:     r.GoalID,
			Context:    r.Context,
			Success:    r.Success,
			DurationMs: r.DurationMs,
			Timestamp:  r.Timestamp,
			Similarity: similarity,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
