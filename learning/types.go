// Package learning implements the confidence scoring and recommendation
// surface that sits on top of the semantic memory collaborator, ported
// from ag3nt_agent/autonomous/learning_engine.py. The cache layering is
// grounded on the teacher's idempotency store (Redis-or-memory backend).
package learning

import "time"

// ActionRecord is one historical outcome fed back into memory after an
// action executes.
type ActionRecord struct {
	ActionType string
	GoalID     string
	Context    string
	Success    bool
	DurationMs int64
	Timestamp  time.Time
	Metadata   map[string]any
}

// ConfidenceScore summarizes how well a given action type has performed in
// contexts similar to the one being evaluated.
type ConfidenceScore struct {
	ActionType     string
	Score          float64
	SampleCount    int
	SuccessRate    float64
	AvgDurationMs  float64
	LastSuccess    time.Time
	LastFailure    time.Time
	SimilarActions []MemoryMatch
}

// HasSufficientData reports whether enough samples exist to trust Score,
// matching ConfidenceScore.has_sufficient_data (sample_count >= 3).
func (c ConfidenceScore) HasSufficientData() bool {
	return c.SampleCount >= 3
}

// Recommendation is a suggested action surfaced by cross-context analysis.
type Recommendation struct {
	ActionType  string
	Score       float64
	SampleCount float64
	Reason      string
}

// MemoryMatch is one result returned by the semantic memory collaborator's
// FindMemories query.
type MemoryMatch struct {
	ActionType string
	GoalID     string
	Context    string
	Success    bool
	DurationMs int64
	Timestamp  time.Time
	Similarity float64
}

// DailySummary aggregates a day's worth of recorded actions.
type DailySummary struct {
	Total         int
	Successes     int
	Failures      int
	ByActionType  map[string]ActionTypeTotals
	ByGoal        map[string]ActionTypeTotals
}

// ActionTypeTotals is a success/failure tally bucket.
type ActionTypeTotals struct {
	Total     int
	Successes int
}
