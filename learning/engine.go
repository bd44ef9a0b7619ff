package learning

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/agentflux/core/eventbus"
	"github.com/agentflux/core/observability"
)

// Client is the narrow semantic-memory collaborator surface the engine
// depends on. memory.HTTPClient and memory.Fake both satisfy it.
type Client interface {
	StoreAction(ctx context.Context, rec ActionRecord) error
	FindMemories(ctx context.Context, query string, limit int, minScore float64) ([]MemoryMatch, error)
}

// Config tunes confidence computation.
type Config struct {
	ConfidenceDecayDays float64
	SuccessWeight       float64
	FailureWeight       float64
	CacheTTL            time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConfidenceDecayDays <= 0 {
		c.ConfidenceDecayDays = 30
	}
	if c.SuccessWeight <= 0 {
		c.SuccessWeight = 1.0
	}
	if c.FailureWeight <= 0 {
		c.FailureWeight = 1.5
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	return c
}

// Engine computes confidence scores and recommendations from historical
// action outcomes, the Go shape of learning_engine.py's LearningEngine. The
// memory collaborator is injected explicitly at construction rather than
// resolved lazily as a singleton, since Go favors explicit wiring over the
// Python original's property-based lazy resolution.
type Engine struct {
	client Client
	cfg    Config
	cache  *confidenceCache
}

// NewEngine constructs a learning Engine bound to client.
func NewEngine(client Client, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{client: client, cfg: cfg, cache: newConfidenceCache(cfg.CacheTTL)}
}

// RecordAction stores an action's outcome and invalidates any cached
// confidence scores for its action type. Memory service failures degrade
// gracefully: the caller is notified via the returned error but the engine
// itself remains usable.
func (e *Engine) RecordAction(ctx context.Context, rec ActionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if err := e.client.StoreAction(ctx, rec); err != nil {
		observability.MemoryQueryFailures.Inc()
		log.Printf("[LEARNING] failed to store action %s: %v", rec.ActionType, err)
		return fmt.Errorf("learning: storing action: %w", err)
	}
	e.cache.invalidate(rec.ActionType)
	return nil
}

// GetConfidence returns the engine's confidence that actionType will
// succeed in contextStr, computed from similar historical outcomes. On a
// memory service failure or insufficient history it degrades to a
// zero-confidence score rather than erroring, matching
// learning_engine.py's get_confidence degrade-gracefully behavior.
func (e *Engine) GetConfidence(ctx context.Context, actionType, contextStr string) ConfidenceScore {
	now := time.Now().UTC()
	if cached, ok := e.cache.get(actionType, contextStr, now); ok {
		observability.LearningCacheHits.Inc()
		return cached
	}

	query := fmt.Sprintf("%s action: %s", actionType, contextStr)
	results, err := e.client.FindMemories(ctx, query, 50, 0.3)
	if err != nil {
		observability.MemoryQueryFailures.Inc()
		log.Printf("[LEARNING] find_memories failed for %s: %v", actionType, err)
		return ConfidenceScore{ActionType: actionType}
	}

	score := e.calculateConfidence(actionType, results, now)
	e.cache.set(actionType, contextStr, score, now)
	return score
}

func (e *Engine) calculateConfidence(actionType string, results []MemoryMatch, now time.Time) ConfidenceScore {
	if len(results) < 3 {
		return ConfidenceScore{ActionType: actionType, SampleCount: len(results)}
	}

	var weightedSuccess, totalWeight, totalDuration float64
	var successCount int
	var lastSuccess, lastFailure time.Time

	for _, r := range results {
		ageDays := now.Sub(r.Timestamp).Hours() / 24
		recency := 1 - ageDays/e.cfg.ConfidenceDecayDays
		if recency < 0.1 {
			recency = 0.1
		}
		weight := r.Similarity * recency

		w := e.cfg.FailureWeight
		if r.Success {
			w = e.cfg.SuccessWeight
			successCount++
			if r.Timestamp.After(lastSuccess) {
				lastSuccess = r.Timestamp
			}
			weightedSuccess += weight * w
		} else if r.Timestamp.After(lastFailure) {
			lastFailure = r.Timestamp
		}
		totalWeight += weight * w
		totalDuration += float64(r.DurationMs)
	}

	confidence := 0.0
	if totalWeight > 0 {
		confidence = weightedSuccess / totalWeight
	}

	similar := results
	if len(similar) > 5 {
		similar = similar[:5]
	}

	return ConfidenceScore{
		ActionType:     actionType,
		Score:          confidence,
		SampleCount:    len(results),
		SuccessRate:    float64(successCount) / float64(len(results)),
		AvgDurationMs:  totalDuration / float64(len(results)),
		LastSuccess:    lastSuccess,
		LastFailure:    lastFailure,
		SimilarActions: similar,
	}
}

// ClearCache drops every cached confidence score, matching
// LearningEngine.clear_cache.
func (e *Engine) ClearCache() {
	e.cache.clear()
}

// Recommendations surfaces cross-context action suggestions: query broadly,
// group by action type, and keep groups with a score above 0.5 and at
// least 3 samples, matching learning_engine.py's get_recommendations.
func (e *Engine) Recommendations(ctx context.Context, contextStr string, limit int) ([]Recommendation, error) {
	results, err := e.client.FindMemories(ctx, contextStr, limit*3, 0.5)
	if err != nil {
		observability.MemoryQueryFailures.Inc()
		return nil, fmt.Errorf("learning: querying recommendations: %w", err)
	}

	type group struct {
		successWeight float64
		totalWeight   float64
		count         int
		successes     int
	}
	groups := make(map[string]*group)
	for _, r := range results {
		g, ok := groups[r.ActionType]
		if !ok {
			g = &group{}
			groups[r.ActionType] = g
		}
		g.count++
		g.totalWeight += r.Similarity
		if r.Success {
			g.successes++
			g.successWeight += r.Similarity
		}
	}

	var recs []Recommendation
	for actionType, g := range groups {
		if g.count < 3 {
			continue
		}
		score := 0.0
		if g.totalWeight > 0 {
			score = g.successWeight / g.totalWeight
		}
		if score <= 0.5 {
			continue
		}
		successRate := float64(g.successes) / float64(g.count)
		recs = append(recs, Recommendation{
			ActionType:  actionType,
			Score:       score,
			SampleCount: float64(g.count),
			Reason:      recommendationReason(actionType, successRate, g.count),
		})
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func recommendationReason(actionType string, successRate float64, count int) string {
	switch {
	case successRate >= 0.9:
		return fmt.Sprintf("%s has succeeded in %d/%d similar situations, a strong track record", actionType, int(successRate*float64(count)+0.5), count)
	case successRate >= 0.7:
		return fmt.Sprintf("%s has a good success rate across %d similar situations", actionType, count)
	default:
		return fmt.Sprintf("%s has shown moderate success across %d similar situations, worth considering", actionType, count)
	}
}

// DailySummary aggregates the last 24 hours of recorded actions, matching
// learning_engine.py's get_daily_summary.
func (e *Engine) DailySummary(ctx context.Context, now time.Time) (DailySummary, error) {
	results, err := e.client.FindMemories(ctx, "", 100, 0)
	if err != nil {
		observability.MemoryQueryFailures.Inc()
		return DailySummary{}, fmt.Errorf("learning: querying daily summary: %w", err)
	}

	cutoff := now.Add(-24 * time.Hour)
	summary := DailySummary{
		ByActionType: make(map[string]ActionTypeTotals),
		ByGoal:       make(map[string]ActionTypeTotals),
	}
	for _, r := range results {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		summary.Total++
		if r.Success {
			summary.Successes++
		} else {
			summary.Failures++
		}

		at := summary.ByActionType[r.ActionType]
		at.Total++
		if r.Success {
			at.Successes++
		}
		summary.ByActionType[r.ActionType] = at

		if r.GoalID != "" {
			gt := summary.ByGoal[r.GoalID]
			gt.Total++
			if r.Success {
				gt.Successes++
			}
			summary.ByGoal[r.GoalID] = gt
		}
	}
	return summary, nil
}

// BuildContext joins an event's scalar payload fields into the compact
// "key=value | key=value" string learning_engine.py's _build_context
// produces, used as the confidence-lookup context string. Structured
// (non-scalar) fields are deliberately excluded, per spec open question 1.
func BuildContext(pairs []eventbus.KV) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, fmt.Sprintf("%s=%v", p.Key, p.Value))
	}
	return strings.Join(parts, " | ")
}
