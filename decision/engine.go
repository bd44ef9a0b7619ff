package decision

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentflux/core/goals"
	"github.com/agentflux/core/learning"
	"github.com/agentflux/core/observability"
)

// Engine evaluates a goal/confidence pair into a Decision, the Go shape of
// decision_engine.py's DecisionEngine.
type Engine struct {
	cfg Config

	mu       sync.Mutex
	failures map[string]int
}

// NewEngine constructs an Engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults(), failures: make(map[string]int)}
}

// Evaluate decides whether a goal's action should run, given the learning
// engine's confidence for its action type and whether the goal is flagged
// as always requiring human approval. Mirrors decision_engine.py's evaluate
// method's check ordering exactly: approval override, then sample
// sufficiency, then reject-floor, then escalation, then threshold.
func (e *Engine) Evaluate(goal *goals.Goal, confidence learning.ConfidenceScore, requiresApproval bool) Decision {
	now := time.Now().UTC()
	threshold := e.threshold(goal)

	var d Decision
	switch {
	case requiresApproval:
		d = e.ask(goal, confidence, threshold, "goal requires human approval", now)
	case confidence.SampleCount < e.cfg.MinSamplesRequired:
		d = e.ask(goal, confidence, threshold, fmt.Sprintf("insufficient history: %d samples, need %d", confidence.SampleCount, e.cfg.MinSamplesRequired), now)
	case confidence.Score < e.cfg.RejectBelowConfidence:
		d = e.reject(goal, confidence, threshold, fmt.Sprintf("confidence %.2f below reject floor %.2f", confidence.Score, e.cfg.RejectBelowConfidence), now)
	case e.failureCount(goal.ID) >= e.cfg.EscalateAfterFailures:
		d = e.escalate(goal, confidence, threshold, fmt.Sprintf("%d consecutive failures, escalating for review", e.failureCount(goal.ID)), now)
	case confidence.Score >= threshold:
		d = e.act(goal, confidence, threshold, fmt.Sprintf("confidence %.2f meets threshold %.2f", confidence.Score, threshold), now)
	default:
		d = e.ask(goal, confidence, threshold, fmt.Sprintf("confidence %.2f below threshold %.2f", confidence.Score, threshold), now)
	}

	observability.DecisionsTotal.WithLabelValues(string(d.Type)).Inc()
	observability.ConfidenceScoreHist.Observe(confidence.Score)
	return d
}

// threshold returns the greater of the goal's risk-level default and any
// goal-specific override, matching decision_engine.py's _get_threshold.
func (e *Engine) threshold(goal *goals.Goal) float64 {
	riskThreshold := e.riskThreshold(goal.Risk)
	goalThreshold := goal.ConfidenceThreshold()
	if goalThreshold > riskThreshold {
		return goalThreshold
	}
	return riskThreshold
}

func (e *Engine) riskThreshold(risk goals.RiskLevel) float64 {
	switch risk {
	case goals.RiskLow:
		return e.cfg.LowThreshold
	case goals.RiskHigh:
		return e.cfg.HighThreshold
	case goals.RiskCritical:
		return e.cfg.CriticalThreshold
	default:
		return e.cfg.MediumThreshold
	}
}

func (e *Engine) act(goal *goals.Goal, c learning.ConfidenceScore, threshold float64, reason string, now time.Time) Decision {
	return Decision{
		Type: Act, GoalID: goal.ID, ActionType: string(goal.Action.Type),
		Confidence: c.Score, Threshold: threshold, Reason: reason, Timestamp: now,
		Metadata: map[string]any{"sample_count": c.SampleCount, "success_rate": c.SuccessRate},
	}
}

func (e *Engine) ask(goal *goals.Goal, c learning.ConfidenceScore, threshold float64, reason string, now time.Time) Decision {
	return Decision{
		Type: Ask, GoalID: goal.ID, ActionType: string(goal.Action.Type),
		Confidence: c.Score, Threshold: threshold, Reason: reason, Timestamp: now,
		Metadata: map[string]any{"sample_count": c.SampleCount},
	}
}

func (e *Engine) reject(goal *goals.Goal, c learning.ConfidenceScore, threshold float64, reason string, now time.Time) Decision {
	return Decision{
		Type: Reject, GoalID: goal.ID, ActionType: string(goal.Action.Type),
		Confidence: c.Score, Threshold: threshold, Reason: reason, Timestamp: now,
	}
}

func (e *Engine) escalate(goal *goals.Goal, c learning.ConfidenceScore, threshold float64, reason string, now time.Time) Decision {
	return Decision{
		Type: Escalate, GoalID: goal.ID, ActionType: string(goal.Action.Type),
		Confidence: c.Score, Threshold: threshold, Reason: reason, Timestamp: now,
		Metadata: map[string]any{"failure_count": e.failureCount(goal.ID)},
	}
}

// RecordOutcome updates the consecutive-failure counter for a goal after an
// action executes.
func (e *Engine) RecordOutcome(goalID string, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if success {
		delete(e.failures, goalID)
		return
	}
	e.failures[goalID]++
}

// ResetFailures clears the failure counter for a goal, e.g. after a human
// operator resolves an escalation.
func (e *Engine) ResetFailures(goalID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.failures, goalID)
}

func (e *Engine) failureCount(goalID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failures[goalID]
}
