package decision

import (
	"testing"

	"github.com/agentflux/core/goals"
	"github.com/agentflux/core/learning"
)

func testGoal(risk goals.RiskLevel) *goals.Goal {
	return &goals.Goal{ID: "g1", Risk: risk, Action: goals.Action{Type: goals.ActionNotify}}
}

func TestEvaluateActsAboveThreshold(t *testing.T) {
	e := NewEngine(Config{})
	c := learning.ConfidenceScore{Score: 0.95, SampleCount: 10}
	d := e.Evaluate(testGoal(goals.RiskMedium), c, false)
	if d.Type != Act {
		t.Fatalf("expected ACT, got %s (%s)", d.Type, d.Reason)
	}
}

func TestEvaluateAsksBelowThreshold(t *testing.T) {
	e := NewEngine(Config{})
	c := learning.ConfidenceScore{Score: 0.6, SampleCount: 10}
	d := e.Evaluate(testGoal(goals.RiskMedium), c, false)
	if d.Type != Ask {
		t.Fatalf("expected ASK, got %s", d.Type)
	}
}

func TestEvaluateAsksOnInsufficientSamples(t *testing.T) {
	e := NewEngine(Config{})
	c := learning.ConfidenceScore{Score: 0.99, SampleCount: 1}
	d := e.Evaluate(testGoal(goals.RiskLow), c, false)
	if d.Type != Ask {
		t.Fatalf("expected ASK for insufficient samples, got %s", d.Type)
	}
}

func TestEvaluateRejectsBelowFloor(t *testing.T) {
	e := NewEngine(Config{})
	c := learning.ConfidenceScore{Score: 0.05, SampleCount: 10}
	d := e.Evaluate(testGoal(goals.RiskLow), c, false)
	if d.Type != Reject {
		t.Fatalf("expected REJECT, got %s", d.Type)
	}
}

func TestEvaluateRequiresApprovalOverride(t *testing.T) {
	e := NewEngine(Config{})
	c := learning.ConfidenceScore{Score: 0.99, SampleCount: 10}
	d := e.Evaluate(testGoal(goals.RiskLow), c, true)
	if d.Type != Ask {
		t.Fatalf("expected ASK when approval is required, got %s", d.Type)
	}
}

func TestEvaluateEscalatesAfterFailures(t *testing.T) {
	e := NewEngine(Config{EscalateAfterFailures: 2})
	g := testGoal(goals.RiskLow)
	e.RecordOutcome(g.ID, false)
	e.RecordOutcome(g.ID, false)

	c := learning.ConfidenceScore{Score: 0.99, SampleCount: 10}
	d := e.Evaluate(g, c, false)
	if d.Type != Escalate {
		t.Fatalf("expected ESCALATE after repeated failures, got %s", d.Type)
	}
}

func TestRecordOutcomeSuccessResetsFailures(t *testing.T) {
	e := NewEngine(Config{EscalateAfterFailures: 2})
	e.RecordOutcome("g1", false)
	e.RecordOutcome("g1", false)
	e.RecordOutcome("g1", true)

	if e.failureCount("g1") != 0 {
		t.Fatalf("expected success to reset the failure counter")
	}
}

func TestRiskLevelRaisesThreshold(t *testing.T) {
	e := NewEngine(Config{})
	c := learning.ConfidenceScore{Score: 0.8, SampleCount: 10}

	if d := e.Evaluate(testGoal(goals.RiskMedium), c, false); d.Type != Act {
		t.Fatalf("expected ACT at medium risk with 0.8 confidence, got %s", d.Type)
	}
	if d := e.Evaluate(testGoal(goals.RiskHigh), c, false); d.Type != Ask {
		t.Fatalf("expected ASK at high risk with 0.8 confidence, got %s", d.Type)
	}
}

func TestAuditLogStatsAndTrim(t *testing.T) {
	log := NewAuditLog(2)
	log.Record(Decision{Type: Act, GoalID: "g1"})
	log.Record(Decision{Type: Ask, GoalID: "g1"})
	log.Record(Decision{Type: Reject, GoalID: "g2"})

	recent := log.GetRecent(10)
	if len(recent) != 2 {
		t.Fatalf("expected trim to 2 entries, got %d", len(recent))
	}

	stats := log.GetStats()
	if stats.Total != 2 {
		t.Fatalf("expected 2 total entries after trim, got %d", stats.Total)
	}
}
