package goals

import (
	"testing"
	"time"
)

func baseGoal(id string) *Goal {
	return &Goal{
		ID:      id,
		Name:    id,
		Enabled: true,
		Risk:    RiskMedium,
		Trigger: Trigger{EventType: "health.failure"},
		Action:  Action{Type: ActionNotify, Channel: "ops", Message: "endpoint down: {{ payload.url }}"},
		Limits:  Limits{CooldownSeconds: 60, MaxPerHour: 2, MaxPerDay: 10},
	}
}

func TestTriggerExactFilter(t *testing.T) {
	tr := Trigger{EventType: "health.failure", Filter: map[string]string{"status_code": "500"}}
	if !tr.Matches("health.failure", map[string]any{"status_code": "500"}) {
		t.Fatalf("expected exact filter match")
	}
	if tr.Matches("health.failure", map[string]any{"status_code": "404"}) {
		t.Fatalf("expected exact filter mismatch to reject")
	}
}

func TestTriggerRegexFilter(t *testing.T) {
	tr := Trigger{EventType: "log.match", Filter: map[string]string{"pattern": "regex:^ERROR.*timeout$"}}
	if !tr.Matches("log.match", map[string]any{"pattern": "ERROR request timeout"}) {
		t.Fatalf("expected regex filter match")
	}
	if tr.Matches("log.match", map[string]any{"pattern": "INFO all good"}) {
		t.Fatalf("expected regex filter mismatch to reject")
	}
}

func TestGoalCooldown(t *testing.T) {
	g := baseGoal("g1")
	now := time.Now()
	ok, outcome := g.CanExecute(now)
	if !ok || outcome != "eligible" {
		t.Fatalf("expected first check to be eligible, got %v/%s", ok, outcome)
	}
	g.RecordExecution(now)

	ok, outcome = g.CanExecute(now.Add(10 * time.Second))
	if ok || outcome != "cooldown" {
		t.Fatalf("expected cooldown rejection, got %v/%s", ok, outcome)
	}

	ok, _ = g.CanExecute(now.Add(61 * time.Second))
	if !ok {
		t.Fatalf("expected eligibility after cooldown elapses")
	}
}

func TestGoalHourlyLimit(t *testing.T) {
	g := baseGoal("g1")
	now := time.Now()
	g.Limits.CooldownSeconds = 0

	for i := 0; i < 2; i++ {
		ok, _ := g.CanExecute(now)
		if !ok {
			t.Fatalf("expected execution %d to be eligible", i)
		}
		g.RecordExecution(now)
	}

	ok, outcome := g.CanExecute(now)
	if ok || outcome != "hourly_limit" {
		t.Fatalf("expected hourly_limit rejection, got %v/%s", ok, outcome)
	}
}

func TestEmergencyStopBlocksMatching(t *testing.T) {
	m := NewManager(nil)
	m.AddGoal(baseGoal("g1"))
	m.SetEmergencyStop(true)

	matches := m.FindMatchingGoals("health.failure", map[string]any{}, time.Now())
	if len(matches) != 0 {
		t.Fatalf("expected no matches while emergency stopped")
	}
}

func TestFindMatchingGoalsRespectsDisabled(t *testing.T) {
	m := NewManager(nil)
	g := baseGoal("g1")
	g.Enabled = false
	m.AddGoal(g)

	matches := m.FindMatchingGoals("health.failure", map[string]any{}, time.Now())
	if len(matches) != 0 {
		t.Fatalf("expected disabled goal not to match")
	}
}

func TestActionRenderUsesSafeLookup(t *testing.T) {
	a := Action{Message: "down: {{ payload.url }}, code {{ payload.status_code }}"}
	out, err := a.Render(map[string]any{"payload": map[string]any{"url": "https://example.com", "status_code": 503}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "down: https://example.com, code 503"
	if out["message"] != want {
		t.Fatalf("got %q, want %q", out["message"], want)
	}
}

func TestActionRenderRejectsUnknownField(t *testing.T) {
	a := Action{Message: "{{ payload.missing }}"}
	if _, err := a.Render(map[string]any{"payload": map[string]any{}}); err == nil {
		t.Fatalf("expected an error for an unresolved template field")
	}
}

func TestActionRenderOnlyIncludesNonEmptyFields(t *testing.T) {
	a := Action{Type: ActionHTTP, URL: "https://example.com/{{ payload.path }}", Method: "POST"}
	out, err := a.Render(map[string]any{"payload": map[string]any{"path": "hook"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["url"] != "https://example.com/hook" || out["method"] != "POST" {
		t.Fatalf("unexpected rendered fields: %+v", out)
	}
	if _, ok := out["command"]; ok {
		t.Fatalf("expected empty command field to be omitted, got %+v", out)
	}
}
