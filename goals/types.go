// Package goals implements the Goal Manager: trigger matching against bus
// events, cooldown/quota admission control, and safe action-template
// rendering. Structurally grounded on the teacher's policy goal manager
// idiom (trigger/condition/action separation) and ported from
// ag3nt_agent/autonomous/goal_manager.py.
package goals

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// RiskLevel gates how much confidence a decision needs before acting.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ThresholdMultiplier returns the minimum confidence required to act at
// this risk level, matching RiskLevel.threshold_multiplier in the Python
// original.
func (r RiskLevel) ThresholdMultiplier() float64 {
	switch r {
	case RiskLow:
		return 0.5
	case RiskMedium:
		return 0.75
	case RiskHigh:
		return 0.9
	case RiskCritical:
		return 1.0
	default:
		return 0.75
	}
}

// ActionType names the kind of effect a goal's action has when executed.
type ActionType string

const (
	ActionShell  ActionType = "shell"
	ActionNotify ActionType = "notify"
	ActionHTTP   ActionType = "http"
	ActionAgent  ActionType = "agent"
)

// Trigger matches an incoming event by type and an optional field filter.
// A filter value prefixed with "regex:" is matched with regexp.MatchString
// against the string form of the payload field; any other value requires an
// exact match.
type Trigger struct {
	EventType string
	Filter    map[string]string

	mu      sync.Mutex
	compile map[string]*regexp.Regexp
}

// Matches reports whether the event satisfies this trigger's type and
// filter conditions.
func (t *Trigger) Matches(eventType string, payload map[string]any) bool {
	if t.EventType != eventType {
		return false
	}
	for field, want := range t.Filter {
		val, ok := payload[field]
		if !ok {
			return false
		}
		if strings.HasPrefix(want, "regex:") {
			re, err := t.regexFor(field, want[len("regex:"):])
			if err != nil {
				return false
			}
			if !re.MatchString(toString(val)) {
				return false
			}
			continue
		}
		if toString(val) != want {
			return false
		}
	}
	return true
}

func (t *Trigger) regexFor(field, pattern string) (*regexp.Regexp, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.compile == nil {
		t.compile = make(map[string]*regexp.Regexp)
	}
	if re, ok := t.compile[field]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	t.compile[field] = re
	return re, nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return stringify(v)
}

// Action is the effect a goal performs when a decision allows execution. The
// fields populated depend on Type: shell uses Command; http uses
// URL/Method/Body; notify uses Channel/Message; agent uses AgentPrompt. Any
// of those may contain "{{ expr }}" placeholders, rendered against the
// triggering event's context via the safe lookup grammar in template.go —
// never via arbitrary code evaluation.
type Action struct {
	Type ActionType

	Command     string
	URL         string
	Method      string
	Body        string
	Channel     string
	Message     string
	AgentPrompt string

	TimeoutSeconds    int
	RetryCount        int
	RetryDelaySeconds int
}

// Render resolves every "{{ expr }}" placeholder across the action's
// templatable fields against context, returning a plain string map keyed by
// field name ready for an executor to consume. Only non-empty fields are
// included.
func (a Action) Render(context map[string]any) (map[string]string, error) {
	fields := map[string]string{
		"command":      a.Command,
		"url":          a.URL,
		"method":       a.Method,
		"body":         a.Body,
		"channel":      a.Channel,
		"message":      a.Message,
		"agent_prompt": a.AgentPrompt,
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if v == "" {
			continue
		}
		rendered, err := RenderTemplate(v, context)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

// Limits bounds how often a goal may execute.
type Limits struct {
	CooldownSeconds    int
	MaxPerHour         int
	MaxPerDay          int
	ConfidenceThreshold float64 // 0 means "use the risk level's default"
}

// runtimeState tracks a goal's execution history for cooldown/quota
// enforcement. Grouped in its own struct, apart from the Goal's
// configuration fields, and guarded by its own mutex; Goal embeds it, so a
// Goal is used by pointer and not copied.
type runtimeState struct {
	mu                sync.Mutex
	lastTriggered     time.Time
	executionsThisHour int
	executionsToday    int
	hourReset          time.Time
	dayReset           time.Time
}

// Goal is a named trigger/action/limits tuple plus risk classification, the
// Go shape of goal_manager.py's Goal dataclass.
type Goal struct {
	ID               string
	Name             string
	Description      string
	Owner            string
	Tags             []string
	Enabled          bool
	RequiresApproval bool
	Trigger          Trigger
	Action           Action
	Risk             RiskLevel
	Limits           Limits

	state runtimeState
}

// CanExecute reports whether the goal is eligible to run right now, given
// cooldown and hourly/daily quotas. now is injected for testability.
func (g *Goal) CanExecute(now time.Time) (bool, string) {
	if !g.Enabled {
		return false, "disabled"
	}
	g.state.mu.Lock()
	defer g.state.mu.Unlock()

	if !g.state.lastTriggered.IsZero() {
		elapsed := now.Sub(g.state.lastTriggered)
		if elapsed < time.Duration(g.Limits.CooldownSeconds)*time.Second {
			return false, "cooldown"
		}
	}

	if g.state.hourReset.IsZero() || now.After(g.state.hourReset) {
		g.state.executionsThisHour = 0
		g.state.hourReset = now.Add(time.Hour)
	}
	if g.Limits.MaxPerHour > 0 && g.state.executionsThisHour >= g.Limits.MaxPerHour {
		return false, "hourly_limit"
	}

	if g.state.dayReset.IsZero() || now.After(g.state.dayReset) {
		g.state.executionsToday = 0
		g.state.dayReset = now.Add(24 * time.Hour)
	}
	if g.Limits.MaxPerDay > 0 && g.state.executionsToday >= g.Limits.MaxPerDay {
		return false, "daily_limit"
	}

	return true, "eligible"
}

// RecordExecution marks the goal as having just run, advancing cooldown and
// incrementing the hourly/daily counters.
func (g *Goal) RecordExecution(now time.Time) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	g.state.lastTriggered = now
	g.state.executionsThisHour++
	g.state.executionsToday++
}

// ConfidenceThreshold returns the goal's effective confidence bar: its own
// override if set, else its risk level's default.
func (g *Goal) ConfidenceThreshold() float64 {
	if g.Limits.ConfidenceThreshold > 0 {
		return g.Limits.ConfidenceThreshold
	}
	return g.Risk.ThresholdMultiplier()
}
