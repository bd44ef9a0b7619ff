package goals

import (
	"sync"
	"time"

	"github.com/agentflux/core/observability"
)

// QuotaCounter records a Goal's hourly/daily execution counts in shared
// state (e.g. Redis), where other Manager instances or a restarted process
// can read them. Manager.RecordExecution increments it after each
// execution. Admission is decided by the in-process Goal.CanExecute
// counters whether or not a QuotaCounter is configured; the shared counts
// are not read back. Emergency stop and cooldown are process-local.
type QuotaCounter interface {
	// Increment records one execution for goalID and returns the current
	// hourly and daily counts after incrementing.
	Increment(goalID string, now time.Time) (hourly, daily int, err error)
}

// GlobalLimits bounds process-wide action throughput, the
// settings.global_limits block of a goal document (spec.md §6).
type GlobalLimits struct {
	MaxConcurrentActions int
	MaxActionsPerMinute  int
}

// Settings mirrors a goal document's top-level "settings:" block: knobs that
// apply to the whole Manager rather than to one goal.
type Settings struct {
	EmergencyStop              bool
	DefaultConfidenceThreshold float64
	GlobalLimits               GlobalLimits
}

// Manager owns the goal catalog, emergency stop flag, and trigger matching
// against incoming events, the Go shape of goal_manager.py's GoalManager.
type Manager struct {
	mu            sync.RWMutex
	goals         map[string]*Goal
	emergencyStop bool
	quota         QuotaCounter
	settings      Settings
}

// NewManager constructs an empty Manager. Use LoadYAMLFile, LoadYAMLDir or
// AddGoal to populate it.
func NewManager(quota QuotaCounter) *Manager {
	return &Manager{
		goals: make(map[string]*Goal),
		quota: quota,
	}
}

// AddGoal registers or replaces a goal by ID.
func (m *Manager) AddGoal(g *Goal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals[g.ID] = g
}

// RemoveGoal deletes a goal by ID. Returns false if it was not present.
func (m *Manager) RemoveGoal(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.goals[id]; !ok {
		return false
	}
	delete(m.goals, id)
	return true
}

// GetGoal returns the goal with the given ID, if any.
func (m *Manager) GetGoal(id string) (*Goal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.goals[id]
	return g, ok
}

// ListGoals returns every registered goal in no particular order.
func (m *Manager) ListGoals() []*Goal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Goal, 0, len(m.goals))
	for _, g := range m.goals {
		out = append(out, g)
	}
	return out
}

// SetEmergencyStop toggles the global kill switch. While set,
// FindMatchingGoals always returns nothing, regardless of individual goal
// state.
func (m *Manager) SetEmergencyStop(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStop = on
}

// EmergencyStopped reports the current kill switch state.
func (m *Manager) EmergencyStopped() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emergencyStop
}

// ApplySettings merges a loaded document's settings block into the
// manager's state: emergency_stop takes effect immediately, and the rest are
// stored for the caller to read back via GetSettings (e.g. to size the
// global rate limiter from global_limits.max_actions_per_minute).
func (m *Manager) ApplySettings(s Settings) {
	m.mu.Lock()
	m.settings = s
	m.emergencyStop = s.EmergencyStop
	m.mu.Unlock()
}

// GetSettings returns the most recently applied settings block.
func (m *Manager) GetSettings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// EnableGoal / DisableGoal toggle a single goal's Enabled flag.
func (m *Manager) EnableGoal(id string) bool  { return m.setEnabled(id, true) }
func (m *Manager) DisableGoal(id string) bool { return m.setEnabled(id, false) }

func (m *Manager) setEnabled(id string, enabled bool) bool {
	m.mu.RLock()
	g, ok := m.goals[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	g.Enabled = enabled
	return true
}

// FindMatchingGoals returns every enabled, currently-executable goal whose
// trigger matches the given event type and payload. The emergency stop
// short-circuits to an empty result, matching goal_manager.py's
// find_matching_goals.
func (m *Manager) FindMatchingGoals(eventType string, payload map[string]any, now time.Time) []*Goal {
	if m.EmergencyStopped() {
		return nil
	}
	m.mu.RLock()
	candidates := make([]*Goal, 0, len(m.goals))
	for _, g := range m.goals {
		candidates = append(candidates, g)
	}
	m.mu.RUnlock()

	var matched []*Goal
	for _, g := range candidates {
		if !g.Trigger.Matches(eventType, payload) {
			continue
		}
		ok, outcome := g.CanExecute(now)
		observability.GoalMatches.WithLabelValues(g.ID, outcome).Inc()
		if ok {
			matched = append(matched, g)
		}
	}
	return matched
}

// RecordExecution marks a goal as having just executed, advancing its
// cooldown and quota counters (local, or via the shared QuotaCounter when
// configured).
func (m *Manager) RecordExecution(goalID string, now time.Time) {
	g, ok := m.GetGoal(goalID)
	if !ok {
		return
	}
	g.RecordExecution(now)
	observability.GoalExecutions.WithLabelValues(goalID).Inc()
	if m.quota != nil {
		if _, _, err := m.quota.Increment(goalID, now); err != nil {
			// Shared quota tracking is best-effort; local CanExecute state
			// still enforces limits within this process.
			return
		}
	}
}

// Status summarizes the manager's state, matching get_status() in the
// Python original.
type Status struct {
	TotalGoals    int
	EnabledGoals  int
	EmergencyStop bool
}

// GetStatus reports the manager's current aggregate state.
func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	enabled := 0
	for _, g := range m.goals {
		if g.Enabled {
			enabled++
		}
	}
	return Status{
		TotalGoals:    len(m.goals),
		EnabledGoals:  enabled,
		EmergencyStop: m.emergencyStop,
	}
}
