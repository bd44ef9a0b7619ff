package goals

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// yamlDoc is the on-disk goal document shape this loader reads: a
// top-level "settings:" block plus a flat list of goal definitions under
// "goals:". Per goal, the risk level is read from "risk", and cooldown,
// confidence threshold and execution caps only from "limits:"
// (cooldown_seconds, confidence_threshold, max_per_hour, max_per_day);
// keys under any other name are ignored.
type yamlDoc struct {
	Settings *yamlSettings `yaml:"settings"`
	Goals    []yamlGoal    `yaml:"goals"`
}

type yamlSettings struct {
	EmergencyStop              bool             `yaml:"emergency_stop"`
	DefaultConfidenceThreshold float64          `yaml:"default_confidence_threshold"`
	GlobalLimits               yamlGlobalLimits `yaml:"global_limits"`
}

type yamlGlobalLimits struct {
	MaxConcurrentActions int `yaml:"max_concurrent_actions"`
	MaxActionsPerMinute  int `yaml:"max_actions_per_minute"`
}

type yamlGoal struct {
	ID               string      `yaml:"id"`
	Name             string      `yaml:"name"`
	Description      string      `yaml:"description"`
	Owner            string      `yaml:"owner"`
	Tags             []string    `yaml:"tags"`
	Enabled          *bool       `yaml:"enabled"`
	RequiresApproval bool        `yaml:"requires_approval"`
	Risk             string      `yaml:"risk"`
	Trigger          yamlTrigger `yaml:"trigger"`
	Action           yamlAction  `yaml:"action"`
	Limits           yamlLimits  `yaml:"limits"`
}

type yamlTrigger struct {
	EventType string            `yaml:"event_type"`
	Filter    map[string]string `yaml:"filter"`
}

// yamlAction mirrors spec.md §6's action shape: a type discriminator plus
// the named fields relevant to that type (shell: command; http:
// url/method/body; notify: channel/message; agent: agent_prompt), all
// templatable, plus plain retry/timeout knobs common to every type.
type yamlAction struct {
	Type              string `yaml:"type"`
	Command           string `yaml:"command"`
	URL               string `yaml:"url"`
	Method            string `yaml:"method"`
	Body              string `yaml:"body"`
	Channel           string `yaml:"channel"`
	Message           string `yaml:"message"`
	AgentPrompt       string `yaml:"agent_prompt"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RetryCount        int    `yaml:"retry_count"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
}

type yamlLimits struct {
	CooldownSeconds     int     `yaml:"cooldown_seconds"`
	MaxPerHour          int     `yaml:"max_per_hour"`
	MaxPerDay           int     `yaml:"max_per_day"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// LoadYAMLFile parses a single goal document and registers every goal it
// defines, mirroring GoalManager._load_yaml_file.
func (m *Manager) LoadYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("goals: reading %s: %w", path, err)
	}
	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("goals: parsing %s: %w", path, err)
	}
	if doc.Settings != nil {
		m.ApplySettings(Settings{
			EmergencyStop:              doc.Settings.EmergencyStop,
			DefaultConfidenceThreshold: doc.Settings.DefaultConfidenceThreshold,
			GlobalLimits: GlobalLimits{
				MaxConcurrentActions: doc.Settings.GlobalLimits.MaxConcurrentActions,
				MaxActionsPerMinute:  doc.Settings.GlobalLimits.MaxActionsPerMinute,
			},
		})
	}
	for _, yg := range doc.Goals {
		g, err := fromYAML(yg)
		if err != nil {
			return fmt.Errorf("goals: loading goal %q from %s: %w", yg.ID, path, err)
		}
		m.AddGoal(g)
	}
	return nil
}

// LoadYAMLDir loads every *.yaml / *.yml file in dir, matching
// GoalManager.load_goals' directory-scan behavior.
func (m *Manager) LoadYAMLDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("goals: reading dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := m.LoadYAMLFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func fromYAML(yg yamlGoal) (*Goal, error) {
	if yg.ID == "" {
		return nil, fmt.Errorf("goal missing id")
	}
	if yg.Trigger.EventType == "" {
		return nil, fmt.Errorf("goal %q missing trigger.event_type", yg.ID)
	}
	enabled := true
	if yg.Enabled != nil {
		enabled = *yg.Enabled
	}
	risk := RiskLevel(yg.Risk)
	switch risk {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
	case "":
		risk = RiskMedium
	default:
		return nil, fmt.Errorf("goal %q has unknown risk level %q", yg.ID, yg.Risk)
	}

	return &Goal{
		ID:               yg.ID,
		Name:             yg.Name,
		Description:      yg.Description,
		Owner:            yg.Owner,
		Tags:             yg.Tags,
		Enabled:          enabled,
		RequiresApproval: yg.RequiresApproval,
		Risk:             risk,
		Trigger: Trigger{
			EventType: yg.Trigger.EventType,
			Filter:    yg.Trigger.Filter,
		},
		Action: Action{
			Type:              ActionType(yg.Action.Type),
			Command:           yg.Action.Command,
			URL:               yg.Action.URL,
			Method:            yg.Action.Method,
			Body:              yg.Action.Body,
			Channel:           yg.Action.Channel,
			Message:           yg.Action.Message,
			AgentPrompt:       yg.Action.AgentPrompt,
			TimeoutSeconds:    yg.Action.TimeoutSeconds,
			RetryCount:        yg.Action.RetryCount,
			RetryDelaySeconds: yg.Action.RetryDelaySeconds,
		},
		Limits: Limits{
			CooldownSeconds:     yg.Limits.CooldownSeconds,
			MaxPerHour:          yg.Limits.MaxPerHour,
			MaxPerDay:           yg.Limits.MaxPerDay,
			ConfidenceThreshold: yg.Limits.ConfidenceThreshold,
		},
	}, nil
}
