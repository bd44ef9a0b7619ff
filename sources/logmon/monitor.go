// Package logmon tails log files, matches lines against configured
// patterns, and emits a threshold-triggered bus event once enough matches
// land within a sliding window. Ported from
// ag3nt_agent/autonomous/sources/log_monitor.py.
package logmon

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/agentflux/core/eventbus"
	"github.com/agentflux/core/observability"
)

// Config is one monitored log file.
type Config struct {
	ID             string
	Path           string
	Patterns       []string // plain text (matched as a substring) or "regex:" prefixed
	WindowSeconds  int
	ThresholdCount int
	PollInterval   time.Duration
	Priority       string // e.g. "HIGH"; defaults to HIGH
}

func (c Config) withDefaults() Config {
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 300
	}
	if c.ThresholdCount <= 0 {
		c.ThresholdCount = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Priority == "" {
		c.Priority = "HIGH"
	}
	return c
}

type compiledPattern struct {
	raw string
	re  *regexp.Regexp
}

func compilePatterns(patterns []string) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		if strings.HasPrefix(p, "regex:") {
			re, err := regexp.Compile(p[len("regex:"):])
			if err != nil {
				return nil, fmt.Errorf("logmon: compiling pattern %q: %w", p, err)
			}
			out = append(out, compiledPattern{raw: p, re: re})
			continue
		}
		re := regexp.MustCompile(regexp.QuoteMeta(p))
		out = append(out, compiledPattern{raw: p, re: re})
	}
	return out, nil
}

// Publisher is the narrow surface the monitor needs to emit events.
type Publisher interface {
	Publish(ctx context.Context, e eventbus.Event) error
}

type matchWindow struct {
	mu            sync.Mutex
	timestamps    []time.Time
	matchedPatts  map[string]struct{}
	sampleLines   []string
}

func (w *matchWindow) record(now time.Time, pattern, line string, window time.Duration, threshold int) (ready bool, patternsMatched, sampleLines []string, count int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.matchedPatts == nil {
		w.matchedPatts = make(map[string]struct{})
	}
	w.timestamps = append(w.timestamps, now)
	w.matchedPatts[pattern] = struct{}{}
	if len(w.sampleLines) < 5 {
		w.sampleLines = append(w.sampleLines, line)
	}

	cutoff := now.Add(-window)
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept

	if len(w.timestamps) >= threshold {
		patterns := make([]string, 0, len(w.matchedPatts))
		for p := range w.matchedPatts {
			patterns = append(patterns, p)
		}
		samples := w.sampleLines
		n := len(w.timestamps)
		w.timestamps = nil
		w.matchedPatts = make(map[string]struct{})
		w.sampleLines = nil
		return true, patterns, samples, n
	}
	return false, nil, nil, 0
}

// Monitor tails a set of configured log files.
type Monitor struct {
	bus Publisher

	mu       sync.Mutex
	configs  map[string]Config
	patterns map[string][]compiledPattern
	position map[string]int64
	windows  map[string]*matchWindow

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Monitor that publishes onto bus.
func New(bus Publisher) *Monitor {
	return &Monitor{
		bus:      bus,
		configs:  make(map[string]Config),
		patterns: make(map[string][]compiledPattern),
		position: make(map[string]int64),
		windows:  make(map[string]*matchWindow),
	}
}

// AddMonitor registers a log file to tail, compiling its patterns and
// seeking to EOF so only future lines are considered, matching
// log_monitor.py's _init_file_position.
func (m *Monitor) AddMonitor(cfg Config) error {
	cfg = cfg.withDefaults()
	compiled, err := compilePatterns(cfg.Patterns)
	if err != nil {
		return err
	}

	var startPos int64
	if info, err := os.Stat(cfg.Path); err == nil {
		startPos = info.Size()
	}

	m.mu.Lock()
	m.configs[cfg.ID] = cfg
	m.patterns[cfg.ID] = compiled
	m.position[cfg.ID] = startPos
	m.windows[cfg.ID] = &matchWindow{}
	m.mu.Unlock()
	return nil
}

// RemoveMonitor stops tailing and forgets the log file.
func (m *Monitor) RemoveMonitor(id string) {
	m.mu.Lock()
	delete(m.configs, id)
	delete(m.patterns, id)
	delete(m.position, id)
	delete(m.windows, id)
	m.mu.Unlock()
}

// Start launches the poll loop for every registered monitor.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, cfg := range m.snapshotConfigs() {
		m.startOne(ctx, cfg)
	}
}

func (m *Monitor) snapshotConfigs() []Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Config, 0, len(m.configs))
	for _, c := range m.configs {
		out = append(out, c)
	}
	return out
}

func (m *Monitor) startOne(ctx context.Context, cfg Config) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkLog(ctx, cfg.ID)
			}
		}
	}()
}

// Stop cancels every tail goroutine and waits for them to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) checkLog(ctx context.Context, id string) {
	m.mu.Lock()
	cfg, ok := m.configs[id]
	lastPos := m.position[id]
	patterns := m.patterns[id]
	window := m.windows[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	observability.SourceChecks.WithLabelValues("logmon", id).Inc()

	info, err := os.Stat(cfg.Path)
	if err != nil {
		return
	}
	if info.Size() < lastPos {
		// Rotation: the file shrank since our last read, start over.
		lastPos = 0
	}
	if info.Size() == lastPos {
		return
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return
	}
	defer f.Close()

	if _, err := f.Seek(lastPos, io.SeekStart); err != nil {
		return
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var newPos int64 = lastPos
	for scanner.Scan() {
		line := scanner.Text()
		newPos += int64(len(line)) + 1
		m.checkLine(ctx, cfg, id, patterns, window, line)
	}

	m.mu.Lock()
	m.position[id] = newPos
	m.mu.Unlock()
}

func (m *Monitor) checkLine(ctx context.Context, cfg Config, id string, patterns []compiledPattern, window *matchWindow, line string) {
	for _, p := range patterns {
		if !p.re.MatchString(line) {
			continue
		}
		ready, patternsMatched, sampleLines, count := window.record(time.Now(), p.raw, line, time.Duration(cfg.WindowSeconds)*time.Second, cfg.ThresholdCount)
		if ready {
			m.emit(ctx, cfg, id, count, patternsMatched, sampleLines)
		}
		// log_monitor.py stops at the first matching pattern per line.
		return
	}
}

func (m *Monitor) emit(ctx context.Context, cfg Config, id string, matchCount int, patternsMatched, sampleLines []string) {
	observability.SourceEventsEmitted.WithLabelValues("logmon", id).Inc()
	e := eventbus.NewEvent("log_pattern", "log_monitor:"+id, map[string]any{
		"monitor_id":       id,
		"path":             cfg.Path,
		"match_count":      matchCount,
		"window_seconds":   cfg.WindowSeconds,
		"patterns_matched": patternsMatched,
		"sample_lines":     sampleLines,
	}, eventbus.ParsePriority(cfg.Priority), nil)
	_ = m.bus.Publish(ctx, e)
}

// Status summarizes the monitor's registered set.
type Status struct {
	MonitorCount int
}

// GetStatus reports the monitor's current size.
func (m *Monitor) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{MonitorCount: len(m.configs)}
}
