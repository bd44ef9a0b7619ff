// Package filewatch polls directory trees for created/modified/deleted
// files and emits debounced bus events, ported from
// ag3nt_agent/autonomous/sources/file_watcher.py.
package filewatch

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentflux/core/eventbus"
	"github.com/agentflux/core/observability"
)

// FileEventType names the kind of filesystem change observed.
type FileEventType string

const (
	Created  FileEventType = "created"
	Modified FileEventType = "modified"
	Deleted  FileEventType = "deleted"
)

// WatchConfig is one watched directory tree, the Go shape of
// file_watcher.py's WatchConfig.
type WatchConfig struct {
	ID              string
	Path            string
	Patterns        []string // glob patterns matched against the file name
	IgnorePatterns  []string // glob patterns matched against name or full path
	Recursive       bool
	PollInterval    time.Duration
	DebounceSeconds int
}

func (c WatchConfig) withDefaults() WatchConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.DebounceSeconds <= 0 {
		c.DebounceSeconds = 2
	}
	if len(c.Patterns) == 0 {
		c.Patterns = []string{"*"}
	}
	return c
}

type fileState struct {
	modTime time.Time
	size    int64
}

// Publisher is the narrow surface the watcher needs to emit events.
type Publisher interface {
	Publish(ctx context.Context, e eventbus.Event) error
}

// pendingEvent is a debounce-window entry. The map holding these is keyed
// by (watcher_id, path) only -- not event type -- so that a
// modified -> deleted burst on the same path re-arms the timer and emits
// only the most recently observed event type once the window elapses. This
// matches the "last write wins" resolution for overlapping events landing
// within one debounce window.
type pendingEvent struct {
	eventType FileEventType
	watchPath string
	queuedAt  time.Time
}

// Watcher polls one or more WatchConfigs for filesystem changes.
type Watcher struct {
	bus Publisher

	mu       sync.Mutex
	configs  map[string]WatchConfig
	previous map[string]map[string]fileState // watcher id -> path -> state
	pending  map[string]pendingEvent         // "watcherID\x00path" -> pending

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Watcher that publishes onto bus.
func New(bus Publisher) *Watcher {
	return &Watcher{
		bus:      bus,
		configs:  make(map[string]WatchConfig),
		previous: make(map[string]map[string]fileState),
		pending:  make(map[string]pendingEvent),
	}
}

// AddWatch registers a directory to watch.
func (w *Watcher) AddWatch(cfg WatchConfig) {
	cfg = cfg.withDefaults()
	w.mu.Lock()
	w.configs[cfg.ID] = cfg
	w.previous[cfg.ID] = scanDirectory(cfg)
	w.mu.Unlock()
}

// RemoveWatch stops watching and forgets a directory.
func (w *Watcher) RemoveWatch(id string) {
	w.mu.Lock()
	delete(w.configs, id)
	delete(w.previous, id)
	w.mu.Unlock()
}

// Start launches the poll loop for every registered watch.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(minPollInterval(w.snapshotConfigs()))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.pollOnce(ctx)
			}
		}
	}()
}

// Stop cancels the poll loop and waits for it to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) snapshotConfigs() []WatchConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]WatchConfig, 0, len(w.configs))
	for _, c := range w.configs {
		out = append(out, c)
	}
	return out
}

func minPollInterval(cfgs []WatchConfig) time.Duration {
	min := 2 * time.Second
	for i, c := range cfgs {
		if i == 0 || c.PollInterval < min {
			min = c.PollInterval
		}
	}
	return min
}

func (w *Watcher) pollOnce(ctx context.Context) {
	for _, cfg := range w.snapshotConfigs() {
		observability.SourceChecks.WithLabelValues("filewatch", cfg.ID).Inc()
		w.checkWatch(cfg)
	}
	w.processPending(ctx)
}

func (w *Watcher) checkWatch(cfg WatchConfig) {
	current := scanDirectory(cfg)

	w.mu.Lock()
	previous := w.previous[cfg.ID]
	w.previous[cfg.ID] = current
	w.mu.Unlock()

	for path, state := range current {
		prevState, existed := previous[path]
		if !existed {
			w.queueEvent(cfg.ID, cfg.Path, path, Created)
			continue
		}
		if state.modTime != prevState.modTime || state.size != prevState.size {
			w.queueEvent(cfg.ID, cfg.Path, path, Modified)
		}
	}
	for path := range previous {
		if _, stillThere := current[path]; !stillThere {
			w.queueEvent(cfg.ID, cfg.Path, path, Deleted)
		}
	}
}

func (w *Watcher) queueEvent(watcherID, watchPath, path string, eventType FileEventType) {
	key := watcherID + "\x00" + path
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[key] = pendingEvent{eventType: eventType, watchPath: watchPath, queuedAt: time.Now()}
}

func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	ready := make(map[string]pendingEvent)
	now := time.Now()
	for key, p := range w.pending {
		cfgID := key[:indexNul(key)]
		cfg := w.configs[cfgID]
		if now.Sub(p.queuedAt) >= time.Duration(cfg.DebounceSeconds)*time.Second {
			ready[key] = p
			delete(w.pending, key)
		}
	}
	w.mu.Unlock()

	for key, p := range ready {
		nul := indexNul(key)
		watcherID, path := key[:nul], key[nul+1:]
		w.emit(ctx, watcherID, p.watchPath, path, p.eventType)
	}
}

func indexNul(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return i
		}
	}
	return -1
}

func (w *Watcher) emit(ctx context.Context, watcherID, watchPath, path string, eventType FileEventType) {
	observability.SourceEventsEmitted.WithLabelValues("filewatch", watcherID).Inc()
	e := eventbus.NewEvent("file_change", "file_watcher:"+watcherID, map[string]any{
		"watcher_id": watcherID,
		"watch_path": watchPath,
		"path":       path,
		"event_type": string(eventType),
	}, eventbus.Medium, nil)
	_ = w.bus.Publish(ctx, e)
}

func scanDirectory(cfg WatchConfig) map[string]fileState {
	out := make(map[string]fileState)
	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if !cfg.Recursive && path != cfg.Path {
				return filepath.SkipDir
			}
			return nil
		}
		name := filepath.Base(path)
		if !matchesAny(cfg.Patterns, name) {
			return nil
		}
		if matchesAny(cfg.IgnorePatterns, name) || matchesAny(cfg.IgnorePatterns, path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[path] = fileState{modTime: info.ModTime(), size: info.Size()}
		return nil
	}
	_ = filepath.WalkDir(cfg.Path, walkFn)
	return out
}

func matchesAny(patterns []string, s string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, s); ok {
			return true
		}
	}
	return false
}

// Status summarizes the watcher's registered set.
type Status struct {
	WatchCount   int
	PendingCount int
}

// GetStatus reports the watcher's current size.
func (w *Watcher) GetStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{WatchCount: len(w.configs), PendingCount: len(w.pending)}
}
