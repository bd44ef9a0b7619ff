// Package httpmon polls configured HTTP endpoints and emits bus events on
// failure, slow response, and recovery, ported from
// ag3nt_agent/autonomous/sources/http_monitor.py. Each endpoint runs its own
// polling goroutine, mirroring the original's per-endpoint asyncio.Task.
package httpmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/agentflux/core/eventbus"
	"github.com/agentflux/core/observability"
)

// Endpoint is one HTTP health target, the Go shape of http_monitor.py's
// HTTPEndpoint dataclass.
type Endpoint struct {
	ID              string
	URL             string
	Method          string
	IntervalSeconds int
	TimeoutSeconds  int
	AlertOnStatus   []int
	AlertOnTimeout  bool
	SlowThresholdMs int64
	ExpectedStatus  int
}

func (e Endpoint) withDefaults() Endpoint {
	if e.Method == "" {
		e.Method = http.MethodGet
	}
	if e.IntervalSeconds <= 0 {
		e.IntervalSeconds = 30
	}
	if e.TimeoutSeconds <= 0 {
		e.TimeoutSeconds = 10
	}
	if e.SlowThresholdMs <= 0 {
		e.SlowThresholdMs = 2000
	}
	if e.ExpectedStatus == 0 {
		e.ExpectedStatus = 200
	}
	if e.AlertOnStatus == nil {
		e.AlertOnStatus = []int{500, 502, 503, 504}
	}
	return e
}

// alertsOn reports whether status is one of the endpoint's configured
// alerting statuses. A status that merely differs from ExpectedStatus but
// isn't in AlertOnStatus does not alert.
func (e Endpoint) alertsOn(status int) bool {
	for _, s := range e.AlertOnStatus {
		if s == status {
			return true
		}
	}
	return false
}

// CheckResult is the outcome of one probe, the Go shape of http_monitor.py's
// CheckResult.
type CheckResult struct {
	EndpointID   string
	Success      bool
	StatusCode   int
	ResponseTime time.Duration
	Error        string
	Timeout      bool
	Recovered    bool
	CheckedAt    time.Time
}

// Publisher is the narrow surface the monitor needs to emit events onto the
// bus.
type Publisher interface {
	Publish(ctx context.Context, e eventbus.Event) error
}

// Monitor polls a set of endpoints on independent tickers.
type Monitor struct {
	bus Publisher
	hc  *http.Client

	mu        sync.Mutex
	endpoints map[string]Endpoint
	lastFail  map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Monitor that publishes onto bus.
func New(bus Publisher) *Monitor {
	return &Monitor{
		bus:       bus,
		hc:        &http.Client{},
		endpoints: make(map[string]Endpoint),
		lastFail:  make(map[string]bool),
	}
}

// AddEndpoint registers ep. Polling of ep begins when Start is called; an
// endpoint added after Start is not polled.
func (m *Monitor) AddEndpoint(ep Endpoint) {
	ep = ep.withDefaults()
	m.mu.Lock()
	m.endpoints[ep.ID] = ep
	m.mu.Unlock()
}

// RemoveEndpoint forgets the endpoint; its polling goroutine exits at its
// next tick.
func (m *Monitor) RemoveEndpoint(id string) {
	m.mu.Lock()
	delete(m.endpoints, id)
	delete(m.lastFail, id)
	m.mu.Unlock()
}

// Start launches one polling goroutine per currently registered endpoint.
// Endpoints added after Start are not polled.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.mu.Lock()
	eps := make([]Endpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		eps = append(eps, ep)
	}
	m.mu.Unlock()

	for _, ep := range eps {
		m.startOne(ctx, ep)
	}
}

func (m *Monitor) startOne(ctx context.Context, ep Endpoint) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(time.Duration(ep.IntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.mu.Lock()
				_, registered := m.endpoints[ep.ID]
				m.mu.Unlock()
				if !registered {
					return
				}
				m.check(ctx, ep)
			}
		}
	}()
}

// Stop cancels every polling goroutine and waits for them to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) check(ctx context.Context, ep Endpoint) {
	observability.SourceChecks.WithLabelValues("http", ep.ID).Inc()

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(ep.TimeoutSeconds)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, ep.Method, ep.URL, nil)
	start := time.Now()
	var result CheckResult
	result.EndpointID = ep.ID
	result.CheckedAt = start

	if err != nil {
		result.Success = false
		result.Error = err.Error()
		m.processResult(ctx, ep, result)
		return
	}

	resp, err := m.hc.Do(req)
	result.ResponseTime = time.Since(start)
	if err != nil {
		result.Success = false
		if reqCtx.Err() != nil {
			result.Error = "timeout"
			result.Timeout = true
		} else {
			result.Error = err.Error()
		}
		m.processResult(ctx, ep, result)
		return
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.Success = resp.StatusCode == ep.ExpectedStatus
	m.processResult(ctx, ep, result)
}

// processResult decides whether to emit an event and at what priority,
// matching http_monitor.py's _process_result: failure AND (status in
// alert_on_status OR timeout) -> HIGH; success but slow -> MEDIUM; recovery
// (previously failing, now succeeding) -> LOW; a failure outside the
// configured alert list emits nothing. Every case that does emit uses the
// single event_type "http_check" so a goal's trigger only needs to match one
// vocabulary regardless of which branch fired.
func (m *Monitor) processResult(ctx context.Context, ep Endpoint, r CheckResult) {
	m.mu.Lock()
	wasFailing := m.lastFail[ep.ID]
	m.lastFail[ep.ID] = !r.Success
	m.mu.Unlock()

	shouldAlert := !r.Success && (ep.alertsOn(r.StatusCode) || (r.Timeout && ep.AlertOnTimeout))

	payload := map[string]any{
		"endpoint_id":      ep.ID,
		"url":              ep.URL,
		"success":          r.Success,
		"status_code":      r.StatusCode,
		"response_time_ms": r.ResponseTime.Milliseconds(),
		"error":            r.Error,
		"recovered":        false,
	}

	var priority eventbus.Priority
	var emit bool
	switch {
	case shouldAlert:
		priority, emit = eventbus.High, true
	case r.Success && wasFailing:
		payload["recovered"] = true
		priority, emit = eventbus.Low, true
	case r.Success && r.ResponseTime.Milliseconds() >= ep.SlowThresholdMs:
		priority, emit = eventbus.Medium, true
	}

	if !emit {
		return
	}
	observability.SourceEventsEmitted.WithLabelValues("http", ep.ID).Inc()
	e := eventbus.NewEvent("http_check", "http_monitor:"+ep.ID, payload, priority, nil)
	_ = m.bus.Publish(ctx, e)
}

// Status summarizes the monitor's current endpoint set.
type Status struct {
	EndpointCount int
	Failing       []string
}

// GetStatus reports which endpoints are currently registered and failing.
func (m *Monitor) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failing []string
	for id, f := range m.lastFail {
		if f {
			failing = append(failing, id)
		}
	}
	return Status{EndpointCount: len(m.endpoints), Failing: failing}
}
