// Package ratelimit provides the global action-rate cap referenced by
// spec.md's Goal Manager configuration (max_actions_per_minute), adapted
// from control_plane/scheduler/limiter.go's per-key TokenBucketLimiter.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter is the narrow admission-control surface the Goal Manager needs.
type Limiter interface {
	Allow() bool
}

// GlobalLimiter wraps a single token bucket shared across every goal
// execution, enforcing spec.md's process-wide max_actions_per_minute cap.
type GlobalLimiter struct {
	limiter *rate.Limiter
}

// NewGlobalLimiter builds a limiter admitting up to maxPerMinute actions
// per minute, with a burst equal to maxPerMinute so a quiet period doesn't
// permanently forfeit capacity.
func NewGlobalLimiter(maxPerMinute int) *GlobalLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = 60
	}
	perSecond := rate.Limit(float64(maxPerMinute) / 60.0)
	return &GlobalLimiter{limiter: rate.NewLimiter(perSecond, maxPerMinute)}
}

// Allow reports whether one more action may execute right now.
func (g *GlobalLimiter) Allow() bool {
	return g.limiter.Allow()
}

// PerGoalLimiter additionally caps each goal's own execution rate,
// independent of its cooldown/hourly/daily quotas, for goals that need
// finer-grained burst control than an hourly bucket provides. Grounded on
// limiter.go's map-of-per-key-limiters pattern.
type PerGoalLimiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	perMinute    int
}

// NewPerGoalLimiter builds a limiter keyed by goal ID.
func NewPerGoalLimiter(perMinute int) *PerGoalLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &PerGoalLimiter{limiters: make(map[string]*rate.Limiter), perMinute: perMinute}
}

// Allow reports whether goalID may execute right now, lazily creating its
// bucket on first use.
func (p *PerGoalLimiter) Allow(goalID string) bool {
	p.mu.Lock()
	l, ok := p.limiters[goalID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(p.perMinute)/60.0), p.perMinute)
		p.limiters[goalID] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
