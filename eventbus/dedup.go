package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupBackend is the narrow storage surface the dedup cache needs: a
// set-if-absent check with a per-key TTL. Mirrors the Backend interface in
// the teacher's idempotency store.
type DedupBackend interface {
	// SeenRecently reports whether key was already recorded within its TTL
	// window, recording it if not.
	SeenRecently(ctx context.Context, key string, window time.Duration) (bool, error)
	Len() int
}

// memoryDedupBackend is the default, in-process dedup cache: a map guarded
// by a mutex, with a periodic sweep dropping expired entries, matching the
// teacher's idempotency.Store sync.Map fallback and event_bus.py's
// _cleanup_dedup_cache.
type memoryDedupBackend struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newMemoryDedupBackend() *memoryDedupBackend {
	return &memoryDedupBackend{entries: make(map[string]time.Time)}
}

func (m *memoryDedupBackend) SeenRecently(_ context.Context, key string, window time.Duration) (bool, error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.entries[key]; ok && now.Before(exp) {
		return true, nil
	}
	m.entries[key] = now.Add(window)
	return false, nil
}

func (m *memoryDedupBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memoryDedupBackend) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.entries {
		if now.After(exp) {
			delete(m.entries, k)
		}
	}
}

// redisDedupBackend stores dedup keys in Redis with a native TTL via SET
// NX EX, so the cache survives process restarts and can be shared across
// multiple bus instances. Grounded on store/redis.go's use of the redis
// client for short-lived coordination state.
type redisDedupBackend struct {
	client *redis.Client
	prefix string
}

func newRedisDedupBackend(client *redis.Client, prefix string) *redisDedupBackend {
	if prefix == "" {
		prefix = "agentrt:dedup:"
	}
	return &redisDedupBackend{client: client, prefix: prefix}
}

func (r *redisDedupBackend) SeenRecently(ctx context.Context, key string, window time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, 1, window).Result()
	if err != nil {
		return false, err
	}
	// SetNX returns true when the key was newly set, i.e. not seen before.
	return !ok, nil
}

func (r *redisDedupBackend) Len() int {
	// Redis does not cheaply expose a count scoped to our prefix without a
	// SCAN sweep; the bus only uses this for metrics, so approximate with 0
	// when a shared backend is in use and rely on Redis's own key count for
	// operational visibility instead.
	return 0
}
