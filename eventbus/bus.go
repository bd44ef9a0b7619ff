package eventbus

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentflux/core/observability"
	"github.com/redis/go-redis/v9"
)

// ErrQueueFull is returned by Publish when the bus is at capacity and
// cannot admit another event, mirroring scheduler.ErrQueueFull's
// non-blocking backpressure signal.
var ErrQueueFull = errors.New("eventbus: queue full")

// Config tunes a Bus. Zero values fall back to sane defaults.
type Config struct {
	MaxQueueSize     int
	MaxRetries       int
	RetryBackoff     time.Duration
	DLQMaxSize       int
	DedupCleanupTick time.Duration
	RedisClient      *redis.Client // optional: enables a shared dedup backend
	RedisKeyPrefix   string
}

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 10000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.DLQMaxSize <= 0 {
		c.DLQMaxSize = 1000
	}
	if c.DedupCleanupTick <= 0 {
		c.DedupCleanupTick = 60 * time.Second
	}
	return c
}

// Bus is the central priority-ordered event router described in spec.md §4.A.
// A single consumer goroutine drains the queue; each event's matching
// handlers run concurrently on their own goroutines, without the loop
// awaiting their completion.
type Bus struct {
	cfg Config

	mu    sync.Mutex
	queue *priorityQueue
	subs  map[string]Subscription

	dedup       DedupBackend
	memDedup    *memoryDedupBackend // non-nil only when no Redis backend is configured
	dlq         *deadLetterQueue
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	runningOnce sync.Once

	received   int64
	processed  int64
	dedupCount int64
	failed     int64
	invoked    int64
}

// New constructs a Bus. The returned Bus is idle until Start is called.
func New(cfg Config) *Bus {
	cfg = cfg.withDefaults()
	b := &Bus{
		cfg:   cfg,
		queue: newPriorityQueue(cfg.MaxQueueSize),
		subs:  make(map[string]Subscription),
		dlq:   newDeadLetterQueue(cfg.DLQMaxSize),
	}
	if cfg.RedisClient != nil {
		b.dedup = newRedisDedupBackend(cfg.RedisClient, cfg.RedisKeyPrefix)
	} else {
		mem := newMemoryDedupBackend()
		b.memDedup = mem
		b.dedup = mem
	}
	return b
}

// Start launches the consumer loop and the dedup-cache sweeper. It returns
// immediately; call Stop to shut down cooperatively.
func (b *Bus) Start(ctx context.Context) {
	b.runningOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		b.cancel = cancel
		b.wg.Add(1)
		go b.consumeLoop(ctx)
		if b.memDedup != nil {
			b.wg.Add(1)
			go b.sweepLoop(ctx)
		}
	})
}

// Stop cancels the consumer loop and waits for it to exit.
func (b *Bus) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// Subscribe registers a handler. An empty eventTypes slice subscribes to
// every event type (a global handler), matching event_bus.py's subscribe()
// with event_type=None.
func (b *Bus) Subscribe(handler EventHandler, eventTypes []string, priorityFilter *Priority, sourceFilter string) string {
	sub := newSubscription(handler, eventTypes, priorityFilter, sourceFilter)
	b.mu.Lock()
	b.subs[sub.ID] = sub
	count := len(b.subs)
	b.mu.Unlock()
	observability.Subscriptions.Set(float64(count))
	return sub.ID
}

// Unsubscribe removes a previously registered handler. Returns false if the
// ID is unknown.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	_, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	count := len(b.subs)
	b.mu.Unlock()
	observability.Subscriptions.Set(float64(count))
	return ok
}

// Publish enqueues an event after a dedup check. It never blocks: a full
// queue returns ErrQueueFull immediately.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	atomic.AddInt64(&b.received, 1)
	observability.EventsReceived.Inc()

	if e.DedupKey == "" {
		e.DedupKey = DedupKeyOf(e)
	}
	window := time.Duration(e.DedupWindowSeconds) * time.Second
	if window <= 0 {
		window = 60 * time.Second
	}
	seen, err := b.dedup.SeenRecently(ctx, e.DedupKey, window)
	if err != nil {
		log.Printf("[EVENTBUS] dedup backend error, admitting event anyway: %v", err)
	} else if seen {
		atomic.AddInt64(&b.dedupCount, 1)
		observability.EventsDeduplicated.Inc()
		return nil
	}

	b.mu.Lock()
	ok := b.queue.push(e)
	depth := b.queue.len()
	b.mu.Unlock()

	observability.QueueDepth.Set(float64(depth))
	if !ok {
		observability.EventsRejected.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
	return nil
}

func (b *Bus) consumeLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drainOne(ctx)
		}
	}
}

func (b *Bus) drainOne(ctx context.Context) {
	b.mu.Lock()
	e, ok := b.queue.pop()
	depth := b.queue.len()
	b.mu.Unlock()
	if !ok {
		return
	}
	observability.QueueDepth.Set(float64(depth))

	b.mu.Lock()
	handlers := b.matchingHandlers(e)
	b.mu.Unlock()

	for _, sub := range handlers {
		sub := sub
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.invokeWithRetry(ctx, sub, e)
		}()
	}
	atomic.AddInt64(&b.processed, 1)
	observability.EventsProcessed.Inc()
}

func (b *Bus) matchingHandlers(e Event) []Subscription {
	var out []Subscription
	for _, sub := range b.subs {
		if !sub.interestedIn(e) {
			continue
		}
		if sub.global() {
			out = append(out, sub)
			continue
		}
		if _, ok := sub.EventTypes[e.EventType]; ok {
			out = append(out, sub)
		}
	}
	return out
}

func (b *Bus) invokeWithRetry(ctx context.Context, sub Subscription, e Event) {
	var lastErr error
	for attempt := 0; attempt < b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.cfg.RetryBackoff):
			}
		}
		if err := sub.Handler(e); err != nil {
			lastErr = err
			continue
		}
		atomic.AddInt64(&b.invoked, 1)
		observability.HandlersInvoked.Inc()
		return
	}
	atomic.AddInt64(&b.failed, 1)
	observability.EventsFailed.Inc()
	b.dlq.add(e, lastErr)
	observability.DLQSize.Set(float64(b.dlq.len()))
	log.Printf("[EVENTBUS] handler %s exhausted retries for event %s (%s): %v", sub.ID, e.EventID, e.EventType, lastErr)
}

func (b *Bus) sweepLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DedupCleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.memDedup.sweep(now)
			observability.DedupCacheSize.Set(float64(b.memDedup.Len()))
		}
	}
}

// GetMetrics returns a point-in-time snapshot of bus counters.
func (b *Bus) GetMetrics() Metrics {
	b.mu.Lock()
	depth := b.queue.len()
	subCount := len(b.subs)
	b.mu.Unlock()
	return Metrics{
		EventsReceived:     atomic.LoadInt64(&b.received),
		EventsProcessed:    atomic.LoadInt64(&b.processed),
		EventsDeduplicated: atomic.LoadInt64(&b.dedupCount),
		EventsFailed:       atomic.LoadInt64(&b.failed),
		HandlersInvoked:    atomic.LoadInt64(&b.invoked),
		QueueSize:          depth,
		Subscriptions:      subCount,
		DLQSize:            b.dlq.len(),
		DedupCacheSize:     b.dedup.Len(),
	}
}

// GetDLQ returns a snapshot of the dead letter queue.
func (b *Bus) GetDLQ() []DLQEntry {
	return b.dlq.list()
}

// ReplayFromDLQ removes the named event from the DLQ and republishes it
// through ordinary admission control (dedup + queue capacity), matching
// event_bus.py's replay_from_dlq.
func (b *Bus) ReplayFromDLQ(ctx context.Context, eventID string) error {
	entry, ok := b.dlq.remove(eventID)
	if !ok {
		return errors.New("eventbus: event not found in dlq")
	}
	observability.DLQSize.Set(float64(b.dlq.len()))
	return b.Publish(ctx, entry.Event)
}
