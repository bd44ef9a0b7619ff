// Package observability holds the process-wide Prometheus collectors shared
// across the event bus, goal manager, decision engine, learning engine, and
// event sources. Centralizing registration here mirrors how the teacher
// control plane keeps every metric in one file rather than scattering
// promauto calls across packages.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// --- Event Bus ---

	EventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentrt_events_received_total",
		Help: "Total number of events submitted to the bus via Publish.",
	})

	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentrt_events_processed_total",
		Help: "Total number of events fully dispatched to their handlers.",
	})

	EventsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentrt_events_deduplicated_total",
		Help: "Total number of events dropped by the dedup cache.",
	})

	EventsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentrt_events_failed_total",
		Help: "Total number of events that exhausted handler retries and landed in the DLQ.",
	})

	HandlersInvoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentrt_handlers_invoked_total",
		Help: "Total number of successful handler invocations.",
	})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentrt_events_rejected_total",
		Help: "Events rejected at publish time, by reason.",
	}, []string{"reason"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentrt_queue_depth",
		Help: "Current number of events waiting in the bus priority queue.",
	})

	DedupCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentrt_dedup_cache_size",
		Help: "Current number of live entries in the dedup cache.",
	})

	DLQSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentrt_dlq_size",
		Help: "Current number of entries in the dead letter queue.",
	})

	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentrt_subscriptions",
		Help: "Current number of active subscriptions on the bus.",
	})

	// --- Goal Manager ---

	GoalMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentrt_goal_matches_total",
		Help: "Goal trigger matches, labeled by outcome (eligible, disabled, cooldown, hourly_limit, daily_limit).",
	}, []string{"goal_id", "outcome"})

	GoalExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentrt_goal_executions_total",
		Help: "Total executions recorded per goal.",
	}, []string{"goal_id"})

	// --- Decision Engine ---

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentrt_decisions_total",
		Help: "Decisions made, labeled by decision type.",
	}, []string{"decision_type"})

	ConfidenceScoreHist = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentrt_confidence_score",
		Help:    "Distribution of confidence scores computed for decisions.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	// --- Learning Engine ---

	MemoryQueryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentrt_memory_query_failures_total",
		Help: "Failed calls to the semantic memory collaborator.",
	})

	LearningCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentrt_learning_cache_hits_total",
		Help: "Confidence score lookups served from the local cache.",
	})

	// --- Sources ---

	SourceChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentrt_source_checks_total",
		Help: "Polling cycles performed by each source, labeled by source kind and id.",
	}, []string{"kind", "id"})

	SourceEventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentrt_source_events_emitted_total",
		Help: "Events emitted by each source, labeled by source kind and id.",
	}, []string{"kind", "id"})
)
