// Command agentd is the autonomous agent runtime's composition root: it
// wires the event bus, goal manager, learning engine, decision engine, and
// polling sources together and serves Prometheus metrics and a dashboard
// WebSocket feed. Wiring style (env-var driven config, sequential
// component construction, log.Fatalf on startup failure) is adapted from
// control_plane/main.go.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentflux/core/decision"
	"github.com/agentflux/core/eventbus"
	"github.com/agentflux/core/goals"
	"github.com/agentflux/core/learning"
	"github.com/agentflux/core/memory"
	"github.com/agentflux/core/ratelimit"
	"github.com/agentflux/core/sources/filewatch"
	"github.com/agentflux/core/sources/httpmon"
	"github.com/agentflux/core/sources/logmon"
	"github.com/agentflux/core/streaming"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func main() {
	addr := getenv("METRICS_ADDR", ":9090")
	goalsDir := getenv("GOALS_DIR", "./goals.d")
	memoryURL := os.Getenv("MEMORY_SERVICE_URL")
	redisAddr := os.Getenv("REDIS_ADDR")
	natsURL := os.Getenv("NATS_URL")
	maxActionsPerMinute := getenvInt("MAX_ACTIONS_PER_MINUTE", 60)

	var redisClient *redis.Client
	if redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
	}

	bus := eventbus.New(eventbus.Config{RedisClient: redisClient})

	var memClient learning.Client
	if memoryURL != "" {
		memClient = memory.NewHTTPClient(memoryURL)
	} else {
		log.Printf("[AGENTD] MEMORY_SERVICE_URL not set, using in-memory fake memory client")
		memClient = memory.NewFake()
	}
	learningEngine := learning.NewEngine(memClient, learning.Config{})

	decisionEngine := decision.NewEngine(decision.Config{})
	auditLog := decision.NewAuditLog(10000)

	var quota goals.QuotaCounter
	if redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rq, err := goals.NewRedisQuotaCounter(ctx, redisClient, "")
		cancel()
		if err != nil {
			log.Printf("[AGENTD] redis quota counter unavailable, falling back to in-process quotas: %v", err)
		} else {
			quota = rq
		}
	}
	goalManager := goals.NewManager(quota)
	if _, err := os.Stat(goalsDir); err == nil {
		if err := goalManager.LoadYAMLDir(goalsDir); err != nil {
			log.Fatalf("[AGENTD] loading goals from %s: %v", goalsDir, err)
		}
	}

	if gl := goalManager.GetSettings().GlobalLimits; gl.MaxActionsPerMinute > 0 {
		maxActionsPerMinute = gl.MaxActionsPerMinute
	}
	limiter := ratelimit.NewGlobalLimiter(maxActionsPerMinute)

	hub := streaming.NewHub()
	publishers := []streaming.Publisher{streaming.NewLogPublisher(nil), hub}
	if natsURL != "" {
		natsPub, err := streaming.NewNATSPublisher(natsURL, "agentrt.events")
		if err != nil {
			log.Printf("[AGENTD] nats publisher unavailable: %v", err)
		} else {
			publishers = append(publishers, natsPub)
		}
	}
	tap := streaming.NewMulti(publishers...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus.Start(ctx)
	go hub.Run(ctx)

	httpMonitor := httpmon.New(bus)
	fileWatcher := filewatch.New(bus)
	logMonitor := logmon.New(bus)
	httpMonitor.Start(ctx)
	fileWatcher.Start(ctx)
	logMonitor.Start(ctx)

	bus.Subscribe(func(e eventbus.Event) error {
		return handleEvent(ctx, e, goalManager, learningEngine, decisionEngine, auditLog, limiter, tap)
	}, nil, nil, "")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", hub.ServeHTTP)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("[AGENTD] listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[AGENTD] http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("[AGENTD] shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	httpMonitor.Stop()
	fileWatcher.Stop()
	logMonitor.Stop()
	bus.Stop()
	tap.Close()
}

func handleEvent(
	ctx context.Context,
	e eventbus.Event,
	goalManager *goals.Manager,
	learningEngine *learning.Engine,
	decisionEngine *decision.Engine,
	auditLog *decision.AuditLog,
	limiter *ratelimit.GlobalLimiter,
	tap *streaming.Multi,
) error {
	matches := goalManager.FindMatchingGoals(e.EventType, e.Payload, time.Now())
	for _, goal := range matches {
		if !limiter.Allow() {
			log.Printf("[AGENTD] global rate limit reached, skipping goal %s", goal.ID)
			continue
		}

		contextStr := learning.BuildContext(e.ScalarPayload())
		confidence := learningEngine.GetConfidence(ctx, string(goal.Action.Type), contextStr)
		d := decisionEngine.Evaluate(goal, confidence, goal.RequiresApproval)
		auditLog.Record(d)

		_ = tap.Publish(ctx, streaming.Event{Kind: "decision", Payload: d, Timestamp: time.Now().Unix()})

		if d.ShouldExecute() {
			goalManager.RecordExecution(goal.ID, time.Now())
		}
	}
	return nil
}
