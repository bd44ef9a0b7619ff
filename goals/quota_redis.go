package goals

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrCounterScript atomically increments a counter key and sets its
// expiry only on first creation, so repeated increments within the window
// don't keep pushing the TTL out. Preloaded at construction time exactly as
// store/redis.go preloads its versioned get/set scripts.
const incrCounterScript = `
local v = redis.call("INCR", KEYS[1])
if v == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return v
`

// RedisQuotaCounter tracks hourly/daily execution counts per goal in Redis,
// so quota state survives process restarts and is shared across replicas
// of the runtime. Grounded on store/redis.go's RedisStore construction and
// script-preloading pattern.
type RedisQuotaCounter struct {
	client *redis.Client
	sha    string
	prefix string
}

// NewRedisQuotaCounter connects to Redis and preloads the increment script.
func NewRedisQuotaCounter(ctx context.Context, client *redis.Client, prefix string) (*RedisQuotaCounter, error) {
	if prefix == "" {
		prefix = "agentrt:quota:"
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("goals: connecting to redis: %w", err)
	}
	sha, err := client.ScriptLoad(ctx, incrCounterScript).Result()
	if err != nil {
		return nil, fmt.Errorf("goals: preloading quota script: %w", err)
	}
	return &RedisQuotaCounter{client: client, sha: sha, prefix: prefix}, nil
}

// Increment bumps both the hourly and daily counters for goalID and returns
// their post-increment values.
func (r *RedisQuotaCounter) Increment(goalID string, now time.Time) (hourly, daily int, err error) {
	ctx := context.Background()
	hourKey := fmt.Sprintf("%s%s:hour:%s", r.prefix, goalID, now.Format("2006010215"))
	dayKey := fmt.Sprintf("%s%s:day:%s", r.prefix, goalID, now.Format("20060102"))

	h, err := r.client.EvalSha(ctx, r.sha, []string{hourKey}, int((time.Hour).Seconds())).Int()
	if err != nil {
		return 0, 0, fmt.Errorf("goals: incrementing hourly quota: %w", err)
	}
	d, err := r.client.EvalSha(ctx, r.sha, []string{dayKey}, int((24 * time.Hour).Seconds())).Int()
	if err != nil {
		return 0, 0, fmt.Errorf("goals: incrementing daily quota: %w", err)
	}
	return h, d, nil
}
