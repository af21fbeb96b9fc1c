package querycache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"concretesync/internal/realtime"
	"concretesync/pkg/metrics"
)

const generationPrefix = "querycache:gen:"

// InvalidatePayload is pushed to dashboards; a client refetches when generation moves past what it holds.
type InvalidatePayload struct {
	QueryKey   string `json:"query_key"`
	Generation int64  `json:"generation"`
}

// Invalidator marks cached queries stale by bumping a per-key generation in Redis
// and telling connected dashboards to refetch.
type Invalidator struct {
	rdb    *redis.Client
	hub    *realtime.Hub
	logger *zap.Logger
}

func NewInvalidator(rdb *redis.Client, hub *realtime.Hub, logger *zap.Logger) *Invalidator {
	return &Invalidator{rdb: rdb, hub: hub, logger: logger}
}

// Invalidate 即使 Redis 失败也会推送 invalidate，generation 为 0
func (i *Invalidator) Invalidate(ctx context.Context, queryKey string) error {
	gen, err := i.rdb.Incr(ctx, generationPrefix+queryKey).Result()
	metrics.RecordCacheInvalidation(queryKey, err)
	if err != nil {
		err = fmt.Errorf("bump generation for %s: %w", queryKey, err)
		gen = 0
	}

	i.hub.Publish(realtime.Event{
		Event: realtime.EventInvalidate,
		Data:  InvalidatePayload{QueryKey: queryKey, Generation: gen},
	})

	i.logger.Debug("Query invalidated",
		zap.String("query_key", queryKey),
		zap.Int64("generation", gen),
	)
	return err
}

// Generations returns the current generation of each key (0 when never invalidated).
func (i *Invalidator) Generations(ctx context.Context, queryKeys []string) (map[string]int64, error) {
	if len(queryKeys) == 0 {
		return map[string]int64{}, nil
	}
	keys := make([]string, len(queryKeys))
	for n, k := range queryKeys {
		keys[n] = generationPrefix + k
	}

	vals, err := i.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read generations: %w", err)
	}

	out := make(map[string]int64, len(queryKeys))
	for n, v := range vals {
		var gen int64
		if s, ok := v.(string); ok {
			gen, _ = strconv.ParseInt(s, 10, 64)
		}
		out[queryKeys[n]] = gen
	}
	return out, nil
}
