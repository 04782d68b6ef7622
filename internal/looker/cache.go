package looker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Snapshotter produces a KPI snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context) (map[string]any, error)
}

// CachedSource serves snapshots from Redis and refreshes them from the
// wrapped source after the TTL. Redis being unavailable only costs a
// cache miss.
type CachedSource struct {
	next   Snapshotter
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewCachedSource(next Snapshotter, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedSource {
	return &CachedSource{next: next, client: client, ttl: ttl, log: log.Named("kpi_cache")}
}

func snapshotKey() string {
	return "churn:kpi:snapshot"
}

func (c *CachedSource) Snapshot(ctx context.Context) (map[string]any, error) {
	data, err := c.client.Get(ctx, snapshotKey()).Bytes()
	switch {
	case err == nil:
		var snapshot map[string]any
		decodeErr := json.Unmarshal(data, &snapshot)
		if decodeErr == nil {
			return snapshot, nil
		}
		c.log.Warn("Discarding unreadable cached KPI snapshot", zap.Error(decodeErr))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("KPI cache read failed", zap.Error(err))
	}

	snapshot, err := c.next.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if !anyFetched(snapshot) {
		return snapshot, nil
	}

	data, err = json.Marshal(snapshot)
	if err != nil {
		c.log.Warn("KPI snapshot not cacheable", zap.Error(err))
		return snapshot, nil
	}
	if err := c.client.Set(ctx, snapshotKey(), data, c.ttl).Err(); err != nil {
		c.log.Warn("KPI cache write failed", zap.Error(err))
	}
	return snapshot, nil
}

func anyFetched(snapshot map[string]any) bool {
	for _, v := range snapshot {
		if v != nil {
			return true
		}
	}
	return false
}
