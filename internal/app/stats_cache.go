/**
 * @description
 * Redis-backed cache for the statistics snapshot. Computing statistics walks
 * the whole ledger; the dashboard polls it aggressively, so a short-TTL cache
 * keeps that walk off the hot path. Every cache failure degrades to a ledger
 * read, never to an error.
 */

package app

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smswatch/ledger-service/internal/domain"
)

// StatsCache stores the serialized snapshot under a single key with a TTL.
type StatsCache struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewStatsCache creates a snapshot cache. A non-positive ttl disables caching
// by expiring entries immediately on the Redis side.
func NewStatsCache(client redis.UniversalClient, prefix string, ttl time.Duration) *StatsCache {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = "smswatch"
	}
	trimmed = strings.TrimSuffix(trimmed, ":")
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &StatsCache{
		client: client,
		key:    trimmed + ":stats_snapshot",
		ttl:    ttl,
	}
}

// Get returns the cached snapshot, or ok=false on miss or any Redis failure.
func (c *StatsCache) Get(ctx context.Context) (*domain.StatisticsSnapshot, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("level=warn component=stats_cache msg=\"cache read failed\" err=%v", err)
		}
		return nil, false
	}
	var snapshot domain.StatisticsSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		log.Printf("level=warn component=stats_cache msg=\"cache entry corrupt; dropping\" err=%v", err)
		_ = c.client.Del(ctx, c.key).Err()
		return nil, false
	}
	return &snapshot, true
}

// Set stores the snapshot, best-effort.
func (c *StatsCache) Set(ctx context.Context, snapshot *domain.StatisticsSnapshot) {
	if c == nil || c.client == nil || snapshot == nil {
		return
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("level=warn component=stats_cache msg=\"snapshot marshal failed\" err=%v", err)
		return
	}
	if err := c.client.Set(ctx, c.key, raw, c.ttl).Err(); err != nil {
		log.Printf("level=warn component=stats_cache msg=\"cache write failed\" err=%v", err)
	}
}

// Invalidate drops the cached snapshot after a ledger mutation.
func (c *StatsCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		log.Printf("level=warn component=stats_cache msg=\"cache invalidate failed\" err=%v", err)
	}
}
