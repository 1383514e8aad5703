package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/merchforge/apiserver/types"
)

const statisticsKey = "merchforge:admin:statistics"

// StatsCache caches the admin dashboard statistics in Redis.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache connects to the Redis server at url.
func NewStatsCache(ctx context.Context, url string, ttl time.Duration) (*StatsCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &StatsCache{client: client, ttl: ttl}, nil
}

// Get returns the cached statistics, or nil on a cache miss.
func (c *StatsCache) Get(ctx context.Context) (*types.Statistics, error) {
	data, err := c.client.Get(ctx, statisticsKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var stats types.Statistics
	if err := json.Unmarshal(data, &stats); err != nil {
		c.client.Del(ctx, statisticsKey)
		return nil, fmt.Errorf("failed to unmarshal statistics: %w", err)
	}
	return &stats, nil
}

// Set stores stats for the configured TTL.
func (c *StatsCache) Set(ctx context.Context, stats types.Statistics) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal statistics: %w", err)
	}
	return c.client.Set(ctx, statisticsKey, data, c.ttl).Err()
}

// Invalidate drops the cached statistics so the next read recomputes them.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, statisticsKey).Err()
}

// Ping checks the connection, used by the readiness endpoint.
func (c *StatsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *StatsCache) Close() error {
	return c.client.Close()
}
