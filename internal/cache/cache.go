// Package cache is a small optional Redis layer in front of the problems
// table. Every method is safe on a nil cache, so callers never branch on
// whether Redis is configured.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"codejudge/internal/logging"
)

const problemTTL = 30 * time.Second

// ProblemCache caches problem payloads by slug.
type ProblemCache struct {
	client *redis.Client
	log    *zap.Logger
}

// New connects to redisURL. An empty URL, a bad URL, or an unreachable
// server all yield a nil cache; the service runs without it.
func New(redisURL string) *ProblemCache {
	if redisURL == "" {
		return nil
	}
	log := logging.L().Named("cache")

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn("invalid REDIS_URL, caching disabled", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, caching disabled", zap.Error(err))
		_ = client.Close()
		return nil
	}

	log.Info("problem cache enabled")
	return &ProblemCache{client: client, log: log}
}

// Get loads a cached problem payload into dest. Returns false on miss, on
// decode failure, or when caching is disabled.
func (c *ProblemCache) Get(ctx context.Context, slug string, dest interface{}) bool {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key(slug)).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false
	}
	return true
}

// Set stores a problem payload. Failures are logged and swallowed.
func (c *ProblemCache) Set(ctx context.Context, slug string, value interface{}) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key(slug), raw, problemTTL).Err(); err != nil {
		c.log.Debug("cache set failed", zap.String("slug", slug), zap.Error(err))
	}
}

// Invalidate drops a slug's cached payload.
func (c *ProblemCache) Invalidate(ctx context.Context, slug string) {
	if c == nil {
		return
	}
	_ = c.client.Del(ctx, key(slug)).Err()
}

// Close releases the connection pool.
func (c *ProblemCache) Close() {
	if c != nil {
		_ = c.client.Close()
	}
}

func key(slug string) string {
	return "problem:" + slug
}
