// Package cache provides an optional Redis-backed cache for AI gateway
// responses, so identical generation requests do not burn gateway quota.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = time.Hour

type ResponseCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewResponseCache connects to Redis and verifies the connection.
func NewResponseCache(redisURL string) (*ResponseCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &ResponseCache{
		client: client,
		prefix: "ai:",
		ttl:    defaultTTL,
	}, nil
}

// Key derives a stable cache key from the endpoint name and request payload.
func Key(endpoint string, payload []byte) string {
	sum := sha256.New()
	sum.Write([]byte(endpoint))
	sum.Write([]byte{0})
	sum.Write(payload)
	return hex.EncodeToString(sum.Sum(nil))
}

// Get returns the cached response body for key, or ok=false on a miss.
// Redis errors are treated as misses; the cache never fails a request.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores a response body under key with the cache TTL.
func (c *ResponseCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *ResponseCache) Close() error {
	return c.client.Close()
}

func (c *ResponseCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
