package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "catalogsync:ids"

const defaultTTL = 24 * time.Hour

// kv is the subset of *redis.Client the cache needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// IDCache keeps the identifier list of each category in Redis so a rerun
// within the TTL does not hit the category endpoint again.
type IDCache struct {
	Client kv
	Source string
	TTL    time.Duration
}

func NewIDCache(client *redis.Client, source string, ttl time.Duration) *IDCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &IDCache{Client: client, Source: source, TTL: ttl}
}

func (c *IDCache) key(categoryID string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, c.Source, categoryID)
}

// Get reports a miss as (nil, false, nil).
func (c *IDCache) Get(ctx context.Context, categoryID string) ([]string, bool, error) {
	val, err := c.Client.Get(ctx, c.key(categoryID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(val), &ids); err != nil {
		return nil, false, fmt.Errorf("decode cached ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, false, nil
	}
	return ids, true, nil
}

func (c *IDCache) Put(ctx context.Context, categoryID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, c.key(categoryID), b, c.TTL).Err()
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
