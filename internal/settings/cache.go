package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const cacheKey = "settings:admin"

// Cache keeps the admin settings map in Redis so every instance reads the same values
// without a query per chat message. A nil Cache is a no-op.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a settings cache backed by client.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached map, or nil on a miss.
func (c *Cache) Get(ctx context.Context) (map[string]string, error) {
	if c == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached settings: %w", err)
	}

	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode cached settings: %w", err)
	}
	return values, nil
}

// Set stores values for the cache TTL.
func (c *Cache) Set(ctx context.Context, values map[string]string) error {
	if c == nil {
		return nil
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode settings for cache: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached settings: %w", err)
	}
	return nil
}

// Invalidate drops the cached map.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, cacheKey).Err(); err != nil {
		return fmt.Errorf("delete cached settings: %w", err)
	}
	return nil
}
