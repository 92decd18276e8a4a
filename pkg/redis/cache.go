package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache provides typed JSON caching on top of the Redis client. Used by the
// market-data provider to avoid refetching option chains inside one cycle.
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a cache helper with the given key prefix.
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Get retrieves a cached value into dest. A miss (or disabled cache) returns
// found=false without error.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if err != nil {
		// Key not found is not an error.
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}
	return true, nil
}

// Set stores a value with TTL. No-op when the cache is disabled.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Cache TTLs. Chains move intraday but one scan cycle finishes well inside
// five minutes.
const (
	TTLChain       = 5 * time.Minute
	TTLExpirations = 1 * time.Hour
	TTLBars        = 1 * time.Hour
)

// ChainKey builds the cache key for an option chain.
func ChainKey(ticker, expiry string) string {
	return fmt.Sprintf("chain:%s:%s", ticker, expiry)
}

// ExpirationsKey builds the cache key for an expiration list.
func ExpirationsKey(ticker string) string {
	return fmt.Sprintf("expirations:%s", ticker)
}

// BarsKey builds the cache key for a daily bar history.
func BarsKey(ticker string) string {
	return fmt.Sprintf("bars:%s", ticker)
}
