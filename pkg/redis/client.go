package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dmaas/ivcrush/pkg/config"
)

// Client wraps the Redis connection. When the cache is disabled in config
// the client is a no-op and every cache lookup misses.
type Client struct {
	rdb     *redis.Client
	enabled bool
}

// New creates a Redis client from config. Disabled config yields a usable
// no-op client rather than an error.
func New(cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{enabled: false}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Client{rdb: rdb, enabled: true}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled reports whether the cache is active.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Redis returns the underlying client for advanced usage.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}
