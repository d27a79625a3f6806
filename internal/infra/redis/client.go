package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
)

// Client wraps Redis operations for the minting pipeline: event fan-out
// over pub/sub and the cross-process drain lock used by scaled deployments.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func eventChannel(eventType domain.EventType) string {
	return fmt.Sprintf("mint_queue:events:%s", eventType)
}

const drainLockKey = "mint_queue:drain_lock"

// Emit publishes a queue event as JSON to its pub/sub channel. Implements
// events.Emitter.
func (c *Client) Emit(ctx context.Context, event *domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.rdb.Publish(ctx, eventChannel(event.Type), payload).Err(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// AcquireDrainLock attempts to take the cross-process drain lock.
func (c *Client) AcquireDrainLock(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, drainLockKey, "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// ReleaseDrainLock releases the drain lock.
func (c *Client) ReleaseDrainLock(ctx context.Context) error {
	return c.rdb.Del(ctx, drainLockKey).Err()
}

// RefreshDrainLock extends the TTL of the drain lock.
func (c *Client) RefreshDrainLock(ctx context.Context, ttl time.Duration) error {
	return c.rdb.Expire(ctx, drainLockKey, ttl).Err()
}
