package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/complete_idempotency.lua
var completeIdempotencyScript string

//go:embed scripts/release_idempotency.lua
var releaseIdempotencyScript string

const (
	pendingMarker      = "__pending__"
	catalogSnapshotKey = "catalog:sale-snapshot"
)

type Client struct {
	rdb            *redis.Client
	completeScript *redis.Script
	releaseScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:            rdb,
		completeScript: redis.NewScript(completeIdempotencyScript),
		releaseScript:  redis.NewScript(releaseIdempotencyScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// ClaimIdempotencyKey marks key as in flight. It returns false when the key
// was already claimed or completed.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, idempotencyKey(key), pendingMarker, ttl).Result()
}

// CompleteIdempotencyKey records the sale that settled a pending key
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key, saleID string, ttl time.Duration) error {
	seconds := int64(ttl / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	_, err := c.completeScript.Run(ctx, c.rdb, []string{idempotencyKey(key)}, saleID, seconds, pendingMarker).Result()
	if err != nil {
		return fmt.Errorf("complete idempotency script failed: %w", err)
	}
	return nil
}

// ReleaseIdempotencyKey drops a pending claim so the key can be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{idempotencyKey(key)}, pendingMarker).Result()
	if err != nil {
		return fmt.Errorf("release idempotency script failed: %w", err)
	}
	return nil
}

// LookupIdempotencyKey returns the sale id recorded for key. pending is true
// while the first submission is still committing.
func (c *Client) LookupIdempotencyKey(ctx context.Context, key string) (saleID string, pending bool, found bool, err error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, false, nil
	}
	if err != nil {
		return "", false, false, err
	}
	if val == pendingMarker {
		return "", true, true, nil
	}
	return val, false, true, nil
}

// GetCatalogSnapshot returns the cached sale catalog, if any
func (c *Client) GetCatalogSnapshot(ctx context.Context) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, catalogSnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SetCatalogSnapshot caches the sale catalog for ttl
func (c *Client) SetCatalogSnapshot(ctx context.Context, data []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, catalogSnapshotKey, data, ttl).Err()
}

// InvalidateCatalogSnapshot drops the cached sale catalog
func (c *Client) InvalidateCatalogSnapshot(ctx context.Context) error {
	return c.rdb.Del(ctx, catalogSnapshotKey).Err()
}
