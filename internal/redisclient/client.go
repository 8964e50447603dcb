package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

//go:embed scripts/set_stock.lua
var setStockScript string

//go:embed scripts/rate_limit.lua
var rateLimitScript string

// ErrCacheMiss is returned when a product has no cached stock counter
var ErrCacheMiss = errors.New("stock not cached")

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
	setScript     *redis.Script
	limitScript   *redis.Script
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

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
		setScript:     redis.NewScript(setStockScript),
		limitScript:   redis.NewScript(rateLimitScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

// ReserveStock atomically takes quantity from the cached counter.
// Returns false when the counter is short, ErrCacheMiss when it is absent.
func (c *Client) ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Int64()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	switch result {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, ErrCacheMiss
	}
}

// ReleaseStock atomically gives quantity back (compensation). Absent
// counters are left alone.
func (c *Client) ReleaseStock(ctx context.Context, productID int64, quantity int) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// SetStock overwrites the cached counter with the quantity read from the
// store at version. A counter already written from a newer version is kept.
func (c *Client) SetStock(ctx context.Context, productID int64, available int, version int64) (bool, error) {
	written, err := c.setScript.Run(ctx, c.rdb, []string{stockKey(productID)}, available, version).Int64()
	if err != nil {
		return false, fmt.Errorf("set stock script failed: %w", err)
	}
	return written == 1, nil
}

// DeleteStock drops the cached counter
func (c *Client) DeleteStock(ctx context.Context, productID int64) error {
	return c.rdb.Del(ctx, stockKey(productID)).Err()
}

// GetStock retrieves the cached counter
func (c *Client) GetStock(ctx context.Context, productID int64) (int, error) {
	val, err := c.rdb.HGet(ctx, stockKey(productID), "available").Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCacheMiss
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

// RememberIdempotencyKey maps a client idempotency key to the order it created
func (c *Client) RememberIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), orderID, ttl).Err()
}

// LookupIdempotencyKey returns the order created for key, if remembered
func (c *Client) LookupIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	id, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

// Allow counts one hit against a fixed window and reports whether the
// caller is still within limit, plus the time until the window resets.
func (c *Client) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Duration, error) {
	res, err := c.limitScript.Run(ctx, c.rdb, []string{fmt.Sprintf("ratelimit:%s", key)}, window.Milliseconds()).Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(res) != 2 {
		return false, 0, 0, fmt.Errorf("unexpected rate limit result: %v", res)
	}

	count, _ := res[0].(int64)
	ttl, _ := res[1].(int64)
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return int(count) <= limit, remaining, time.Duration(ttl) * time.Millisecond, nil
}
