package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/spend_points.lua
var spendPointsScript string

//go:embed scripts/refund_points.lua
var refundPointsScript string

type Client struct {
	rdb          *redis.Client
	spendScript  *redis.Script
	refundScript *redis.Script
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
		rdb:          rdb,
		spendScript:  redis.NewScript(spendPointsScript),
		refundScript: redis.NewScript(refundPointsScript),
	}, nil
}

// NewClientFromRedis wraps an existing Redis client. Used by tests.
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:          rdb,
		spendScript:  redis.NewScript(spendPointsScript),
		refundScript: redis.NewScript(refundPointsScript),
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

func balanceKey(accountID uuid.UUID) string {
	return fmt.Sprintf("balance:%s", accountID)
}

// SpendPoints atomically decrements a cached balance when it covers the
// amount. Returns (false, nil) when the cached balance is insufficient and
// an error when no balance is cached; the caller falls through to the
// database, which stays the source of truth.
func (c *Client) SpendPoints(ctx context.Context, accountID uuid.UUID, amount int) (bool, error) {
	result, err := c.spendScript.Run(ctx, c.rdb, []string{balanceKey(accountID)}, amount).Result()
	if err != nil {
		return false, fmt.Errorf("spend points script failed: %w", err)
	}

	outcome, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	if outcome == -1 {
		return false, fmt.Errorf("balance not cached for account %s", accountID)
	}

	return outcome == 1, nil
}

// RefundPoints atomically returns points to a cached balance (compensation
// for a failed database transaction).
func (c *Client) RefundPoints(ctx context.Context, accountID uuid.UUID, amount int) error {
	if _, err := c.refundScript.Run(ctx, c.rdb, []string{balanceKey(accountID)}, amount).Result(); err != nil {
		return fmt.Errorf("refund points script failed: %w", err)
	}
	return nil
}

// SetBalance mirrors an authoritative balance into the cache.
func (c *Client) SetBalance(ctx context.Context, accountID uuid.UUID, balance int, ttl time.Duration) error {
	return c.rdb.Set(ctx, balanceKey(accountID), balance, ttl).Err()
}

// GetBalance reads a cached balance. Returns (0, false, nil) on a miss.
func (c *Client) GetBalance(ctx context.Context, accountID uuid.UUID) (int, bool, error) {
	val, err := c.rdb.Get(ctx, balanceKey(accountID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	balance, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached balance: %w", err)
	}
	return balance, true, nil
}

// InvalidateBalance drops a cached balance after an authoritative write.
func (c *Client) InvalidateBalance(ctx context.Context, accountID uuid.UUID) error {
	return c.rdb.Del(ctx, balanceKey(accountID)).Err()
}

// CacheBrowsePage stores a serialized page of active listings.
func (c *Client) CacheBrowsePage(ctx context.Context, page string, payload []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("browse:%s", page), payload, ttl).Err()
}

// GetBrowsePage retrieves a cached page of active listings, nil on miss.
func (c *Client) GetBrowsePage(ctx context.Context, page string) ([]byte, error) {
	payload, err := c.rdb.Get(ctx, fmt.Sprintf("browse:%s", page)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return payload, err
}

// InvalidateBrowse drops the cached browse pages after a listing changes.
func (c *Client) InvalidateBrowse(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, "browse:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
