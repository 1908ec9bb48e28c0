package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/check_usage.lua
var checkUsageScript string

// Usage check results returned by the check_usage script
const (
	usageOK            = 0
	usageTotalExceeded = 1
	usageUserExceeded  = 2
)

const couponCacheTTL = 5 * time.Minute

type Client struct {
	rdb         *redis.Client
	checkScript *redis.Script
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
		rdb:         rdb,
		checkScript: redis.NewScript(checkUsageScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func usageKey(couponID int64) string {
	return fmt.Sprintf("coupon_usage:%d", couponID)
}

func userUsageKey(couponID int64, email string) string {
	return fmt.Sprintf("coupon_usage:%d:%s", couponID, email)
}

// CheckUsageBudget runs the usage-counter script atomically. It is a
// fail-fast check only; the settlement transaction recounts against the
// database before committing a PAID transition.
func (c *Client) CheckUsageBudget(ctx context.Context, couponID int64, email string, maxTotal, maxPerEmail int) error {
	keys := []string{usageKey(couponID), userUsageKey(couponID, email)}

	result, err := c.checkScript.Run(ctx, c.rdb, keys, maxTotal, maxPerEmail).Result()
	if err != nil {
		return fmt.Errorf("check usage script failed: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return fmt.Errorf("unexpected script result type")
	}

	switch code {
	case usageTotalExceeded:
		return models.ErrUsageLimitExceeded
	case usageUserExceeded:
		return models.ErrUserUsageLimitExceeded
	}
	return nil
}

// BumpUsage increments the usage counters after an order settles as PAID
func (c *Client) BumpUsage(ctx context.Context, couponID int64, email string) error {
	pipe := c.rdb.Pipeline()
	pipe.Incr(ctx, usageKey(couponID))
	pipe.Incr(ctx, userUsageKey(couponID, email))

	_, err := pipe.Exec(ctx)
	return err
}

// InitUsage seeds the total usage counter from the database count
func (c *Client) InitUsage(ctx context.Context, couponID int64, used int) error {
	return c.rdb.Set(ctx, usageKey(couponID), used, 0).Err()
}

func couponCacheKey(code string) string {
	return fmt.Sprintf("coupon:%s", code)
}

// CacheCoupon stores a coupon read model with a TTL
func (c *Client) CacheCoupon(ctx context.Context, coupon *models.Coupon) error {
	data, err := json.Marshal(coupon)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, couponCacheKey(coupon.Code), data, couponCacheTTL).Err()
}

// GetCachedCoupon retrieves a cached coupon; returns nil on a cache miss
func (c *Client) GetCachedCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	data, err := c.rdb.Get(ctx, couponCacheKey(code)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var coupon models.Coupon
	if err := json.Unmarshal(data, &coupon); err != nil {
		return nil, err
	}
	return &coupon, nil
}

// InvalidateCoupon drops a cached coupon after an admin edit
func (c *Client) InvalidateCoupon(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, couponCacheKey(code)).Err()
}
