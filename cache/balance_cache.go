package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// balanceTTL keeps stale balances short-lived even if an invalidation is
// missed.
const balanceTTL = 5 * time.Minute

// BalanceCache caches credit balances by device hash. Every write path that
// touches credits (claim, reserve, refund) must invalidate.
type BalanceCache struct {
	client *redis.Client
}

func NewBalanceCache(client *redis.Client) *BalanceCache {
	return &BalanceCache{client: client}
}

func balanceKey(deviceIDHash string) string {
	return fmt.Sprintf("credits:balance:%s", deviceIDHash)
}

// Get returns the cached balance; found is false on miss.
func (c *BalanceCache) Get(ctx context.Context, deviceIDHash string) (int, bool, error) {
	val, err := c.client.Get(ctx, balanceKey(deviceIDHash)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cached balance: %w", err)
	}
	balance, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached balance %q: %w", val, err)
	}
	return balance, true, nil
}

// Set stores the balance.
func (c *BalanceCache) Set(ctx context.Context, deviceIDHash string, balance int) error {
	if err := c.client.Set(ctx, balanceKey(deviceIDHash), strconv.Itoa(balance), balanceTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache balance: %w", err)
	}
	return nil
}

// Invalidate drops the cached balance after a credit mutation.
func (c *BalanceCache) Invalidate(ctx context.Context, deviceIDHash string) error {
	if err := c.client.Del(ctx, balanceKey(deviceIDHash)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate balance: %w", err)
	}
	return nil
}
