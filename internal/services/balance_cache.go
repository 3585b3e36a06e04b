package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// BalanceKey identifies one cached projection.
type BalanceKey struct {
	TenantID           string
	AccountID          string
	IncludeDescendants bool
}

// BalanceCache stores computed balances. Each account carries a generation
// counter; Invalidate bumps it, so a value computed from a snapshot taken
// before the bump is stored under a generation nobody reads any more.
type BalanceCache interface {
	// Get returns the cached balance, if any, and the generation a freshly
	// computed value must be stored under.
	Get(ctx context.Context, key BalanceKey) (balance int64, generation int64, hit bool, err error)
	Set(ctx context.Context, key BalanceKey, generation int64, balance int64) error
	Invalidate(ctx context.Context, tenantID string, accountIDs []string) error
}

type noopBalanceCache struct{}

// NoopBalanceCache never hits.
func NoopBalanceCache() BalanceCache {
	return noopBalanceCache{}
}

func (noopBalanceCache) Get(context.Context, BalanceKey) (int64, int64, bool, error) {
	return 0, 0, false, nil
}

func (noopBalanceCache) Set(context.Context, BalanceKey, int64, int64) error {
	return nil
}

func (noopBalanceCache) Invalidate(context.Context, string, []string) error {
	return nil
}

const defaultBalanceTTL = 5 * time.Minute

type RedisBalanceCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisBalanceCache(client redis.Cmdable, prefix string, ttl time.Duration) *RedisBalanceCache {
	if prefix == "" {
		prefix = "ledger"
	}
	if ttl <= 0 {
		ttl = defaultBalanceTTL
	}
	return &RedisBalanceCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisBalanceCache) generationKey(tenantID, accountID string) string {
	return fmt.Sprintf("%s:balance:%s:%s:gen", c.prefix, tenantID, accountID)
}

func (c *RedisBalanceCache) valueKey(key BalanceKey, generation int64) string {
	scope := "self"
	if key.IncludeDescendants {
		scope = "tree"
	}
	return fmt.Sprintf("%s:balance:%s:%s:%d:%s", c.prefix, key.TenantID, key.AccountID, generation, scope)
}

func (c *RedisBalanceCache) Get(ctx context.Context, key BalanceKey) (int64, int64, bool, error) {
	generation, err := c.client.Get(ctx, c.generationKey(key.TenantID, key.AccountID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, false, fmt.Errorf("balance cache: read generation: %w", err)
	}

	raw, err := c.client.Get(ctx, c.valueKey(key, generation)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, generation, false, nil
	}
	if err != nil {
		return 0, generation, false, fmt.Errorf("balance cache: read balance: %w", err)
	}

	balance, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, generation, false, fmt.Errorf("balance cache: decode balance: %w", err)
	}
	return balance, generation, true, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, key BalanceKey, generation int64, balance int64) error {
	err := c.client.Set(ctx, c.valueKey(key, generation), strconv.FormatInt(balance, 10), c.ttl).Err()
	if err != nil {
		return fmt.Errorf("balance cache: write balance: %w", err)
	}
	return nil
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, tenantID string, accountIDs []string) error {
	for _, id := range accountIDs {
		if err := c.client.Incr(ctx, c.generationKey(tenantID, id)).Err(); err != nil {
			return fmt.Errorf("balance cache: bump generation of %s: %w", id, err)
		}
	}
	return nil
}
