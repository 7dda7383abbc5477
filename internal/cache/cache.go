// Package cache wraps the Redis-backed position/account cache described
// in SPEC_FULL.md §6.2: fixed key patterns, fixed TTLs, JSON values.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tqsdk-broker-bridge/internal/constants"
	"tqsdk-broker-bridge/internal/model"
)

// Cache is a thin typed wrapper over a redis client.
type Cache struct {
	rdb *redis.Client
}

// New connects to addr (host:port) using the given password/db.
func New(addr, password string, db int) *Cache {
	return &Cache{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.rdb.Close() }

func positionKey(portfolioID, symbol string) string {
	return fmt.Sprintf("%s%s_Symbol_%s", constants.PositionKeyPrefix, portfolioID, symbol)
}

func accountKey(portfolioID string) string {
	return constants.AccountKeyPrefix + portfolioID
}

// SetPosition writes p for portfolioID/symbol with the fixed position TTL.
func (c *Cache) SetPosition(ctx context.Context, portfolioID, symbol string, p model.FullPosition) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	if err := c.rdb.Set(ctx, positionKey(portfolioID, symbol), raw, constants.PositionTTL).Err(); err != nil {
		return fmt.Errorf("cache set position %s/%s: %w", portfolioID, symbol, err)
	}
	return nil
}

// GetPosition returns the cached position, or ok=false if absent/expired.
func (c *Cache) GetPosition(ctx context.Context, portfolioID, symbol string) (p model.FullPosition, ok bool, err error) {
	raw, err := c.rdb.Get(ctx, positionKey(portfolioID, symbol)).Bytes()
	if err == redis.Nil {
		return model.FullPosition{}, false, nil
	}
	if err != nil {
		return model.FullPosition{}, false, fmt.Errorf("cache get position %s/%s: %w", portfolioID, symbol, err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.FullPosition{}, false, fmt.Errorf("unmarshal position %s/%s: %w", portfolioID, symbol, err)
	}
	return p, true, nil
}

// RefreshPositionTTL re-applies the TTL without rewriting the value,
// used by the Reconciler when the cached value already matches the
// broker-reported one.
func (c *Cache) RefreshPositionTTL(ctx context.Context, portfolioID, symbol string) error {
	if err := c.rdb.Expire(ctx, positionKey(portfolioID, symbol), constants.PositionTTL).Err(); err != nil {
		return fmt.Errorf("cache refresh ttl %s/%s: %w", portfolioID, symbol, err)
	}
	return nil
}

// SetAccount writes a for portfolioID with the fixed account TTL.
func (c *Cache) SetAccount(ctx context.Context, portfolioID string, a model.Account) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	if err := c.rdb.Set(ctx, accountKey(portfolioID), raw, constants.AccountTTL).Err(); err != nil {
		return fmt.Errorf("cache set account %s: %w", portfolioID, err)
	}
	return nil
}

// GetAccount returns the cached account, or ok=false if absent/expired.
func (c *Cache) GetAccount(ctx context.Context, portfolioID string) (a model.Account, ok bool, err error) {
	raw, err := c.rdb.Get(ctx, accountKey(portfolioID)).Bytes()
	if err == redis.Nil {
		return model.Account{}, false, nil
	}
	if err != nil {
		return model.Account{}, false, fmt.Errorf("cache get account %s: %w", portfolioID, err)
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return model.Account{}, false, fmt.Errorf("unmarshal account %s: %w", portfolioID, err)
	}
	return a, true, nil
}
