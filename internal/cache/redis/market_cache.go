package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// DefaultMarketTTL bounds how stale a cached market can be if an
// invalidation is lost.
const DefaultMarketTTL = 5 * time.Minute

// MarketCache implements domain.MarketCache.
//
// Key schema:
//
//	<prefix>:market:{id} - hash with field "data" holding the market JSON
//	                       and "status" for cheap inspection
type MarketCache struct {
	c   *Client
	ttl time.Duration
}

// NewMarketCache creates a MarketCache; ttl <= 0 selects DefaultMarketTTL.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{c: c, ttl: ttl}
}

func (mc *MarketCache) key(id uint64) string {
	return mc.c.Key("market", strconv.FormatUint(id, 10))
}

// Set stores a market snapshot.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", market.ID, err)
	}

	key := mc.key(market.ID)
	pipe := mc.c.Underlying().TxPipeline()
	pipe.HSet(ctx, key, "data", data, "status", string(market.Status))
	pipe.Expire(ctx, key, mc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %d: %w", market.ID, err)
	}
	return nil
}

// Get returns domain.ErrNotFound on a cache miss.
func (mc *MarketCache) Get(ctx context.Context, id uint64) (domain.Market, error) {
	data, err := mc.c.Underlying().HGet(ctx, mc.key(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %d: %w", id, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %d: %w", id, err)
	}
	return market, nil
}

func (mc *MarketCache) Invalidate(ctx context.Context, id uint64) error {
	if err := mc.c.Underlying().Del(ctx, mc.key(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", id, err)
	}
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
