package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/sincore/aggregator/internal/domain"
)

// QuoteCache caches best-rate results for a short TTL so repeated discovery
// requests for the same trade do not re-quote every venue. Each result is a
// hash at key "bestrate:{src}:{dest}:{amount}".
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. ttl bounds
// how long a cached quote stays valid; zero disables expiry.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(srcAsset, destAsset common.Address, amountIn *big.Int) string {
	return "bestrate:" + srcAsset.Hex() + ":" + destAsset.Hex() + ":" + amountIn.String()
}

// SetOneRoute stores a single-route discovery result.
func (qc *QuoteCache) SetOneRoute(ctx context.Context, srcAsset, destAsset common.Address, amountIn *big.Int, quote domain.RouteQuote) error {
	key := quoteKey(srcAsset, destAsset, amountIn)
	fields := map[string]interface{}{
		"route":      quote.RouteIndex,
		"amount_out": quote.AmountOut.String(),
	}
	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// GetOneRoute retrieves a cached single-route discovery result. It returns
// domain.ErrNotFound on a cache miss.
func (qc *QuoteCache) GetOneRoute(ctx context.Context, srcAsset, destAsset common.Address, amountIn *big.Int) (domain.RouteQuote, error) {
	key := quoteKey(srcAsset, destAsset, amountIn)
	vals, err := qc.rdb.HGetAll(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.RouteQuote{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.RouteQuote{}, domain.ErrNotFound
	}

	var quote domain.RouteQuote
	if _, err := fmt.Sscanf(vals["route"], "%d", &quote.RouteIndex); err != nil {
		return domain.RouteQuote{}, fmt.Errorf("redis: parse cached route %s: %w", key, err)
	}
	out, ok := new(big.Int).SetString(vals["amount_out"], 10)
	if !ok {
		return domain.RouteQuote{}, fmt.Errorf("redis: bad cached amount %q at %s", vals["amount_out"], key)
	}
	quote.AmountOut = out
	return quote, nil
}

// Invalidate drops the cached result for one trade shape.
func (qc *QuoteCache) Invalidate(ctx context.Context, srcAsset, destAsset common.Address, amountIn *big.Int) error {
	key := quoteKey(srcAsset, destAsset, amountIn)
	if err := qc.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: invalidate quote %s: %w", key, err)
	}
	return nil
}
