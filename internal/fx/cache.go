package fx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedRateSource fronts a rate source with a redis cache. Rates move
// slowly; a stale-by-minutes rate is acceptable for order settlement and
// keeps the rates API off the hot path.
type CachedRateSource struct {
	source RateSource
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRateSource wraps source with redis caching.
func NewCachedRateSource(source RateSource, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedRateSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRateSource{source: source, client: client, ttl: ttl, logger: logger}
}

func rateKey(from, to string) string {
	return fmt.Sprintf("fx:rate:%s:%s", from, to)
}

func (c *CachedRateSource) Rate(ctx context.Context, from, to string) (float64, error) {
	key := rateKey(from, to)

	val, err := c.client.Get(ctx, key).Result()
	if err == nil {
		if rate, parseErr := strconv.ParseFloat(val, 64); parseErr == nil && rate > 0 {
			return rate, nil
		}
	} else if err != redis.Nil {
		// Cache trouble never blocks conversion.
		c.logger.Warn("fx cache read failed", zap.String("key", key), zap.Error(err))
	}

	rate, err := c.source.Rate(ctx, from, to)
	if err != nil {
		return 0, err
	}

	if err := c.client.Set(ctx, key, strconv.FormatFloat(rate, 'f', -1, 64), c.ttl).Err(); err != nil {
		c.logger.Warn("fx cache write failed", zap.String("key", key), zap.Error(err))
	}
	return rate, nil
}
