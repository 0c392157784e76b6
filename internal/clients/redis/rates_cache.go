package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/yungbote/nftbridge-backend/internal/logger"
)

const ratesKey = "currency:rates"

// RatesCache snapshots the last good currency rate table so restarts do not
// begin with an empty table while the first oracle poll is in flight.
type RatesCache struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewRatesCache(rdb *goredis.Client, ttl time.Duration, baseLog *logger.Logger) *RatesCache {
	return &RatesCache{
		rdb: rdb,
		ttl: ttl,
		log: baseLog.With("service", "RatesCache"),
	}
}

func (c *RatesCache) Store(ctx context.Context, rates map[string]decimal.Decimal) error {
	raw, err := json.Marshal(rates)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, ratesKey, raw, c.ttl).Err()
}

// Load returns nil without error when no snapshot exists.
func (c *RatesCache) Load(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw, err := c.rdb.Get(ctx, ratesKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rates map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil, err
	}
	return rates, nil
}
