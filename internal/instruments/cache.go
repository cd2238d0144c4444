package instruments

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/signal-bot/pkg/cache"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// Fetcher loads instrument metadata from the exchange.
type Fetcher interface {
	InstrumentInfo(ctx context.Context, symbol string) (*types.InstrumentInfo, error)
}

// Cache serves per-symbol Rules, refreshing them after TTL.
type Cache struct {
	fetcher Fetcher
	cache   cache.Cache
	ttl     time.Duration
	logger  *zap.Logger
}

// Config holds instrument cache configuration.
type Config struct {
	Fetcher Fetcher
	Cache   cache.Cache
	TTL     time.Duration
	Logger  *zap.Logger
}

// New creates a new instrument rules cache.
func New(cfg *Config) *Cache {
	return &Cache{
		fetcher: cfg.Fetcher,
		cache:   cfg.Cache,
		ttl:     cfg.TTL,
		logger:  cfg.Logger,
	}
}

// Get returns the rules for symbol, from cache when fresh.
func (c *Cache) Get(ctx context.Context, symbol string) (Rules, error) {
	key := "rules:" + symbol

	if cached, found := c.cache.Get(key); found {
		if rules, ok := cached.(Rules); ok {
			return rules, nil
		}
	}

	start := time.Now()
	info, err := c.fetcher.InstrumentInfo(ctx, symbol)
	FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		FetchErrorsTotal.Inc()
		return Rules{}, fmt.Errorf("fetch instrument info %s: %w", symbol, err)
	}

	rules := RulesFromInfo(info)
	c.cache.Set(key, rules, c.ttl)

	c.logger.Debug("instrument-rules-fetched",
		zap.String("symbol", symbol),
		zap.Float64("qty-step", rules.QtyStep),
		zap.Float64("min-qty", rules.MinQty),
		zap.Float64("tick-size", rules.TickSize))

	return rules, nil
}
