// Package circuitbreaker gates new entries on account equity.
package circuitbreaker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// window is the number of recent entry margins averaged for the dynamic threshold.
const window = 20

// EquityFetcher returns the account equity in the quote currency.
type EquityFetcher interface {
	Equity(ctx context.Context) (float64, error)
}

// EquityCircuitBreaker blocks new entries when equity falls below a threshold
// derived from recent entry margins. Re-enabling requires equity to recover
// past a higher threshold so the state does not flap.
type EquityCircuitBreaker struct {
	enabled atomic.Bool

	checkInterval   time.Duration
	fetcher         EquityFetcher
	logger          *zap.Logger
	tradeMultiplier float64
	minEquity       float64
	hysteresisRatio float64

	mu               sync.RWMutex
	lastEquity       float64
	lastCheck        time.Time
	recentMargins    []float64
	disableThreshold float64
	enableThreshold  float64
}

// Config holds circuit breaker configuration.
type Config struct {
	CheckInterval   time.Duration
	TradeMultiplier float64
	MinEquity       float64
	HysteresisRatio float64
	Fetcher         EquityFetcher
	Logger          *zap.Logger
}

// Status is a point-in-time view of the breaker.
type Status struct {
	Enabled          bool      `json:"enabled"`
	LastEquity       float64   `json:"last_equity"`
	LastCheck        time.Time `json:"last_check"`
	DisableThreshold float64   `json:"disable_threshold"`
	EnableThreshold  float64   `json:"enable_threshold"`
	AvgMargin        float64   `json:"avg_margin"`
	RecentTradeCount int       `json:"recent_trade_count"`
}

// New creates an enabled breaker.
func New(cfg *Config) (*EquityCircuitBreaker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("equity fetcher cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be positive")
	}
	if cfg.TradeMultiplier <= 0 {
		return nil, fmt.Errorf("trade multiplier must be positive")
	}
	if cfg.MinEquity <= 0 {
		return nil, fmt.Errorf("min equity must be positive")
	}
	if cfg.HysteresisRatio < 1.0 {
		return nil, fmt.Errorf("hysteresis ratio must be >= 1.0")
	}

	b := &EquityCircuitBreaker{
		checkInterval:    cfg.CheckInterval,
		fetcher:          cfg.Fetcher,
		logger:           cfg.Logger,
		tradeMultiplier:  cfg.TradeMultiplier,
		minEquity:        cfg.MinEquity,
		hysteresisRatio:  cfg.HysteresisRatio,
		recentMargins:    make([]float64, 0, window),
		disableThreshold: cfg.MinEquity,
		enableThreshold:  cfg.MinEquity * cfg.HysteresisRatio,
	}
	b.enabled.Store(true)

	Enabled.Set(1)
	DisableThreshold.Set(b.disableThreshold)
	EnableThreshold.Set(b.enableThreshold)
	AvgMargin.Set(0)

	return b, nil
}

// Allow reports whether new entries may be placed. Lock-free.
func (b *EquityCircuitBreaker) Allow() bool {
	return b.enabled.Load()
}

// RecordTrade adds the margin committed by an entry and recomputes thresholds.
func (b *EquityCircuitBreaker) RecordTrade(margin float64) {
	if margin <= 0 {
		b.logger.Warn("invalid-trade-margin", zap.Float64("margin", margin))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recentMargins = append(b.recentMargins, margin)
	if len(b.recentMargins) > window {
		b.recentMargins = b.recentMargins[1:]
	}

	avg := b.avgMarginLocked()
	b.disableThreshold = math.Max(avg*b.tradeMultiplier, b.minEquity)
	b.enableThreshold = b.disableThreshold * b.hysteresisRatio

	AvgMargin.Set(avg)
	DisableThreshold.Set(b.disableThreshold)
	EnableThreshold.Set(b.enableThreshold)

	b.logger.Debug("thresholds-updated",
		zap.Float64("avg_margin", avg),
		zap.Int("trade_count", len(b.recentMargins)),
		zap.Float64("disable_threshold", b.disableThreshold),
		zap.Float64("enable_threshold", b.enableThreshold))
}

func (b *EquityCircuitBreaker) avgMarginLocked() float64 {
	if len(b.recentMargins) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range b.recentMargins {
		sum += m
	}
	return sum / float64(len(b.recentMargins))
}

// Check fetches equity and flips the state when a threshold is crossed.
func (b *EquityCircuitBreaker) Check(ctx context.Context) error {
	start := time.Now()
	defer func() {
		CheckDuration.Observe(time.Since(start).Seconds())
	}()

	equity, err := b.fetcher.Equity(ctx)
	if err != nil {
		return fmt.Errorf("get equity: %w", err)
	}

	b.mu.Lock()
	b.lastEquity = equity
	b.lastCheck = time.Now()
	disable := b.disableThreshold
	enable := b.enableThreshold
	b.mu.Unlock()

	LastEquity.Set(equity)

	enabled := b.enabled.Load()
	switch {
	case enabled && equity < disable:
		b.enabled.Store(false)
		Enabled.Set(0)
		StateChanges.Inc()
		b.logger.Warn("circuit-breaker-disabled",
			zap.Float64("equity", equity),
			zap.Float64("disable_threshold", disable),
			zap.Float64("enable_threshold", enable))
	case !enabled && equity >= enable:
		b.enabled.Store(true)
		Enabled.Set(1)
		StateChanges.Inc()
		b.logger.Info("circuit-breaker-enabled",
			zap.Float64("equity", equity),
			zap.Float64("disable_threshold", disable),
			zap.Float64("enable_threshold", enable))
	default:
		b.logger.Debug("equity-checked",
			zap.Float64("equity", equity),
			zap.Bool("enabled", enabled))
	}

	return nil
}

// Start checks once and then monitors in the background until ctx is done.
func (b *EquityCircuitBreaker) Start(ctx context.Context) {
	b.logger.Info("circuit-breaker-started",
		zap.Duration("check_interval", b.checkInterval),
		zap.Float64("trade_multiplier", b.tradeMultiplier),
		zap.Float64("min_equity", b.minEquity),
		zap.Float64("hysteresis_ratio", b.hysteresisRatio))

	err := b.Check(ctx)
	if err != nil {
		b.logger.Error("initial-equity-check-failed", zap.Error(err))
	}

	go b.monitorLoop(ctx)
}

func (b *EquityCircuitBreaker) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(b.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("circuit-breaker-stopped")
			return
		case <-ticker.C:
			err := b.Check(ctx)
			if err != nil {
				b.logger.Error("equity-check-error", zap.Error(err))
			}
		}
	}
}

// Status returns the current breaker state.
func (b *EquityCircuitBreaker) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Status{
		Enabled:          b.enabled.Load(),
		LastEquity:       b.lastEquity,
		LastCheck:        b.lastCheck,
		DisableThreshold: b.disableThreshold,
		EnableThreshold:  b.enableThreshold,
		AvgMargin:        b.avgMarginLocked(),
		RecentTradeCount: len(b.recentMargins),
	}
}
