// Package stoploss derives protective stop prices from recent market structure.
package stoploss

import (
	"context"
	"fmt"

	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// MinCandles is the smallest window a structure stop is derived from.
const MinCandles = 5

// Stop sources.
const (
	SourceStructure = "structure"
	SourceClampMin  = "clamp-min"
	SourceClampMax  = "clamp-max"
	SourceFallback  = "fallback"
)

// CandleSource returns recent klines, oldest or newest first.
type CandleSource interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)
}

// Calculator computes structure-based stops clamped to [MinPct, MaxPct].
type Calculator struct {
	candles     CandleSource
	interval    string
	lookback    int
	bufferPct   float64
	minPct      float64
	maxPct      float64
	fallbackPct float64
	logger      *zap.Logger
}

// Config holds stop calculator configuration.
type Config struct {
	Candles     CandleSource
	Interval    string
	Lookback    int
	BufferPct   float64
	MinPct      float64
	MaxPct      float64
	FallbackPct float64
	Logger      *zap.Logger
}

// New creates a new Calculator.
func New(cfg *Config) *Calculator {
	return &Calculator{
		candles:     cfg.Candles,
		interval:    cfg.Interval,
		lookback:    cfg.Lookback,
		bufferPct:   cfg.BufferPct,
		minPct:      cfg.MinPct,
		maxPct:      cfg.MaxPct,
		fallbackPct: cfg.FallbackPct,
		logger:      cfg.Logger,
	}
}

// Result is a chosen stop and how it was derived.
type Result struct {
	Price       float64
	DistancePct float64
	Source      string
}

// Compute derives the stop from the swing extreme of the candle window.
// It returns types.ErrInsufficientCandles when the window is too short.
func (c *Calculator) Compute(ctx context.Context, symbol string, side types.Side, entry float64) (Result, error) {
	candles, err := c.candles.Candles(ctx, symbol, c.interval, c.lookback)
	if err != nil {
		return Result{}, fmt.Errorf("fetch candles %s: %w", symbol, err)
	}
	if len(candles) < MinCandles {
		return Result{}, fmt.Errorf("%s has %d candles: %w", symbol, len(candles), types.ErrInsufficientCandles)
	}

	var raw float64
	if side == types.SideBuy {
		low := candles[0].Low
		for _, k := range candles[1:] {
			if k.Low < low {
				low = k.Low
			}
		}
		raw = low * (1 - c.bufferPct/100)
	} else {
		high := candles[0].High
		for _, k := range candles[1:] {
			if k.High > high {
				high = k.High
			}
		}
		raw = high * (1 + c.bufferPct/100)
	}

	return Clamp(side, entry, raw, c.minPct, c.maxPct), nil
}

// Stop returns the structure stop, or the fixed-percentage fallback when
// the structure cannot be derived.
func (c *Calculator) Stop(ctx context.Context, symbol string, side types.Side, entry float64) Result {
	res, err := c.Compute(ctx, symbol, side, entry)
	if err != nil {
		StopsTotal.WithLabelValues(SourceFallback).Inc()
		c.logger.Warn("structure-stop-unavailable",
			zap.String("symbol", symbol),
			zap.Float64("fallback-pct", c.fallbackPct),
			zap.Error(err))
		price := Fallback(side, entry, c.fallbackPct)
		return Result{Price: price, DistancePct: DistancePct(side, entry, price), Source: SourceFallback}
	}

	StopsTotal.WithLabelValues(res.Source).Inc()
	c.logger.Info("structure-stop-computed",
		zap.String("symbol", symbol),
		zap.String("source", res.Source),
		zap.Float64("stop", res.Price),
		zap.Float64("distance-pct", res.DistancePct))

	return res
}

// Clamp keeps a raw stop whose distance lies inside [minPct, maxPct] and
// otherwise resets it to exactly the nearest band edge.
func Clamp(side types.Side, entry, raw, minPct, maxPct float64) Result {
	d := DistancePct(side, entry, raw)
	switch {
	case d < minPct:
		return Result{Price: Fallback(side, entry, minPct), DistancePct: minPct, Source: SourceClampMin}
	case d > maxPct:
		return Result{Price: Fallback(side, entry, maxPct), DistancePct: maxPct, Source: SourceClampMax}
	default:
		return Result{Price: raw, DistancePct: d, Source: SourceStructure}
	}
}

// Fallback places the stop pct percent on the losing side of entry.
func Fallback(side types.Side, entry, pct float64) float64 {
	if side == types.SideBuy {
		return entry * (1 - pct/100)
	}
	return entry * (1 + pct/100)
}

// DistancePct is the adverse distance from entry to stop, in percent.
func DistancePct(side types.Side, entry, stop float64) float64 {
	if entry == 0 {
		return 0
	}
	if side == types.SideBuy {
		return (entry - stop) / entry * 100
	}
	return (stop - entry) / entry * 100
}
