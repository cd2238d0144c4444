package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mselser95/signal-bot/pkg/types"
)

type instrumentsResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		LotSizeFilter struct {
			QtyStep       num `json:"qtyStep"`
			BasePrecision num `json:"basePrecision"`
			MinOrderQty   num `json:"minOrderQty"`
		} `json:"lotSizeFilter"`
		PriceFilter struct {
			TickSize num `json:"tickSize"`
		} `json:"priceFilter"`
	} `json:"list"`
}

// InstrumentInfo returns the lot and price filters for symbol, or nil when
// the exchange does not list it.
func (c *Client) InstrumentInfo(ctx context.Context, symbol string) (*types.InstrumentInfo, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)

	var res instrumentsResult
	err := c.get(ctx, "/v5/market/instruments-info", params, false, &res)
	if err != nil {
		return nil, err
	}

	for _, item := range res.List {
		if item.Symbol != symbol {
			continue
		}
		step := float64(item.LotSizeFilter.QtyStep)
		if step == 0 {
			step = float64(item.LotSizeFilter.BasePrecision)
		}
		return &types.InstrumentInfo{
			Symbol:      symbol,
			QtyStep:     step,
			MinOrderQty: float64(item.LotSizeFilter.MinOrderQty),
			TickSize:    float64(item.PriceFilter.TickSize),
		}, nil
	}

	return nil, nil
}

type klineResult struct {
	List [][]string `json:"list"`
}

// Candles returns up to limit klines at interval, newest first.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	var res klineResult
	err := c.get(ctx, "/v5/market/kline", params, false, &res)
	if err != nil {
		return nil, err
	}

	out := make([]types.Candle, 0, len(res.List))
	for _, row := range res.List {
		if len(row) < 5 {
			continue
		}
		k, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("kline %s: %w", symbol, err)
		}
		out = append(out, k)
	}
	return out, nil
}

func parseKline(row []string) (types.Candle, error) {
	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil {
			return types.Candle{}, err
		}
		vals[i] = v
	}
	return types.Candle{
		Start: millis(int64(vals[0])),
		Open:  vals[1],
		High:  vals[2],
		Low:   vals[3],
		Close: vals[4],
	}, nil
}

type tickersResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		LastPrice num    `json:"lastPrice"`
	} `json:"list"`
}

// LastPrice returns the last traded price for symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)

	var res tickersResult
	err := c.get(ctx, "/v5/market/tickers", params, false, &res)
	if err != nil {
		return 0, err
	}

	for _, t := range res.List {
		if t.Symbol == symbol && t.LastPrice > 0 {
			return float64(t.LastPrice), nil
		}
	}
	return 0, fmt.Errorf("no ticker for %s", symbol)
}
