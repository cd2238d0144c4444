package exchange

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/mselser95/signal-bot/pkg/types"
)

type positionResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Size          num    `json:"size"`
		AvgPrice      num    `json:"avgPrice"`
		UnrealisedPnl num    `json:"unrealisedPnl"`
	} `json:"list"`
}

func (c *Client) positions(ctx context.Context, params url.Values) ([]types.Position, error) {
	params.Set("category", c.category)

	var res positionResult
	err := c.get(ctx, "/v5/position/list", params, true, &res)
	if err != nil {
		return nil, err
	}

	out := make([]types.Position, 0, len(res.List))
	for _, p := range res.List {
		if p.Size <= 0 {
			continue
		}
		out = append(out, types.Position{
			Symbol:        p.Symbol,
			Side:          p.Side,
			Size:          float64(p.Size),
			AvgPrice:      float64(p.AvgPrice),
			UnrealisedPnL: float64(p.UnrealisedPnl),
		})
	}
	return out, nil
}

// Position returns the open position for symbol, or nil when flat.
func (c *Client) Position(ctx context.Context, symbol string) (*types.Position, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	list, err := c.positions(ctx, params)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Symbol == symbol {
			return &list[i], nil
		}
	}
	return nil, nil
}

// Positions returns every non-flat position settled in the configured coin.
func (c *Client) Positions(ctx context.Context) ([]types.Position, error) {
	params := url.Values{}
	params.Set("settleCoin", c.settleCoin)
	params.Set("limit", "200")
	return c.positions(ctx, params)
}

type leverageRequest struct {
	Category     string `json:"category"`
	Symbol       string `json:"symbol"`
	BuyLeverage  string `json:"buyLeverage"`
	SellLeverage string `json:"sellLeverage"`
}

// SetLeverage sets both sides' leverage for symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	return c.post(ctx, "/v5/position/set-leverage", leverageRequest{
		Category:     c.category,
		Symbol:       symbol,
		BuyLeverage:  lev,
		SellLeverage: lev,
	}, nil)
}

type marginModeRequest struct {
	Category     string `json:"category"`
	Symbol       string `json:"symbol"`
	TradeMode    int    `json:"tradeMode"` // 0 cross, 1 isolated
	BuyLeverage  string `json:"buyLeverage"`
	SellLeverage string `json:"sellLeverage"`
}

// SetMarginMode switches symbol between isolated and cross margin.
func (c *Client) SetMarginMode(ctx context.Context, symbol string, isolated bool, leverage int) error {
	mode := 0
	if isolated {
		mode = 1
	}
	lev := strconv.Itoa(leverage)
	return c.post(ctx, "/v5/position/switch-isolated", marginModeRequest{
		Category:     c.category,
		Symbol:       symbol,
		TradeMode:    mode,
		BuyLeverage:  lev,
		SellLeverage: lev,
	}, nil)
}

type tradingStopRequest struct {
	Category     string `json:"category"`
	Symbol       string `json:"symbol"`
	TPSLMode     string `json:"tpslMode"`
	PositionIdx  int    `json:"positionIdx"`
	StopLoss     string `json:"stopLoss,omitempty"`
	TrailingStop string `json:"trailingStop,omitempty"`
	ActivePrice  string `json:"activePrice,omitempty"`
}

// SetTradingStop updates position protection. Zero fields are omitted and
// left unchanged by the exchange.
func (c *Client) SetTradingStop(ctx context.Context, stop *types.TradingStop) error {
	body := tradingStopRequest{
		Category: c.category,
		Symbol:   stop.Symbol,
		TPSLMode: "Full",
	}
	if stop.StopLoss > 0 {
		body.StopLoss = formatFloat(stop.StopLoss)
	}
	if stop.TrailingStop > 0 {
		body.TrailingStop = formatFloat(stop.TrailingStop)
	}
	if stop.ActivePrice > 0 {
		body.ActivePrice = formatFloat(stop.ActivePrice)
	}
	return c.post(ctx, "/v5/position/trading-stop", body, nil)
}

type closedPnLResult struct {
	List []struct {
		Symbol      string `json:"symbol"`
		OrderID     string `json:"orderId"`
		ClosedPnl   num    `json:"closedPnl"`
		CreatedTime string `json:"createdTime"`
	} `json:"list"`
}

// ClosedPnL returns realized PnL records for symbol created since since.
func (c *Client) ClosedPnL(ctx context.Context, symbol string, since time.Time, limit int) ([]types.ClosedPnL, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)
	params.Set("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	params.Set("limit", strconv.Itoa(limit))

	var res closedPnLResult
	err := c.get(ctx, "/v5/position/closed-pnl", params, true, &res)
	if err != nil {
		return nil, err
	}

	out := make([]types.ClosedPnL, 0, len(res.List))
	for _, r := range res.List {
		ms, _ := strconv.ParseInt(r.CreatedTime, 10, 64)
		out = append(out, types.ClosedPnL{
			Symbol:    r.Symbol,
			OrderID:   r.OrderID,
			ClosedPnL: float64(r.ClosedPnl),
			CreatedAt: millis(ms),
		})
	}
	return out, nil
}
