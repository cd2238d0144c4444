package exchange

import (
	"context"
	"net/url"

	"github.com/mselser95/signal-bot/pkg/types"
)

type createOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	Price       string `json:"price,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	ReduceOnly  bool   `json:"reduceOnly"`
	OrderLinkID string `json:"orderLinkId,omitempty"`
}

type orderResult struct {
	OrderID     string `json:"orderId"`
	OrderLinkID string `json:"orderLinkId"`
}

// PlaceOrder submits an order and returns the exchange order id.
func (c *Client) PlaceOrder(ctx context.Context, req *types.OrderRequest) (string, error) {
	body := createOrderRequest{
		Category:    c.category,
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		OrderType:   req.OrderType,
		Qty:         formatFloat(req.Qty),
		TimeInForce: req.TimeInForce,
		ReduceOnly:  req.ReduceOnly,
		OrderLinkID: req.ClientOrderID,
	}
	if req.Price > 0 {
		body.Price = formatFloat(req.Price)
	}

	var res orderResult
	err := c.post(ctx, "/v5/order/create", body, &res)
	if err != nil {
		return "", err
	}
	return res.OrderID, nil
}

type cancelOrderRequest struct {
	Category string `json:"category"`
	Symbol   string `json:"symbol"`
	OrderID  string `json:"orderId"`
}

// CancelOrder cancels an open order by exchange id.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return c.post(ctx, "/v5/order/cancel", cancelOrderRequest{
		Category: c.category,
		Symbol:   symbol,
		OrderID:  orderID,
	}, nil)
}

type openOrdersResult struct {
	List []struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
		Symbol      string `json:"symbol"`
		Side        string `json:"side"`
		Price       num    `json:"price"`
		Qty         num    `json:"qty"`
		OrderStatus string `json:"orderStatus"`
	} `json:"list"`
}

// OpenOrders lists resting orders for symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	params := url.Values{}
	params.Set("category", c.category)
	params.Set("symbol", symbol)
	params.Set("openOnly", "0")
	params.Set("limit", "50")

	var res openOrdersResult
	err := c.get(ctx, "/v5/order/realtime", params, true, &res)
	if err != nil {
		return nil, err
	}

	out := make([]types.Order, 0, len(res.List))
	for _, o := range res.List {
		out = append(out, types.Order{
			OrderID:       o.OrderID,
			ClientOrderID: o.OrderLinkID,
			Symbol:        o.Symbol,
			Side:          types.Side(o.Side),
			Price:         float64(o.Price),
			Qty:           float64(o.Qty),
			Status:        o.OrderStatus,
		})
	}
	return out, nil
}
