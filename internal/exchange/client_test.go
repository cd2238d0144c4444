package exchange

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorded struct {
	method string
	path   string
	query  string
	body   string
	header http.Header
}

// newTestClient serves responses[path] wrapped in a success envelope.
func newTestClient(t *testing.T, responses map[string]string) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			body:   string(body),
			header: r.Header.Clone(),
		})
		result, ok := responses[r.URL.Path]
		if !ok {
			result = "{}"
		}
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(&Config{
		BaseURL:     srv.URL,
		APIKey:      "key",
		APISecret:   "secret",
		RecvWindow:  5 * time.Second,
		Category:    "linear",
		AccountType: "UNIFIED",
		SettleCoin:  "USDT",
		RateLimit:   100,
		Logger:      zaptest.NewLogger(t),
	})
	c.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return c, &calls
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, MainnetURL, BaseURL(false, false))
	assert.Equal(t, TestnetURL, BaseURL(true, false))
	assert.Equal(t, DemoURL, BaseURL(true, true))
	assert.Equal(t, DemoStreamURL, StreamURL(false, true))
}

func TestClient_SignsPost(t *testing.T) {
	c, calls := newTestClient(t, map[string]string{
		"/v5/order/create": `{"orderId":"abc-1","orderLinkId":"trade-1"}`,
	})

	id, err := c.PlaceOrder(context.Background(), &types.OrderRequest{
		Symbol:        "EPICUSDT",
		Side:          types.SideSell,
		OrderType:     types.OrderTypeLimit,
		Qty:           338,
		Price:         0.591,
		TimeInForce:   types.TimeInForceGTC,
		ClientOrderID: "trade-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-1", id)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(call.body), &body))
	assert.Equal(t, "linear", body["category"])
	assert.Equal(t, "338", body["qty"])
	assert.Equal(t, "0.591", body["price"])
	assert.Equal(t, "trade-1", body["orderLinkId"])
	assert.Equal(t, false, body["reduceOnly"])

	assert.Equal(t, "key", call.header.Get("X-BAPI-API-KEY"))
	assert.Equal(t, "1700000000000", call.header.Get("X-BAPI-TIMESTAMP"))
	assert.Equal(t, "5000", call.header.Get("X-BAPI-RECV-WINDOW"))
	assert.Equal(t, sign("1700000000000key5000"+call.body, "secret"), call.header.Get("X-BAPI-SIGN"))
}

func TestClient_SignsGetOverQuery(t *testing.T) {
	c, calls := newTestClient(t, map[string]string{
		"/v5/account/wallet-balance": `{"list":[{"accountType":"UNIFIED","totalEquity":"1234.5"}]}`,
	})

	equity, err := c.Equity(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, equity, 1e-9)

	call := (*calls)[0]
	assert.Equal(t, "accountType=UNIFIED", call.query)
	assert.Equal(t, sign("1700000000000key5000"+call.query, "secret"), call.header.Get("X-BAPI-SIGN"))
}

func TestClient_PublicGetUnsigned(t *testing.T) {
	c, calls := newTestClient(t, map[string]string{
		"/v5/market/tickers": `{"list":[{"symbol":"EPICUSDT","lastPrice":"0.5901"}]}`,
	})

	last, err := c.LastPrice(context.Background(), "EPICUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 0.5901, last, 1e-12)
	assert.Empty(t, (*calls)[0].header.Get("X-BAPI-SIGN"))
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":110043,"retMsg":"leverage not modified","result":{}}`))
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, Category: "linear", Logger: zaptest.NewLogger(t)})
	err := c.SetLeverage(context.Background(), "EPICUSDT", 10)

	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, types.CodeLeverageNotModified, apiErr.Code)
	assert.Equal(t, "/v5/position/set-leverage", apiErr.Endpoint)
	assert.True(t, types.IsNotModified(err))
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, Category: "linear", Logger: zaptest.NewLogger(t)})
	_, err := c.LastPrice(context.Background(), "X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_InstrumentInfo(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/v5/market/instruments-info": `{"list":[{"symbol":"EPICUSDT",
			"lotSizeFilter":{"qtyStep":"1","minOrderQty":"1"},
			"priceFilter":{"tickSize":"0.0001"}}]}`,
	})

	info, err := c.InstrumentInfo(context.Background(), "EPICUSDT")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.InDelta(t, 1.0, info.QtyStep, 1e-12)
	assert.InDelta(t, 1.0, info.MinOrderQty, 1e-12)
	assert.InDelta(t, 0.0001, info.TickSize, 1e-12)

	missing, err := c.InstrumentInfo(context.Background(), "NOPEUSDT")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClient_Candles(t *testing.T) {
	c, calls := newTestClient(t, map[string]string{
		"/v5/market/kline": `{"list":[
			["1700003600000","1.0","1.2","0.9","1.1","10","11"],
			["1700000000000","0.95","1.05","0.8","1.0","10","11"]]}`,
	})

	candles, err := c.Candles(context.Background(), "ABCUSDT", "60", 24)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.InDelta(t, 0.9, candles[0].Low, 1e-12)
	assert.InDelta(t, 1.05, candles[1].High, 1e-12)
	assert.Equal(t, int64(1_700_000_000), candles[1].Start.Unix())
	assert.Contains(t, (*calls)[0].query, "interval=60")
	assert.Contains(t, (*calls)[0].query, "limit=24")
}

func TestClient_Positions(t *testing.T) {
	c, calls := newTestClient(t, map[string]string{
		"/v5/position/list": `{"list":[
			{"symbol":"EPICUSDT","side":"Sell","size":"338","avgPrice":"0.591","unrealisedPnl":"-1.2"},
			{"symbol":"BTCUSDT","side":"","size":"0","avgPrice":"0","unrealisedPnl":""}]}`,
	})

	list, err := c.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "EPICUSDT", list[0].Symbol)
	assert.InDelta(t, -1.2, list[0].UnrealisedPnL, 1e-12)
	assert.Contains(t, (*calls)[0].query, "settleCoin=USDT")

	pos, err := c.Position(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, pos, "flat positions are reported as nil")
}

func TestClient_SetTradingStopOmitsZeroFields(t *testing.T) {
	c, calls := newTestClient(t, nil)

	err := c.SetTradingStop(context.Background(), &types.TradingStop{Symbol: "EPICUSDT", TrailingStop: 0.0029})
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte((*calls)[0].body), &body))
	assert.Equal(t, "0.0029", body["trailingStop"])
	assert.Equal(t, "Full", body["tpslMode"])
	assert.NotContains(t, body, "stopLoss")
	assert.NotContains(t, body, "activePrice")
}

func TestClient_ClosedPnL(t *testing.T) {
	c, calls := newTestClient(t, map[string]string{
		"/v5/position/closed-pnl": `{"list":[{"symbol":"EPICUSDT","orderId":"x","closedPnl":"4.25","createdTime":"1700000060000"}]}`,
	})

	since := time.UnixMilli(1_700_000_000_000)
	recs, err := c.ClosedPnL(context.Background(), "EPICUSDT", since, 20)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 4.25, recs[0].ClosedPnL, 1e-12)
	assert.Equal(t, since.Add(time.Minute).Unix(), recs[0].CreatedAt.Unix())
	assert.Contains(t, (*calls)[0].query, "startTime=1700000000000")
}

func TestClient_OpenOrders(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/v5/order/realtime": `{"list":[{"orderId":"o1","orderLinkId":"t:TP1","symbol":"EPICUSDT","side":"Buy","price":"0.5845","qty":"50","orderStatus":"New"}]}`,
	})

	orders, err := c.OpenOrders(context.Background(), "EPICUSDT")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "t:TP1", orders[0].ClientOrderID)
	assert.Equal(t, types.SideBuy, orders[0].Side)
	assert.InDelta(t, 50, orders[0].Qty, 1e-12)
}
