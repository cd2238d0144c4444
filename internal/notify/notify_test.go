package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestROE(t *testing.T) {
	tests := []struct {
		name    string
		side    types.Side
		entry   float64
		current float64
		want    float64
	}{
		{name: "long-loss", side: types.SideBuy, entry: 100, current: 97.5, want: -25},
		{name: "long-gain", side: types.SideBuy, entry: 100, current: 101, want: 10},
		{name: "short-loss", side: types.SideSell, entry: 100, current: 105, want: -50},
		{name: "short-gain", side: types.SideSell, entry: 100, current: 99, want: 10},
		{name: "no-entry", side: types.SideBuy, entry: 0, current: 99, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ROE(tt.side, tt.entry, tt.current, 10), 1e-9)
		})
	}
}

func TestAlertTracker(t *testing.T) {
	a := NewAlertTracker([]float64{-75, -25, -50})

	assert.Empty(t, a.Check("t1", -10))
	assert.Equal(t, []float64{-25}, a.Check("t1", -30))
	assert.Empty(t, a.Check("t1", -30), "same threshold fires once")
	assert.Equal(t, []float64{-50, -75}, a.Check("t1", -80))
	assert.Equal(t, []float64{-25}, a.Check("t2", -26), "trades are independent")

	a.Clear("t1")
	assert.Equal(t, []float64{-25, -50, -75}, a.Check("t1", -90))
}

type sentMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func TestTelegram_Send(t *testing.T) {
	var got []sentMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var m sentMessage
		assert.NoError(t, json.Unmarshal(body, &m))
		got = append(got, m)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(&TelegramConfig{BaseURL: srv.URL, Token: "TOKEN", ChatID: "42", Logger: zaptest.NewLogger(t)})
	ctx := context.Background()

	require.NoError(t, tg.TradeOpened(ctx, Opened{Symbol: "EPICUSDT", Side: types.SideSell, Entry: 0.591, Qty: 338}))
	pnl := 12.5
	require.NoError(t, tg.TradeClosed(ctx, Closed{Symbol: "EPICUSDT", Side: types.SideSell, PnL: &pnl, ExitReason: "all_tps_hit", TPFills: 4}))

	require.Len(t, got, 2)
	assert.Equal(t, "42", got[0].ChatID)
	assert.Contains(t, got[0].Text, "EPICUSDT")
	assert.Contains(t, got[1].Text, "12.50")
	assert.Contains(t, got[1].Text, "all_tps_hit")
}

func TestTelegram_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram(&TelegramConfig{BaseURL: srv.URL, Token: "T", ChatID: "1", Logger: zaptest.NewLogger(t)})
	err := tg.PositionAlert(context.Background(), Alert{Symbol: "X", ROE: -30, Threshold: -25})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "chat not found"))
}

type failingNotifier struct{ *LogNotifier }

func (failingNotifier) TradeOpened(context.Context, Opened) error {
	return errors.New("down")
}

func TestMulti(t *testing.T) {
	logger := zaptest.NewLogger(t)
	m := Multi{NewLogNotifier(logger), failingNotifier{NewLogNotifier(logger)}}

	require.Error(t, m.TradeOpened(context.Background(), Opened{Symbol: "X"}))
	require.NoError(t, m.TradeClosed(context.Background(), Closed{Symbol: "X"}))
}
