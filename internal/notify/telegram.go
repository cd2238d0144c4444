package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTelegramURL is the Bot API base URL.
const DefaultTelegramURL = "https://api.telegram.org"

// Telegram sends notifications through the Telegram Bot API.
type Telegram struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// TelegramConfig holds Telegram notifier configuration.
type TelegramConfig struct {
	BaseURL string
	Token   string
	ChatID  string
	Logger  *zap.Logger
}

// NewTelegram creates a Telegram notifier. Messages are limited to one per
// second, the Bot API's per-chat allowance.
func NewTelegram(cfg *TelegramConfig) *Telegram {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	return &Telegram{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
		logger:  cfg.Logger,
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) TradeOpened(ctx context.Context, ev Opened) error {
	return t.send(ctx, fmt.Sprintf("🟢 Opened %s %s\nEntry: %g\nQty: %g",
		ev.Symbol, ev.Side, ev.Entry, ev.Qty))
}

func (t *Telegram) TradeClosed(ctx context.Context, ev Closed) error {
	pnl := "n/a"
	icon := "⚪"
	if ev.PnL != nil {
		pnl = fmt.Sprintf("%.2f", *ev.PnL)
		if *ev.PnL > 0 {
			icon = "✅"
		} else if *ev.PnL < 0 {
			icon = "❌"
		}
	}
	return t.send(ctx, fmt.Sprintf("%s Closed %s %s\nPnL: %s\nExit: %s\nTPs hit: %d",
		icon, ev.Symbol, ev.Side, pnl, ev.ExitReason, ev.TPFills))
}

func (t *Telegram) PositionAlert(ctx context.Context, ev Alert) error {
	return t.send(ctx, fmt.Sprintf("⚠️ %s %s ROE %.1f%% (crossed %.0f%%)\nEntry: %g\nNow: %g",
		ev.Symbol, ev.Side, ev.ROE, ev.Threshold, ev.Entry, ev.Current))
}

func (t *Telegram) send(ctx context.Context, text string) error {
	err := t.limiter.Wait(ctx)
	if err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		MessagesTotal.WithLabelValues("telegram", "error").Inc()
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		MessagesTotal.WithLabelValues("telegram", "error").Inc()
		return fmt.Errorf("read response body: %w", err)
	}

	var out sendMessageResponse
	_ = json.Unmarshal(respBody, &out)
	if resp.StatusCode != http.StatusOK || !out.OK {
		MessagesTotal.WithLabelValues("telegram", "error").Inc()
		return fmt.Errorf("telegram status %d: %s", resp.StatusCode, out.Description)
	}

	MessagesTotal.WithLabelValues("telegram", "sent").Inc()
	t.logger.Debug("telegram-message-sent", zap.Int("length", len(text)))
	return nil
}
