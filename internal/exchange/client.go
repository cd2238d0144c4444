// Package exchange implements the Bybit V5 unified-trading API used by the
// engine: signed REST calls, the private execution stream and a dry-run
// decorator.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// REST endpoints.
const (
	MainnetURL = "https://api.bybit.com"
	TestnetURL = "https://api-testnet.bybit.com"
	DemoURL    = "https://api-demo.bybit.com"
)

// BaseURL picks the REST endpoint for the environment flags.
func BaseURL(testnet, demo bool) string {
	switch {
	case demo:
		return DemoURL
	case testnet:
		return TestnetURL
	default:
		return MainnetURL
	}
}

// Client is a Bybit V5 REST client.
type Client struct {
	baseURL     string
	apiKey      string
	apiSecret   string
	recvWindow  string
	category    string
	accountType string
	settleCoin  string
	httpClient  *http.Client
	limiter     *rate.Limiter
	now         func() time.Time
	logger      *zap.Logger
}

// Config holds REST client configuration.
type Config struct {
	BaseURL     string
	APIKey      string
	APISecret   string
	RecvWindow  time.Duration
	Category    string // linear
	AccountType string // UNIFIED
	SettleCoin  string // USDT
	RateLimit   float64 // requests per second
	Logger      *zap.Logger
}

// NewClient creates a new REST client.
func NewClient(cfg *Config) *Client {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		recvWindow:  strconv.FormatInt(cfg.RecvWindow.Milliseconds(), 10),
		category:    cfg.Category,
		accountType: cfg.AccountType,
		settleCoin:  cfg.SettleCoin,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
		now:     time.Now,
		logger:  cfg.Logger,
	}
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func sign(payload, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// get performs a GET. Private endpoints are signed over the query string.
func (c *Client) get(ctx context.Context, path string, params url.Values, signed bool, out interface{}) error {
	query := params.Encode()
	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if signed {
		c.signRequest(req, query)
	}

	return c.do(req, path, out)
}

// post performs a signed POST with a JSON body.
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.signRequest(req, string(payload))

	return c.do(req, path, out)
}

func (c *Client) signRequest(req *http.Request, payload string) {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", ts)
	req.Header.Set("X-BAPI-RECV-WINDOW", c.recvWindow)
	req.Header.Set("X-BAPI-SIGN", sign(ts+c.apiKey+c.recvWindow+payload, c.apiSecret))
}

func (c *Client) do(req *http.Request, path string, out interface{}) error {
	err := c.limiter.Wait(req.Context())
	if err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	RequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		RequestsTotal.WithLabelValues(path, "transport_error").Inc()
		return fmt.Errorf("do request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		RequestsTotal.WithLabelValues(path, "transport_error").Inc()
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		RequestsTotal.WithLabelValues(path, "http_error").Inc()
		return fmt.Errorf("unexpected status code %d from %s: %s", resp.StatusCode, path, string(body))
	}

	var env envelope
	err = json.Unmarshal(body, &env)
	if err != nil {
		RequestsTotal.WithLabelValues(path, "decode_error").Inc()
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	if env.RetCode != 0 {
		RequestsTotal.WithLabelValues(path, "api_error").Inc()
		return &types.APIError{Code: env.RetCode, Message: env.RetMsg, Endpoint: path}
	}

	RequestsTotal.WithLabelValues(path, "ok").Inc()

	if out == nil || len(env.Result) == 0 {
		return nil
	}
	err = json.Unmarshal(env.Result, out)
	if err != nil {
		return fmt.Errorf("unmarshal result of %s: %w", path, err)
	}
	return nil
}

// num decodes Bybit's string-encoded numbers. Empty strings decode to zero.
type num float64

func (n *num) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*n = num(v)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
