package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/mselser95/signal-bot/pkg/websocket"
	"go.uber.org/zap"
)

// Private stream endpoints.
const (
	MainnetStreamURL = "wss://stream.bybit.com/v5/private"
	TestnetStreamURL = "wss://stream-testnet.bybit.com/v5/private"
	DemoStreamURL    = "wss://stream-demo.bybit.com/v5/private"
)

// StreamURL picks the private stream endpoint for the environment flags.
func StreamURL(testnet, demo bool) string {
	switch {
	case demo:
		return DemoStreamURL
	case testnet:
		return TestnetStreamURL
	default:
		return MainnetStreamURL
	}
}

const topicExecution = "execution"

// ExecutionHandler receives every execution pushed by the exchange.
type ExecutionHandler func(ctx context.Context, ev types.ExecutionEvent)

// ExecutionStream authenticates to the private stream, subscribes to
// executions and hands decoded events to a handler.
type ExecutionStream struct {
	manager   *websocket.Manager
	apiKey    string
	apiSecret string
	now       func() time.Time
	logger    *zap.Logger
}

// StreamConfig holds private stream configuration.
type StreamConfig struct {
	APIKey    string
	APISecret string
	WS        websocket.Config
	Logger    *zap.Logger
}

// NewExecutionStream creates the stream. Authentication and subscription are
// replayed on every reconnect.
func NewExecutionStream(cfg *StreamConfig) *ExecutionStream {
	s := &ExecutionStream{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		now:       time.Now,
		logger:    cfg.Logger,
	}

	wsCfg := cfg.WS
	wsCfg.Name = "execution"
	wsCfg.PingPayload = []byte(`{"op":"ping"}`)
	wsCfg.OnConnect = s.onConnect
	wsCfg.Logger = cfg.Logger
	s.manager = websocket.New(wsCfg)

	return s
}

type wsRequest struct {
	ReqID string        `json:"req_id"`
	Op    string        `json:"op"`
	Args  []interface{} `json:"args"`
}

type wsResponse struct {
	Success bool   `json:"success"`
	RetMsg  string `json:"ret_msg"`
	Op      string `json:"op"`
}

func (s *ExecutionStream) onConnect(_ context.Context, m *websocket.Manager) error {
	expires := s.now().Add(10 * time.Second).UnixMilli()
	signature := sign("GET/realtime"+strconv.FormatInt(expires, 10), s.apiSecret)

	err := s.request(m, "auth", []interface{}{s.apiKey, expires, signature})
	if err != nil {
		return err
	}

	err = s.request(m, "subscribe", []interface{}{topicExecution})
	if err != nil {
		return err
	}

	s.logger.Info("execution-stream-subscribed")
	return nil
}

// request sends op and waits for its acknowledgement.
func (s *ExecutionStream) request(m *websocket.Manager, op string, args []interface{}) error {
	err := m.SendJSON(wsRequest{ReqID: uuid.NewString(), Op: op, Args: args})
	if err != nil {
		return fmt.Errorf("send %s: %w", op, err)
	}

	var resp wsResponse
	err = m.ReadJSON(&resp)
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}
	if !resp.Success {
		return fmt.Errorf("%s rejected: %s", op, resp.RetMsg)
	}
	return nil
}

// Start connects in the background.
func (s *ExecutionStream) Start() {
	s.manager.Start()
}

// Connected reports whether the stream is up.
func (s *ExecutionStream) Connected() bool {
	return s.manager.Connected()
}

// Close stops the stream.
func (s *ExecutionStream) Close() error {
	return s.manager.Close()
}

type executionMessage struct {
	Topic string `json:"topic"`
	Op    string `json:"op"`
	Data  []struct {
		Symbol      string `json:"symbol"`
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
		Side        string `json:"side"`
		ExecPrice   num    `json:"execPrice"`
		ExecQty     num    `json:"execQty"`
		ExecType    string `json:"execType"`
		ExecTime    string `json:"execTime"`
	} `json:"data"`
}

// Run dispatches executions to handle until ctx is done or the stream closes.
func (s *ExecutionStream) Run(ctx context.Context, handle ExecutionHandler) {
	msgs := s.manager.MessageChan()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			for _, ev := range s.decode(raw) {
				handle(ctx, ev)
			}
		}
	}
}

// decode returns the execution events carried by raw; control frames and
// other topics yield none.
func (s *ExecutionStream) decode(raw []byte) []types.ExecutionEvent {
	var msg executionMessage
	err := json.Unmarshal(raw, &msg)
	if err != nil {
		s.logger.Warn("execution-message-decode-failed", zap.Error(err))
		return nil
	}
	if msg.Topic != topicExecution {
		return nil
	}

	out := make([]types.ExecutionEvent, 0, len(msg.Data))
	for _, d := range msg.Data {
		ExecutionsTotal.WithLabelValues(d.ExecType).Inc()
		ms, _ := strconv.ParseInt(d.ExecTime, 10, 64)
		out = append(out, types.ExecutionEvent{
			Symbol:        d.Symbol,
			OrderID:       d.OrderID,
			ClientOrderID: d.OrderLinkID,
			Side:          types.Side(d.Side),
			ExecPrice:     float64(d.ExecPrice),
			ExecQty:       float64(d.ExecQty),
			ExecTime:      millis(ms),
		})
	}
	return out
}
