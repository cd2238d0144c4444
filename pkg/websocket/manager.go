package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// OnConnectFunc runs after every successful dial, before the read loop
// starts. It is where authentication and subscriptions are (re)sent.
type OnConnectFunc func(ctx context.Context, m *Manager) error

// Manager maintains a single reconnecting WebSocket connection and delivers
// every text frame it reads on MessageChan.
type Manager struct {
	name            string
	url             string
	conn            *websocket.Conn
	logger          *zap.Logger
	reconnectMgr    *ReconnectManager
	config          Config
	messageChan     chan []byte
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	mu              sync.RWMutex
	writeMu         sync.Mutex // gorilla allows one concurrent writer
	connected       atomic.Bool
	lastPongTime    atomic.Int64
	connectionStart atomic.Int64 // Unix timestamp of connection start
}

// Config holds WebSocket manager configuration.
type Config struct {
	Name                  string // Metric/log label, e.g. "execution" or "feed"
	URL                   string
	DialTimeout           time.Duration
	PongTimeout           time.Duration
	PingInterval          time.Duration
	PingPayload           []byte // When set, sent as a text frame instead of a control ping
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	OnConnect             OnConnectFunc
	Logger                *zap.Logger
}

// New creates a new WebSocket manager.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	reconnectCfg := ReconnectConfig{
		Name:              cfg.Name,
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	}

	return &Manager{
		name:         cfg.Name,
		url:          cfg.URL,
		logger:       cfg.Logger.With(zap.String("ws", cfg.Name)),
		reconnectMgr: NewReconnectManager(reconnectCfg, cfg.Logger),
		config:       cfg,
		messageChan:  make(chan []byte, cfg.MessageBufferSize),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start dials the endpoint and starts the background loops. A failed first
// dial is not fatal: the reconnect loop keeps retrying with backoff.
func (m *Manager) Start() {
	m.logger.Info("websocket-manager-starting", zap.String("url", m.url))

	err := m.connect(m.ctx)
	if err != nil {
		m.logger.Warn("initial-connect-failed", zap.Error(err))
	} else {
		m.wg.Add(1)
		go m.readLoop()
	}

	m.wg.Add(2)
	go m.pingLoop()
	go m.reconnectLoop()
}

// connect establishes a WebSocket connection and runs the OnConnect hook.
func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.DialTimeout,
	}

	m.logger.Info("connecting-to-websocket", zap.String("url", m.url))

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPongTime.Store(time.Now().Unix())
		return nil
	})

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	if m.config.OnConnect != nil {
		err = m.config.OnConnect(ctx, m)
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("on connect: %w", err)
		}
	}

	now := time.Now()
	m.connected.Store(true)
	m.lastPongTime.Store(now.Unix())
	m.connectionStart.Store(now.Unix())
	ActiveConnections.WithLabelValues(m.name).Set(1)

	m.logger.Info("websocket-connected")

	return nil
}

// SendJSON writes v as a JSON text frame.
func (m *Manager) SendJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return m.send(websocket.TextMessage, payload)
}

// ReadJSON reads one frame synchronously into v. Only valid inside OnConnect,
// before the read loop owns the connection.
func (m *Manager) ReadJSON(v interface{}) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return errors.New("not connected")
	}

	if m.config.PongTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(m.config.PongTimeout))
		defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return json.Unmarshal(message, v)
}

func (m *Manager) send(messageType int, payload []byte) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return errors.New("not connected")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	return conn.WriteMessage(messageType, payload)
}

// readLoop reads frames until the connection fails.
func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if m.ctx.Err() == nil {
				m.logger.Warn("read-error", zap.Error(err))
			}

			startTime := m.connectionStart.Load()
			if startTime > 0 {
				ConnectionDuration.WithLabelValues(m.name).Observe(time.Since(time.Unix(startTime, 0)).Seconds())
			}

			m.connected.Store(false)
			ActiveConnections.WithLabelValues(m.name).Set(0)
			return
		}

		MessagesReceivedTotal.WithLabelValues(m.name).Inc()

		// Non-blocking: a stalled consumer must not stall the socket.
		select {
		case m.messageChan <- message:
		default:
			m.logger.Warn("message-channel-full", zap.Int("bytes", len(message)))
			MessagesDroppedTotal.WithLabelValues(m.name, "channel_full").Inc()
		}
	}
}

// pingLoop sends periodic keepalives.
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	if m.config.PingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			var err error
			if len(m.config.PingPayload) > 0 {
				err = m.send(websocket.TextMessage, m.config.PingPayload)
			} else {
				err = m.ping()
			}
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

func (m *Manager) ping() error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return nil
	}
	return conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
}

// reconnectLoop handles reconnection when connection drops.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if m.connected.Load() {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		m.logger.Warn("connection-lost-initiating-reconnect")

		err := m.reconnectMgr.Reconnect(m.ctx, m.connect)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		m.logger.Info("reconnection-complete-restarting-read-loop")

		m.wg.Add(1)
		go m.readLoop()
	}
}

// Connected reports whether the connection is currently up.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// MessageChan returns the channel of raw frames.
func (m *Manager) MessageChan() <-chan []byte {
	return m.messageChan
}

// Close gracefully closes the WebSocket manager.
func (m *Manager) Close() error {
	m.logger.Info("closing-websocket-manager")

	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()

	close(m.messageChan)

	ActiveConnections.WithLabelValues(m.name).Set(0)

	m.logger.Info("websocket-manager-closed")

	return nil
}
