package feed

import (
	"context"
	"time"

	"github.com/mselser95/signal-bot/pkg/websocket"
	"go.uber.org/zap"
)

// WSFeed reads signal messages from a websocket relay.
type WSFeed struct {
	manager *websocket.Manager
	now     func() time.Time
	logger  *zap.Logger
}

// WSConfig holds websocket feed configuration.
type WSConfig struct {
	WS     websocket.Config
	Logger *zap.Logger
}

// NewWSFeed creates the feed; call Start to connect.
func NewWSFeed(cfg *WSConfig) *WSFeed {
	wsCfg := cfg.WS
	wsCfg.Name = "feed"
	wsCfg.Logger = cfg.Logger

	return &WSFeed{
		manager: websocket.New(wsCfg),
		now:     time.Now,
		logger:  cfg.Logger,
	}
}

// Start connects in the background.
func (f *WSFeed) Start() {
	f.manager.Start()
}

// Connected reports whether the relay connection is up.
func (f *WSFeed) Connected() bool {
	return f.manager.Connected()
}

// Close stops the feed.
func (f *WSFeed) Close() error {
	return f.manager.Close()
}

// Run hands every decoded message to handle until ctx is done or the feed closes.
func (f *WSFeed) Run(ctx context.Context, handle Handler) {
	msgs := f.manager.MessageChan()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			msg, err := decodeMessage(raw, f.now())
			if err != nil {
				MessagesTotal.WithLabelValues("ws", "invalid").Inc()
				f.logger.Debug("feed-message-ignored", zap.Error(err))
				continue
			}
			MessagesTotal.WithLabelValues("ws", "ok").Inc()
			handle(ctx, msg)
		}
	}
}
