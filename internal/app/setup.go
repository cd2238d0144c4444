package app

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/signal-bot/internal/circuitbreaker"
	"github.com/mselser95/signal-bot/internal/engine"
	"github.com/mselser95/signal-bot/internal/exchange"
	"github.com/mselser95/signal-bot/internal/feed"
	"github.com/mselser95/signal-bot/internal/instruments"
	"github.com/mselser95/signal-bot/internal/notify"
	"github.com/mselser95/signal-bot/internal/orders"
	"github.com/mselser95/signal-bot/internal/sizing"
	"github.com/mselser95/signal-bot/internal/state"
	"github.com/mselser95/signal-bot/internal/stoploss"
	"github.com/mselser95/signal-bot/internal/storage"
	"github.com/mselser95/signal-bot/pkg/cache"
	"github.com/mselser95/signal-bot/pkg/config"
	"github.com/mselser95/signal-bot/pkg/healthprobe"
	"github.com/mselser95/signal-bot/pkg/httpserver"
	"github.com/mselser95/signal-bot/pkg/websocket"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.DryRun {
		cfg.ExecutionMode = config.ModeDryRun
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := setupHealthChecker(cfg)
	backend := setupExchange(cfg, logger)

	instrumentCache, err := setupInstruments(cfg, logger, backend)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup instruments: %w", err)
	}

	placer := setupPlacer(cfg, logger, backend, instrumentCache)

	stateStore, blob, err := setupState(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup state: %w", err)
	}

	exports, err := setupExports(cfg, logger)
	if err != nil {
		cancel()
		_ = stateStore.Close()
		return nil, fmt.Errorf("setup exports: %w", err)
	}

	breaker, err := setupCircuitBreaker(cfg, logger, backend)
	if err != nil {
		cancel()
		_ = stateStore.Close()
		_ = exports.Close()
		return nil, fmt.Errorf("setup circuit breaker: %w", err)
	}

	eng := setupEngine(cfg, logger, &engineDeps{
		backend:  backend,
		placer:   placer,
		store:    stateStore,
		blob:     blob,
		notifier: setupNotifier(cfg, logger),
		exports:  exports,
		breaker:  breaker,
		health:   healthChecker,
	})

	webhook := setupWebhook(cfg, logger, eng)
	httpServer := setupHTTPServer(cfg, logger, healthChecker, eng, breaker, webhook)

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		backend:       backend,
		engine:        eng,
		breaker:       breaker,
		stream:        setupExecutionStream(cfg, logger),
		wsFeed:        setupWSFeed(cfg, logger),
		webhook:       webhook,
		stateStore:    stateStore,
		exports:       exports,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// setupHealthChecker fails readiness once several sweeps in a row are missed.
func setupHealthChecker(cfg *config.Config) *healthprobe.HealthChecker {
	return healthprobe.New(max(6*cfg.SweepInterval, time.Minute))
}

func setupExchange(cfg *config.Config, logger *zap.Logger) exchange.Backend {
	client := exchange.NewClient(&exchange.Config{
		BaseURL:     exchange.BaseURL(cfg.BybitTestnet, cfg.BybitDemo),
		APIKey:      cfg.BybitAPIKey,
		APISecret:   cfg.BybitAPISecret,
		RecvWindow:  cfg.BybitRecvWindow,
		Category:    cfg.Category,
		AccountType: cfg.AccountType,
		SettleCoin:  cfg.Quote,
		RateLimit:   cfg.BybitRateLimit,
		Logger:      logger,
	})

	if cfg.ExecutionMode == config.ModeDryRun {
		return exchange.NewDryRun(client, logger)
	}
	return client
}

func setupInstruments(cfg *config.Config, logger *zap.Logger, backend exchange.Backend) (*instruments.Cache, error) {
	rc, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "instruments",
		NumCounters: 10000, // 10x expected max symbols
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return instruments.New(&instruments.Config{
		Fetcher: backend,
		Cache:   rc,
		TTL:     cfg.InstrumentCacheTTL,
		Logger:  logger,
	}), nil
}

func setupPlacer(cfg *config.Config, logger *zap.Logger, backend exchange.Backend, rules *instruments.Cache) *orders.Placer {
	stops := stoploss.New(&stoploss.Config{
		Candles:     backend,
		Interval:    cfg.SLCandleInterval,
		Lookback:    cfg.SLCandleLookback,
		BufferPct:   cfg.SLBufferPct,
		MinPct:      cfg.SLMinPct,
		MaxPct:      cfg.SLMaxPct,
		FallbackPct: cfg.SLPct,
		Logger:      logger,
	})

	sizer := sizing.New(&sizing.Config{
		Equity:   backend,
		Rules:    rules,
		RiskPct:  cfg.RiskPct,
		Leverage: cfg.Leverage,
		Logger:   logger,
	})

	return orders.New(&orders.Config{
		Exchange:       backend,
		Rules:          rules,
		Stops:          stops,
		Sizer:          sizer,
		Leverage:       cfg.Leverage,
		MarginMode:     cfg.MarginMode,
		LimitOffsetPct: cfg.EntryLimitOffsetPct,
		TooFarPct:      cfg.EntryTooFarPct,
		TPSplits:       cfg.TPSplits,
		TrailPct:       cfg.TrailDistancePct,
		Workers:        cfg.OrderWorkers,
		Retry:          orders.RetryPolicy{MaxAttempts: cfg.SLRetryAttempts, Delay: cfg.SLRetryDelay},
		Logger:         logger,
	})
}

func setupState(ctx context.Context, cfg *config.Config, logger *zap.Logger) (state.Store, *state.Blob, error) {
	var store state.Store
	switch cfg.StateMode {
	case "postgres":
		pg, err := state.NewPostgresStore(ctx, &state.PostgresConfig{
			DSN:    cfg.PostgresDSN(),
			Key:    state.DefaultStateKey,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres state store: %w", err)
		}
		store = pg
	default:
		store = state.NewFileStore(cfg.StateFile, logger)
	}

	blob, err := store.Load(ctx)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("load state: %w", err)
	}
	return store, blob, nil
}

func setupExports(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.ExportMode {
	case "postgres":
		pgStorage, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	case "console":
		return storage.NewConsoleStorage(logger), nil
	default:
		return storage.NopStorage{}, nil
	}
}

func setupNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}

	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notify.NewTelegram(&notify.TelegramConfig{
			Token:  cfg.TelegramBotToken,
			ChatID: cfg.TelegramChatID,
			Logger: logger,
		}))
		logger.Info("telegram-notifications-enabled")
	}

	return notifiers
}

func setupCircuitBreaker(cfg *config.Config, logger *zap.Logger, backend exchange.Backend) (*circuitbreaker.EquityCircuitBreaker, error) {
	if !cfg.CircuitBreakerEnabled {
		logger.Info("circuit-breaker-disabled")
		return nil, nil
	}

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		CheckInterval:   cfg.CircuitBreakerCheckInterval,
		TradeMultiplier: cfg.CircuitBreakerTradeMultiplier,
		MinEquity:       cfg.CircuitBreakerMinEquity,
		HysteresisRatio: cfg.CircuitBreakerHysteresisRatio,
		Fetcher:         backend,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("circuit-breaker-enabled",
		zap.Duration("check-interval", cfg.CircuitBreakerCheckInterval),
		zap.Float64("trade-multiplier", cfg.CircuitBreakerTradeMultiplier),
		zap.Float64("min-equity", cfg.CircuitBreakerMinEquity),
		zap.Float64("hysteresis-ratio", cfg.CircuitBreakerHysteresisRatio))

	return breaker, nil
}

type engineDeps struct {
	backend  exchange.Backend
	placer   *orders.Placer
	store    state.Store
	blob     *state.Blob
	notifier notify.Notifier
	exports  storage.Storage
	breaker  *circuitbreaker.EquityCircuitBreaker
	health   *healthprobe.HealthChecker
}

func setupEngine(cfg *config.Config, logger *zap.Logger, deps *engineDeps) *engine.Engine {
	var breaker engine.Breaker
	if deps.breaker != nil {
		breaker = deps.breaker
	}

	var alerts *notify.AlertTracker
	if len(cfg.AlertROEThresholds) > 0 {
		alerts = notify.NewAlertTracker(cfg.AlertROEThresholds)
	}

	return engine.New(&engine.Config{
		Exchange:          deps.backend,
		Orders:            deps.placer,
		Store:             deps.store,
		State:             deps.blob,
		Notifier:          deps.notifier,
		Exports:           deps.exports,
		Alerts:            alerts,
		Breaker:           breaker,
		Health:            deps.health,
		Quote:             cfg.Quote,
		Leverage:          cfg.Leverage,
		EntryExpiration:   cfg.EntryExpiration,
		MoveSLToBEOnTP1:   cfg.MoveSLToBEOnTP1,
		TrailActivateOnTP: cfg.TrailActivateOnTP,
		TrailAfterTPIndex: cfg.TrailAfterTPIndex,
		BreakevenEpsilon:  cfg.BreakevenPnLEpsilon,
		MaxConcurrent:     cfg.MaxConcurrentTrades,
		MaxPerDay:         cfg.MaxTradesPerDay,
		SignalsPerWindow:  cfg.SignalsPerWindow,
		SignalWindow:      cfg.SignalWindow,
		MaxLag:            cfg.SignalMaxLag,
		ExcludedSymbols:   cfg.ExcludedSymbols,
		SweepInterval:     cfg.SweepInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Retention:         cfg.TradeRetention,
		Logger:            logger,
	})
}

func setupWebhook(cfg *config.Config, logger *zap.Logger, eng *engine.Engine) *feed.Webhook {
	if !cfg.FeedWebhookEnabled {
		return nil
	}
	if cfg.FeedWebhookToken == "" {
		logger.Warn("signal-webhook-unauthenticated")
	}
	return feed.NewWebhook(&feed.WebhookConfig{
		Token:         cfg.FeedWebhookToken,
		Handler:       eng.HandleMessage,
		HoldUntilOpen: true,
		Logger:        logger,
	})
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	eng *engine.Engine,
	breaker *circuitbreaker.EquityCircuitBreaker,
	webhook *feed.Webhook,
) *httpserver.Server {
	srvCfg := &httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Trades:        eng,
	}
	if breaker != nil {
		srvCfg.Breaker = breaker
	}
	if webhook != nil {
		srvCfg.SignalHandler = webhook.HandleSignal
	}
	return httpserver.New(srvCfg)
}

func wsConfig(cfg *config.Config, url string) websocket.Config {
	return websocket.Config{
		URL:                   url,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
	}
}

func setupExecutionStream(cfg *config.Config, logger *zap.Logger) *exchange.ExecutionStream {
	return exchange.NewExecutionStream(&exchange.StreamConfig{
		APIKey:    cfg.BybitAPIKey,
		APISecret: cfg.BybitAPISecret,
		WS:        wsConfig(cfg, exchange.StreamURL(cfg.BybitTestnet, cfg.BybitDemo)),
		Logger:    logger,
	})
}

func setupWSFeed(cfg *config.Config, logger *zap.Logger) *feed.WSFeed {
	if cfg.FeedWSURL == "" {
		return nil
	}
	return feed.NewWSFeed(&feed.WSConfig{
		WS:     wsConfig(cfg, cfg.FeedWSURL),
		Logger: logger,
	})
}
