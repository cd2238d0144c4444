// Package app wires the signal bot together and owns its lifecycle.
package app

import (
	"context"
	"sync"

	"github.com/mselser95/signal-bot/internal/circuitbreaker"
	"github.com/mselser95/signal-bot/internal/engine"
	"github.com/mselser95/signal-bot/internal/exchange"
	"github.com/mselser95/signal-bot/internal/feed"
	"github.com/mselser95/signal-bot/internal/state"
	"github.com/mselser95/signal-bot/internal/storage"
	"github.com/mselser95/signal-bot/pkg/config"
	"github.com/mselser95/signal-bot/pkg/healthprobe"
	"github.com/mselser95/signal-bot/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	backend       exchange.Backend
	engine        *engine.Engine
	breaker       *circuitbreaker.EquityCircuitBreaker // nil when disabled
	stream        *exchange.ExecutionStream
	wsFeed        *feed.WSFeed  // nil when no relay is configured
	webhook       *feed.Webhook // nil when disabled
	stateStore    state.Store
	exports       storage.Storage
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	DryRun bool // Forces dry-run regardless of EXECUTION_MODE
}
