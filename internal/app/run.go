package app

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.Int("leverage", a.cfg.Leverage),
		zap.Float64("risk-pct", a.cfg.RiskPct),
		zap.String("log-level", a.cfg.LogLevel))

	a.startComponents()

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Bool("ws-feed", a.wsFeed != nil),
		zap.Bool("webhook", a.webhook != nil))

	return a.waitForShutdown()
}

func (a *App) startComponents() {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	// Signal intake opens only after the startup sync.
	a.syncWithExchange()

	if a.breaker != nil {
		a.breaker.Start(a.ctx)
	}

	a.startExecutionStream()

	a.startSignalFeed()

	a.wg.Add(1)
	go a.runEngine()
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

// syncWithExchange reports positions the bot does not track. It never
// cancels or opens anything.
func (a *App) syncWithExchange() {
	report, err := a.engine.StartupSync(a.ctx)
	if err != nil {
		a.logger.Warn("startup-sync-failed", zap.Error(err))
		return
	}
	a.logger.Info("startup-sync-complete",
		zap.Int("positions", len(report.Positions)),
		zap.Int("orphans", len(report.Orphans)))
}

func (a *App) startExecutionStream() {
	a.stream.Start()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.stream.Run(a.ctx, a.engine.OnExecution)
	}()
}

// startSignalFeed connects the relay feed. Webhook signals arrive through
// the HTTP server instead.
func (a *App) startSignalFeed() {
	if a.webhook != nil {
		a.webhook.Open()
	}

	if a.wsFeed == nil {
		return
	}

	a.wsFeed.Start()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.wsFeed.Run(a.ctx, a.engine.HandleMessage)
	}()
}

func (a *App) runEngine() {
	defer a.wg.Done()
	a.engine.Run(a.ctx)
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
