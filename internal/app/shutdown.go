package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown stops intake first, then waits for in-flight work before closing
// persistence.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	if a.wsFeed != nil {
		err = a.wsFeed.Close()
		if err != nil {
			a.logger.Error("signal-feed-close-error", zap.Error(err))
		}
	}

	err = a.stream.Close()
	if err != nil {
		a.logger.Error("execution-stream-close-error", zap.Error(err))
	}

	// Engine and stream goroutines may still be persisting
	a.wg.Wait()

	err = a.exports.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	err = a.stateStore.Close()
	if err != nil {
		a.logger.Error("state-store-close-error", zap.Error(err))
	}

	a.logger.Info("application-shutdown-complete")

	return nil
}
