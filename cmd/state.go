package cmd

import (
	"context"
	"fmt"

	"github.com/mselser95/signal-bot/internal/state"
	"github.com/mselser95/signal-bot/pkg/config"
	"go.uber.org/zap"
)

// loadState reads the persisted engine state without holding the store open.
func loadState(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*state.Blob, error) {
	var store state.Store
	if cfg.StateMode == "postgres" {
		pg, err := state.NewPostgresStore(ctx, &state.PostgresConfig{
			DSN:    cfg.PostgresDSN(),
			Key:    state.DefaultStateKey,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres state: %w", err)
		}
		store = pg
	} else {
		store = state.NewFileStore(cfg.StateFile, logger)
	}
	defer store.Close()

	blob, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return blob, nil
}
