package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mselser95/signal-bot/pkg/types"
	"go.uber.org/zap"
)

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage creates a new PostgreSQL storage.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStorage{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// StoreTrade inserts the export record. Re-exporting the same trade is ignored.
func (p *PostgresStorage) StoreTrade(ctx context.Context, rec *types.TradeExport) error {
	query := `
		INSERT INTO closed_trades (
			export_id, trade_id, symbol, side, trigger_price, entry_price,
			placed_at, filled_at, closed_at, realized_pnl, is_win, exit_reason,
			tp_fills, tp_count, trailing_used, margin_used, equity_at_close
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		ON CONFLICT (trade_id) DO NOTHING
	`

	var pnl sql.NullFloat64
	if rec.RealizedPnL != nil {
		pnl = sql.NullFloat64{Float64: *rec.RealizedPnL, Valid: true}
	}

	_, err := p.db.ExecContext(ctx, query,
		rec.ExportID,
		rec.ID,
		rec.Symbol,
		string(rec.Side),
		rec.Trigger,
		rec.EntryPrice,
		rec.PlacedAt,
		rec.FilledAt,
		rec.ClosedAt,
		pnl,
		rec.IsWin,
		rec.ExitReason,
		rec.TPFills,
		rec.TPCount,
		rec.TrailingUsed,
		rec.MarginUsed,
		rec.EquityAtClose,
	)
	if err != nil {
		return fmt.Errorf("insert closed trade: %w", err)
	}

	p.logger.Debug("trade-exported",
		zap.String("export-id", rec.ExportID),
		zap.String("trade-id", rec.ID),
		zap.String("symbol", rec.Symbol))

	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
