package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// DefaultStateKey is the row key used when none is configured.
const DefaultStateKey = "default"

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS bot_state (
		id         TEXT PRIMARY KEY,
		blob       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)
`

// PostgresStore keeps the blob as one JSONB row.
type PostgresStore struct {
	db     *sql.DB
	key    string
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL state store configuration.
type PostgresConfig struct {
	DSN    string
	Key    string
	Logger *zap.Logger
}

// NewPostgresStore connects and ensures the state table exists.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	_, err = db.ExecContext(ctx, schemaSQL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	key := cfg.Key
	if key == "" {
		key = DefaultStateKey
	}

	cfg.Logger.Info("postgres-state-store-connected", zap.String("key", key))

	return &PostgresStore{db: db, key: key, logger: cfg.Logger}, nil
}

// Load reads the blob row. A missing row yields an empty blob.
func (p *PostgresStore) Load(ctx context.Context) (*Blob, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT blob FROM bot_state WHERE id = $1`, p.key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		p.logger.Info("state-row-missing-starting-empty", zap.String("key", p.key))
		return NewBlob(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}

	b, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	p.logger.Info("state-loaded",
		zap.String("key", p.key),
		zap.Int("open-trades", len(b.OpenTrades)),
		zap.Int("history", len(b.TradeHistory)))

	return b, nil
}

// Save upserts the blob row.
func (p *PostgresStore) Save(ctx context.Context, b *Blob) error {
	start := time.Now()
	defer func() { SaveDuration.Observe(time.Since(start).Seconds()) }()

	raw, err := json.Marshal(b)
	if err != nil {
		SavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("encode state: %w", err)
	}

	query := `
		INSERT INTO bot_state (id, blob, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at
	`
	_, err = p.db.ExecContext(ctx, query, p.key, raw, time.Now().UTC())
	if err != nil {
		SavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("upsert state: %w", err)
	}

	SavesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	p.logger.Info("closing-postgres-state-store")
	return p.db.Close()
}
