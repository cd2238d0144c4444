package storage

import (
	"context"
	"time"

	"github.com/mselser95/signal-bot/pkg/types"
	"github.com/oklog/ulid/v2"
)

// Storage is the interface for exporting closed trades.
type Storage interface {
	// StoreTrade stores the export record of a closed trade.
	StoreTrade(ctx context.Context, rec *types.TradeExport) error

	// Close closes the storage connection.
	Close() error
}

// NewExportID returns a time-sortable id for a record closed at t.
func NewExportID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// NopStorage discards every record.
type NopStorage struct{}

// StoreTrade does nothing.
func (NopStorage) StoreTrade(context.Context, *types.TradeExport) error { return nil }

// Close does nothing.
func (NopStorage) Close() error { return nil }
