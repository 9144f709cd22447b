package storage

import (
	"context"
	"time"

	"github.com/parityarb/parity-bot/internal/ledger"
	"github.com/parityarb/parity-bot/internal/risk"
	"github.com/parityarb/parity-bot/pkg/money"
)

// TradeRecord is a single fill persisted alongside the paired position it
// belongs to, for reconstructing P&L history after a restart.
type TradeRecord struct {
	TradeID     string
	PositionID  string
	ExecutionID string
	TokenID     string
	Side        string
	Price       money.Decimal
	Size        money.Decimal
	Fee         money.Decimal
	Timestamp   time.Time
	OrderID     string
}

// Storage persists paired positions, their fills, daily P&L, and arbitrary
// bot state so a restart can resume instead of starting blind.
type Storage interface {
	// SavePosition upserts a paired position record.
	SavePosition(ctx context.Context, position *ledger.PairedPosition) error

	// GetOpenPositions returns every position not yet CLOSED or RESOLVED.
	GetOpenPositions(ctx context.Context) ([]*ledger.PairedPosition, error)

	// SaveTrade records an individual fill.
	SaveTrade(ctx context.Context, trade TradeRecord) error

	// SaveDailyStats upserts the day's trading statistics.
	SaveDailyStats(ctx context.Context, stats risk.DailyStats) error

	// GetDailyStats returns stats for date (YYYY-MM-DD), or ok=false if absent.
	GetDailyStats(ctx context.Context, date string) (stats risk.DailyStats, ok bool, err error)

	// SaveState persists an opaque bot-state value under key, e.g. for
	// resuming cursors or last-seen sequence numbers across restarts.
	SaveState(ctx context.Context, key string, value []byte) error

	// GetState retrieves a previously saved state value.
	GetState(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Close releases underlying resources.
	Close() error
}
