package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/internal/ledger"
	"github.com/parityarb/parity-bot/internal/risk"
)

// ConsoleStorage implements Storage by pretty-printing to console. It never
// actually persists anything, so GetOpenPositions/GetDailyStats/GetState
// always report nothing found; useful for dry runs without a database.
type ConsoleStorage struct {
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		logger: logger,
	}
}

// SavePosition pretty-prints a paired position to console.
func (c *ConsoleStorage) SavePosition(ctx context.Context, pos *ledger.PairedPosition) error {
	fmt.Println("\n" + "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("PAIRED POSITION [%s]\n", pos.Status)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Position: %s\n", pos.PositionID)
	fmt.Printf("Market:   %s\n", pos.ConditionID)
	fmt.Printf("Size:     %s\n", pos.Size.String())
	fmt.Printf("Entry:    YES %s / NO %s, cost %s\n", pos.YesEntryPrice.String(), pos.NoEntryPrice.String(), pos.EntryCost.String())
	if pos.Status == ledger.StatusClosed || pos.Status == ledger.StatusResolved {
		fmt.Printf("Exit:     YES %s / NO %s, proceeds %s\n", pos.YesExitPrice.String(), pos.NoExitPrice.String(), pos.ExitProceeds.String())
		fmt.Printf("Realized PnL: %s\n", pos.RealizedPnL.String())
	}
	if pos.Notes != "" {
		fmt.Printf("Notes:    %s\n", pos.Notes)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	return nil
}

// GetOpenPositions always reports none: console storage holds nothing.
func (c *ConsoleStorage) GetOpenPositions(ctx context.Context) ([]*ledger.PairedPosition, error) {
	return nil, nil
}

// SaveTrade pretty-prints a fill to console.
func (c *ConsoleStorage) SaveTrade(ctx context.Context, trade TradeRecord) error {
	fmt.Printf("TRADE  %-4s %-12s %s @ %s (fee %s)\n", trade.Side, trade.TokenID, trade.Size.String(), trade.Price.String(), trade.Fee.String())
	return nil
}

// SaveDailyStats pretty-prints the day's P&L summary to console.
func (c *ConsoleStorage) SaveDailyStats(ctx context.Context, stats risk.DailyStats) error {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("DAILY STATS [%s]\n", stats.Date)
	fmt.Printf("  Trades:       %d\n", stats.TradesCount)
	fmt.Printf("  Volume:       %s\n", stats.TotalVolume.String())
	fmt.Printf("  Realized PnL: %s\n", stats.RealizedPnL.String())
	fmt.Printf("  Max Drawdown: %s\n", stats.MaxDrawdown.String())
	fmt.Printf("  Peak PnL:     %s\n", stats.PeakPnL.String())
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	return nil
}

// GetDailyStats always reports absent: console storage holds nothing.
func (c *ConsoleStorage) GetDailyStats(ctx context.Context, date string) (risk.DailyStats, bool, error) {
	return risk.DailyStats{}, false, nil
}

// SaveState logs the state write; console storage does not retain it.
func (c *ConsoleStorage) SaveState(ctx context.Context, key string, value []byte) error {
	c.logger.Debug("console-storage-save-state", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

// GetState always reports absent: console storage holds nothing.
func (c *ConsoleStorage) GetState(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
