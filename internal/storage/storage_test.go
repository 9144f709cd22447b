package storage

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/internal/ledger"
	"github.com/parityarb/parity-bot/internal/risk"
	"github.com/parityarb/parity-bot/pkg/money"
)

func dec(s string) money.Decimal {
	d, err := money.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func createTestPosition() *ledger.PairedPosition {
	return &ledger.PairedPosition{
		PositionID:    "test-pos-123",
		ConditionID:   "market-123",
		YesTokenID:    "test-yes-token-123",
		NoTokenID:     "test-no-token-123",
		Size:          dec("100"),
		YesEntryPrice: dec("0.48"),
		NoEntryPrice:  dec("0.51"),
		EntryCost:     dec("99"),
		EntryTime:     time.Now(),
		Status:        ledger.StatusOpen,
		RealizedPnL:   money.Zero,
		ExecutionID:   "exec-1",
	}
}

func createTestTrade() TradeRecord {
	return TradeRecord{
		TradeID:     "trade-1",
		PositionID:  "test-pos-123",
		ExecutionID: "exec-1",
		TokenID:     "test-yes-token-123",
		Side:        "BUY",
		Price:       dec("0.48"),
		Size:        dec("100"),
		Fee:         dec("0.1"),
		Timestamp:   time.Now(),
		OrderID:     "order-1",
	}
}

func TestConsoleStorage_New(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	storage := NewConsoleStorage(logger)

	if storage == nil {
		t.Fatal("expected non-nil storage")
	}

	if storage.logger == nil {
		t.Error("expected non-nil logger")
	}
}

func TestConsoleStorage_SavePosition(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	storage := NewConsoleStorage(logger)

	pos := createTestPosition()
	ctx := context.Background()

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := storage.SavePosition(ctx, pos)

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	output := buf.String()

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if !bytes.Contains([]byte(output), []byte("PAIRED POSITION")) {
		t.Error("expected output to contain 'PAIRED POSITION'")
	}

	if !bytes.Contains([]byte(output), []byte(pos.ConditionID)) {
		t.Errorf("expected output to contain condition id %s", pos.ConditionID)
	}
}

func TestConsoleStorage_GetOpenPositionsEmpty(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	storage := NewConsoleStorage(logger)

	positions, err := storage.GetOpenPositions(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("expected no open positions, got %d", len(positions))
	}
}

func TestConsoleStorage_Close(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	storage := NewConsoleStorage(logger)

	err := storage.Close()
	if err != nil {
		t.Errorf("expected no error on close, got %v", err)
	}
}

func TestPostgresStorage_SavePosition(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: logger}

	pos := createTestPosition()
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO positions").
		WithArgs(
			pos.PositionID, pos.ConditionID, pos.YesTokenID, pos.NoTokenID,
			pos.Size.String(), pos.YesEntryPrice.String(), pos.NoEntryPrice.String(),
			pos.EntryCost.String(), sqlmock.AnyArg(),
			nil, nil, nil, nil,
			string(pos.Status), pos.RealizedPnL.String(), pos.ExecutionID, pos.Notes,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := storage.SavePosition(ctx, pos); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_SavePosition_Error(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: logger}

	pos := createTestPosition()
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO positions").
		WillReturnError(sqlmock.ErrCancelled)

	if err := storage.SavePosition(ctx, pos); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestPostgresStorage_GetOpenPositions(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: logger}

	rows := sqlmock.NewRows([]string{
		"position_id", "condition_id", "yes_token_id", "no_token_id",
		"size", "yes_entry_price", "no_entry_price", "entry_cost", "entry_time",
		"status", "realized_pnl", "execution_id", "notes",
	}).AddRow(
		"test-pos-123", "market-123", "yes-tok", "no-tok",
		"100", "0.48", "0.51", "99", time.Now(),
		"OPEN", "0", "exec-1", "",
	)

	mock.ExpectQuery("SELECT (.+) FROM positions").WillReturnRows(rows)

	positions, err := storage.GetOpenPositions(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if positions[0].PositionID != "test-pos-123" {
		t.Errorf("expected position id test-pos-123, got %s", positions[0].PositionID)
	}
	if !positions[0].Size.Equal(dec("100")) {
		t.Errorf("expected size 100, got %s", positions[0].Size.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_SaveTrade(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: logger}
	trade := createTestTrade()

	mock.ExpectExec("INSERT INTO trades").
		WithArgs(
			trade.TradeID, trade.PositionID, trade.ExecutionID, trade.TokenID, trade.Side,
			trade.Price.String(), trade.Size.String(), trade.Fee.String(), trade.OrderID,
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := storage.SaveTrade(context.Background(), trade); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_SaveAndGetDailyStats(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: logger}
	stats := risk.DailyStats{
		Date:        "2026-07-31",
		TradesCount: 4,
		TotalVolume: dec("500"),
		RealizedPnL: dec("12.5"),
		MaxDrawdown: dec("3"),
		PeakPnL:     dec("15"),
	}

	mock.ExpectExec("INSERT INTO daily_pnl").
		WithArgs(stats.Date, stats.TradesCount, stats.TotalVolume.String(),
			stats.RealizedPnL.String(), stats.MaxDrawdown.String(), stats.PeakPnL.String()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := storage.SaveDailyStats(context.Background(), stats); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	rows := sqlmock.NewRows([]string{"date", "trades_count", "total_volume", "realized_pnl", "max_drawdown", "peak_pnl"}).
		AddRow(stats.Date, stats.TradesCount, "500", "12.5", "3", "15")
	mock.ExpectQuery("SELECT (.+) FROM daily_pnl").WithArgs(stats.Date).WillReturnRows(rows)

	got, ok, err := storage.GetDailyStats(context.Background(), stats.Date)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !ok {
		t.Fatal("expected daily stats to be found")
	}
	if got.TradesCount != 4 {
		t.Errorf("expected trades count 4, got %d", got.TradesCount)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_GetDailyStatsNotFound(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: logger}

	mock.ExpectQuery("SELECT (.+) FROM daily_pnl").WithArgs("2026-01-01").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := storage.GetDailyStats(context.Background(), "2026-01-01")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ok {
		t.Error("expected ok=false when no row found")
	}
}

func TestPostgresStorage_SaveAndGetState(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: logger}
	value := []byte(`{"cursor": 42}`)

	mock.ExpectExec("INSERT INTO bot_state").
		WithArgs("last-cursor", value).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := storage.SaveState(context.Background(), "last-cursor", value); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	rows := sqlmock.NewRows([]string{"value"}).AddRow(value)
	mock.ExpectQuery("SELECT value FROM bot_state").WithArgs("last-cursor").WillReturnRows(rows)

	got, ok, err := storage.GetState(context.Background(), "last-cursor")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !ok {
		t.Fatal("expected state to be found")
	}
	if string(got) != string(value) {
		t.Errorf("expected value %s, got %s", value, got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_Close(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	mock.ExpectClose()

	if err := storage.Close(); err != nil {
		t.Errorf("expected no error on close, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStorage_Interface(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	var _ Storage = NewConsoleStorage(logger)

	db, _, _ := sqlmock.New()
	defer db.Close()

	var _ Storage = &PostgresStorage{db: db, logger: logger}
}
