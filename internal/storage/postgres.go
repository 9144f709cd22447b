package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/internal/ledger"
	"github.com/parityarb/parity-bot/internal/risk"
	"github.com/parityarb/parity-bot/pkg/money"
)

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	position_id TEXT PRIMARY KEY,
	condition_id TEXT NOT NULL,
	yes_token_id TEXT NOT NULL,
	no_token_id TEXT NOT NULL,
	size TEXT NOT NULL,
	yes_entry_price TEXT NOT NULL,
	no_entry_price TEXT NOT NULL,
	entry_cost TEXT NOT NULL,
	entry_time TIMESTAMPTZ NOT NULL,
	yes_exit_price TEXT,
	no_exit_price TEXT,
	exit_proceeds TEXT,
	exit_time TIMESTAMPTZ,
	status TEXT NOT NULL,
	realized_pnl TEXT NOT NULL DEFAULT '0',
	execution_id TEXT,
	notes TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS idx_positions_condition ON positions(condition_id);

CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	position_id TEXT REFERENCES positions(position_id),
	execution_id TEXT,
	token_id TEXT NOT NULL,
	side TEXT NOT NULL,
	price TEXT NOT NULL,
	size TEXT NOT NULL,
	fee TEXT NOT NULL DEFAULT '0',
	order_id TEXT,
	traded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_position ON trades(position_id);

CREATE TABLE IF NOT EXISTS daily_pnl (
	date TEXT PRIMARY KEY,
	trades_count INTEGER NOT NULL DEFAULT 0,
	total_volume TEXT NOT NULL DEFAULT '0',
	realized_pnl TEXT NOT NULL DEFAULT '0',
	max_drawdown TEXT NOT NULL DEFAULT '0',
	peak_pnl TEXT NOT NULL DEFAULT '0',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bot_state (
	key TEXT PRIMARY KEY,
	value JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// NewPostgresStorage opens a connection and ensures the schema exists.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStorage{db: db, logger: cfg.Logger}, nil
}

// SavePosition upserts a paired position record.
func (p *PostgresStorage) SavePosition(ctx context.Context, pos *ledger.PairedPosition) error {
	var yesExit, noExit, exitProceeds any
	if !pos.ExitTime.IsZero() {
		yesExit = pos.YesExitPrice.String()
		noExit = pos.NoExitPrice.String()
		exitProceeds = pos.ExitProceeds.String()
	}
	var exitTime any
	if !pos.ExitTime.IsZero() {
		exitTime = pos.ExitTime
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO positions (
			position_id, condition_id, yes_token_id, no_token_id,
			size, yes_entry_price, no_entry_price, entry_cost, entry_time,
			yes_exit_price, no_exit_price, exit_proceeds, exit_time,
			status, realized_pnl, execution_id, notes, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17, now())
		ON CONFLICT (position_id) DO UPDATE SET
			yes_exit_price = EXCLUDED.yes_exit_price,
			no_exit_price = EXCLUDED.no_exit_price,
			exit_proceeds = EXCLUDED.exit_proceeds,
			exit_time = EXCLUDED.exit_time,
			status = EXCLUDED.status,
			realized_pnl = EXCLUDED.realized_pnl,
			notes = EXCLUDED.notes,
			updated_at = now()
	`,
		pos.PositionID, pos.ConditionID, pos.YesTokenID, pos.NoTokenID,
		pos.Size.String(), pos.YesEntryPrice.String(), pos.NoEntryPrice.String(),
		pos.EntryCost.String(), pos.EntryTime,
		yesExit, noExit, exitProceeds, exitTime,
		string(pos.Status), pos.RealizedPnL.String(), pos.ExecutionID, pos.Notes,
	)
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

// GetOpenPositions returns every position not yet CLOSED or RESOLVED.
func (p *PostgresStorage) GetOpenPositions(ctx context.Context) ([]*ledger.PairedPosition, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT position_id, condition_id, yes_token_id, no_token_id,
			size, yes_entry_price, no_entry_price, entry_cost, entry_time,
			status, realized_pnl, execution_id, notes
		FROM positions WHERE status IN ('OPEN', 'EXITING')
	`)
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var out []*ledger.PairedPosition
	for rows.Next() {
		var (
			pos                                                  ledger.PairedPosition
			size, yesEntry, noEntry, entryCost, realizedPnL, stat string
		)
		if err := rows.Scan(
			&pos.PositionID, &pos.ConditionID, &pos.YesTokenID, &pos.NoTokenID,
			&size, &yesEntry, &noEntry, &entryCost, &pos.EntryTime,
			&stat, &realizedPnL, &pos.ExecutionID, &pos.Notes,
		); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}

		pos.Size, _ = money.NewFromString(size)
		pos.YesEntryPrice, _ = money.NewFromString(yesEntry)
		pos.NoEntryPrice, _ = money.NewFromString(noEntry)
		pos.EntryCost, _ = money.NewFromString(entryCost)
		pos.RealizedPnL, _ = money.NewFromString(realizedPnL)
		pos.Status = ledger.Status(stat)
		out = append(out, &pos)
	}
	return out, rows.Err()
}

// SaveTrade records an individual fill.
func (p *PostgresStorage) SaveTrade(ctx context.Context, trade TradeRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trades (
			trade_id, position_id, execution_id, token_id, side,
			price, size, fee, order_id, traded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (trade_id) DO NOTHING
	`,
		trade.TradeID, nullIfEmpty(trade.PositionID), nullIfEmpty(trade.ExecutionID),
		trade.TokenID, trade.Side, trade.Price.String(), trade.Size.String(),
		trade.Fee.String(), nullIfEmpty(trade.OrderID), trade.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

// SaveDailyStats upserts the day's trading statistics.
func (p *PostgresStorage) SaveDailyStats(ctx context.Context, stats risk.DailyStats) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO daily_pnl (date, trades_count, total_volume, realized_pnl, max_drawdown, peak_pnl, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())
		ON CONFLICT (date) DO UPDATE SET
			trades_count = EXCLUDED.trades_count,
			total_volume = EXCLUDED.total_volume,
			realized_pnl = EXCLUDED.realized_pnl,
			max_drawdown = EXCLUDED.max_drawdown,
			peak_pnl = EXCLUDED.peak_pnl,
			updated_at = now()
	`,
		stats.Date, stats.TradesCount, stats.TotalVolume.String(),
		stats.RealizedPnL.String(), stats.MaxDrawdown.String(), stats.PeakPnL.String(),
	)
	if err != nil {
		return fmt.Errorf("save daily stats: %w", err)
	}
	return nil
}

// GetDailyStats returns stats for date, or ok=false if no row exists.
func (p *PostgresStorage) GetDailyStats(ctx context.Context, date string) (risk.DailyStats, bool, error) {
	var stats risk.DailyStats
	var volume, pnl, drawdown, peak string

	row := p.db.QueryRowContext(ctx, `
		SELECT date, trades_count, total_volume, realized_pnl, max_drawdown, peak_pnl
		FROM daily_pnl WHERE date = $1
	`, date)

	err := row.Scan(&stats.Date, &stats.TradesCount, &volume, &pnl, &drawdown, &peak)
	if err == sql.ErrNoRows {
		return risk.DailyStats{}, false, nil
	}
	if err != nil {
		return risk.DailyStats{}, false, fmt.Errorf("scan daily stats: %w", err)
	}

	stats.TotalVolume, _ = money.NewFromString(volume)
	stats.RealizedPnL, _ = money.NewFromString(pnl)
	stats.MaxDrawdown, _ = money.NewFromString(drawdown)
	stats.PeakPnL, _ = money.NewFromString(peak)
	return stats, true, nil
}

// SaveState persists an opaque bot-state value under key.
func (p *PostgresStorage) SaveState(ctx context.Context, key string, value []byte) error {
	var js json.RawMessage = value
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bot_state (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, js)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// GetState retrieves a previously saved state value.
func (p *PostgresStorage) GetState(ctx context.Context, key string) ([]byte, bool, error) {
	var value json.RawMessage
	row := p.db.QueryRowContext(ctx, `SELECT value FROM bot_state WHERE key = $1`, key)
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scan state: %w", err)
	}
	return value, true, nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
