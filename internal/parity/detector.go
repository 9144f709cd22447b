// Package parity detects binary-market parity arbitrage: a YES/NO pair
// whose combined ask cost is under $1 after fees and a slippage buffer,
// guaranteeing a profit at resolution.
package parity

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/internal/book"
	"github.com/parityarb/parity-bot/pkg/money"
)

// Signal is a single market's parity arbitrage opportunity at the moment
// it was scanned.
type Signal struct {
	ConditionID  string
	YesTokenID   string
	NoTokenID    string
	YesAsk       money.Decimal
	NoAsk        money.Decimal
	CombinedCost money.Decimal
	GrossEdge    money.Decimal
	NetEdge      money.Decimal
	MaxSize      money.Decimal
	ScannedAt    time.Time
}

// IsProfitable reports whether the signal clears costs.
func (s Signal) IsProfitable() bool { return s.NetEdge.IsPositive() }

// ExpectedProfitPerShare is the per-share profit at resolution.
func (s Signal) ExpectedProfitPerShare() money.Decimal { return s.NetEdge }

// ExpectedTotalProfit scales ExpectedProfitPerShare by size.
func (s Signal) ExpectedTotalProfit(size money.Decimal) money.Decimal {
	return s.NetEdge.Mul(size)
}

// FeeConfig carries the taker fee rate applied to both legs.
type FeeConfig struct {
	TakerFeeRate money.Decimal
}

// TradingConfig carries the sizing and edge parameters governing signal
// generation.
type TradingConfig struct {
	MinEdge           money.Decimal
	MaxNotionalPerTrade money.Decimal
	SlippageBuffer    money.Decimal
}

// Detector scans a book.Store for parity opportunities.
type Detector struct {
	store   *book.Store
	fees    FeeConfig
	trading TradingConfig
	logger  *zap.Logger

	lastSignals map[string]Signal
}

// NewDetector builds a parity detector over the given twin-book store.
func NewDetector(store *book.Store, fees FeeConfig, trading TradingConfig, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		store:       store,
		fees:        fees,
		trading:     trading,
		logger:      logger,
		lastSignals: make(map[string]Signal),
	}
}

// calculateFees applies Polymarket's per-side fee formula:
// fee = taker_fee_rate * min(price, 1-price) * size, summed over both legs.
func (d *Detector) calculateFees(yesPrice, noPrice, size money.Decimal) money.Decimal {
	if d.fees.TakerFeeRate.IsZero() {
		return money.Zero
	}

	yesFactor := money.Min(yesPrice, money.One.Sub(yesPrice))
	noFactor := money.Min(noPrice, money.One.Sub(noPrice))

	yesFee := d.fees.TakerFeeRate.Mul(yesFactor).Mul(size)
	noFee := d.fees.TakerFeeRate.Mul(noFactor).Mul(size)

	return yesFee.Add(noFee)
}

// checkMarket evaluates a single market for a parity signal. It returns
// false if no signal applies (stale book, missing side, non-positive
// edge, or no executable size).
func (d *Detector) checkMarket(mb *book.MarketBook) (Signal, bool) {
	now := time.Now()
	if mb.IsStale(now) {
		return Signal{}, false
	}

	yesAsk, okYes := mb.Yes.BestAsk()
	noAsk, okNo := mb.No.BestAsk()
	if !okYes || !okNo {
		return Signal{}, false
	}

	combinedCost := yesAsk.Add(noAsk)
	grossEdge := money.One.Sub(combinedCost)
	if !grossEdge.IsPositive() {
		return Signal{}, false
	}

	maxSize, ok := mb.ExecutableSize()
	if !ok || !maxSize.IsPositive() {
		return Signal{}, false
	}

	if d.trading.MaxNotionalPerTrade.IsPositive() {
		maxByNotional := d.trading.MaxNotionalPerTrade.Div(combinedCost)
		maxSize = money.Min(maxSize, maxByNotional)
	}

	fees := d.calculateFees(yesAsk, noAsk, maxSize)
	feePerShare := money.Zero
	if maxSize.IsPositive() {
		feePerShare = fees.Div(maxSize)
	}

	netEdge := grossEdge.Sub(feePerShare).Sub(d.trading.SlippageBuffer)

	return Signal{
		ConditionID:  mb.ConditionID,
		YesTokenID:   mb.YesTokenID,
		NoTokenID:    mb.NoTokenID,
		YesAsk:       yesAsk,
		NoAsk:        noAsk,
		CombinedCost: combinedCost,
		GrossEdge:    grossEdge,
		NetEdge:      netEdge,
		MaxSize:      maxSize,
		ScannedAt:    now,
	}, true
}

// Scan evaluates every tracked market and returns the signals whose net
// edge clears MinEdge, sorted by net edge descending. Ties break by
// condition ID for deterministic ordering.
func (d *Detector) Scan() []Signal {
	markets := d.store.ListMarkets()
	signals := make([]Signal, 0, len(markets))

	for _, mb := range markets {
		signal, ok := d.checkMarket(mb)
		if !ok || signal.NetEdge.LessThan(d.trading.MinEdge) {
			continue
		}
		signals = append(signals, signal)
		d.lastSignals[mb.ConditionID] = signal
	}

	sort.Slice(signals, func(i, j int) bool {
		if signals[i].NetEdge.Equal(signals[j].NetEdge) {
			return signals[i].ConditionID < signals[j].ConditionID
		}
		return signals[i].NetEdge.GreaterThan(signals[j].NetEdge)
	})

	return signals
}

// Best returns the single highest-edge signal, if any.
func (d *Detector) Best() (Signal, bool) {
	signals := d.Scan()
	if len(signals) == 0 {
		return Signal{}, false
	}
	return signals[0], true
}

// LastSignal returns the most recent signal recorded for a market,
// regardless of whether it is still live.
func (d *Detector) LastSignal(conditionID string) (Signal, bool) {
	s, ok := d.lastSignals[conditionID]
	return s, ok
}
