// Package ledger tracks paired positions (one YES leg, one NO leg) from
// entry through exit or resolution, and the aggregate exposure/P&L they
// represent.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/pkg/money"
)

// Status is the lifecycle stage of a PairedPosition.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusExiting  Status = "EXITING"
	StatusClosed   Status = "CLOSED"
	StatusResolved Status = "RESOLVED"
)

// UnpairedNote flags a position left with excess, unhedged exposure after
// a failed unwind — see SPEC_FULL.md Supplemented Feature #3.
const UnpairedNote = "UNPAIRED: manual intervention required"

// PairedPosition is one round-trip: a YES leg and a NO leg opened
// together, tracked until closed or resolved.
type PairedPosition struct {
	PositionID  string
	ConditionID string
	YesTokenID  string
	NoTokenID   string

	Size         money.Decimal
	YesEntryPrice money.Decimal
	NoEntryPrice  money.Decimal
	EntryCost    money.Decimal
	EntryTime    time.Time

	YesExitPrice money.Decimal
	NoExitPrice  money.Decimal
	ExitProceeds money.Decimal
	ExitTime     time.Time
	hasExit      bool

	Status       Status
	RealizedPnL  money.Decimal
	ExecutionID  string
	Notes        string
}

// CombinedEntryPrice is YesEntryPrice + NoEntryPrice.
func (p *PairedPosition) CombinedEntryPrice() money.Decimal {
	return p.YesEntryPrice.Add(p.NoEntryPrice)
}

// ExpectedPnLAtResolution is the guaranteed payout minus entry cost:
// size * (1 - combined_entry_price).
func (p *PairedPosition) ExpectedPnLAtResolution() money.Decimal {
	return p.Size.Mul(money.One.Sub(p.CombinedEntryPrice()))
}

// HoldingTime returns how long the position has been open (or was open,
// if it has since closed).
func (p *PairedPosition) HoldingTime(now time.Time) time.Duration {
	end := now
	if p.hasExit {
		end = p.ExitTime
	}
	return end.Sub(p.EntryTime)
}

// CalculateExitPnL returns what realized P&L would be for the given exit
// proceeds, without mutating the position.
func (p *PairedPosition) CalculateExitPnL(proceeds money.Decimal) money.Decimal {
	return proceeds.Sub(p.EntryCost)
}

// Close terminates the position at a realized exit. It is a no-op past
// the first call — CLOSED and RESOLVED are both terminal.
func (p *PairedPosition) Close(yesExit, noExit, proceeds money.Decimal, at time.Time) {
	if p.Status == StatusClosed || p.Status == StatusResolved {
		return
	}
	p.YesExitPrice = yesExit
	p.NoExitPrice = noExit
	p.ExitProceeds = proceeds
	p.ExitTime = at
	p.hasExit = true
	p.RealizedPnL = proceeds.Sub(p.EntryCost)
	p.Status = StatusClosed
}

// Resolve terminates the position via market resolution (payout of $1 or
// $0 per share, not an exit trade).
func (p *PairedPosition) Resolve(payout money.Decimal, at time.Time) {
	if p.Status == StatusClosed || p.Status == StatusResolved {
		return
	}
	p.ExitProceeds = payout
	p.ExitTime = at
	p.hasExit = true
	p.RealizedPnL = payout.Sub(p.EntryCost)
	p.Status = StatusResolved
}

// Ledger is the thread-safe registry of paired positions, indexed by
// position ID and by market.
type Ledger struct {
	mu             sync.RWMutex
	positions      map[string]*PairedPosition
	byMarket       map[string][]string
	maxOpenPairs   int
	logger         *zap.Logger
}

// NewLedger builds an empty ledger whose CanOpenNew reports false once
// maxOpenPairs positions are open (no limit when maxOpenPairs <= 0). Add
// itself does not check the limit.
func NewLedger(maxOpenPairs int, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		positions:    make(map[string]*PairedPosition),
		byMarket:     make(map[string][]string),
		maxOpenPairs: maxOpenPairs,
		logger:       logger,
	}
}

// Add registers a newly opened paired position, assigning it a fresh
// position ID.
func (l *Ledger) Add(conditionID, yesTokenID, noTokenID string, size, yesEntryPrice, noEntryPrice money.Decimal, executionID string, at time.Time) *PairedPosition {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := &PairedPosition{
		PositionID:    uuid.NewString(),
		ConditionID:   conditionID,
		YesTokenID:    yesTokenID,
		NoTokenID:     noTokenID,
		Size:          size,
		YesEntryPrice: yesEntryPrice,
		NoEntryPrice:  noEntryPrice,
		EntryCost:     size.Mul(yesEntryPrice.Add(noEntryPrice)),
		EntryTime:     at,
		Status:        StatusOpen,
		ExecutionID:   executionID,
	}

	l.positions[pos.PositionID] = pos
	l.byMarket[conditionID] = append(l.byMarket[conditionID], pos.PositionID)

	l.logger.Info("position opened",
		zap.String("position_id", pos.PositionID),
		zap.String("condition_id", conditionID),
		zap.String("size", size.String()),
	)

	return pos
}

// AddUnpaired records leftover exposure from a failed unwind as an OPEN
// position flagged for manual intervention, per SPEC_FULL.md Supplemented
// Feature #3.
func (l *Ledger) AddUnpaired(conditionID, tokenID string, size, entryPrice money.Decimal, executionID string, at time.Time) *PairedPosition {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := &PairedPosition{
		PositionID:  uuid.NewString(),
		ConditionID: conditionID,
		YesTokenID:  tokenID,
		Size:        size,
		EntryCost:   size.Mul(entryPrice),
		EntryTime:   at,
		Status:      StatusOpen,
		ExecutionID: executionID,
		Notes:       UnpairedNote,
	}
	l.positions[pos.PositionID] = pos
	l.byMarket[conditionID] = append(l.byMarket[conditionID], pos.PositionID)

	l.logger.Warn("unpaired position recorded",
		zap.String("position_id", pos.PositionID),
		zap.String("condition_id", conditionID),
		zap.String("token_id", tokenID),
	)

	return pos
}

// Get returns a position by ID.
func (l *Ledger) Get(positionID string) (*PairedPosition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[positionID]
	return p, ok
}

// ListForMarket returns every position ever opened for a market.
func (l *Ledger) ListForMarket(conditionID string) []*PairedPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.byMarket[conditionID]
	out := make([]*PairedPosition, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.positions[id])
	}
	return out
}

// ListOpen returns every position currently OPEN or EXITING.
func (l *Ledger) ListOpen() []*PairedPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*PairedPosition, 0)
	for _, p := range l.positions {
		if p.Status == StatusOpen || p.Status == StatusExiting {
			out = append(out, p)
		}
	}
	return out
}

// ListAll returns every position, regardless of status.
func (l *Ledger) ListAll() []*PairedPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*PairedPosition, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

// OpenCount is the number of positions currently OPEN or EXITING.
func (l *Ledger) OpenCount() int {
	return len(l.ListOpen())
}

// CanOpenNew reports whether a new position can be opened without
// breaching maxOpenPairs.
func (l *Ledger) CanOpenNew() bool {
	if l.maxOpenPairs <= 0 {
		return true
	}
	return l.OpenCount() < l.maxOpenPairs
}

// MarkExiting transitions an OPEN position to EXITING.
func (l *Ledger) MarkExiting(positionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[positionID]
	if !ok {
		return fmt.Errorf("ledger: position %s not found", positionID)
	}
	if p.Status == StatusOpen {
		p.Status = StatusExiting
	}
	return nil
}

// Close terminates a position via an exit trade.
func (l *Ledger) Close(positionID string, yesExit, noExit, proceeds money.Decimal, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[positionID]
	if !ok {
		return fmt.Errorf("ledger: position %s not found", positionID)
	}
	p.Close(yesExit, noExit, proceeds, at)
	l.logger.Info("position closed",
		zap.String("position_id", positionID),
		zap.String("realized_pnl", p.RealizedPnL.String()),
	)
	return nil
}

// Resolve terminates a position via market resolution.
func (l *Ledger) Resolve(positionID string, payout money.Decimal, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[positionID]
	if !ok {
		return fmt.Errorf("ledger: position %s not found", positionID)
	}
	p.Resolve(payout, at)
	l.logger.Info("position resolved",
		zap.String("position_id", positionID),
		zap.String("realized_pnl", p.RealizedPnL.String()),
	)
	return nil
}

// Remove deletes a position entirely (used only for restart
// deduplication against durable storage, never for live trading flow).
func (l *Ledger) Remove(positionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[positionID]
	if !ok {
		return
	}
	delete(l.positions, positionID)
	ids := l.byMarket[p.ConditionID]
	for i, id := range ids {
		if id == positionID {
			l.byMarket[p.ConditionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// TotalExposure sums EntryCost over every OPEN or EXITING position.
func (l *Ledger) TotalExposure() money.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := money.Zero
	for _, p := range l.positions {
		if p.Status == StatusOpen || p.Status == StatusExiting {
			total = total.Add(p.EntryCost)
		}
	}
	return total
}

// TotalRealizedPnL sums RealizedPnL over every CLOSED or RESOLVED
// position.
func (l *Ledger) TotalRealizedPnL() money.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := money.Zero
	for _, p := range l.positions {
		if p.Status == StatusClosed || p.Status == StatusResolved {
			total = total.Add(p.RealizedPnL)
		}
	}
	return total
}

// MarketExposure sums EntryCost over OPEN/EXITING positions in one
// market.
func (l *Ledger) MarketExposure(conditionID string) money.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := money.Zero
	for _, id := range l.byMarket[conditionID] {
		p := l.positions[id]
		if p.Status == StatusOpen || p.Status == StatusExiting {
			total = total.Add(p.EntryCost)
		}
	}
	return total
}
