// Package convergence detects when a paired position's combined bid has
// converged back toward $1, signaling it is time to exit ahead of
// resolution rather than carry it to settlement.
package convergence

import (
	"time"

	"github.com/parityarb/parity-bot/internal/book"
	"github.com/parityarb/parity-bot/pkg/money"
)

// Reason names why ShouldExit returned the value it did.
type Reason string

const (
	ReasonMarketNotFound  Reason = "market_not_found"
	ReasonNoBids          Reason = "no_bids"
	ReasonSpreadConverged Reason = "spread_converged"
	ReasonStaleData       Reason = "stale_data"
	ReasonHold            Reason = "hold"
)

// defaultThreshold matches the original implementation's convergence
// threshold: exit once combined bid >= 1 - 0.001.
var defaultThreshold = money.NewFromFloat(0.001)

// Detector evaluates exit conditions for paired positions against the
// live twin-book store.
type Detector struct {
	store     *book.Store
	threshold money.Decimal
}

// NewDetector builds a convergence detector. A zero threshold falls back
// to the default of 0.001.
func NewDetector(store *book.Store, threshold money.Decimal) *Detector {
	if threshold.IsZero() {
		threshold = defaultThreshold
	}
	return &Detector{store: store, threshold: threshold}
}

// ShouldExit reports whether a position in the given market should be
// exited now, and why. Per spec.md §9 Open Question (b), a market that
// has disappeared from the store (delisted, or never registered) is
// treated as an unconditional exit signal so the orchestrator can fall
// back to a REST-quoted immediate exit using the last-known price.
func (d *Detector) ShouldExit(conditionID string) (bool, Reason) {
	mb, ok := d.store.GetMarket(conditionID)
	if !ok {
		return true, ReasonMarketNotFound
	}

	yesBid, okYes := mb.Yes.BestBid()
	noBid, okNo := mb.No.BestBid()
	if !okYes || !okNo {
		return false, ReasonNoBids
	}

	combinedBid := yesBid.Add(noBid)
	if combinedBid.GreaterThanOrEqual(money.One.Sub(d.threshold)) {
		return true, ReasonSpreadConverged
	}

	if mb.IsStale(time.Now()) {
		return false, ReasonStaleData
	}

	return false, ReasonHold
}

// ExitValue returns yes_bid + no_bid — what selling both legs would
// currently realize — or false if either side has no bid.
func (d *Detector) ExitValue(conditionID string) (money.Decimal, bool) {
	mb, ok := d.store.GetMarket(conditionID)
	if !ok {
		return money.Zero, false
	}

	yesBid, okYes := mb.Yes.BestBid()
	noBid, okNo := mb.No.BestBid()
	if !okYes || !okNo {
		return money.Zero, false
	}

	return yesBid.Add(noBid), true
}
