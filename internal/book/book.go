// Package book implements the twin-book store: a thread-safe, per-token
// sorted price ladder and the YES/NO pairing that turns two token books
// into one binary MarketBook. It is fed by snapshot and delta updates
// from the WebSocket transport and read by the parity and convergence
// detectors.
package book

import (
	"sort"
	"time"

	"github.com/parityarb/parity-bot/pkg/money"
)

// Side identifies which ladder a price level belongs to.
type Side int

const (
	// SideBid is the descending-ordered bid ladder.
	SideBid Side = iota
	// SideAsk is the ascending-ordered ask ladder.
	SideAsk
)

// Outcome tags a TokenBook as the YES or NO side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// staleAfter is the freshness threshold from spec.md §3/§4.1.
const staleAfter = 60 * time.Second

// Level is a single (price, size) pair in a ladder.
type Level struct {
	Price money.Decimal
	Size  money.Decimal
}

// Ladder is an ordered price->size map. Bids are kept descending, asks
// ascending; a level with size <= 0 is never retained.
type Ladder struct {
	isBid  bool
	prices []money.Decimal // kept sorted for the ladder's ordering
	sizes  map[string]money.Decimal
}

func newLadder(isBid bool) *Ladder {
	return &Ladder{isBid: isBid, sizes: make(map[string]money.Decimal)}
}

// Upsert inserts or updates a level. size <= 0 removes the level.
func (l *Ladder) Upsert(price, size money.Decimal) {
	key := price.String()
	if size.LessThanOrEqual(money.Zero) {
		if _, ok := l.sizes[key]; ok {
			delete(l.sizes, key)
			l.removePrice(price)
		}
		return
	}

	if _, exists := l.sizes[key]; !exists {
		l.insertPrice(price)
	}
	l.sizes[key] = size
}

// Reset replaces the ladder contents atomically with a fresh snapshot.
func (l *Ladder) Reset(levels []Level) {
	l.prices = l.prices[:0]
	l.sizes = make(map[string]money.Decimal, len(levels))
	for _, lvl := range levels {
		if lvl.Size.LessThanOrEqual(money.Zero) {
			continue
		}
		key := lvl.Price.String()
		if _, exists := l.sizes[key]; !exists {
			l.insertPrice(lvl.Price)
		}
		l.sizes[key] = lvl.Size
	}
}

func (l *Ladder) insertPrice(price money.Decimal) {
	idx := l.searchIndex(price)
	l.prices = append(l.prices, money.Zero)
	copy(l.prices[idx+1:], l.prices[idx:])
	l.prices[idx] = price
}

func (l *Ladder) removePrice(price money.Decimal) {
	idx := l.searchIndex(price)
	if idx < len(l.prices) && l.prices[idx].Equal(price) {
		l.prices = append(l.prices[:idx], l.prices[idx+1:]...)
	}
}

// searchIndex finds the insertion point maintaining ladder order:
// descending for bids, ascending for asks.
func (l *Ladder) searchIndex(price money.Decimal) int {
	return sort.Search(len(l.prices), func(i int) bool {
		if l.isBid {
			return l.prices[i].LessThanOrEqual(price)
		}
		return l.prices[i].GreaterThanOrEqual(price)
	})
}

// Best returns the best (first) level, or false if the ladder is empty.
func (l *Ladder) Best() (Level, bool) {
	if len(l.prices) == 0 {
		return Level{}, false
	}
	price := l.prices[0]
	return Level{Price: price, Size: l.sizes[price.String()]}, true
}

// Depth returns up to n levels from the top of the ladder.
func (l *Ladder) Depth(n int) []Level {
	if n > len(l.prices) {
		n = len(l.prices)
	}
	out := make([]Level, n)
	for i := 0; i < n; i++ {
		out[i] = Level{Price: l.prices[i], Size: l.sizes[l.prices[i].String()]}
	}
	return out
}

// Len reports the number of levels retained.
func (l *Ladder) Len() int { return len(l.prices) }

// copy returns a deep copy of the ladder's price ordering and size map, so
// a reader handed the copy cannot race with the store goroutine mutating
// the original via Upsert/Reset.
func (l *Ladder) copy() *Ladder {
	prices := make([]money.Decimal, len(l.prices))
	copy(prices, l.prices)
	sizes := make(map[string]money.Decimal, len(l.sizes))
	for k, v := range l.sizes {
		sizes[k] = v
	}
	return &Ladder{isBid: l.isBid, prices: prices, sizes: sizes}
}

// TokenBook is the order book for a single outcome token.
type TokenBook struct {
	TokenID    string
	Bids       *Ladder
	Asks       *Ladder
	LastUpdate time.Time
	Hash       string
}

func newTokenBook(tokenID string) *TokenBook {
	return &TokenBook{
		TokenID: tokenID,
		Bids:    newLadder(true),
		Asks:    newLadder(false),
	}
}

// copy returns a deep copy of the token book, safe to hand to a reader
// concurrently with further mutation of the original.
func (t *TokenBook) copy() *TokenBook {
	return &TokenBook{
		TokenID:    t.TokenID,
		Bids:       t.Bids.copy(),
		Asks:       t.Asks.copy(),
		LastUpdate: t.LastUpdate,
		Hash:       t.Hash,
	}
}

// BestBid returns the best bid price, if any.
func (t *TokenBook) BestBid() (money.Decimal, bool) {
	lvl, ok := t.Bids.Best()
	return lvl.Price, ok
}

// BestAsk returns the best ask price, if any.
func (t *TokenBook) BestAsk() (money.Decimal, bool) {
	lvl, ok := t.Asks.Best()
	return lvl.Price, ok
}

// BestAskSize returns the size available at the best ask, if any.
func (t *TokenBook) BestAskSize() (money.Decimal, bool) {
	lvl, ok := t.Asks.Best()
	return lvl.Size, ok
}

// Spread returns ask - bid, if both sides are present.
func (t *TokenBook) Spread() (money.Decimal, bool) {
	bid, okBid := t.BestBid()
	ask, okAsk := t.BestAsk()
	if !okBid || !okAsk {
		return money.Zero, false
	}
	return ask.Sub(bid), true
}

// Mid returns the midpoint of bid and ask, if both sides are present.
func (t *TokenBook) Mid() (money.Decimal, bool) {
	bid, okBid := t.BestBid()
	ask, okAsk := t.BestAsk()
	if !okBid || !okAsk {
		return money.Zero, false
	}
	return bid.Add(ask).Div(money.NewFromInt(2)), true
}

// Age returns how long since the book was last updated.
func (t *TokenBook) Age(now time.Time) time.Duration {
	if t.LastUpdate.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(t.LastUpdate)
}

// IsCrossed reports whether the book has both sides and bid >= ask — an
// upstream anomaly that is accepted but flagged, per spec.md §3.
func (t *TokenBook) IsCrossed() bool {
	bid, okBid := t.BestBid()
	ask, okAsk := t.BestAsk()
	return okBid && okAsk && bid.GreaterThanOrEqual(ask)
}

// MarketBook is a binary market: exactly two TokenBooks tagged YES/NO.
type MarketBook struct {
	ConditionID string
	YesTokenID  string
	NoTokenID   string
	TickSize    money.Decimal
	NegRisk     bool

	Yes *TokenBook
	No  *TokenBook
}

func newMarketBook(conditionID, yesTokenID, noTokenID string, tickSize money.Decimal, negRisk bool) *MarketBook {
	return &MarketBook{
		ConditionID: conditionID,
		YesTokenID:  yesTokenID,
		NoTokenID:   noTokenID,
		TickSize:    tickSize,
		NegRisk:     negRisk,
		Yes:         newTokenBook(yesTokenID),
		No:          newTokenBook(noTokenID),
	}
}

// Copy returns a deep copy of the market book. Callers outside the store's
// own goroutine must read through a copy rather than the live pointer,
// since ApplyDelta/ApplySnapshot mutate the live book's ladders under the
// store mutex with no synchronization visible to an external reader.
func (m *MarketBook) Copy() *MarketBook {
	return &MarketBook{
		ConditionID: m.ConditionID,
		YesTokenID:  m.YesTokenID,
		NoTokenID:   m.NoTokenID,
		TickSize:    m.TickSize,
		NegRisk:     m.NegRisk,
		Yes:         m.Yes.copy(),
		No:          m.No.copy(),
	}
}

// CombinedAsk returns yes.best_ask + no.best_ask, if both are present.
func (m *MarketBook) CombinedAsk() (money.Decimal, bool) {
	yesAsk, okYes := m.Yes.BestAsk()
	noAsk, okNo := m.No.BestAsk()
	if !okYes || !okNo {
		return money.Zero, false
	}
	return yesAsk.Add(noAsk), true
}

// ParityEdge returns 1 - combined_ask, if computable.
func (m *MarketBook) ParityEdge() (money.Decimal, bool) {
	combined, ok := m.CombinedAsk()
	if !ok {
		return money.Zero, false
	}
	return money.One.Sub(combined), true
}

// ExecutableSize returns min(yes.ask_top_size, no.ask_top_size).
func (m *MarketBook) ExecutableSize() (money.Decimal, bool) {
	yesSize, okYes := m.Yes.BestAskSize()
	noSize, okNo := m.No.BestAskSize()
	if !okYes || !okNo {
		return money.Zero, false
	}
	return money.Min(yesSize, noSize), true
}

// IsStale reports whether either side's book is older than 60s.
func (m *MarketBook) IsStale(now time.Time) bool {
	return m.Yes.Age(now) > staleAfter || m.No.Age(now) > staleAfter
}

// TokenBookFor returns the token book for a token ID together with its
// outcome tag, or (nil, "", false) if the token is neither side.
func (m *MarketBook) TokenBookFor(tokenID string) (*TokenBook, Outcome, bool) {
	switch tokenID {
	case m.YesTokenID:
		return m.Yes, OutcomeYes, true
	case m.NoTokenID:
		return m.No, OutcomeNo, true
	default:
		return nil, "", false
	}
}
