package book

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parityarb/parity-bot/pkg/money"
)

// Store is the twin-book store: a thread-safe registry of binary
// MarketBooks, indexed both by condition ID and by the two outcome token
// IDs that belong to it. A single store-wide mutex protects all state;
// contention is expected to be low relative to the decode cost of
// incoming WebSocket frames, which happens outside the lock wherever
// possible.
type Store struct {
	mu            sync.RWMutex
	markets       map[string]*MarketBook
	tokenToMarket map[string]string
	logger        *zap.Logger
}

// NewStore builds an empty twin-book store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		markets:       make(map[string]*MarketBook),
		tokenToMarket: make(map[string]string),
		logger:        logger,
	}
}

// AddMarket registers a binary market and its two outcome tokens. Calling
// it again for the same condition ID replaces the registration but keeps
// no book state from the prior one.
func (s *Store) AddMarket(conditionID, yesTokenID, noTokenID string, tickSize money.Decimal, negRisk bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb := newMarketBook(conditionID, yesTokenID, noTokenID, tickSize, negRisk)
	s.markets[conditionID] = mb
	s.tokenToMarket[yesTokenID] = conditionID
	s.tokenToMarket[noTokenID] = conditionID
	MarketsTracked.Set(float64(len(s.markets)))

	s.logger.Info("market registered",
		zap.String("condition_id", conditionID),
		zap.String("yes_token_id", yesTokenID),
		zap.String("no_token_id", noTokenID),
	)
}

// RemoveMarket drops a market and its reverse-index entries.
func (s *Store) RemoveMarket(conditionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.markets[conditionID]
	if !ok {
		return
	}
	delete(s.tokenToMarket, mb.YesTokenID)
	delete(s.tokenToMarket, mb.NoTokenID)
	delete(s.markets, conditionID)
	MarketsTracked.Set(float64(len(s.markets)))
}

// ApplySnapshot replaces one token's ladders wholesale. Unknown token IDs
// are dropped silently (the market may not yet be registered, or may have
// been delisted) and counted in UpdatesDroppedTotal.
func (s *Store) ApplySnapshot(tokenID string, bids, asks []Level) {
	start := time.Now()
	defer func() { UpdateProcessingDuration.Observe(time.Since(start).Seconds()) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	tb := s.tokenBookLocked(tokenID)
	if tb == nil {
		UpdatesDroppedTotal.WithLabelValues("unknown_token").Inc()
		return
	}

	tb.Bids.Reset(bids)
	tb.Asks.Reset(asks)
	tb.LastUpdate = time.Now()
	UpdatesTotal.WithLabelValues("snapshot").Inc()
}

// ApplyDelta upserts a single price level on one side of one token's book.
// A size of zero (or negative) removes the level.
func (s *Store) ApplyDelta(tokenID string, isBid bool, price, size money.Decimal) {
	start := time.Now()
	defer func() { UpdateProcessingDuration.Observe(time.Since(start).Seconds()) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	tb := s.tokenBookLocked(tokenID)
	if tb == nil {
		UpdatesDroppedTotal.WithLabelValues("unknown_token").Inc()
		return
	}

	if isBid {
		tb.Bids.Upsert(price, size)
	} else {
		tb.Asks.Upsert(price, size)
	}
	tb.LastUpdate = time.Now()
	UpdatesTotal.WithLabelValues("delta").Inc()
}

// bestSentinelSize is the non-zero placeholder size used by ApplyBest,
// matching spec.md §4.1 and §9 Open Question (a): a best_bid_ask frame
// carries no size, only an updated top-of-book price, so downstream
// consumers that need the full depth should prefer ApplySnapshot/
// ApplyDelta and treat this level as a freshness hint only.
var bestSentinelSize = money.NewFromInt(1)

// ApplyBest records a best-bid/best-ask price hint without a true size,
// using bestSentinelSize as a non-zero placeholder so downstream readers
// see a populated top level rather than an empty one.
func (s *Store) ApplyBest(tokenID string, isBid bool, price money.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tb := s.tokenBookLocked(tokenID)
	if tb == nil {
		UpdatesDroppedTotal.WithLabelValues("unknown_token").Inc()
		return
	}

	var ladder *Ladder
	if isBid {
		ladder = tb.Bids
	} else {
		ladder = tb.Asks
	}

	if best, ok := ladder.Best(); !ok || !best.Price.Equal(price) {
		ladder.Upsert(price, bestSentinelSize)
	}
	tb.LastUpdate = time.Now()
	UpdatesTotal.WithLabelValues("best").Inc()
}

// tokenBookLocked resolves a token ID to its TokenBook. Caller must hold
// s.mu (read or write).
func (s *Store) tokenBookLocked(tokenID string) *TokenBook {
	conditionID, ok := s.tokenToMarket[tokenID]
	if !ok {
		return nil
	}
	mb, ok := s.markets[conditionID]
	if !ok {
		return nil
	}
	tb, _, ok := mb.TokenBookFor(tokenID)
	if !ok {
		return nil
	}
	return tb
}

// GetMarket returns a point-in-time copy of the market book for a
// condition ID. The copy is taken under the store lock so the caller never
// observes the live ladders concurrently with ApplyDelta/ApplySnapshot.
func (s *Store) GetMarket(conditionID string) (*MarketBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mb, ok := s.markets[conditionID]
	if !ok {
		return nil, false
	}
	if mb.IsStale(time.Now()) {
		StaleMarketsTotal.Inc()
	}
	return mb.Copy(), true
}

// GetMarketByToken resolves a market book from either of its outcome
// token IDs, returning a copy under the same lock-held guarantee as
// GetMarket.
func (s *Store) GetMarketByToken(tokenID string) (*MarketBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conditionID, ok := s.tokenToMarket[tokenID]
	if !ok {
		return nil, false
	}
	mb, ok := s.markets[conditionID]
	if !ok {
		return nil, false
	}
	if mb.IsStale(time.Now()) {
		StaleMarketsTotal.Inc()
	}
	return mb.Copy(), true
}

// ListMarkets returns a copy of every registered market book, taken under
// the store lock.
func (s *Store) ListMarkets() []*MarketBook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*MarketBook, 0, len(s.markets))
	for _, mb := range s.markets {
		out = append(out, mb.Copy())
	}
	return out
}

// ListTokenIDs returns every outcome token ID currently tracked, useful
// for building the WebSocket subscription list.
func (s *Store) ListTokenIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tokenToMarket))
	for tokenID := range s.tokenToMarket {
		out = append(out, tokenID)
	}
	return out
}
