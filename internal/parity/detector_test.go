package parity

import (
	"testing"

	"github.com/parityarb/parity-bot/internal/book"
	"github.com/parityarb/parity-bot/pkg/money"
)

func dec(s string) money.Decimal {
	d, err := money.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newDetector(t *testing.T, trading TradingConfig, fees FeeConfig) (*Detector, *book.Store) {
	t.Helper()
	store := book.NewStore(nil)
	store.AddMarket("cond-1", "yes-tok", "no-tok", dec("0.01"), false)
	return NewDetector(store, fees, trading, nil), store
}

func TestScanFindsProfitableSignal(t *testing.T) {
	d, store := newDetector(t, TradingConfig{
		MinEdge:             dec("0.01"),
		MaxNotionalPerTrade: dec("100"),
		SlippageBuffer:      dec("0.002"),
	}, FeeConfig{TakerFeeRate: money.Zero})

	store.ApplySnapshot("yes-tok", nil, []book.Level{{Price: dec("0.48"), Size: dec("100")}})
	store.ApplySnapshot("no-tok", nil, []book.Level{{Price: dec("0.49"), Size: dec("100")}})

	signals := d.Scan()
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	s := signals[0]
	if s.CombinedCost.String() != "0.9700" {
		t.Fatalf("combined cost = %s, want 0.9700", s.CombinedCost)
	}
	if s.GrossEdge.String() != "0.0300" {
		t.Fatalf("gross edge = %s, want 0.0300", s.GrossEdge)
	}
	wantNet := dec("0.0300").Sub(dec("0.002"))
	if !s.NetEdge.Equal(wantNet) {
		t.Fatalf("net edge = %s, want %s", s.NetEdge, wantNet)
	}
	if !s.IsProfitable() {
		t.Fatal("expected signal to be profitable")
	}
}

func TestScanRejectsBelowMinEdge(t *testing.T) {
	d, store := newDetector(t, TradingConfig{
		MinEdge:             dec("0.05"),
		MaxNotionalPerTrade: dec("100"),
		SlippageBuffer:      dec("0"),
	}, FeeConfig{TakerFeeRate: money.Zero})

	store.ApplySnapshot("yes-tok", nil, []book.Level{{Price: dec("0.48"), Size: dec("100")}})
	store.ApplySnapshot("no-tok", nil, []book.Level{{Price: dec("0.49"), Size: dec("100")}})

	if signals := d.Scan(); len(signals) != 0 {
		t.Fatalf("expected no signals below min edge, got %d", len(signals))
	}
}

func TestScanRejectsNonPositiveGrossEdge(t *testing.T) {
	d, store := newDetector(t, TradingConfig{
		MinEdge:             money.Zero,
		MaxNotionalPerTrade: dec("100"),
		SlippageBuffer:      money.Zero,
	}, FeeConfig{TakerFeeRate: money.Zero})

	store.ApplySnapshot("yes-tok", nil, []book.Level{{Price: dec("0.51"), Size: dec("100")}})
	store.ApplySnapshot("no-tok", nil, []book.Level{{Price: dec("0.50"), Size: dec("100")}})

	if signals := d.Scan(); len(signals) != 0 {
		t.Fatalf("expected no signal when combined cost >= 1, got %d", len(signals))
	}
}

func TestCalculateFeesMatchesPerSideFormula(t *testing.T) {
	d, _ := newDetector(t, TradingConfig{}, FeeConfig{TakerFeeRate: dec("0.02")})

	fees := d.calculateFees(dec("0.48"), dec("0.49"), dec("10"))
	// yes: 0.02 * min(0.48,0.52) * 10 = 0.02*0.48*10 = 0.096
	// no:  0.02 * min(0.49,0.51) * 10 = 0.02*0.49*10 = 0.098
	want := dec("0.096").Add(dec("0.098"))
	if !fees.Equal(want) {
		t.Fatalf("fees = %s, want %s", fees, want)
	}
}

func TestScanCapsSizeByNotional(t *testing.T) {
	d, store := newDetector(t, TradingConfig{
		MinEdge:             money.Zero,
		MaxNotionalPerTrade: dec("10"),
		SlippageBuffer:      money.Zero,
	}, FeeConfig{TakerFeeRate: money.Zero})

	store.ApplySnapshot("yes-tok", nil, []book.Level{{Price: dec("0.48"), Size: dec("1000")}})
	store.ApplySnapshot("no-tok", nil, []book.Level{{Price: dec("0.49"), Size: dec("1000")}})

	signals := d.Scan()
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	// 10 / 0.97 = 10.3092...
	want := dec("10").Div(dec("0.97"))
	if !signals[0].MaxSize.Equal(want) {
		t.Fatalf("max size = %s, want %s", signals[0].MaxSize, want)
	}
}

func TestScanSortsByNetEdgeDescendingWithTieBreak(t *testing.T) {
	store := book.NewStore(nil)
	store.AddMarket("cond-b", "yes-b", "no-b", dec("0.01"), false)
	store.AddMarket("cond-a", "yes-a", "no-a", dec("0.01"), false)

	store.ApplySnapshot("yes-b", nil, []book.Level{{Price: dec("0.45"), Size: dec("100")}})
	store.ApplySnapshot("no-b", nil, []book.Level{{Price: dec("0.45"), Size: dec("100")}})
	store.ApplySnapshot("yes-a", nil, []book.Level{{Price: dec("0.45"), Size: dec("100")}})
	store.ApplySnapshot("no-a", nil, []book.Level{{Price: dec("0.45"), Size: dec("100")}})

	d := NewDetector(store, FeeConfig{TakerFeeRate: money.Zero}, TradingConfig{
		MinEdge:             money.Zero,
		MaxNotionalPerTrade: dec("1000"),
		SlippageBuffer:      money.Zero,
	}, nil)

	signals := d.Scan()
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}
	if signals[0].ConditionID != "cond-a" || signals[1].ConditionID != "cond-b" {
		t.Fatalf("expected tie-break ordering [cond-a, cond-b], got [%s, %s]",
			signals[0].ConditionID, signals[1].ConditionID)
	}
}
