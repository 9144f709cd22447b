// Package money provides exact decimal arithmetic for price, size, and
// money values. Polymarket's tick size is 0.01; four decimal places of
// precision is ample headroom for fee and slippage math without ever
// touching floating point.
package money

import "github.com/shopspring/decimal"

// Scale is the fixed number of decimal places retained by Round.
const Scale = 4

// Decimal wraps shopspring/decimal so every money-path value in the
// codebase goes through the same exact-arithmetic type.
type Decimal struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{d: decimal.Zero}

// One is the unit payout of a resolved binary market.
var One = Decimal{d: decimal.NewFromInt(1)}

// NewFromFloat builds a Decimal from a float64. Only safe at system
// boundaries (e.g. JSON payloads that arrive as numbers) — never use this
// to round-trip a value already computed in Decimal.
func NewFromFloat(f float64) Decimal {
	return Decimal{d: decimal.NewFromFloat(f).Round(Scale)}
}

// NewFromString parses a decimal string (the wire format for Polymarket
// prices and sizes, which arrive as JSON strings to avoid float drift).
func NewFromString(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, err
	}
	return Decimal{d: d.Round(Scale)}, nil
}

// NewFromInt builds an exact integer Decimal.
func NewFromInt(i int64) Decimal {
	return Decimal{d: decimal.NewFromInt(i)}
}

func (m Decimal) Add(other Decimal) Decimal { return Decimal{d: m.d.Add(other.d)} }
func (m Decimal) Sub(other Decimal) Decimal { return Decimal{d: m.d.Sub(other.d)} }
func (m Decimal) Mul(other Decimal) Decimal { return Decimal{d: m.d.Mul(other.d)} }

// Div divides m by other. Division is not exact in general, so the result
// is rounded to Scale — callers doing further exact comparisons should be
// aware sizing math has this one unavoidable rounding point.
func (m Decimal) Div(other Decimal) Decimal {
	if other.d.IsZero() {
		return Zero
	}
	return Decimal{d: m.d.Div(other.d).Round(Scale)}
}

func (m Decimal) Neg() Decimal { return Decimal{d: m.d.Neg()} }

func (m Decimal) Cmp(other Decimal) int   { return m.d.Cmp(other.d) }
func (m Decimal) Equal(other Decimal) bool { return m.d.Equal(other.d) }
func (m Decimal) GreaterThan(other Decimal) bool { return m.d.GreaterThan(other.d) }
func (m Decimal) GreaterThanOrEqual(other Decimal) bool {
	return m.d.GreaterThanOrEqual(other.d)
}
func (m Decimal) LessThan(other Decimal) bool         { return m.d.LessThan(other.d) }
func (m Decimal) LessThanOrEqual(other Decimal) bool   { return m.d.LessThanOrEqual(other.d) }
func (m Decimal) IsZero() bool                         { return m.d.IsZero() }
func (m Decimal) IsPositive() bool                      { return m.d.IsPositive() }
func (m Decimal) IsNegative() bool                      { return m.d.IsNegative() }

// Min returns the smaller of a and b.
func Min(a, b Decimal) Decimal {
	if a.d.LessThan(b.d) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Decimal) Decimal {
	if a.d.GreaterThan(b.d) {
		return a
	}
	return b
}

// Sum adds a list of Decimals, returning Zero for an empty list.
func Sum(values ...Decimal) Decimal {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Float64 converts to float64. Reserved for metrics observations and log
// fields — never feed the result back into a money-path calculation.
func (m Decimal) Float64() float64 { return m.d.InexactFloat64() }

func (m Decimal) String() string { return m.d.StringFixed(Scale) }

// MarshalJSON renders as a JSON number with fixed precision, matching the
// teacher's wire conventions for metrics/API payloads.
func (m Decimal) MarshalJSON() ([]byte, error) {
	return []byte(m.d.StringFixed(Scale)), nil
}

// UnmarshalJSON accepts both JSON numbers and JSON strings, since
// Polymarket's REST/WS payloads send prices and sizes as strings.
func (m *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	m.d = d.Round(Scale)
	return nil
}
