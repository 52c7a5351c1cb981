// Package asset provides the money types used across the chain: asset
// amounts tagged with a symbol and prices expressed as a ratio of two
// asset amounts.
package asset

import (
	"fmt"
	"math"
)

// Symbol identifies one of the three chain denominations.
type Symbol string

// The three denominations the chain issues. CRES is the native liquid
// token, CRD is the debt token pegged by the feed median, VESTS are
// vesting shares in the common vesting fund.
const (
	CRES  Symbol = "CRES"
	CRD   Symbol = "CRD"
	VESTS Symbol = "VESTS"
)

// =============================================================================

// Asset is an amount of one denomination. Amounts are integral in the
// smallest unit (3 decimal places for display purposes).
type Asset struct {
	Amount int64  `json:"amount"`
	Symbol Symbol `json:"symbol"`
}

// New constructs an asset from an amount and symbol.
func New(amount int64, symbol Symbol) Asset {
	return Asset{Amount: amount, Symbol: symbol}
}

// Zero constructs a zero amount of the specified symbol.
func Zero(symbol Symbol) Asset {
	return Asset{Symbol: symbol}
}

// Validate checks the asset holds a known symbol and a non-negative amount.
func (a Asset) Validate() error {
	switch a.Symbol {
	case CRES, CRD, VESTS:
	default:
		return fmt.Errorf("unknown asset symbol %q", a.Symbol)
	}

	if a.Amount < 0 {
		return fmt.Errorf("negative asset amount %d", a.Amount)
	}

	return nil
}

// IsZero reports whether the amount is zero.
func (a Asset) IsZero() bool {
	return a.Amount == 0
}

// IsNegative reports whether the amount is below zero.
func (a Asset) IsNegative() bool {
	return a.Amount < 0
}

// Add returns a+b. Both assets must carry the same symbol; mixing
// denominations is a consensus-breaking programmer error and aborts.
func (a Asset) Add(b Asset) Asset {
	if a.Symbol != b.Symbol {
		panic(fmt.Sprintf("asset symbol mismatch: %s + %s", a.Symbol, b.Symbol))
	}
	if (b.Amount > 0 && a.Amount > math.MaxInt64-b.Amount) ||
		(b.Amount < 0 && a.Amount < math.MinInt64-b.Amount) {
		panic(fmt.Sprintf("asset amount overflow: %d + %d %s", a.Amount, b.Amount, a.Symbol))
	}

	return Asset{Amount: a.Amount + b.Amount, Symbol: a.Symbol}
}

// Sub returns a-b under the same symbol rules as Add.
func (a Asset) Sub(b Asset) Asset {
	return a.Add(Asset{Amount: -b.Amount, Symbol: b.Symbol})
}

// Neg returns the negated amount.
func (a Asset) Neg() Asset {
	return Asset{Amount: -a.Amount, Symbol: a.Symbol}
}

// String implements the fmt.Stringer interface.
func (a Asset) String() string {
	return fmt.Sprintf("%d.%03d %s", a.Amount/1000, abs(a.Amount%1000), a.Symbol)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
