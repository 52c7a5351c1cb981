package asset

import (
	"fmt"
	"math"
	"math/big"
)

// Price is an exchange rate expressed as the ratio Base/Quote. A price of
// {1 CRD, 4 CRES} values one CRD at four CRES.
type Price struct {
	Base  Asset `json:"base"`
	Quote Asset `json:"quote"`
}

// NewPrice constructs a price from its two legs.
func NewPrice(base Asset, quote Asset) Price {
	return Price{Base: base, Quote: quote}
}

// MaxPrice returns the highest representable price for the pair.
func MaxPrice(base Symbol, quote Symbol) Price {
	return Price{
		Base:  Asset{Amount: math.MaxInt64, Symbol: base},
		Quote: Asset{Amount: 1, Symbol: quote},
	}
}

// MinPrice returns the lowest representable price for the pair.
func MinPrice(base Symbol, quote Symbol) Price {
	return Price{
		Base:  Asset{Amount: 1, Symbol: base},
		Quote: Asset{Amount: math.MaxInt64, Symbol: quote},
	}
}

// Validate checks both legs carry positive amounts and distinct symbols.
func (p Price) Validate() error {
	if err := p.Base.Validate(); err != nil {
		return err
	}
	if err := p.Quote.Validate(); err != nil {
		return err
	}

	if p.Base.Amount <= 0 || p.Quote.Amount <= 0 {
		return fmt.Errorf("price legs must be positive: %s / %s", p.Base, p.Quote)
	}

	if p.Base.Symbol == p.Quote.Symbol {
		return fmt.Errorf("price legs must differ in symbol: %s", p.Base.Symbol)
	}

	return nil
}

// IsZero reports whether the price carries no value at all.
func (p Price) IsZero() bool {
	return p.Base.Amount == 0 && p.Quote.Amount == 0
}

// Invert swaps the two legs.
func (p Price) Invert() Price {
	return Price{Base: p.Quote, Quote: p.Base}
}

// cross computes a.Base*b.Quote and b.Base*a.Quote as 128-bit products so
// price comparison never overflows.
func cross(a Price, b Price) (*big.Int, *big.Int) {
	lhs := new(big.Int).Mul(big.NewInt(a.Base.Amount), big.NewInt(b.Quote.Amount))
	rhs := new(big.Int).Mul(big.NewInt(b.Base.Amount), big.NewInt(a.Quote.Amount))
	return lhs, rhs
}

// Less reports whether p is a lower rate than o. Both prices must quote
// the same ordered pair of symbols.
func (p Price) Less(o Price) bool {
	samePair(p, o)
	lhs, rhs := cross(p, o)
	return lhs.Cmp(rhs) < 0
}

// Equal reports whether the two rates are numerically identical.
func (p Price) Equal(o Price) bool {
	samePair(p, o)
	lhs, rhs := cross(p, o)
	return lhs.Cmp(rhs) == 0
}

func samePair(p Price, o Price) {
	if p.Base.Symbol != o.Base.Symbol || p.Quote.Symbol != o.Quote.Symbol {
		panic(fmt.Sprintf("price pair mismatch: %s/%s vs %s/%s",
			p.Base.Symbol, p.Quote.Symbol, o.Base.Symbol, o.Quote.Symbol))
	}
}

// Mul converts an amount across the rate. An asset in the base symbol
// yields the quote symbol and vice versa. The division truncates toward
// zero; the remainder stays with the payer.
func (p Price) Mul(a Asset) Asset {
	switch a.Symbol {
	case p.Base.Symbol:
		result := new(big.Int).Mul(big.NewInt(a.Amount), big.NewInt(p.Quote.Amount))
		result.Quo(result, big.NewInt(p.Base.Amount))
		return Asset{Amount: toInt64(result), Symbol: p.Quote.Symbol}

	case p.Quote.Symbol:
		result := new(big.Int).Mul(big.NewInt(a.Amount), big.NewInt(p.Base.Amount))
		result.Quo(result, big.NewInt(p.Quote.Amount))
		return Asset{Amount: toInt64(result), Symbol: p.Base.Symbol}

	default:
		panic(fmt.Sprintf("asset %s cannot convert across %s/%s", a.Symbol, p.Base.Symbol, p.Quote.Symbol))
	}
}

func toInt64(v *big.Int) int64 {
	if !v.IsInt64() {
		panic(fmt.Sprintf("amount overflow converting %s across a price", v))
	}
	return v.Int64()
}

// String implements the fmt.Stringer interface.
func (p Price) String() string {
	return fmt.Sprintf("%s / %s", p.Base, p.Quote)
}
