package operation

import (
	"fmt"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
)

// LimitOrderCreate places an order to sell AmountToSell for at least
// MinToReceive, deriving the limit price from the two amounts.
type LimitOrderCreate struct {
	Owner        string      `json:"owner" validate:"required"`
	OrderID      uint32      `json:"order_id"`
	AmountToSell asset.Asset `json:"amount_to_sell"`
	MinToReceive asset.Asset `json:"min_to_receive"`
	FillOrKill   bool        `json:"fill_or_kill"`
	Expiration   uint64      `json:"expiration"`
}

// Kind implements the Operation interface.
func (op *LimitOrderCreate) Kind() Kind { return KindLimitOrderCreate }

// Validate implements the Operation interface.
func (op *LimitOrderCreate) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Owner) {
		return fmt.Errorf("invalid account name %q", op.Owner)
	}
	return validateMarketPair(op.AmountToSell, op.MinToReceive)
}

// Authorities implements the Operation interface.
func (op *LimitOrderCreate) Authorities() Required {
	return Required{Active: []string{op.Owner}}
}

// SellPrice returns the implied limit price of the order.
func (op *LimitOrderCreate) SellPrice() asset.Price {
	return asset.NewPrice(op.AmountToSell, op.MinToReceive)
}

// =============================================================================

// LimitOrderCreate2 places an order at an explicit exchange rate instead
// of deriving it from the receive amount.
type LimitOrderCreate2 struct {
	Owner        string      `json:"owner" validate:"required"`
	OrderID      uint32      `json:"order_id"`
	AmountToSell asset.Asset `json:"amount_to_sell"`
	ExchangeRate asset.Price `json:"exchange_rate"`
	FillOrKill   bool        `json:"fill_or_kill"`
	Expiration   uint64      `json:"expiration"`
}

// Kind implements the Operation interface.
func (op *LimitOrderCreate2) Kind() Kind { return KindLimitOrderCreate2 }

// Validate implements the Operation interface.
func (op *LimitOrderCreate2) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Owner) {
		return fmt.Errorf("invalid account name %q", op.Owner)
	}
	if err := op.ExchangeRate.Validate(); err != nil {
		return err
	}
	if op.AmountToSell.Symbol != op.ExchangeRate.Base.Symbol {
		return fmt.Errorf("sell asset must be the base of the exchange rate")
	}
	return validateMarketPair(op.AmountToSell, op.ExchangeRate.Quote)
}

// Authorities implements the Operation interface.
func (op *LimitOrderCreate2) Authorities() Required {
	return Required{Active: []string{op.Owner}}
}

// =============================================================================

// LimitOrderCancel withdraws an open order, refunding whatever remains
// unsold.
type LimitOrderCancel struct {
	Owner   string `json:"owner" validate:"required"`
	OrderID uint32 `json:"order_id"`
}

// Kind implements the Operation interface.
func (op *LimitOrderCancel) Kind() Kind { return KindLimitOrderCancel }

// Validate implements the Operation interface.
func (op *LimitOrderCancel) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Owner) {
		return fmt.Errorf("invalid account name %q", op.Owner)
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *LimitOrderCancel) Authorities() Required {
	return Required{Active: []string{op.Owner}}
}

// =============================================================================

// CallOrderUpdate adjusts a margin position: DeltaCollateral CRES posted
// against DeltaDebt CRD drawn. Negative deltas unwind the position.
type CallOrderUpdate struct {
	Owner           string      `json:"owner" validate:"required"`
	DeltaCollateral asset.Asset `json:"delta_collateral"`
	DeltaDebt       asset.Asset `json:"delta_debt"`
}

// Kind implements the Operation interface.
func (op *CallOrderUpdate) Kind() Kind { return KindCallOrderUpdate }

// Validate implements the Operation interface.
func (op *CallOrderUpdate) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Owner) {
		return fmt.Errorf("invalid account name %q", op.Owner)
	}
	if op.DeltaCollateral.Symbol != asset.CRES {
		return fmt.Errorf("collateral must be %s", asset.CRES)
	}
	if op.DeltaDebt.Symbol != asset.CRD {
		return fmt.Errorf("debt must be %s", asset.CRD)
	}
	if op.DeltaCollateral.Amount == 0 && op.DeltaDebt.Amount == 0 {
		return fmt.Errorf("call order update must change something")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *CallOrderUpdate) Authorities() Required {
	return Required{Active: []string{op.Owner}}
}

// =============================================================================

// FeedPublish records a witness's observed CRES/CRD price used to compute
// the feed median.
type FeedPublish struct {
	Publisher    string      `json:"publisher" validate:"required"`
	ExchangeRate asset.Price `json:"exchange_rate"`
}

// Kind implements the Operation interface.
func (op *FeedPublish) Kind() Kind { return KindFeedPublish }

// Validate implements the Operation interface.
func (op *FeedPublish) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Publisher) {
		return fmt.Errorf("invalid account name %q", op.Publisher)
	}
	if err := op.ExchangeRate.Validate(); err != nil {
		return err
	}
	base, quote := op.ExchangeRate.Base.Symbol, op.ExchangeRate.Quote.Symbol
	if !(base == asset.CRES && quote == asset.CRD) && !(base == asset.CRD && quote == asset.CRES) {
		return fmt.Errorf("feed must price %s against %s", asset.CRES, asset.CRD)
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *FeedPublish) Authorities() Required {
	return Required{Active: []string{op.Publisher}}
}

// =============================================================================

// validateMarketPair checks a sell/receive pair names a tradeable market.
func validateMarketPair(sell asset.Asset, receive asset.Asset) error {
	if err := sell.Validate(); err != nil {
		return err
	}
	if err := receive.Validate(); err != nil {
		return err
	}
	if sell.Amount <= 0 || receive.Amount <= 0 {
		return fmt.Errorf("order amounts must be positive")
	}

	sym := func(s asset.Symbol) bool { return s == asset.CRES || s == asset.CRD }
	if !sym(sell.Symbol) || !sym(receive.Symbol) || sell.Symbol == receive.Symbol {
		return fmt.Errorf("orders trade %s against %s only", asset.CRES, asset.CRD)
	}
	return nil
}
