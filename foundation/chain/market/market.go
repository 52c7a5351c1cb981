// Package market implements the price/time-priority matching engine for
// limit orders and the margin-call machinery for call orders, including
// black-swan detection and global settlement.
package market

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// Match result bits: bit 0 reports the taker order filled completely,
// bit 1 reports the resting order filled completely.
const (
	TakerFilled = 0x1
	MakerFilled = 0x2
)

// ErrBlackSwanRefused is returned when covering the least collateralized
// position would exceed its collateral but the caller did not authorize
// a global settlement.
var ErrBlackSwanRefused = errors.New("black swan detected without authorization to settle")

// =============================================================================

// Notify receives the virtual operations the engine generates so
// observers see fills in the total operation order.
type Notify func(op operation.Operation)

// Engine matches orders against the book held in the state database.
type Engine struct {
	db     *statedb.DB
	notify Notify
}

// New constructs a matching engine over the state database.
func New(db *statedb.DB, notify Notify) *Engine {
	if notify == nil {
		notify = func(operation.Operation) {}
	}
	return &Engine{db: db, notify: notify}
}

// =============================================================================

// ApplyOrder matches a newly created limit order against the book and
// reports whether the order was completely filled (and removed).
func (e *Engine) ApplyOrder(order *statedb.LimitOrder) (bool, error) {
	// The counterparty must offer at least the inverse of our price.
	maxPrice := order.SellPrice.Invert()

	for {
		maker := e.bestCounterOrder(order, maxPrice)
		if maker == nil {
			return false, nil
		}

		// Match at the resting order's price, never the taker's own, so
		// a taker cannot give itself a better execution than the book.
		result, err := e.match(order, maker, maker.SellPrice)
		if err != nil {
			return false, err
		}

		if result&TakerFilled != 0 {
			return true, nil
		}
		if result&MakerFilled == 0 {
			// Neither side filled: the match produced no progress,
			// which violates the engine's invariant.
			return false, errors.New("order match made no progress")
		}
	}
}

// bestCounterOrder returns the best priced resting order still
// acceptable to the taker, preferring older orders at equal price.
func (e *Engine) bestCounterOrder(taker *statedb.LimitOrder, maxPrice asset.Price) *statedb.LimitOrder {
	counterSym := taker.SellPrice.Quote.Symbol

	candidates := e.db.LimitOrders.All(nil)
	var best *statedb.LimitOrder
	for _, o := range candidates {
		if o.SellPrice.Base.Symbol != counterSym || o.ID == taker.ID {
			continue
		}
		if o.SellPrice.Less(maxPrice) {
			continue
		}
		if best == nil || best.SellPrice.Less(o.SellPrice) {
			best = o
		}
	}
	return best
}

// match fills the two orders against each other at the given clearing
// price, preferring to fully fill whichever side has less value. Numeric
// ties fill both sides.
func (e *Engine) match(taker *statedb.LimitOrder, maker *statedb.LimitOrder, matchPrice asset.Price) (int, error) {
	takerForSale := taker.AmountForSale()
	makerForSale := maker.AmountForSale()

	var takerPays, makerPays asset.Asset

	// Value the taker's full remainder in the maker's sell denomination.
	takerWants := matchPrice.Mul(takerForSale)

	if takerWants.Amount <= makerForSale.Amount {
		takerPays = takerForSale
		makerPays = takerWants
	} else {
		makerPays = makerForSale
		takerPays = matchPrice.Mul(makerForSale)
	}

	e.notify(&operation.FillOrder{
		CurrentOwner:   taker.Seller,
		CurrentOrderID: taker.OrderID,
		CurrentPays:    takerPays,
		OpenOwner:      maker.Seller,
		OpenOrderID:    maker.OrderID,
		OpenPays:       makerPays,
	})

	result := 0
	takerDone, err := e.fillOrder(taker, takerPays, makerPays)
	if err != nil {
		return 0, err
	}
	if takerDone {
		result |= TakerFilled
	}

	makerDone, err := e.fillOrder(maker, makerPays, takerPays)
	if err != nil {
		return 0, err
	}
	if makerDone {
		result |= MakerFilled
	}

	if result == 0 {
		return 0, errors.New("match filled neither order")
	}
	return result, nil
}

// fillOrder pays out one side of a match and reports whether the order
// left the book. A remainder whose proceeds resolve to zero is dust and
// cancels the order.
func (e *Engine) fillOrder(order *statedb.LimitOrder, pays asset.Asset, receives asset.Asset) (bool, error) {
	if pays.Amount <= 0 || receives.Amount < 0 {
		return false, errors.Errorf("order %d pays %s for %s", order.ID, pays, receives)
	}

	seller := e.db.AccountByName(order.Seller)
	if seller == nil {
		return false, errors.Errorf("order %d names unknown seller %q", order.ID, order.Seller)
	}

	e.creditBalance(seller, receives)
	e.trackVolume(seller, pays, receives)

	if pays.Amount == order.ForSale {
		e.db.LimitOrders.Remove(order)
		return true, nil
	}

	e.db.LimitOrders.Modify(order, func(o *statedb.LimitOrder) {
		o.ForSale -= pays.Amount
	})

	// Dust rule: the remainder can no longer buy anything at the
	// order's own price, so it leaves the book without a fill.
	if order.AmountToReceive().IsZero() {
		if err := e.CancelOrder(order); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, nil
}

// CancelOrder refunds the unsold remainder and removes the order.
func (e *Engine) CancelOrder(order *statedb.LimitOrder) error {
	seller := e.db.AccountByName(order.Seller)
	if seller == nil {
		return errors.Errorf("order %d names unknown seller %q", order.ID, order.Seller)
	}

	e.creditBalance(seller, order.AmountForSale())
	e.db.LimitOrders.Remove(order)

	return nil
}

// =============================================================================

// creditBalance adds a liquid amount to the account.
func (e *Engine) creditBalance(account *statedb.Account, amount asset.Asset) {
	e.db.Accounts.Modify(account, func(a *statedb.Account) {
		switch amount.Symbol {
		case asset.CRES:
			a.Balance = a.Balance.Add(amount)
		case asset.CRD:
			a.CRDBalance = a.CRDBalance.Add(amount)
		}
	})
}

// trackVolume accumulates market-making volume for the hourly liquidity
// reward.
func (e *Engine) trackVolume(account *statedb.Account, pays asset.Asset, receives asset.Asset) {
	now := e.db.Gprops().Time

	e.db.Accounts.Modify(account, func(a *statedb.Account) {
		if pays.Symbol == asset.CRES {
			a.CRESVolume += pays.Amount
		} else {
			a.CRDVolume += pays.Amount
		}
		if receives.Symbol == asset.CRES {
			a.CRESVolume += receives.Amount
		} else {
			a.CRDVolume += receives.Amount
		}
		a.LiquidityLastUpdate = now
	})
}

// =============================================================================

// ordersSellingCRD returns the book side that sells CRD for CRES,
// cheapest CRES-per-CRD first, older orders first at equal price.
func (e *Engine) ordersSellingCRD() []*statedb.LimitOrder {
	all := e.db.LimitOrders.All(nil)

	var side []*statedb.LimitOrder
	for _, o := range all {
		if o.SellPrice.Base.Symbol == asset.CRD {
			side = append(side, o)
		}
	}

	// A higher sell price offers more CRD per CRES, so it is the
	// cheaper cover for a margin call.
	sort.SliceStable(side, func(i, j int) bool {
		if side[i].SellPrice.Equal(side[j].SellPrice) {
			return side[i].ID < side[j].ID
		}
		return side[j].SellPrice.Less(side[i].SellPrice)
	})

	return side
}
