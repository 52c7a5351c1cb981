package market

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// CheckCallOrders forces undercollateralized positions to buy back their
// debt from the book, walking positions from least to most collateralized.
// The squeeze cap keeps a forced cover from paying more than 150% of the
// feed median. Detecting a position that cannot cover at the feed price
// triggers a global settlement only when the caller authorizes it.
func (e *Engine) CheckCallOrders(enableBlackSwan bool) (bool, error) {
	feed := e.db.Feed()
	if feed == nil || feed.BlackSwan {
		return false, nil
	}

	median := e.medianCRD()
	if median.IsZero() {
		return false, nil
	}

	settled, err := e.checkForBlackSwan(median, enableBlackSwan)
	if err != nil || settled {
		return settled, err
	}

	filled := false
	for _, call := range e.callsLeastCollateralizedFirst() {
		offer := e.bestCoverOffer(median)
		if offer == nil {
			break
		}

		// Positions behind this one are better collateralized, so
		// the first untriggered position ends the scan.
		if !marginCalled(call, offer) {
			break
		}

		covered, err := e.coverPosition(call, median)
		if err != nil {
			return filled, err
		}
		if !covered {
			break
		}
		filled = true
	}

	return filled, nil
}

// checkForBlackSwan reports whether the least collateralized position can
// no longer cover its debt at the feed median, and settles the whole
// market when authorized to.
func (e *Engine) checkForBlackSwan(median asset.Price, enable bool) (bool, error) {
	calls := e.callsLeastCollateralizedFirst()
	if len(calls) == 0 {
		return false, nil
	}

	if !median.Less(calls[0].CollateralizationPrice()) {
		return false, nil
	}

	if !enable {
		return false, ErrBlackSwanRefused
	}

	if err := e.GlobalSettle(median); err != nil {
		return false, err
	}
	return true, nil
}

// marginCalled reports whether the position's maintenance-adjusted
// collateralization is worse than the best available cover price: the
// offer demands more CRES per CRD than the position can sustain at the
// maintenance margin.
func marginCalled(call *statedb.CallOrder, offer *statedb.LimitOrder) bool {
	adjusted := asset.NewPrice(
		asset.New(call.Debt*genesis.MaintenanceCollateralBP, asset.CRD),
		asset.New(call.Collateral*genesis.CollateralRatioDenom, asset.CRES),
	)
	return offer.SellPrice.Less(adjusted)
}

// bestCoverOffer returns the cheapest CRD offer inside the short
// squeeze cap, or nil when the book offers no acceptable cover.
func (e *Engine) bestCoverOffer(median asset.Price) *statedb.LimitOrder {
	squeeze := asset.NewPrice(
		asset.New(median.Base.Amount*genesis.CollateralRatioDenom, asset.CRD),
		asset.New(median.Quote.Amount*genesis.MinShortSqueezeRatioBP, asset.CRES),
	)

	side := e.ordersSellingCRD()
	if len(side) == 0 || side[0].SellPrice.Less(squeeze) {
		return nil
	}
	return side[0]
}

// coverPosition buys back the position's debt against the book until the
// debt clears or no offer inside the squeeze cap remains. It reports
// whether any debt was covered.
func (e *Engine) coverPosition(call *statedb.CallOrder, median asset.Price) (bool, error) {
	debt, collateral := call.Debt, call.Collateral

	covered := false
	for debt > 0 {
		offer := e.bestCoverOffer(median)
		if offer == nil {
			return covered, nil
		}

		debtTaken := debt
		if offer.ForSale < debtTaken {
			debtTaken = offer.ForSale
		}

		crdTaken := asset.New(debtTaken, asset.CRD)
		cresPaid := offer.SellPrice.Mul(crdTaken)

		if cresPaid.Amount > collateral {
			return covered, errors.Errorf("position %d cover costs %s beyond its collateral", call.ID, cresPaid)
		}

		e.notify(&operation.FillOrder{
			CurrentOwner: call.Borrower,
			CurrentPays:  cresPaid,
			OpenOwner:    offer.Seller,
			OpenOrderID:  offer.OrderID,
			OpenPays:     crdTaken,
		})

		if _, err := e.fillOrder(offer, crdTaken, cresPaid); err != nil {
			return covered, err
		}

		// The bought-back CRD retires against the debt.
		e.db.Globals.Modify(e.db.Gprops(), func(g *statedb.GlobalProperties) {
			g.CurrentCRDSupply = g.CurrentCRDSupply.Sub(crdTaken)
		})

		debt -= debtTaken
		collateral -= cresPaid.Amount

		if debt == 0 {
			remainder := asset.New(collateral, asset.CRES)
			if borrower := e.db.AccountByName(call.Borrower); borrower != nil && remainder.Amount > 0 {
				e.creditBalance(borrower, remainder)
			}
			e.db.CallOrders.Remove(call)
		} else {
			newDebt, newCollateral := debt, collateral
			e.db.CallOrders.Modify(call, func(c *statedb.CallOrder) {
				c.Debt = newDebt
				c.Collateral = newCollateral
			})
		}

		covered = true
	}

	return covered, nil
}

// GlobalSettle collects collateral from every position at the settlement
// price, returns the excess to borrowers, and freezes the debt market.
// Outstanding CRD afterwards redeems pro rata from the settlement fund.
func (e *Engine) GlobalSettle(price asset.Price) error {
	feed := e.db.Feed()
	if feed == nil {
		return errors.New("no feed history to settle against")
	}
	if feed.BlackSwan {
		return errors.New("market already settled")
	}

	var fund int64
	var totalDebt int64

	for _, call := range e.db.CallOrders.All(nil) {
		take := price.Mul(asset.New(call.Debt, asset.CRD))
		if take.Amount > call.Collateral {
			take = asset.New(call.Collateral, asset.CRES)
		}

		fund += take.Amount
		totalDebt += call.Debt

		remainder := asset.New(call.Collateral-take.Amount, asset.CRES)
		if borrower := e.db.AccountByName(call.Borrower); borrower != nil && remainder.Amount > 0 {
			e.creditBalance(borrower, remainder)
		}

		e.db.CallOrders.Remove(call)
	}

	settlement := price
	if totalDebt > 0 && fund > 0 {
		settlement = asset.NewPrice(
			asset.New(totalDebt, asset.CRD),
			asset.New(fund, asset.CRES),
		)
	}

	e.db.Feeds.Modify(feed, func(f *statedb.FeedHistory) {
		f.BlackSwan = true
		f.SettlementPrice = settlement
		f.SettlementFund = fund
	})

	return nil
}

// =============================================================================

// medianCRD returns the feed median oriented with CRD as the base leg,
// or the zero price when no median exists yet.
func (e *Engine) medianCRD() asset.Price {
	feed := e.db.Feed()
	if feed == nil || feed.CurrentMedian.IsZero() {
		return asset.Price{}
	}

	median := feed.CurrentMedian
	if median.Base.Symbol != asset.CRD {
		median = median.Invert()
	}
	return median
}

// callsLeastCollateralizedFirst ranks positions by descending
// debt-to-collateral ratio, oldest first on ties.
func (e *Engine) callsLeastCollateralizedFirst() []*statedb.CallOrder {
	calls := e.db.CallOrders.All(nil)

	sort.SliceStable(calls, func(i, j int) bool {
		pi, pj := calls[i].CollateralizationPrice(), calls[j].CollateralizationPrice()
		if pi.Equal(pj) {
			return calls[i].ID < calls[j].ID
		}
		return pj.Less(pi)
	})

	return calls
}
