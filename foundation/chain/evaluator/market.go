package evaluator

import (
	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

func evalLimitOrderCreate(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.LimitOrderCreate)
	return placeLimitOrder(ctx, op.Owner, op.OrderID, op.AmountToSell, op.SellPrice(), op.Expiration, op.FillOrKill)
}

func evalLimitOrderCreate2(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.LimitOrderCreate2)

	if op.ExchangeRate.Base.Symbol != op.AmountToSell.Symbol {
		return errors.Errorf("exchange rate base %s does not match sale of %s", op.ExchangeRate.Base, op.AmountToSell)
	}
	return placeLimitOrder(ctx, op.Owner, op.OrderID, op.AmountToSell, op.ExchangeRate, op.Expiration, op.FillOrKill)
}

func placeLimitOrder(ctx *Context, owner string, orderID uint32, sell asset.Asset, price asset.Price, expiration uint64, fillOrKill bool) error {
	acct, err := account(ctx, owner)
	if err != nil {
		return err
	}

	if sell.Amount <= 0 {
		return errors.Errorf("order must sell a positive amount, got %s", sell)
	}
	if expiration <= ctx.Now() {
		return errors.Errorf("order expiration is in the past")
	}
	if ctx.DB.LimitOrderBy(owner, orderID) != nil {
		return errors.Errorf("order %d already exists for %q", orderID, owner)
	}

	if err := debitLiquid(ctx, acct, sell); err != nil {
		return err
	}

	order := ctx.DB.LimitOrders.Create(func(o *statedb.LimitOrder) {
		o.Created = ctx.Now()
		o.Expiration = expiration
		o.Seller = owner
		o.OrderID = orderID
		o.ForSale = sell.Amount
		o.SellPrice = price
	})

	filled, err := ctx.Market.ApplyOrder(order)
	if err != nil {
		return err
	}
	if fillOrKill && !filled {
		return errors.Errorf("fill-or-kill order %d for %q did not fill", orderID, owner)
	}

	return nil
}

func evalLimitOrderCancel(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.LimitOrderCancel)

	order := ctx.DB.LimitOrderBy(op.Owner, op.OrderID)
	if order == nil {
		return errors.Errorf("no order %d for %q", op.OrderID, op.Owner)
	}

	return ctx.Market.CancelOrder(order)
}

// =============================================================================

func evalCallOrderUpdate(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.CallOrderUpdate)

	acct, err := account(ctx, op.Owner)
	if err != nil {
		return err
	}

	feed := ctx.DB.Feed()
	if feed.BlackSwan {
		return errors.Errorf("the debt market is frozen after settlement")
	}
	if feed.CurrentMedian.Base.IsZero() {
		return errors.Errorf("no price feed, debt positions are unavailable")
	}

	call := ctx.DB.CallOrderBy(op.Owner)

	collateral := op.DeltaCollateral
	debt := op.DeltaDebt
	if call != nil {
		collateral = collateral.Add(asset.New(call.Collateral, asset.CRES))
		debt = debt.Add(asset.New(call.Debt, asset.CRD))
	}
	if collateral.IsNegative() {
		return errors.Errorf("position collateral cannot go negative")
	}
	if debt.IsNegative() {
		return errors.Errorf("position debt cannot go negative")
	}

	// Added collateral leaves the balance up front. Withdrawn collateral
	// and repaid debt settle after the position passes its margin check.
	if op.DeltaCollateral.Amount > 0 {
		if err := debitLiquid(ctx, acct, op.DeltaCollateral); err != nil {
			return err
		}
	}
	if op.DeltaDebt.Amount < 0 {
		if err := debitLiquid(ctx, acct, op.DeltaDebt.Neg()); err != nil {
			return err
		}
	}

	gp := ctx.DB.Gprops()

	switch {
	case debt.IsZero():
		if call == nil {
			return errors.Errorf("account %q has no debt position", op.Owner)
		}
		// Closing the position returns all remaining collateral.
		if !collateral.IsZero() {
			if err := creditLiquid(ctx, acct, collateral); err != nil {
				return err
			}
		}
		ctx.DB.CallOrders.Remove(call)

	default:
		median := feed.CurrentMedian
		if median.Base.Symbol != asset.CRD {
			median = median.Invert()
		}

		// The position must clear the maintenance ratio at the median.
		adjusted := asset.Price{
			Base:  asset.New(debt.Amount*genesis.MaintenanceCollateralBP, asset.CRD),
			Quote: asset.New(collateral.Amount*genesis.CollateralRatioDenom, asset.CRES),
		}
		if median.Less(adjusted) {
			return errors.Errorf("position for %q would fall below the maintenance collateral ratio", op.Owner)
		}

		if call == nil {
			ctx.DB.CallOrders.Create(func(c *statedb.CallOrder) {
				c.Borrower = op.Owner
				c.Collateral = collateral.Amount
				c.Debt = debt.Amount
			})
		} else {
			ctx.DB.CallOrders.Modify(call, func(c *statedb.CallOrder) {
				c.Collateral = collateral.Amount
				c.Debt = debt.Amount
			})
		}

		if op.DeltaCollateral.Amount < 0 {
			if err := creditLiquid(ctx, acct, op.DeltaCollateral.Neg()); err != nil {
				return err
			}
		}
	}

	// Borrowed CRD is new supply; repaid CRD retires.
	if op.DeltaDebt.Amount > 0 {
		if err := creditLiquid(ctx, acct, op.DeltaDebt); err != nil {
			return err
		}
	}
	if !op.DeltaDebt.IsZero() {
		ctx.DB.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
			g.CurrentCRDSupply = g.CurrentCRDSupply.Add(op.DeltaDebt)
		})
	}

	return nil
}

// =============================================================================

func evalFeedPublish(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.FeedPublish)

	witness := ctx.DB.WitnessByOwner(op.Publisher)
	if witness == nil {
		return errors.Errorf("account %q is not a witness", op.Publisher)
	}
	if ctx.DB.Feed().BlackSwan {
		return errors.Errorf("price feeds are closed after settlement")
	}

	ctx.DB.Witnesses.Modify(witness, func(w *statedb.Witness) {
		w.CRDExchangeRate = op.ExchangeRate
		w.LastCRDExchange = ctx.Now()
	})

	return nil
}
