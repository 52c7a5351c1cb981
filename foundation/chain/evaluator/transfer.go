package evaluator

import (
	"math"

	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

func evalTransfer(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.Transfer)

	from, err := account(ctx, op.From)
	if err != nil {
		return err
	}
	to, err := account(ctx, op.To)
	if err != nil {
		return err
	}

	if op.Amount.Symbol != asset.CRES && op.Amount.Symbol != asset.CRD {
		return errors.Errorf("cannot transfer %s", op.Amount)
	}
	if op.Amount.Amount <= 0 {
		return errors.Errorf("transfer amount must be positive, got %s", op.Amount)
	}

	if err := debitLiquid(ctx, from, op.Amount); err != nil {
		return err
	}
	return creditLiquid(ctx, to, op.Amount)
}

func evalTransferToVesting(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.TransferToVesting)

	from, err := account(ctx, op.From)
	if err != nil {
		return err
	}

	// An empty To vests to the sender.
	toName := op.To
	if toName == "" {
		toName = op.From
	}
	to, err := account(ctx, toName)
	if err != nil {
		return err
	}

	if op.Amount.Symbol != asset.CRES || op.Amount.Amount <= 0 {
		return errors.Errorf("vesting deposits must be positive CRES, got %s", op.Amount)
	}

	if err := debitLiquid(ctx, from, op.Amount); err != nil {
		return err
	}
	ctx.Reward.CreateVesting(to, op.Amount)

	return nil
}

func evalWithdrawVesting(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.WithdrawVesting)

	acct, err := account(ctx, op.Account)
	if err != nil {
		return err
	}

	if op.VestingShares.Symbol != asset.VESTS || op.VestingShares.IsNegative() {
		return errors.Errorf("withdrawal must name non-negative VESTS, got %s", op.VestingShares)
	}
	if acct.VestingShares.Amount < op.VestingShares.Amount {
		return errors.Errorf("account %q has %s vested, cannot withdraw %s", acct.Name, acct.VestingShares, op.VestingShares)
	}

	// A zero withdrawal cancels the active schedule.
	if op.VestingShares.IsZero() {
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.VestingWithdrawRate = asset.Zero(asset.VESTS)
			a.NextVestingWithdrawal = math.MaxUint64
			a.ToWithdraw = 0
			a.Withdrawn = 0
		})
		return nil
	}

	rate := op.VestingShares.Amount / int64(genesis.VestingWithdrawIntervals)
	if rate == 0 {
		rate = 1
	}

	ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
		a.VestingWithdrawRate = asset.New(rate, asset.VESTS)
		a.NextVestingWithdrawal = ctx.Now() + genesis.VestingWithdrawIntervalSeconds
		a.ToWithdraw = op.VestingShares.Amount
		a.Withdrawn = 0
	})

	return nil
}

func evalSetWithdrawVestingRoute(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.SetWithdrawVestingRoute)

	if _, err := account(ctx, op.FromAccount); err != nil {
		return err
	}
	if _, err := account(ctx, op.ToAccount); err != nil {
		return err
	}
	if int64(op.Percent) > genesis.PercentDenomBP {
		return errors.Errorf("route percent %d exceeds %d", op.Percent, genesis.PercentDenomBP)
	}

	route := ctx.DB.WithdrawRouteBy(op.FromAccount, op.ToAccount)

	switch {
	case route == nil && op.Percent == 0:
		return errors.Errorf("no route from %q to %q to remove", op.FromAccount, op.ToAccount)

	case route == nil:
		count := 0
		total := int64(op.Percent)
		for _, r := range ctx.DB.WithdrawRoutes.All(nil) {
			if r.FromAccount == op.FromAccount {
				count++
				total += int64(r.Percent)
			}
		}
		if count >= genesis.MaxWithdrawRoutes {
			return errors.Errorf("account %q already has %d withdraw routes", op.FromAccount, count)
		}
		if total > int64(genesis.PercentDenomBP) {
			return errors.Errorf("withdraw routes for %q would sum to %d basis points", op.FromAccount, total)
		}
		ctx.DB.WithdrawRoutes.Create(func(r *statedb.WithdrawVestingRoute) {
			r.FromAccount = op.FromAccount
			r.ToAccount = op.ToAccount
			r.Percent = op.Percent
			r.AutoVest = op.AutoVest
		})

	case op.Percent == 0:
		ctx.DB.WithdrawRoutes.Remove(route)

	default:
		total := int64(op.Percent)
		for _, r := range ctx.DB.WithdrawRoutes.All(nil) {
			if r.FromAccount == op.FromAccount && r.ToAccount != op.ToAccount {
				total += int64(r.Percent)
			}
		}
		if total > int64(genesis.PercentDenomBP) {
			return errors.Errorf("withdraw routes for %q would sum to %d basis points", op.FromAccount, total)
		}
		ctx.DB.WithdrawRoutes.Modify(route, func(r *statedb.WithdrawVestingRoute) {
			r.Percent = op.Percent
			r.AutoVest = op.AutoVest
		})
	}

	return nil
}

// =============================================================================

func evalTransferToSavings(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.TransferToSavings)

	from, err := account(ctx, op.From)
	if err != nil {
		return err
	}
	to, err := account(ctx, op.To)
	if err != nil {
		return err
	}

	if op.Amount.Amount <= 0 {
		return errors.Errorf("savings deposit must be positive, got %s", op.Amount)
	}

	if err := debitLiquid(ctx, from, op.Amount); err != nil {
		return err
	}
	return creditSavings(ctx, to, op.Amount)
}

func evalTransferFromSavings(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.TransferFromSavings)

	from, err := account(ctx, op.From)
	if err != nil {
		return err
	}
	if _, err := account(ctx, op.To); err != nil {
		return err
	}

	if op.Amount.Amount <= 0 {
		return errors.Errorf("savings withdrawal must be positive, got %s", op.Amount)
	}
	if from.SavingsWithdrawRequests >= genesis.SavingsWithdrawRequestLimit {
		return errors.Errorf("account %q has too many pending savings withdrawals", op.From)
	}
	if ctx.DB.SavingsWithdrawBy(op.From, op.RequestID) != nil {
		return errors.Errorf("savings withdrawal request %d already exists for %q", op.RequestID, op.From)
	}

	if err := debitSavings(ctx, from, op.Amount); err != nil {
		return err
	}

	ctx.DB.SavingsWithdraws.Create(func(w *statedb.SavingsWithdraw) {
		w.From = op.From
		w.To = op.To
		w.Memo = op.Memo
		w.RequestID = op.RequestID
		w.Amount = op.Amount
		w.Complete = ctx.Now() + genesis.SavingsWithdrawTimeSeconds
	})
	ctx.DB.Accounts.Modify(from, func(a *statedb.Account) {
		a.SavingsWithdrawRequests++
	})

	return nil
}

func evalCancelTransferFromSavings(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.CancelTransferFromSavings)

	from, err := account(ctx, op.From)
	if err != nil {
		return err
	}

	withdraw := ctx.DB.SavingsWithdrawBy(op.From, op.RequestID)
	if withdraw == nil {
		return errors.Errorf("no savings withdrawal request %d for %q", op.RequestID, op.From)
	}

	if err := creditSavings(ctx, from, withdraw.Amount); err != nil {
		return err
	}
	ctx.DB.SavingsWithdraws.Remove(withdraw)
	ctx.DB.Accounts.Modify(from, func(a *statedb.Account) {
		a.SavingsWithdrawRequests--
	})

	return nil
}

// =============================================================================

func evalConvert(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.Convert)

	owner, err := account(ctx, op.Owner)
	if err != nil {
		return err
	}

	if op.Amount.Symbol != asset.CRD || op.Amount.Amount <= 0 {
		return errors.Errorf("only positive CRD can be converted, got %s", op.Amount)
	}
	if ctx.DB.ConvertRequestBy(op.Owner, op.RequestID) != nil {
		return errors.Errorf("conversion request %d already exists for %q", op.RequestID, op.Owner)
	}

	// The CRD leaves the balance now but stays in supply until the
	// request fills at the delayed median.
	if err := debitLiquid(ctx, owner, op.Amount); err != nil {
		return err
	}

	ctx.DB.ConvertRequests.Create(func(r *statedb.ConvertRequest) {
		r.Owner = op.Owner
		r.RequestID = op.RequestID
		r.Amount = op.Amount
		r.ConversionDate = ctx.Now() + genesis.ConversionDelaySeconds
	})

	return nil
}
