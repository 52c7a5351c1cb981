package evaluator

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

func evalAccountCreate(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.AccountCreate)

	creator, err := account(ctx, op.Creator)
	if err != nil {
		return err
	}

	if ctx.DB.AccountByName(op.NewAccountName) != nil {
		return errors.Errorf("account %q already exists", op.NewAccountName)
	}

	if op.Fee.Symbol != asset.CRES {
		return errors.Errorf("account creation fee must be in CRES, got %s", op.Fee)
	}

	minFee := ctx.DB.Schedule().MedianProps.AccountCreationFee
	if op.Fee.Amount < minFee.Amount {
		return errors.Errorf("fee %s below the witness-voted minimum %s", op.Fee, minFee)
	}

	if err := debitLiquid(ctx, creator, op.Fee); err != nil {
		return err
	}

	now := ctx.Now()

	acct := ctx.DB.Accounts.Create(func(a *statedb.Account) {
		a.Name = op.NewAccountName
		a.Owner = op.Owner
		a.Active = op.Active
		a.Posting = op.Posting
		a.MemoKey = op.MemoKey
		a.JSONMetadata = op.JSONMetadata
		a.Created = now
		a.RecoveryAccount = op.Creator
		a.Balance = asset.Zero(asset.CRES)
		a.SavingsBalance = asset.Zero(asset.CRES)
		a.CRDBalance = asset.Zero(asset.CRD)
		a.SavingsCRDBalance = asset.Zero(asset.CRD)
		a.CRDSeconds = big.NewInt(0)
		a.CRDSecondsLastUpdate = now
		a.VestingShares = asset.Zero(asset.VESTS)
		a.VestingWithdrawRate = asset.Zero(asset.VESTS)
		a.VotingPower = genesis.VotePowerFull
		a.LastVoteTime = now
		a.AverageBandwidth = big.NewInt(0)
		a.LifetimeBandwidth = big.NewInt(0)
		a.AverageMarketBandwidth = big.NewInt(0)
	})

	// The fee seeds the new account as vesting shares, so fresh
	// accounts start with bandwidth and voting stake.
	if !op.Fee.IsZero() {
		ctx.Reward.CreateVesting(acct, op.Fee)
	}

	return nil
}

func evalAccountUpdate(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.AccountUpdate)

	acct, err := account(ctx, op.Account)
	if err != nil {
		return err
	}

	ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
		if op.Owner != nil {
			a.Owner = *op.Owner
		}
		if op.Active != nil {
			a.Active = *op.Active
		}
		if op.Posting != nil {
			a.Posting = *op.Posting
		}
		if op.MemoKey != "" {
			a.MemoKey = op.MemoKey
		}
		if op.JSONMetadata != "" {
			a.JSONMetadata = op.JSONMetadata
		}
	})

	return nil
}

func evalDeclineVotingRights(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.DeclineVotingRights)

	acct, err := account(ctx, op.Account)
	if err != nil {
		return err
	}

	if acct.DeclinedVoting {
		return errors.Errorf("account %q has already declined its voting rights", op.Account)
	}

	if op.Decline {
		if acct.DeclineEffective != 0 {
			return errors.Errorf("account %q already has a pending decline request", op.Account)
		}
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.DeclineEffective = ctx.Now() + genesis.DeclineVotingRightsDurationSecs
		})
		return nil
	}

	if acct.DeclineEffective == 0 {
		return errors.Errorf("account %q has no pending decline request to cancel", op.Account)
	}
	ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
		a.DeclineEffective = 0
	})

	return nil
}

// evalCustomJSON checks the referenced accounts exist. The payload is
// opaque to consensus; sidecar services interpret it off-chain.
func evalCustomJSON(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.CustomJSON)

	for _, name := range op.RequiredAuths {
		if _, err := account(ctx, name); err != nil {
			return err
		}
	}
	for _, name := range op.RequiredPostingAuths {
		if _, err := account(ctx, name); err != nil {
			return err
		}
	}

	return nil
}
