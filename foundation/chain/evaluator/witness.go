package evaluator

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

func evalWitnessUpdate(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.WitnessUpdate)

	owner, err := account(ctx, op.Owner)
	if err != nil {
		return err
	}

	if witness := ctx.DB.WitnessByOwner(op.Owner); witness != nil {
		ctx.DB.Witnesses.Modify(witness, func(w *statedb.Witness) {
			w.URL = op.URL
			w.SigningKey = op.BlockSigningKey
			w.Props = op.Props
		})
		return nil
	}

	if op.Fee.Symbol != asset.CRES || op.Fee.IsNegative() {
		return errors.Errorf("witness registration fee must be CRES, got %s", op.Fee)
	}

	// The registration fee is burned.
	if !op.Fee.IsZero() {
		if err := debitLiquid(ctx, owner, op.Fee); err != nil {
			return err
		}
		gp := ctx.DB.Gprops()
		ctx.DB.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
			g.CurrentSupply = g.CurrentSupply.Sub(op.Fee)
			g.VirtualSupply = g.VirtualSupply.Sub(op.Fee)
		})
	}

	ctx.DB.Witnesses.Create(func(w *statedb.Witness) {
		w.Owner = op.Owner
		w.Created = ctx.Now()
		w.URL = op.URL
		w.SigningKey = op.BlockSigningKey
		w.Props = op.Props
		w.VirtualLastUpdate = big.NewInt(0)
		w.VirtualPosition = big.NewInt(0)
		w.VirtualScheduledTime = big.NewInt(0)
	})

	return nil
}

// =============================================================================

func evalAccountWitnessVote(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.AccountWitnessVote)

	acct, err := account(ctx, op.Account)
	if err != nil {
		return err
	}
	if acct.DeclinedVoting {
		return errors.Errorf("account %q has declined its voting rights", op.Account)
	}
	if acct.Proxy != "" {
		return errors.Errorf("account %q votes through proxy %q", op.Account, acct.Proxy)
	}

	witness := ctx.DB.WitnessByOwner(op.Witness)
	if witness == nil {
		return errors.Errorf("account %q is not a witness", op.Witness)
	}

	vote := ctx.DB.WitnessVoteBy(op.Witness, op.Account)
	weight := acct.EffectiveVestingShares() + acct.ProxiedVotesTotal()

	switch {
	case op.Approve && vote == nil:
		if int(acct.WitnessesVotedFor) >= genesis.MaxWitnessVotesPerAccount {
			return errors.Errorf("account %q already votes for %d witnesses", op.Account, acct.WitnessesVotedFor)
		}
		ctx.DB.WitnessVotes.Create(func(v *statedb.WitnessVote) {
			v.Witness = op.Witness
			v.Account = op.Account
		})
		ctx.DB.Witnesses.Modify(witness, func(w *statedb.Witness) {
			w.Votes += weight
		})
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.WitnessesVotedFor++
		})

	case !op.Approve && vote != nil:
		ctx.DB.WitnessVotes.Remove(vote)
		ctx.DB.Witnesses.Modify(witness, func(w *statedb.Witness) {
			w.Votes -= weight
		})
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.WitnessesVotedFor--
		})

	case op.Approve:
		return errors.Errorf("account %q already approves witness %q", op.Account, op.Witness)

	default:
		return errors.Errorf("account %q does not approve witness %q", op.Account, op.Witness)
	}

	return nil
}

func evalAccountWitnessProxy(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.AccountWitnessProxy)

	acct, err := account(ctx, op.Account)
	if err != nil {
		return err
	}
	if acct.DeclinedVoting {
		return errors.Errorf("account %q has declined its voting rights", op.Account)
	}
	if op.Proxy == acct.Proxy {
		return errors.Errorf("proxy for %q is already %q", op.Account, op.Proxy)
	}
	if op.Proxy == op.Account {
		return errors.Errorf("account %q cannot proxy to itself", op.Account)
	}
	if op.Proxy != "" {
		if _, err := account(ctx, op.Proxy); err != nil {
			return err
		}
	}

	// Pull the account's weight off whichever chain currently carries
	// it, switch the proxy, then push the weight back through the new
	// chain. An empty proxy means the weight lands on the account's own
	// witness approvals.
	weight := acct.EffectiveVestingShares() + acct.ProxiedVotesTotal()

	ctx.DB.AdjustWitnessVotes(acct, -weight)
	ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
		a.Proxy = op.Proxy
	})
	ctx.DB.AdjustWitnessVotes(acct, weight)

	return nil
}
