// Package evaluator applies user operations to chain state. Each
// operation kind binds to one evaluator through a dispatch table built
// at startup, so the applicator never switches on concrete types.
package evaluator

import (
	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/market"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/reward"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// Context carries everything an evaluator may touch. A new context is
// not needed per operation; the controller builds one per chain.
type Context struct {
	DB      *statedb.DB
	Market  *market.Engine
	Reward  *reward.Engine
	HasFork func(n uint16) bool
}

// Now returns the current block time every evaluator reasons against.
func (ctx *Context) Now() uint64 {
	return ctx.DB.Gprops().Time
}

// Fn evaluates one operation against the state, returning an error to
// reject the enclosing transaction without side effects.
type Fn func(ctx *Context, op operation.Operation) error

// table binds every user operation kind to its evaluator. Virtual
// operations never dispatch; they are notification-only.
var table = map[operation.Kind]Fn{
	operation.KindAccountCreate:             evalAccountCreate,
	operation.KindAccountUpdate:             evalAccountUpdate,
	operation.KindDeclineVotingRights:       evalDeclineVotingRights,
	operation.KindCustomJSON:                evalCustomJSON,
	operation.KindTransfer:                  evalTransfer,
	operation.KindTransferToVesting:         evalTransferToVesting,
	operation.KindWithdrawVesting:           evalWithdrawVesting,
	operation.KindSetWithdrawVestingRoute:   evalSetWithdrawVestingRoute,
	operation.KindTransferToSavings:         evalTransferToSavings,
	operation.KindTransferFromSavings:       evalTransferFromSavings,
	operation.KindCancelTransferFromSavings: evalCancelTransferFromSavings,
	operation.KindConvert:                   evalConvert,
	operation.KindComment:                   evalComment,
	operation.KindCommentOptions:            evalCommentOptions,
	operation.KindDeleteComment:             evalDeleteComment,
	operation.KindVote:                      evalVote,
	operation.KindWitnessUpdate:             evalWitnessUpdate,
	operation.KindAccountWitnessVote:        evalAccountWitnessVote,
	operation.KindAccountWitnessProxy:       evalAccountWitnessProxy,
	operation.KindFeedPublish:               evalFeedPublish,
	operation.KindLimitOrderCreate:          evalLimitOrderCreate,
	operation.KindLimitOrderCreate2:         evalLimitOrderCreate2,
	operation.KindLimitOrderCancel:          evalLimitOrderCancel,
	operation.KindCallOrderUpdate:           evalCallOrderUpdate,
	operation.KindEscrowTransfer:            evalEscrowTransfer,
	operation.KindEscrowApprove:             evalEscrowApprove,
	operation.KindEscrowDispute:             evalEscrowDispute,
	operation.KindEscrowRelease:             evalEscrowRelease,
}

// Apply dispatches the operation to its evaluator.
func Apply(ctx *Context, op operation.Operation) error {
	fn, exists := table[op.Kind()]
	if !exists {
		return errors.Errorf("no evaluator for operation %q", op.Kind())
	}
	return fn(ctx, op)
}

// =============================================================================

func account(ctx *Context, name string) (*statedb.Account, error) {
	acct := ctx.DB.AccountByName(name)
	if acct == nil {
		return nil, errors.Errorf("unknown account %q", name)
	}
	return acct, nil
}

// debitLiquid removes a liquid amount from the account, failing on
// underflow. CRD movements settle pending interest first.
func debitLiquid(ctx *Context, acct *statedb.Account, amount asset.Asset) error {
	if amount.IsNegative() {
		return errors.Errorf("cannot debit negative amount %s", amount)
	}

	if amount.Symbol == asset.CRD {
		ctx.Reward.AccrueInterest(acct)
	}

	switch amount.Symbol {
	case asset.CRES:
		if acct.Balance.Amount < amount.Amount {
			return errors.Errorf("account %q has %s, needs %s", acct.Name, acct.Balance, amount)
		}
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.Balance = a.Balance.Sub(amount)
		})

	case asset.CRD:
		if acct.CRDBalance.Amount < amount.Amount {
			return errors.Errorf("account %q has %s, needs %s", acct.Name, acct.CRDBalance, amount)
		}
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.CRDBalance = a.CRDBalance.Sub(amount)
		})

	default:
		return errors.Errorf("cannot debit %s from a liquid balance", amount)
	}

	return nil
}

// creditLiquid adds a liquid amount to the account.
func creditLiquid(ctx *Context, acct *statedb.Account, amount asset.Asset) error {
	if amount.IsNegative() {
		return errors.Errorf("cannot credit negative amount %s", amount)
	}

	if amount.Symbol == asset.CRD {
		ctx.Reward.AccrueInterest(acct)
	}

	switch amount.Symbol {
	case asset.CRES:
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.Balance = a.Balance.Add(amount)
		})

	case asset.CRD:
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.CRDBalance = a.CRDBalance.Add(amount)
		})

	default:
		return errors.Errorf("cannot credit %s to a liquid balance", amount)
	}

	return nil
}

// debitSavings removes an amount from the account's savings balance.
func debitSavings(ctx *Context, acct *statedb.Account, amount asset.Asset) error {
	switch amount.Symbol {
	case asset.CRES:
		if acct.SavingsBalance.Amount < amount.Amount {
			return errors.Errorf("account %q savings has %s, needs %s", acct.Name, acct.SavingsBalance, amount)
		}
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.SavingsBalance = a.SavingsBalance.Sub(amount)
		})

	case asset.CRD:
		if acct.SavingsCRDBalance.Amount < amount.Amount {
			return errors.Errorf("account %q savings has %s, needs %s", acct.Name, acct.SavingsCRDBalance, amount)
		}
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.SavingsCRDBalance = a.SavingsCRDBalance.Sub(amount)
		})

	default:
		return errors.Errorf("cannot debit %s from savings", amount)
	}

	return nil
}

// creditSavings adds an amount to the account's savings balance.
func creditSavings(ctx *Context, acct *statedb.Account, amount asset.Asset) error {
	switch amount.Symbol {
	case asset.CRES:
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.SavingsBalance = a.SavingsBalance.Add(amount)
		})

	case asset.CRD:
		ctx.DB.Accounts.Modify(acct, func(a *statedb.Account) {
			a.SavingsCRDBalance = a.SavingsCRDBalance.Add(amount)
		})

	default:
		return errors.Errorf("cannot credit %s to savings", amount)
	}

	return nil
}
