// Package reward implements the per-block inflation schedule and the
// payout engines it feeds: content rewards, producer pay, liquidity
// rewards and CRD interest.
package reward

import (
	"math/big"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// ForkGate reports whether a numbered hardfork has been applied.
type ForkGate func(n uint16) bool

// Notify receives the virtual operations the engine generates.
type Notify func(op operation.Operation)

// Engine computes and distributes rewards against the state database.
type Engine struct {
	db     *statedb.DB
	notify Notify
	fork   ForkGate
}

// New constructs a reward engine over the state database.
func New(db *statedb.DB, notify Notify, fork ForkGate) *Engine {
	if notify == nil {
		notify = func(operation.Operation) {}
	}
	if fork == nil {
		fork = func(uint16) bool { return true }
	}
	return &Engine{db: db, notify: notify, fork: fork}
}

// =============================================================================

// ProcessFunds issues one block's inflation and splits it between the
// content pool, the vesting fund and the block producer.
func (e *Engine) ProcessFunds() {
	gp := e.db.Gprops()

	newSupply := e.blockInflation(gp)
	if newSupply <= 0 {
		return
	}

	content := newSupply * genesis.ContentRewardPercent / genesis.PercentDenomBP
	vesting := newSupply * genesis.VestingFundPercent / genesis.PercentDenomBP
	producer := newSupply - content - vesting

	e.db.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
		g.CurrentSupply = g.CurrentSupply.Add(asset.New(newSupply, asset.CRES))
		g.VirtualSupply = g.VirtualSupply.Add(asset.New(newSupply, asset.CRES))

		// The vesting fund grows without issuing shares, raising the
		// per-share price for every holder.
		g.TotalVestingFund = g.TotalVestingFund.Add(asset.New(vesting, asset.CRES))
	})

	if e.fork(genesis.HardforkRewardFunds) {
		if fund := e.db.RewardFundByName(genesis.MainRewardFundName); fund != nil {
			e.db.RewardFunds.Modify(fund, func(f *statedb.RewardFund) {
				f.RewardBalance = f.RewardBalance.Add(asset.New(content, asset.CRES))
			})
		}
	} else {
		e.db.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
			g.TotalRewardFund = g.TotalRewardFund.Add(asset.New(content, asset.CRES))
		})
	}

	e.payProducer(producer)
}

// blockInflation returns the CRES issued for the current block. The
// annual rate starts at 9.78% and narrows by 0.01% every quarter
// million blocks until it floors at 0.95%; before the schedule
// hardfork the starting rate applies flat.
func (e *Engine) blockInflation(gp *statedb.GlobalProperties) int64 {
	rate := genesis.InflationRateStartPercent
	if e.fork(genesis.HardforkInflation) {
		rate -= int64(gp.HeadBlockNumber / genesis.InflationNarrowingPeriod)
		if rate < genesis.InflationRateStopPercent {
			rate = genesis.InflationRateStopPercent
		}
	}

	supply := big.NewInt(gp.VirtualSupply.Amount)
	supply.Mul(supply, big.NewInt(rate))
	supply.Quo(supply, big.NewInt(genesis.PercentDenomBP*int64(genesis.BlocksPerYear)))
	return supply.Int64()
}

// payProducer pays the current block's witness, as vesting shares until
// the witness holds a meaningful stake and as liquid CRES afterwards.
func (e *Engine) payProducer(amount int64) {
	if amount <= 0 {
		return
	}

	gp := e.db.Gprops()
	account := e.db.AccountByName(gp.CurrentWitness)
	if account == nil {
		return
	}

	pay := asset.New(amount, asset.CRES)

	if account.VestingShares.Amount >= genesis.ProducerVestingThreshold {
		e.db.Accounts.Modify(account, func(a *statedb.Account) {
			a.Balance = a.Balance.Add(pay)
		})
		e.notify(&operation.ProducerReward{Producer: account.Name, VestingShares: pay})
		return
	}

	vests := e.CreateVesting(account, pay)
	e.notify(&operation.ProducerReward{Producer: account.Name, VestingShares: vests})
}

// =============================================================================

// CreateVesting converts a CRES amount the caller already sourced into
// vesting shares for the account, at the fund's current share price.
// The account's witness votes move with its new stake.
func (e *Engine) CreateVesting(account *statedb.Account, amount asset.Asset) asset.Asset {
	gp := e.db.Gprops()

	var newVests int64
	if gp.TotalVestingShares.Amount == 0 {
		// Initial share price of one million VESTS per CRES.
		newVests = amount.Amount * 1_000_000
	} else {
		v := big.NewInt(amount.Amount)
		v.Mul(v, big.NewInt(gp.TotalVestingShares.Amount))
		v.Quo(v, big.NewInt(gp.TotalVestingFund.Amount))
		newVests = v.Int64()
	}

	vests := asset.New(newVests, asset.VESTS)

	e.db.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
		g.TotalVestingFund = g.TotalVestingFund.Add(amount)
		g.TotalVestingShares = g.TotalVestingShares.Add(vests)
	})

	e.db.Accounts.Modify(account, func(a *statedb.Account) {
		a.VestingShares = a.VestingShares.Add(vests)
	})

	e.db.AdjustWitnessVotes(account, newVests)

	return vests
}

// =============================================================================

// ProcessLiquidityRewards pays the hour's best CRES/CRD market maker and
// resets the volume race. The caller invokes it once per reward
// interval.
func (e *Engine) ProcessLiquidityRewards() {
	gp := e.db.Gprops()

	reward := liquidityReward(gp)
	if reward <= 0 {
		return
	}

	var best *statedb.Account
	var bestWeight *big.Int
	for _, a := range e.db.Accounts.All(nil) {
		w := a.LiquidityWeight()
		if w.Sign() <= 0 {
			continue
		}
		if best == nil || bestWeight.Cmp(w) < 0 {
			best, bestWeight = a, w
		}
	}
	if best == nil {
		return
	}

	pay := asset.New(reward, asset.CRES)

	e.db.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
		g.CurrentSupply = g.CurrentSupply.Add(pay)
		g.VirtualSupply = g.VirtualSupply.Add(pay)
	})

	e.db.Accounts.Modify(best, func(a *statedb.Account) {
		a.Balance = a.Balance.Add(pay)
		a.CRESVolume = 0
		a.CRDVolume = 0
		a.LiquidityLastUpdate = gp.Time
	})

	e.notify(&operation.LiquidityReward{Owner: best.Name, Payout: pay})
}

// liquidityReward sizes one interval's payout from the annual
// percentage rate.
func liquidityReward(gp *statedb.GlobalProperties) int64 {
	blocks := int64(genesis.LiquidityRewardIntervalSecs / genesis.BlockIntervalSecs)

	r := big.NewInt(gp.VirtualSupply.Amount)
	r.Mul(r, big.NewInt(genesis.LiquidityAPRPercent*blocks))
	r.Quo(r, big.NewInt(genesis.PercentDenomBP*int64(genesis.BlocksPerYear)))
	return r.Int64()
}

// =============================================================================

// AccrueInterest updates the account's CRD-seconds accumulator and pays
// compound interest once the compounding interval has elapsed. Callers
// invoke it on every liquid CRD balance change.
func (e *Engine) AccrueInterest(account *statedb.Account) {
	gp := e.db.Gprops()
	now := gp.Time

	seconds := cloneOrZero(account.CRDSeconds)
	if account.CRDSecondsLastUpdate < now {
		delta := new(big.Int).SetInt64(account.CRDBalance.Amount)
		delta.Mul(delta, new(big.Int).SetUint64(now-account.CRDSecondsLastUpdate))
		seconds.Add(seconds, delta)
	}

	var interest int64
	if now-account.LastInterestPayment >= genesis.InterestCompoundIntervalSecs && seconds.Sign() > 0 {
		i := new(big.Int).Set(seconds)
		i.Mul(i, big.NewInt(int64(gp.CRDInterestRate)))
		i.Quo(i, big.NewInt(genesis.PercentDenomBP*int64(365*24*60*60)))
		interest = i.Int64()
	}

	e.db.Accounts.Modify(account, func(a *statedb.Account) {
		a.CRDSeconds = seconds
		a.CRDSecondsLastUpdate = now
		if interest > 0 {
			a.CRDBalance = a.CRDBalance.Add(asset.New(interest, asset.CRD))
			a.CRDSeconds = big.NewInt(0)
			a.LastInterestPayment = now
		}
	})

	if interest > 0 {
		e.db.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
			g.CurrentCRDSupply = g.CurrentCRDSupply.Add(asset.New(interest, asset.CRD))
		})
		e.notify(&operation.Interest{
			Owner:    account.Name,
			Interest: asset.New(interest, asset.CRD),
		})
	}
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
