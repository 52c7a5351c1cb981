package reward

import (
	"math"
	"math/big"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// commentClosed marks a comment that already paid out.
const commentClosed = math.MaxUint64

// CurveRshares2 maps net reward shares onto the convex payout curve:
// abs(rshares) times rshares, zero for non-positive totals.
func CurveRshares2(rshares int64) *big.Int {
	if rshares <= 0 {
		return big.NewInt(0)
	}
	r := big.NewInt(rshares)
	return r.Mul(r, r)
}

// =============================================================================

// DecayFunds ages every reward fund's recent claim total so older vote
// weight contributes less over time.
func (e *Engine) DecayFunds() {
	if !e.fork(genesis.HardforkRewardFunds) {
		return
	}

	now := e.db.Gprops().Time

	for _, fund := range e.db.RewardFunds.All(nil) {
		if fund.LastUpdate >= now {
			continue
		}
		elapsed := now - fund.LastUpdate

		decayed := cloneOrZero(fund.RecentRshares2)
		decay := new(big.Int).Set(decayed)
		decay.Mul(decay, new(big.Int).SetUint64(elapsed))
		decay.Quo(decay, new(big.Int).SetUint64(genesis.RecentRshares2DecaySeconds))
		decayed.Sub(decayed, decay)

		e.db.RewardFunds.Modify(fund, func(f *statedb.RewardFund) {
			f.RecentRshares2 = decayed
			f.LastUpdate = now
		})
	}
}

// ProcessCashouts pays every comment whose cashout window closed at or
// before the current block time.
func (e *Engine) ProcessCashouts() {
	now := e.db.Gprops().Time

	for _, c := range e.db.Comments.All(nil) {
		if c.CashoutTime == commentClosed || c.CashoutTime > now {
			continue
		}
		e.payoutComment(c)
	}
}

// payoutComment settles one comment: claim its share of the fund, pay
// curators, beneficiaries and the author, then close the cashout window.
func (e *Engine) payoutComment(c *statedb.Comment) {
	rshares2 := CurveRshares2(c.NetRshares)

	var claim int64
	if e.fork(genesis.HardforkRewardFunds) {
		claim = e.claimFromFund(c, rshares2)
	} else {
		claim = e.claimFromGlobals(rshares2)
	}

	if claim > 0 {
		e.distribute(c, claim)
	}

	now := e.db.Gprops().Time
	e.db.Comments.Modify(c, func(cm *statedb.Comment) {
		cm.NetRshares = 0
		cm.AbsRshares = 0
		cm.VoteRshares = 0
		cm.TotalVoteWeight = 0
		cm.LastPayout = now
		cm.CashoutTime = commentClosed
	})
}

// claimFromFund draws the comment's share from its reward fund,
// snapshotting the claim against the decayed recent total.
func (e *Engine) claimFromFund(c *statedb.Comment, rshares2 *big.Int) int64 {
	fund := e.db.RewardFundByName(genesis.MainRewardFundName)
	if fund == nil || rshares2.Sign() <= 0 || fund.RewardBalance.Amount <= 0 {
		return 0
	}

	total := cloneOrZero(fund.RecentRshares2)
	total.Add(total, rshares2)

	claim := new(big.Int).SetInt64(fund.RewardBalance.Amount)
	claim.Mul(claim, rshares2)
	claim.Quo(claim, total)
	amount := claim.Int64()

	e.db.RewardFunds.Modify(fund, func(f *statedb.RewardFund) {
		f.RewardBalance = f.RewardBalance.Sub(asset.New(amount, asset.CRES))
		f.RecentRshares2 = total
	})

	return amount
}

// claimFromGlobals draws the comment's share from the global pre-fund
// accumulator pair.
func (e *Engine) claimFromGlobals(rshares2 *big.Int) int64 {
	gp := e.db.Gprops()

	totalShares := cloneOrZero(gp.TotalRewardShares2)
	if rshares2.Sign() <= 0 || totalShares.Sign() <= 0 || gp.TotalRewardFund.Amount <= 0 {
		return 0
	}

	claim := new(big.Int).SetInt64(gp.TotalRewardFund.Amount)
	claim.Mul(claim, rshares2)
	claim.Quo(claim, totalShares)
	amount := claim.Int64()

	remaining := totalShares.Sub(totalShares, rshares2)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}

	e.db.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
		g.TotalRewardFund = g.TotalRewardFund.Sub(asset.New(amount, asset.CRES))
		g.TotalRewardShares2 = remaining
	})

	return amount
}

// =============================================================================

// distribute splits a comment's claim between curators, beneficiaries
// and the author. Integer remainders always fold toward the author so
// no reward is destroyed.
func (e *Engine) distribute(c *statedb.Comment, claim int64) {
	curationPaid := int64(0)
	if c.AllowCuration {
		curationPool := claim * genesis.CurationRewardPercent / genesis.PercentDenomBP
		curationPaid = e.payCurators(c, curationPool)
	}

	authorTokens := claim - curationPaid

	for _, b := range c.Beneficiaries {
		amount := authorTokens * int64(b.Weight) / genesis.PercentDenomBP
		if amount <= 0 {
			continue
		}
		if acct := e.db.AccountByName(b.Account); acct != nil {
			e.CreateVesting(acct, asset.New(amount, asset.CRES))
			authorTokens -= amount
		}
	}

	author := e.db.AccountByName(c.Author)
	if author == nil {
		return
	}

	// Half the author's share pays in the debt denomination, scaled by
	// the comment's own percent and the current print rate.
	crdPortion := authorTokens * int64(c.PercentCRD) / (2 * genesis.PercentDenomBP)
	vestingPortion := authorTokens - crdPortion

	crdPaid := e.payCRD(author, crdPortion)
	vestsPaid := asset.Zero(asset.VESTS)
	if vestingPortion > 0 {
		vestsPaid = e.CreateVesting(author, asset.New(vestingPortion, asset.CRES))
	}

	e.db.Comments.Modify(c, func(cm *statedb.Comment) {
		cm.TotalPayoutValue = cm.TotalPayoutValue.Add(asset.New(authorTokens, asset.CRES))
		cm.CuratorPayoutValue = cm.CuratorPayoutValue.Add(asset.New(curationPaid, asset.CRES))
		cm.AuthorRewards += authorTokens
	})

	e.notify(&operation.AuthorReward{
		Author:        c.Author,
		Permlink:      c.Permlink,
		CRDPayout:     crdPaid,
		VestingPayout: vestsPaid,
	})
	e.notify(&operation.CommentReward{
		Author:   c.Author,
		Permlink: c.Permlink,
		Payout:   asset.New(claim, asset.CRES),
	})
}

// payCurators splits the curation pool across voters proportional to
// recorded vote weight and returns the amount actually paid; the
// remainder stays with the author.
func (e *Engine) payCurators(c *statedb.Comment, pool int64) int64 {
	if pool <= 0 || c.TotalVoteWeight == 0 {
		return 0
	}

	paid := int64(0)
	commentID := uint64(c.ID)

	for _, v := range e.db.CommentVotes.All(nil) {
		if v.CommentID != commentID || v.Weight == 0 {
			continue
		}

		share := new(big.Int).SetInt64(pool)
		share.Mul(share, new(big.Int).SetUint64(v.Weight))
		share.Quo(share, new(big.Int).SetUint64(c.TotalVoteWeight))
		amount := share.Int64()
		if amount <= 0 {
			continue
		}

		curator := e.db.AccountByName(v.Voter)
		if curator == nil {
			continue
		}

		vests := e.CreateVesting(curator, asset.New(amount, asset.CRES))
		paid += amount

		e.notify(&operation.CurationReward{
			Curator:         v.Voter,
			Reward:          vests,
			CommentAuthor:   c.Author,
			CommentPermlink: c.Permlink,
		})
	}

	return paid
}

// payCRD pays the author's liquid portion, printing CRD at the feed
// median while the print rate and a live feed allow it and falling back
// to liquid CRES otherwise.
func (e *Engine) payCRD(author *statedb.Account, cres int64) asset.Asset {
	if cres <= 0 {
		return asset.Zero(asset.CRD)
	}

	gp := e.db.Gprops()
	feed := e.db.Feed()

	median := asset.Price{}
	if feed != nil && !feed.BlackSwan && !feed.CurrentMedian.IsZero() {
		median = feed.CurrentMedian
		if median.Base.Symbol != asset.CRD {
			median = median.Invert()
		}
	}

	if median.IsZero() {
		pay := asset.New(cres, asset.CRES)
		e.db.Accounts.Modify(author, func(a *statedb.Account) {
			a.Balance = a.Balance.Add(pay)
		})
		return asset.Zero(asset.CRD)
	}

	printable := cres * int64(gp.CRDPrintRate) / genesis.PercentDenomBP
	liquid := cres - printable

	crd := median.Mul(asset.New(printable, asset.CRES))

	e.db.Accounts.Modify(author, func(a *statedb.Account) {
		a.CRDBalance = a.CRDBalance.Add(crd)
		if liquid > 0 {
			a.Balance = a.Balance.Add(asset.New(liquid, asset.CRES))
		}
	})

	e.db.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
		g.CurrentSupply = g.CurrentSupply.Sub(asset.New(printable, asset.CRES))
		g.CurrentCRDSupply = g.CurrentCRDSupply.Add(crd)
	})

	return crd
}
