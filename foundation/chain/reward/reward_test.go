package reward_test

import (
	"math"
	"math/big"
	"testing"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/reward"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func preFundGate(n uint16) bool  { return n < genesis.HardforkRewardFunds }
func allForksGate(n uint16) bool { return true }

func newRewardDB() *statedb.DB {
	db := statedb.New()

	db.Globals.Create(func(g *statedb.GlobalProperties) {
		g.Time = 1_700_000_000
		g.CurrentWitness = "alice"
		g.CurrentSupply = asset.New(1_000_000, asset.CRES)
		g.VirtualSupply = asset.New(1_000_000, asset.CRES)
		g.CurrentCRDSupply = asset.Zero(asset.CRD)
		g.TotalVestingFund = asset.Zero(asset.CRES)
		g.TotalVestingShares = asset.Zero(asset.VESTS)
		g.TotalRewardFund = asset.Zero(asset.CRES)
		g.TotalRewardShares2 = big.NewInt(0)
	})

	db.Feeds.Create(func(f *statedb.FeedHistory) {})

	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		n := name
		db.Accounts.Create(func(a *statedb.Account) {
			a.Name = n
			a.Balance = asset.Zero(asset.CRES)
			a.CRDBalance = asset.Zero(asset.CRD)
			a.VestingShares = asset.Zero(asset.VESTS)
		})
	}

	return db
}

func newComment(db *statedb.DB, author string, rshares int64, totalWeight uint64) *statedb.Comment {
	return db.Comments.Create(func(c *statedb.Comment) {
		c.Author = author
		c.Permlink = "test-post"
		c.NetRshares = rshares
		c.AbsRshares = rshares
		c.TotalVoteWeight = totalWeight
		c.CashoutTime = 1_600_000_000
		c.AllowVotes = true
		c.AllowCuration = true
		c.ChildrenRshares2 = big.NewInt(0)
		c.TotalPayoutValue = asset.Zero(asset.CRES)
		c.CuratorPayoutValue = asset.Zero(asset.CRES)
	})
}

// =============================================================================

func Test_CurationRemainderFolding(t *testing.T) {
	t.Log("Given the need to fold curation remainders into the author share.")
	{
		t.Logf("\tTest 0:\tWhen three equal votes split an indivisible pool.")
		{
			db := newRewardDB()
			eng := reward.New(db, nil, preFundGate)

			db.Globals.Modify(db.Gprops(), func(g *statedb.GlobalProperties) {
				g.TotalRewardFund = asset.New(1000, asset.CRES)
				g.TotalRewardShares2 = reward.CurveRshares2(1000)
			})

			comment := newComment(db, "bob", 1000, 3)
			for _, voter := range []string{"alice", "carol", "dave"} {
				v := voter
				db.CommentVotes.Create(func(cv *statedb.CommentVote) {
					cv.Voter = v
					cv.CommentID = uint64(comment.ID)
					cv.Weight = 1
					cv.Rshares = 333
				})
			}

			eng.ProcessCashouts()

			// 25% of the 1000 claim is 250; each voter earns 83 and
			// the leftover 1 token stays with the author.
			for _, voter := range []string{"alice", "carol", "dave"} {
				got := db.AccountByName(voter).VestingShares.Amount
				if got != 83_000_000 {
					t.Errorf("\t%s\tTest 0:\tShould pay curator %s 83 CRES of vests, got %d.", failed, voter, got)
				} else {
					t.Logf("\t%s\tTest 0:\tShould pay curator %s 83 CRES of vests.", success, voter)
				}
			}

			if got := db.AccountByName("bob").VestingShares.Amount; got != 751_000_000 {
				t.Errorf("\t%s\tTest 0:\tShould vest the author 751 CRES incl. remainder, got %d.", failed, got)
			} else {
				t.Logf("\t%s\tTest 0:\tShould vest the author 751 CRES incl. remainder.", success)
			}

			gp := db.Gprops()
			if gp.TotalRewardFund.Amount != 0 {
				t.Errorf("\t%s\tTest 0:\tShould drain the reward fund, got %d.", failed, gp.TotalRewardFund.Amount)
			} else {
				t.Logf("\t%s\tTest 0:\tShould drain the reward fund.", success)
			}

			// Every token of the claim moved into the vesting fund.
			if gp.TotalVestingFund.Amount != 1000 {
				t.Errorf("\t%s\tTest 0:\tShould conserve the claim in the vesting fund, got %d.", failed, gp.TotalVestingFund.Amount)
			} else {
				t.Logf("\t%s\tTest 0:\tShould conserve the claim in the vesting fund.", success)
			}

			if gp.CurrentSupply.Amount != 1_000_000 {
				t.Errorf("\t%s\tTest 0:\tShould leave total supply unchanged, got %d.", failed, gp.CurrentSupply.Amount)
			} else {
				t.Logf("\t%s\tTest 0:\tShould leave total supply unchanged.", success)
			}

			paid := db.CommentBy("bob", "test-post")
			if paid.CashoutTime != math.MaxUint64 || paid.NetRshares != 0 {
				t.Errorf("\t%s\tTest 0:\tShould close the cashout window.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould close the cashout window.", success)
			}
		}
	}
}

func Test_FundDecay(t *testing.T) {
	t.Log("Given the need to decay recent reward shares over time.")
	{
		t.Logf("\tTest 0:\tWhen a tenth of the decay window has elapsed.")
		{
			db := newRewardDB()
			eng := reward.New(db, nil, allForksGate)

			now := db.Gprops().Time
			db.RewardFunds.Create(func(f *statedb.RewardFund) {
				f.Name = genesis.MainRewardFundName
				f.RewardBalance = asset.Zero(asset.CRES)
				f.RecentRshares2 = big.NewInt(1_296_000)
				f.LastUpdate = now - genesis.RecentRshares2DecaySeconds/10
			})

			eng.DecayFunds()

			fund := db.RewardFundByName(genesis.MainRewardFundName)
			if fund.RecentRshares2.Int64() != 1_166_400 {
				t.Errorf("\t%s\tTest 0:\tShould decay recent shares by 10%%, got %d.", failed, fund.RecentRshares2.Int64())
			} else {
				t.Logf("\t%s\tTest 0:\tShould decay recent shares by 10%%.", success)
			}

			if fund.LastUpdate != now {
				t.Errorf("\t%s\tTest 0:\tShould stamp the decay time.", failed)
			} else {
				t.Logf("\t%s\tTest 0:\tShould stamp the decay time.", success)
			}
		}
	}
}

func Test_Inflation(t *testing.T) {
	t.Log("Given the need to issue and split per-block inflation.")
	{
		t.Logf("\tTest 0:\tWhen a block is produced at the starting rate.")
		{
			db := newRewardDB()
			eng := reward.New(db, nil, preFundGate)

			perYear := genesis.PercentDenomBP * int64(genesis.BlocksPerYear)
			db.Globals.Modify(db.Gprops(), func(g *statedb.GlobalProperties) {
				g.CurrentSupply = asset.New(perYear, asset.CRES)
				g.VirtualSupply = asset.New(perYear, asset.CRES)
			})

			eng.ProcessFunds()

			gp := db.Gprops()

			// At 9.78% the block issues 978 CRES: 733 content, 146
			// vesting, 99 producer.
			if got := gp.CurrentSupply.Amount - perYear; got != 978 {
				t.Errorf("\t%s\tTest 0:\tShould issue 978 CRES, got %d.", failed, got)
			} else {
				t.Logf("\t%s\tTest 0:\tShould issue 978 CRES.", success)
			}

			if gp.TotalRewardFund.Amount != 733 {
				t.Errorf("\t%s\tTest 0:\tShould fund content with 733 CRES, got %d.", failed, gp.TotalRewardFund.Amount)
			} else {
				t.Logf("\t%s\tTest 0:\tShould fund content with 733 CRES.", success)
			}

			// 146 to the shareless vesting fund plus the producer's 99
			// vested at the initial share price.
			if gp.TotalVestingFund.Amount != 245 {
				t.Errorf("\t%s\tTest 0:\tShould hold 245 CRES in the vesting fund, got %d.", failed, gp.TotalVestingFund.Amount)
			} else {
				t.Logf("\t%s\tTest 0:\tShould hold 245 CRES in the vesting fund.", success)
			}

			if got := db.AccountByName("alice").VestingShares.Amount; got != 99_000_000 {
				t.Errorf("\t%s\tTest 0:\tShould vest the producer 99 CRES, got %d.", failed, got)
			} else {
				t.Logf("\t%s\tTest 0:\tShould vest the producer 99 CRES.", success)
			}
		}
	}
}
