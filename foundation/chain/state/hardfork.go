package state

import (
	"math/big"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// vestingSplitFactor is the one-time share multiplier of the first
// hardfork's stock split.
const vestingSplitFactor = 1_000_000

// processHardforks activates every hardfork whose scheduled time has
// arrived, strictly in order. Each migration body runs exactly once.
func (s *State) processHardforks() {
	gp := s.db.Gprops()

	for {
		hs := s.db.HardforkState()
		if hs.LastHardfork >= uint32(genesis.NumHardforks) {
			return
		}

		next := uint16(hs.LastHardfork) + 1
		if s.genesis.HardforkTime(next) > gp.Time {
			return
		}

		s.applyHardfork(next)
	}
}

func (s *State) applyHardfork(n uint16) {
	switch n {
	case genesis.HardforkVestingSplit:
		s.splitVestingShares()
	case genesis.HardforkRewardFunds:
		s.seedRewardFund()
	}

	now := s.db.Gprops().Time
	s.db.Hardforks.Modify(s.db.HardforkState(), func(h *statedb.HardforkProperty) {
		h.LastHardfork = uint32(n)
		h.ProcessedHardforks = append(h.ProcessedHardforks, now)
		if uint32(n) > h.CurrentVersion {
			h.CurrentVersion = uint32(n)
		}
	})

	s.notifyOperation(&operation.Hardfork{HardforkNum: uint32(n)})
	s.evHandler("state: hardfork %d applied", n)
}

// splitVestingShares multiplies every vesting balance by one million,
// making shares fine-grained enough for per-byte bandwidth math. Vote
// tallies scale with the stake they measure.
func (s *State) splitVestingShares() {
	for _, acct := range s.db.Accounts.All(nil) {
		s.db.Accounts.Modify(acct, func(a *statedb.Account) {
			a.VestingShares.Amount *= vestingSplitFactor
			a.VestingWithdrawRate.Amount *= vestingSplitFactor
			a.ToWithdraw *= vestingSplitFactor
			a.Withdrawn *= vestingSplitFactor
			for i := range a.ProxiedVsfVotes {
				a.ProxiedVsfVotes[i] *= vestingSplitFactor
			}
		})
	}

	for _, w := range s.db.Witnesses.All(nil) {
		s.db.Witnesses.Modify(w, func(w *statedb.Witness) {
			w.Votes *= vestingSplitFactor
		})
	}

	s.db.Globals.Modify(s.db.Gprops(), func(g *statedb.GlobalProperties) {
		g.TotalVestingShares.Amount *= vestingSplitFactor
	})
}

// seedRewardFund moves the global content reward accumulators into the
// per-category reward fund the payout engine draws from afterwards.
func (s *State) seedRewardFund() {
	gp := s.db.Gprops()

	if s.db.RewardFundByName(genesis.MainRewardFundName) != nil {
		return
	}

	s.db.RewardFunds.Create(func(f *statedb.RewardFund) {
		f.Name = genesis.MainRewardFundName
		f.RewardBalance = gp.TotalRewardFund
		f.RecentRshares2 = cloneOrZero(gp.TotalRewardShares2)
		f.LastUpdate = gp.Time
		f.PercentCuration = uint16(genesis.CurationRewardPercent)
		f.PercentContent = uint16(genesis.PercentDenomBP)
	})

	s.db.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
		g.TotalRewardFund = asset.Zero(asset.CRES)
		g.TotalRewardShares2 = big.NewInt(0)
	})
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
