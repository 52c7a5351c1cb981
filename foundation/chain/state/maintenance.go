package state

import (
	"math"
	"math/big"
	"sort"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/block"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// onBlockApplied runs the per-block maintenance passes. The order is
// consensus: every node must run them identically.
func (s *State) onBlockApplied(b block.Block) {
	s.updateWitnessSchedule(b)

	if err := s.updateIrreversibility(); err != nil {
		s.evHandler("state: maintenance: irreversibility: ERROR: %s", err)
	}

	s.recordBlockSummary(b)
	s.clearExpiredTransactions()
	s.clearExpiredOrders()
	s.refreshMedianFeed()
	s.clearNullAccount()

	s.reward.ProcessFunds()

	s.processConversions()

	s.reward.DecayFunds()
	s.reward.ProcessCashouts()

	s.processVestingWithdrawals()
	s.processSavingsWithdrawals()

	s.reward.ProcessLiquidityRewards()

	s.updateVirtualSupply()
	s.expireEscrowRatifications()
	s.sweepDeclinedVoting()

	s.processHardforks()
}

// recordBlockSummary writes the block id into the TaPoS ring slot that
// future transactions will reference.
func (s *State) recordBlockSummary(b block.Block) {
	summary := s.db.BlockSummaryBySlot(block.NumFromID(b.Number))
	s.db.BlockSummaries.Modify(summary, func(bs *statedb.BlockSummary) {
		bs.BlockID = b.ID()
	})
}

// clearExpiredTransactions shrinks the duplicate-check window.
func (s *State) clearExpiredTransactions() {
	now := s.db.Gprops().Time
	for _, t := range s.db.Transactions.All(nil) {
		if t.Expiration <= now {
			s.db.Transactions.Remove(t)
		}
	}
}

// clearExpiredOrders cancels limit orders past their expiration,
// refunding the unfilled remainder.
func (s *State) clearExpiredOrders() {
	now := s.db.Gprops().Time
	for _, o := range s.db.LimitOrders.All(nil) {
		if o.Expiration > now {
			continue
		}
		if err := s.market.CancelOrder(o); err != nil {
			s.evHandler("state: maintenance: expire order %s:%d: ERROR: %s", o.Seller, o.OrderID, err)
		}
	}
}

// =============================================================================

// refreshMedianFeed recomputes the median price feed once an hour from
// the currently scheduled witnesses' published rates, then re-checks the
// margin positions the new median may have endangered.
func (s *State) refreshMedianFeed() {
	gp := s.db.Gprops()
	if gp.HeadBlockNumber%genesis.FeedIntervalBlocks != 0 {
		return
	}

	var rates []asset.Price
	for _, owner := range s.db.Schedule().CurrentShuffledWitnesses {
		w := s.db.WitnessByOwner(owner)
		if w == nil || w.CRDExchangeRate.IsZero() {
			continue
		}
		if w.LastCRDExchange+genesis.MaxFeedAgeSeconds < gp.Time {
			continue
		}
		rates = append(rates, w.CRDExchangeRate)
	}
	if len(rates) == 0 {
		return
	}

	sort.SliceStable(rates, func(i, j int) bool { return rates[i].Less(rates[j]) })
	sample := rates[len(rates)/2]

	feed := s.db.Feed()
	s.db.Feeds.Modify(feed, func(f *statedb.FeedHistory) {
		f.PriceHistory = append(f.PriceHistory, sample)
		if len(f.PriceHistory) > genesis.FeedHistoryWindow {
			f.PriceHistory = f.PriceHistory[len(f.PriceHistory)-genesis.FeedHistoryWindow:]
		}

		window := append([]asset.Price(nil), f.PriceHistory...)
		sort.SliceStable(window, func(i, j int) bool { return window[i].Less(window[j]) })
		f.CurrentMedian = window[len(window)/2]
	})

	if !feed.BlackSwan {
		if _, err := s.market.CheckCallOrders(true); err != nil {
			s.evHandler("state: maintenance: call orders: ERROR: %s", err)
		}
	}
}

// =============================================================================

// clearNullAccount burns whatever has been sent to the null account
// since the last block.
func (s *State) clearNullAccount() {
	null := s.db.AccountByName(genesis.NullAccountName)
	if null == nil {
		return
	}

	burnCRES := null.Balance.Amount + null.SavingsBalance.Amount
	burnCRD := null.CRDBalance.Amount + null.SavingsCRDBalance.Amount
	burnVests := null.VestingShares.Amount

	if burnCRES == 0 && burnCRD == 0 && burnVests == 0 {
		return
	}

	gp := s.db.Gprops()
	var vestedCRES int64
	if burnVests > 0 && gp.TotalVestingShares.Amount > 0 {
		vestedCRES = mulDiv(burnVests, gp.TotalVestingFund.Amount, gp.TotalVestingShares.Amount)
	}

	s.db.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
		g.CurrentSupply = g.CurrentSupply.Sub(asset.New(burnCRES+vestedCRES, asset.CRES))
		g.CurrentCRDSupply = g.CurrentCRDSupply.Sub(asset.New(burnCRD, asset.CRD))
		g.TotalVestingShares = g.TotalVestingShares.Sub(asset.New(burnVests, asset.VESTS))
		g.TotalVestingFund = g.TotalVestingFund.Sub(asset.New(vestedCRES, asset.CRES))
	})

	s.db.Accounts.Modify(null, func(a *statedb.Account) {
		a.Balance = asset.Zero(asset.CRES)
		a.SavingsBalance = asset.Zero(asset.CRES)
		a.CRDBalance = asset.Zero(asset.CRD)
		a.SavingsCRDBalance = asset.Zero(asset.CRD)
		a.VestingShares = asset.Zero(asset.VESTS)
	})
}

// =============================================================================

// processConversions pays out matured CRD conversion requests at the
// current median, destroying the CRD and minting CRES.
func (s *State) processConversions() {
	feed := s.db.Feed()
	if feed.CurrentMedian.IsZero() {
		return
	}

	median := feed.CurrentMedian
	if median.Base.Symbol != asset.CRD {
		median = median.Invert()
	}

	now := s.db.Gprops().Time
	for _, req := range s.db.ConvertRequests.All(nil) {
		if req.ConversionDate > now {
			continue
		}

		out := median.Mul(req.Amount)
		owner := s.db.AccountByName(req.Owner)
		if owner != nil {
			s.db.Accounts.Modify(owner, func(a *statedb.Account) {
				a.Balance = a.Balance.Add(out)
			})
		}

		s.db.Globals.Modify(s.db.Gprops(), func(g *statedb.GlobalProperties) {
			g.CurrentCRDSupply = g.CurrentCRDSupply.Sub(req.Amount)
			g.CurrentSupply = g.CurrentSupply.Add(out)
		})

		s.notifyOperation(&operation.FillConvertRequest{
			Owner:     req.Owner,
			RequestID: req.RequestID,
			AmountIn:  req.Amount,
			AmountOut: out,
		})

		s.db.ConvertRequests.Remove(req)
	}
}

// =============================================================================

// processVestingWithdrawals pays the weekly installment of every due
// power-down, honoring the account's withdraw routes.
func (s *State) processVestingWithdrawals() {
	gp := s.db.Gprops()
	now := gp.Time

	for _, acct := range s.db.Accounts.All(nil) {
		if acct.NextVestingWithdrawal > now || acct.VestingWithdrawRate.Amount <= 0 {
			continue
		}

		withdrawn := acct.VestingWithdrawRate.Amount
		if remaining := acct.ToWithdraw - acct.Withdrawn; withdrawn > remaining {
			withdrawn = remaining
		}
		if withdrawn > acct.VestingShares.Amount {
			withdrawn = acct.VestingShares.Amount
		}
		if withdrawn <= 0 {
			s.resetWithdrawSchedule(acct)
			continue
		}

		// Route shares first; the remainder converts to CRES for the
		// account itself.
		var routedVests, routedCRES int64
		for _, route := range s.db.WithdrawRoutes.All(nil) {
			if route.FromAccount != acct.Name {
				continue
			}
			target := s.db.AccountByName(route.ToAccount)
			if target == nil {
				continue
			}

			portion := withdrawn * int64(route.Percent) / genesis.PercentDenomBP
			if portion <= 0 {
				continue
			}

			if route.AutoVest {
				s.db.Accounts.Modify(target, func(a *statedb.Account) {
					a.VestingShares = a.VestingShares.Add(asset.New(portion, asset.VESTS))
				})
				s.db.AdjustWitnessVotes(target, portion)
				routedVests += portion
				s.notifyOperation(&operation.FillVestingWithdraw{
					FromAccount: acct.Name,
					ToAccount:   target.Name,
					Withdrawn:   asset.New(portion, asset.VESTS),
					Deposited:   asset.New(portion, asset.VESTS),
				})
				continue
			}

			cres := s.vestsToCRES(gp, portion)
			s.db.Accounts.Modify(target, func(a *statedb.Account) {
				a.Balance = a.Balance.Add(asset.New(cres, asset.CRES))
			})
			routedVests += portion
			routedCRES += cres
			s.notifyOperation(&operation.FillVestingWithdraw{
				FromAccount: acct.Name,
				ToAccount:   target.Name,
				Withdrawn:   asset.New(portion, asset.VESTS),
				Deposited:   asset.New(cres, asset.CRES),
			})
		}

		selfVests := withdrawn - routedVests
		var selfCRES int64
		if selfVests > 0 {
			selfCRES = s.vestsToCRES(gp, selfVests)
			routedCRES += selfCRES
		}

		s.db.AdjustWitnessVotes(acct, -withdrawn)

		s.db.Accounts.Modify(acct, func(a *statedb.Account) {
			a.VestingShares = a.VestingShares.Sub(asset.New(withdrawn, asset.VESTS))
			a.Balance = a.Balance.Add(asset.New(selfCRES, asset.CRES))
			a.Withdrawn += withdrawn
			if a.Withdrawn >= a.ToWithdraw || a.VestingShares.Amount == 0 {
				a.VestingWithdrawRate = asset.Zero(asset.VESTS)
				a.NextVestingWithdrawal = math.MaxUint64
				a.ToWithdraw = 0
				a.Withdrawn = 0
			} else {
				a.NextVestingWithdrawal += genesis.VestingWithdrawIntervalSeconds
			}
		})

		// Shares kept vested by auto-vest routes stay in the pool; the
		// rest leaves it along with the CRES paid out.
		convertedVests := withdrawn - s.autoVestedPortion(acct.Name, withdrawn)
		s.db.Globals.Modify(s.db.Gprops(), func(g *statedb.GlobalProperties) {
			g.TotalVestingShares = g.TotalVestingShares.Sub(asset.New(convertedVests, asset.VESTS))
			g.TotalVestingFund = g.TotalVestingFund.Sub(asset.New(routedCRES, asset.CRES))
		})

		if selfVests > 0 {
			s.notifyOperation(&operation.FillVestingWithdraw{
				FromAccount: acct.Name,
				ToAccount:   acct.Name,
				Withdrawn:   asset.New(selfVests, asset.VESTS),
				Deposited:   asset.New(selfCRES, asset.CRES),
			})
		}
	}
}

func (s *State) resetWithdrawSchedule(acct *statedb.Account) {
	s.db.Accounts.Modify(acct, func(a *statedb.Account) {
		a.VestingWithdrawRate = asset.Zero(asset.VESTS)
		a.NextVestingWithdrawal = math.MaxUint64
		a.ToWithdraw = 0
		a.Withdrawn = 0
	})
}

// vestsToCRES converts shares to their CRES value at the current fund
// price.
func (s *State) vestsToCRES(gp *statedb.GlobalProperties, vests int64) int64 {
	if gp.TotalVestingShares.Amount == 0 {
		return 0
	}
	return mulDiv(vests, gp.TotalVestingFund.Amount, gp.TotalVestingShares.Amount)
}

// autoVestedPortion sums the share of a withdrawal that stays vested
// through auto-vest routes.
func (s *State) autoVestedPortion(from string, withdrawn int64) int64 {
	var kept int64
	for _, route := range s.db.WithdrawRoutes.All(nil) {
		if route.FromAccount != from || !route.AutoVest {
			continue
		}
		if s.db.AccountByName(route.ToAccount) == nil {
			continue
		}
		kept += withdrawn * int64(route.Percent) / genesis.PercentDenomBP
	}
	return kept
}

// =============================================================================

// processSavingsWithdrawals completes matured savings withdrawals.
func (s *State) processSavingsWithdrawals() {
	now := s.db.Gprops().Time

	for _, w := range s.db.SavingsWithdraws.All(nil) {
		if w.Complete > now {
			continue
		}

		to := s.db.AccountByName(w.To)
		if to != nil {
			if w.Amount.Symbol == asset.CRD {
				s.reward.AccrueInterest(to)
				to = s.db.AccountByName(w.To)
			}
			s.db.Accounts.Modify(to, func(a *statedb.Account) {
				switch w.Amount.Symbol {
				case asset.CRES:
					a.Balance = a.Balance.Add(w.Amount)
				case asset.CRD:
					a.CRDBalance = a.CRDBalance.Add(w.Amount)
				}
			})
		}

		if from := s.db.AccountByName(w.From); from != nil {
			s.db.Accounts.Modify(from, func(a *statedb.Account) {
				if a.SavingsWithdrawRequests > 0 {
					a.SavingsWithdrawRequests--
				}
			})
		}

		s.db.SavingsWithdraws.Remove(w)
	}
}

// =============================================================================

// updateVirtualSupply folds the CRD debt, valued at the median, into
// the virtual CRES supply and throttles CRD printing by the debt ratio.
func (s *State) updateVirtualSupply() {
	gp := s.db.Gprops()
	feed := s.db.Feed()

	s.db.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
		g.VirtualSupply = g.CurrentSupply

		if feed.CurrentMedian.IsZero() {
			return
		}

		median := feed.CurrentMedian
		if median.Base.Symbol != asset.CRD {
			median = median.Invert()
		}

		crdAsCRES := median.Mul(g.CurrentCRDSupply)
		g.VirtualSupply = g.VirtualSupply.Add(crdAsCRES)

		if g.VirtualSupply.Amount <= 0 {
			g.CRDPrintRate = uint16(genesis.PercentDenomBP)
			return
		}

		debtBP := crdAsCRES.Amount * genesis.PercentDenomBP / g.VirtualSupply.Amount
		switch {
		case debtBP <= genesis.CRDStartPercentBP:
			g.CRDPrintRate = uint16(genesis.PercentDenomBP)
		case debtBP >= genesis.CRDStopPercentBP:
			g.CRDPrintRate = 0
		default:
			span := genesis.CRDStopPercentBP - genesis.CRDStartPercentBP
			g.CRDPrintRate = uint16((genesis.CRDStopPercentBP - debtBP) * genesis.PercentDenomBP / span)
		}
	})
}

// =============================================================================

// expireEscrowRatifications refunds escrows that passed their
// ratification deadline without full approval.
func (s *State) expireEscrowRatifications() {
	now := s.db.Gprops().Time

	for _, e := range s.db.Escrows.All(nil) {
		if e.RatificationDeadline > now || (e.ToApproved && e.AgentApproved) {
			continue
		}

		if from := s.db.AccountByName(e.From); from != nil {
			s.db.Accounts.Modify(from, func(a *statedb.Account) {
				a.Balance = a.Balance.Add(e.CRESBalance)
				a.CRDBalance = a.CRDBalance.Add(e.CRDBalance)
				if !e.PendingFee.IsZero() {
					switch e.PendingFee.Symbol {
					case asset.CRES:
						a.Balance = a.Balance.Add(e.PendingFee)
					case asset.CRD:
						a.CRDBalance = a.CRDBalance.Add(e.PendingFee)
					}
				}
			})
		}

		s.db.Escrows.Remove(e)
	}
}

// =============================================================================

// sweepDeclinedVoting makes pending decline-voting requests effective,
// stripping the account's witness votes and proxy.
func (s *State) sweepDeclinedVoting() {
	now := s.db.Gprops().Time

	for _, acct := range s.db.Accounts.All(nil) {
		if acct.DeclinedVoting || acct.DeclineEffective == 0 || acct.DeclineEffective > now {
			continue
		}

		weight := acct.EffectiveVestingShares() + acct.ProxiedVotesTotal()
		s.db.AdjustWitnessVotes(acct, -weight)

		for _, v := range s.db.WitnessVotesByAccount(acct.Name) {
			s.db.WitnessVotes.Remove(v)
		}

		s.db.Accounts.Modify(acct, func(a *statedb.Account) {
			a.Proxy = ""
			a.WitnessesVotedFor = 0
			a.DeclinedVoting = true
		})
	}
}

// =============================================================================

// mulDiv computes a*b/c without overflowing the intermediate product.
func mulDiv(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	v := big.NewInt(a)
	v.Mul(v, big.NewInt(b))
	v.Quo(v, big.NewInt(c))
	return v.Int64()
}
