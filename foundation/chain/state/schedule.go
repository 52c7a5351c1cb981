package state

import (
	"math/big"
	"sort"

	"github.com/crescentlabs/crescent/foundation/chain/block"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// virtualLapLength is the distance a witness travels on the virtual
// timeline between two timeshare selections at one vote.
var virtualLapLength = new(big.Int).Lsh(big.NewInt(1), 127)

// updateWitnessSchedule reshuffles the production order at each round
// boundary: the top witnesses by approval plus one timeshare seat that
// rotates through everyone else by virtual time.
func (s *State) updateWitnessSchedule(b block.Block) {
	gp := s.db.Gprops()
	ws := s.db.Schedule()

	if gp.HeadBlockNumber < ws.NextShuffleBlockNum {
		return
	}

	active := make([]*statedb.Witness, 0, 32)
	for _, w := range s.db.Witnesses.All(nil) {
		if w.IsActive() {
			active = append(active, w)
		}
	}
	if len(active) == 0 {
		return
	}

	byVotes := append([]*statedb.Witness(nil), active...)
	sort.SliceStable(byVotes, func(i, j int) bool {
		if byVotes[i].Votes != byVotes[j].Votes {
			return byVotes[i].Votes > byVotes[j].Votes
		}
		return byVotes[i].ID < byVotes[j].ID
	})

	top := byVotes
	if len(top) > genesis.TopWitnesses {
		top = top[:genesis.TopWitnesses]
	}

	selected := make([]string, 0, genesis.MaxWitnesses)
	inTop := make(map[string]bool, len(top))
	for _, w := range top {
		selected = append(selected, w.Owner)
		inTop[w.Owner] = true
	}

	newVirtualTime := ws.CurrentVirtualTime
	if timeshare := s.pickTimeshareWitness(active, inTop); timeshare != nil {
		newVirtualTime = timeshare.VirtualScheduledTime

		s.db.Witnesses.Modify(timeshare, func(w *statedb.Witness) {
			w.VirtualPosition = big.NewInt(0)
			w.VirtualLastUpdate = new(big.Int).Set(newVirtualTime)
			w.VirtualScheduledTime = nextScheduledTime(newVirtualTime, w.Votes)
		})

		selected = append(selected, timeshare.Owner)
	}

	shuffleWitnesses(selected, b.Timestamp)

	medianProps := medianChainProperties(top)

	s.db.Schedules.Modify(ws, func(ws *statedb.WitnessSchedule) {
		ws.CurrentVirtualTime = new(big.Int).Set(newVirtualTime)
		ws.CurrentShuffledWitnesses = selected
		ws.NumScheduledWitnesses = uint8(len(selected))
		ws.NextShuffleBlockNum = gp.HeadBlockNumber + uint64(len(selected))
		ws.MedianProps = medianProps
	})

	s.db.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
		if medianProps.MaximumBlockSize >= genesis.MinBlockSizeLimit {
			g.MaximumBlockSize = medianProps.MaximumBlockSize
		}
		g.CRDInterestRate = medianProps.CRDInterestRate
	})

	s.tallyHardforkVotes(selected)
}

// pickTimeshareWitness returns the non-top active witness whose virtual
// scheduled time comes first, nil when the top seats already cover
// everyone.
func (s *State) pickTimeshareWitness(active []*statedb.Witness, inTop map[string]bool) *statedb.Witness {
	var pick *statedb.Witness
	for _, w := range active {
		if inTop[w.Owner] {
			continue
		}
		if pick == nil || w.VirtualScheduledTime.Cmp(pick.VirtualScheduledTime) < 0 ||
			(w.VirtualScheduledTime.Cmp(pick.VirtualScheduledTime) == 0 && w.ID < pick.ID) {
			pick = w
		}
	}
	return pick
}

// nextScheduledTime advances a witness one lap on the virtual timeline,
// faster the more votes it holds.
func nextScheduledTime(current *big.Int, votes int64) *big.Int {
	next := new(big.Int).Set(virtualLapLength)
	next.Quo(next, big.NewInt(votes+1))
	next.Add(next, current)
	return next
}

// shuffleWitnesses runs a deterministic Fisher-Yates keyed on the block
// timestamp so every node derives the identical order.
func shuffleWitnesses(names []string, timestamp uint64) {
	nowHi := timestamp << 32
	for i := range names {
		k := nowHi + uint64(i)*2685821657736338717
		k ^= k >> 12
		k ^= k << 25
		k ^= k >> 27
		k *= 2685821657736338717

		jmax := uint64(len(names) - i)
		j := i + int(k%jmax)
		names[i], names[j] = names[j], names[i]
	}
}

// medianChainProperties takes the per-field median of the top
// witnesses' advertised chain properties.
func medianChainProperties(top []*statedb.Witness) operation.ChainProperties {
	if len(top) == 0 {
		return operation.ChainProperties{}
	}

	fees := make([]int64, 0, len(top))
	sizes := make([]uint32, 0, len(top))
	rates := make([]uint16, 0, len(top))
	for _, w := range top {
		fees = append(fees, w.Props.AccountCreationFee.Amount)
		sizes = append(sizes, w.Props.MaximumBlockSize)
		rates = append(rates, w.Props.CRDInterestRate)
	}

	sort.Slice(fees, func(i, j int) bool { return fees[i] < fees[j] })
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })

	mid := len(top) / 2
	props := top[0].Props
	props.AccountCreationFee.Amount = fees[mid]
	props.MaximumBlockSize = sizes[mid]
	props.CRDInterestRate = rates[mid]
	return props
}

// tallyHardforkVotes checks whether two thirds of the scheduled
// witnesses agree on the next protocol version and activation time.
func (s *State) tallyHardforkVotes(scheduled []string) {
	type vote struct {
		version uint32
		time    uint64
	}

	counts := make(map[vote]int)
	for _, owner := range scheduled {
		w := s.db.WitnessByOwner(owner)
		if w == nil || w.HardforkVersionVote == 0 {
			continue
		}
		counts[vote{w.HardforkVersionVote, w.HardforkTimeVote}]++
	}

	hs := s.db.HardforkState()
	var majority uint32
	for v, n := range counts {
		if n*3 >= len(scheduled)*2 && v.version > hs.CurrentVersion {
			if v.version > majority {
				majority = v.version
				s.db.Hardforks.Modify(hs, func(h *statedb.HardforkProperty) {
					h.NextHardfork = v.version
					h.NextHardforkTime = v.time
				})
			}
		}
	}

	s.db.Schedules.Modify(s.db.Schedule(), func(ws *statedb.WitnessSchedule) {
		ws.MajorityHardforkVersion = majority
	})
}
