package state

import (
	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/block"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// ErrNotFound is returned by the query API when the named object does
// not exist in the current state.
var ErrNotFound = errors.New("not found")

// Genesis returns a copy of the genesis information of the chain.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Gprops returns a copy of the dynamic global properties at the head.
func (s *State) Gprops() statedb.GlobalProperties {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.db.Gprops()
}

// Account returns a copy of the named account.
func (s *State) Account(name string) (statedb.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.db.AccountByName(name)
	if acct == nil {
		return statedb.Account{}, errors.Wrapf(ErrNotFound, "account %q", name)
	}
	return *acct, nil
}

// Accounts returns a copy of every account, ordered by creation.
func (s *State) Accounts() []statedb.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.db.Accounts.All(nil)
	out := make([]statedb.Account, 0, len(rows))
	for _, a := range rows {
		out = append(out, *a)
	}
	return out
}

// Witness returns a copy of the named witness.
func (s *State) Witness(owner string) (statedb.Witness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.db.WitnessByOwner(owner)
	if w == nil {
		return statedb.Witness{}, errors.Wrapf(ErrNotFound, "witness %q", owner)
	}
	return *w, nil
}

// Witnesses returns a copy of every registered witness.
func (s *State) Witnesses() []statedb.Witness {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.db.Witnesses.All(nil)
	out := make([]statedb.Witness, 0, len(rows))
	for _, w := range rows {
		out = append(out, *w)
	}
	return out
}

// Schedule returns a copy of the current witness schedule.
func (s *State) Schedule() statedb.WitnessSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.db.Schedule()
}

// FeedHistory returns a copy of the price feed history.
func (s *State) FeedHistory() statedb.FeedHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.db.Feed()
}

// Orders returns a copy of the open limit orders, optionally filtered
// by owner.
func (s *State) Orders(owner string) []statedb.LimitOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.db.LimitOrders.All(nil)
	out := make([]statedb.LimitOrder, 0, len(rows))
	for _, o := range rows {
		if owner != "" && o.Seller != owner {
			continue
		}
		out = append(out, *o)
	}
	return out
}

// BlockByNumber returns the block at the given height, looked up on the
// main branch first and the durable log second.
func (s *State) BlockByNumber(num uint64) (block.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.forkdb.MainBlockByNum(num); item != nil {
		return item.Block, nil
	}

	if s.blockLog != nil {
		b, err := s.blockLog.ReadBlock(num)
		if err == nil {
			return b, nil
		}
	}

	return block.Block{}, errors.Wrapf(ErrNotFound, "block %d", num)
}

// ScheduledProducer returns the witness owed the slot the given number
// of intervals ahead, and that slot's timestamp.
func (s *State) ScheduledProducer(slotsAhead uint64) (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.scheduledWitness(slotsAhead), s.slotTime(slotsAhead)
}
