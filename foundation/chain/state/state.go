// Package state is the chain controller: the core API for the consensus
// state machine. It orchestrates fork choice, block and transaction
// application, maintenance passes and irreversibility under a single
// writer lock.
package state

import (
	"math/big"
	"sync"

	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/block"
	"github.com/crescentlabs/crescent/foundation/chain/blocklog"
	"github.com/crescentlabs/crescent/foundation/chain/evaluator"
	"github.com/crescentlabs/crescent/foundation/chain/fork"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/market"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/reward"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// EventHandler defines a function that is called when events occur in
// the processing of blocks and transactions.
type EventHandler func(v string, args ...any)

// Observers are the fire-and-forget notification hooks external
// subsystems register to see a total order of chain effects. Virtual
// operations the engines generate flow through the same hooks.
type Observers struct {
	PreOperation       func(op operation.Operation)
	PostOperation      func(op operation.Operation)
	AppliedBlock       func(b block.Block)
	AppliedTransaction func(tx operation.SignedTransaction)
}

// =============================================================================

// Config represents the configuration required to open the chain.
type Config struct {
	Genesis   genesis.Genesis
	BlockLog  *blocklog.Log
	Observers Observers
	EvHandler EventHandler
}

// State manages the canonical chain state.
type State struct {
	mu        sync.Mutex
	genesis   genesis.Genesis
	evHandler EventHandler
	observers Observers

	db       *statedb.DB
	forkdb   *fork.Tracker
	blockLog *blocklog.Log
	market   *market.Engine
	reward   *reward.Engine
	evCtx    *evaluator.Context

	pendingTxs []operation.SignedTransaction
	pendingSes *statedb.Session
	producing  bool
}

// New opens the chain: it initializes genesis state and replays the
// durable block log to reach the current head.
func New(cfg Config) (*State, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	s := State{
		genesis:   cfg.Genesis,
		evHandler: ev,
		observers: cfg.Observers,
		blockLog:  cfg.BlockLog,
		forkdb:    fork.NewTracker(),
	}

	s.initChainState()

	if err := s.replayLog(); err != nil {
		return nil, errors.Wrap(err, "replaying block log")
	}

	return &s, nil
}

// initChainState builds the in-memory state machine at its genesis
// revision.
func (s *State) initChainState() {
	s.db = statedb.New()

	s.market = market.New(s.db, s.notifyOperation)
	s.reward = reward.New(s.db, s.notifyOperation, s.HasHardfork)
	s.evCtx = &evaluator.Context{
		DB:      s.db,
		Market:  s.market,
		Reward:  s.reward,
		HasFork: s.HasHardfork,
	}

	s.applyGenesis()
}

// Shutdown cleanly closes the chain, flushing the block log.
func (s *State) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blockLog != nil {
		return s.blockLog.Close()
	}
	return nil
}

// =============================================================================

// applyGenesis seeds every singleton and initial account. It runs with
// no undo session; the genesis state is irreversible by definition.
func (s *State) applyGenesis() {
	gen := s.genesis
	initTime := uint64(gen.Date.Unix())

	supply := gen.InitSupply
	for _, amount := range gen.Balances {
		supply += amount
	}

	s.db.Globals.Create(func(g *statedb.GlobalProperties) {
		g.Time = initTime
		g.HeadBlockID = block.Block{}.ID()
		g.CurrentWitness = gen.InitAccount
		g.CurrentSupply = asset.New(supply, asset.CRES)
		g.VirtualSupply = asset.New(supply, asset.CRES)
		g.CurrentCRDSupply = asset.Zero(asset.CRD)
		g.ConfidentialCRES = asset.Zero(asset.CRES)
		g.TotalVestingFund = asset.Zero(asset.CRES)
		g.TotalVestingShares = asset.Zero(asset.VESTS)
		g.TotalRewardFund = asset.Zero(asset.CRES)
		g.TotalRewardShares2 = big.NewInt(0)
		g.MaximumBlockSize = genesis.MinBlockSizeLimit
		g.CRDInterestRate = 0
		g.CRDPrintRate = uint16(genesis.PercentDenomBP)
		g.RecentSlotsFilled = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
		g.ParticipationCount = 128
		g.CurrentReserveRatio = 1
		g.AverageBlockSize = 0
		g.MaxVirtualBandwidth = maxVirtualBandwidth(genesis.MinBlockSizeLimit, 1)
	})

	s.db.Feeds.Create(func(f *statedb.FeedHistory) {})

	s.db.Hardforks.Create(func(h *statedb.HardforkProperty) {})

	// The init witness produces alone until real witnesses earn votes.
	s.db.Schedules.Create(func(ws *statedb.WitnessSchedule) {
		ws.CurrentVirtualTime = big.NewInt(0)
		ws.NextShuffleBlockNum = uint64(genesis.MaxWitnesses)
		ws.CurrentShuffledWitnesses = []string{gen.InitAccount}
		ws.NumScheduledWitnesses = 1
		ws.MedianProps = operation.ChainProperties{
			AccountCreationFee: asset.New(1, asset.CRES),
			MaximumBlockSize:   genesis.MinBlockSizeLimit,
		}
	})

	s.createGenesisAccount(gen.InitAccount, gen.InitKeyAddress, gen.InitSupply, initTime)
	s.createGenesisAccount(genesis.NullAccountName, "", 0, initTime)
	s.createGenesisAccount(genesis.TempAccountName, "", 0, initTime)
	for name, amount := range gen.Balances {
		s.createGenesisAccount(name, gen.KeyAddresses[name], amount, initTime)
	}

	s.db.Witnesses.Create(func(w *statedb.Witness) {
		w.Owner = gen.InitAccount
		w.Created = initTime
		w.SigningKey = gen.InitKeyAddress
		w.Props = operation.ChainProperties{
			AccountCreationFee: asset.New(1, asset.CRES),
			MaximumBlockSize:   genesis.MinBlockSizeLimit,
		}
		w.VirtualLastUpdate = big.NewInt(0)
		w.VirtualPosition = big.NewInt(0)
		w.VirtualScheduledTime = big.NewInt(0)
	})

	// The TaPoS ring: one summary slot per possible ref_block_num.
	for slot := 0; slot < 65536; slot++ {
		s.db.BlockSummaries.Create(func(b *statedb.BlockSummary) {
			b.BlockID = block.Block{}.ID()
		})
	}
}

func (s *State) createGenesisAccount(name string, keyAddress string, balance int64, now uint64) {
	s.db.Accounts.Create(func(a *statedb.Account) {
		a.Name = name
		if keyAddress != "" {
			a.Owner = operation.NewAuthority(keyAddress)
			a.Active = operation.NewAuthority(keyAddress)
			a.Posting = operation.NewAuthority(keyAddress)
			a.MemoKey = keyAddress
		}
		a.Created = now
		a.Balance = asset.New(balance, asset.CRES)
		a.SavingsBalance = asset.Zero(asset.CRES)
		a.CRDBalance = asset.Zero(asset.CRD)
		a.SavingsCRDBalance = asset.Zero(asset.CRD)
		a.CRDSeconds = big.NewInt(0)
		a.CRDSecondsLastUpdate = now
		a.LastInterestPayment = now
		a.VestingShares = asset.Zero(asset.VESTS)
		a.VestingWithdrawRate = asset.Zero(asset.VESTS)
		a.VotingPower = genesis.VotePowerFull
		a.LastVoteTime = now
		a.AverageBandwidth = big.NewInt(0)
		a.LifetimeBandwidth = big.NewInt(0)
		a.AverageMarketBandwidth = big.NewInt(0)
	})
}

// =============================================================================

// replayLog re-applies every block in the durable log with validation
// skipped; they were fully validated when first accepted.
func (s *State) replayLog() error {
	if s.blockLog == nil {
		return nil
	}

	headNum, err := s.blockLog.HeadNum()
	if err != nil {
		return err
	}

	for num := uint64(1); num <= headNum; num++ {
		b, err := s.blockLog.ReadBlock(num)
		if err != nil {
			return err
		}
		if err := s.applyBlock(b, SkipReindex); err != nil {
			return errors.Wrapf(err, "replaying block %d", num)
		}
	}

	if headNum > 0 {
		head, _, err := s.blockLog.Head()
		if err != nil {
			return err
		}
		s.forkdb.Reset(head)
		s.evHandler("state: replay: head block %d restored", headNum)
	}

	return nil
}

// Reindex rebuilds the whole state from the block log. The caller gets
// a fresh controller; the old one must no longer be used.
func (s *State) Reindex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: reindex: started")
	s.pendingTxs = nil
	s.pendingSes = nil
	s.forkdb = fork.NewTracker()
	s.initChainState()
	return s.replayLog()
}

// =============================================================================

// HasHardfork reports whether hardfork n has been processed. Gated
// behavior everywhere keys off this.
func (s *State) HasHardfork(n uint16) bool {
	return s.db.HardforkState().LastHardfork >= uint32(n)
}

// notifyOperation routes one applied operation, user or virtual, to the
// registered observers in pre/post order.
func (s *State) notifyOperation(op operation.Operation) {
	if s.observers.PreOperation != nil {
		s.observers.PreOperation(op)
	}
	if s.observers.PostOperation != nil {
		s.observers.PostOperation(op)
	}
}

// maxVirtualBandwidth computes the bandwidth capacity from the block
// size limit and the current reserve ratio.
func maxVirtualBandwidth(maxBlockSize uint32, reserveRatio int64) *big.Int {
	v := new(big.Int).SetUint64(uint64(maxBlockSize))
	v.Mul(v, big.NewInt(int64(genesis.BandwidthAverageWindowSeconds/genesis.BlockIntervalSecs)))
	v.Mul(v, big.NewInt(reserveRatio))
	v.Mul(v, big.NewInt(genesis.BandwidthPrecision))
	return v
}
