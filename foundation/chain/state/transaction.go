package state

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/block"
	"github.com/crescentlabs/crescent/foundation/chain/evaluator"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

// PushTransaction validates and applies a transaction on top of the
// current head, queueing it for inclusion in the next produced block.
// The effects stay pending until a block containing the transaction is
// applied; they are rolled back and re-derived from the block itself.
func (s *State) PushTransaction(tx operation.SignedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingSes == nil {
		s.pendingSes = s.db.StartUndoSession(true)
	}

	session := s.db.StartUndoSession(true)
	if err := s.applyTransaction(tx, SkipNothing); err != nil {
		session.Undo()
		return err
	}
	session.Squash()

	s.pendingTxs = append(s.pendingTxs, tx)
	s.evHandler("state: push transaction: %s", tx)

	return nil
}

// PendingTransactions returns the transactions accepted but not yet
// bound into a block.
func (s *State) PendingTransactions() []operation.SignedTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := make([]operation.SignedTransaction, len(s.pendingTxs))
	copy(txs, s.pendingTxs)
	return txs
}

// clearPending rolls back the pending-transaction overlay so block
// application starts from the head state. The queue itself survives for
// requeueing after the block lands.
func (s *State) clearPending() {
	if s.pendingSes != nil {
		s.pendingSes.Undo()
		s.pendingSes = nil
	}
}

// requeuePending re-applies the queued transactions on the new head,
// silently dropping any the block already included or that no longer
// validate.
func (s *State) requeuePending() {
	queued := s.pendingTxs
	s.pendingTxs = nil

	for _, tx := range queued {
		if s.db.TransactionByID(tx.ID()) != nil {
			continue
		}
		if s.pendingSes == nil {
			s.pendingSes = s.db.StartUndoSession(true)
		}
		session := s.db.StartUndoSession(true)
		if err := s.applyTransaction(tx, SkipNothing); err != nil {
			session.Undo()
			continue
		}
		session.Squash()
		s.pendingTxs = append(s.pendingTxs, tx)
	}

	if len(s.pendingTxs) == 0 && s.pendingSes != nil {
		s.pendingSes.Undo()
		s.pendingSes = nil
	}
}

// =============================================================================

// applyTransaction runs the full acceptance pipeline of a single
// transaction. The caller owns the undo session.
func (s *State) applyTransaction(tx operation.SignedTransaction, skip Skip) error {
	gp := s.db.Gprops()

	if !skip.Has(SkipBlockSizeCheck) {
		if size := tx.Size(); size > int(gp.MaximumBlockSize) {
			return errors.Errorf("transaction size %d exceeds block size limit %d", size, gp.MaximumBlockSize)
		}
	}

	if !skip.Has(SkipValidation) {
		if err := tx.Validate(); err != nil {
			return errors.Wrap(err, "validating transaction")
		}
	}

	txID := tx.ID()
	if !skip.Has(SkipTransactionDupeCheck) {
		if s.db.TransactionByID(txID) != nil {
			return errors.Errorf("duplicate transaction %s", txID)
		}
	}

	if !skip.Has(SkipTransactionSignatures) {
		if err := s.verifyAuthority(tx, skip); err != nil {
			return err
		}
	}

	if !skip.Has(SkipTaposCheck) {
		summary := s.db.BlockSummaryBySlot(tx.RefBlockNum)
		if block.IDPrefix(summary.BlockID) != tx.RefBlockPrefix {
			return errors.Errorf("transaction references unknown block %d:%d", tx.RefBlockNum, tx.RefBlockPrefix)
		}
	}

	if tx.Expiration <= gp.Time {
		return errors.Errorf("transaction expired at %d, head time is %d", tx.Expiration, gp.Time)
	}
	if tx.Expiration > gp.Time+genesis.MaxTimeUntilExpiration {
		return errors.Errorf("transaction expiration %d is too far in the future", tx.Expiration)
	}

	if err := s.updateBandwidth(tx); err != nil {
		return err
	}

	s.db.Transactions.Create(func(t *statedb.TransactionObject) {
		t.TxID = txID
		t.Expiration = tx.Expiration
	})

	for _, op := range tx.Operations {
		if s.observers.PreOperation != nil {
			s.observers.PreOperation(op.Operation)
		}
		if err := evaluator.Apply(s.evCtx, op.Operation); err != nil {
			return errors.Wrapf(err, "applying %s", op.Kind())
		}
		if s.observers.PostOperation != nil {
			s.observers.PostOperation(op.Operation)
		}
	}

	if s.observers.AppliedTransaction != nil {
		s.observers.AppliedTransaction(tx)
	}

	return nil
}

// =============================================================================

// verifyAuthority recovers the signer set and checks it satisfies every
// authority the transaction's operations demand. Posting demands accept
// posting, active or owner keys; active demands accept active or owner.
func (s *State) verifyAuthority(tx operation.SignedTransaction, skip Skip) error {
	signers, err := tx.Signers()
	if err != nil {
		return errors.Wrap(err, "recovering signers")
	}

	if skip.Has(SkipAuthorityCheck) {
		return nil
	}

	signed := make(map[string]bool, len(signers))
	for _, addr := range signers {
		signed[addr] = true
	}

	req := tx.RequiredAuthorities()

	for _, name := range req.Posting {
		if err := s.checkAccountAuthority(name, operation.Posting, signed); err != nil {
			return err
		}
	}
	for _, name := range req.Active {
		if err := s.checkAccountAuthority(name, operation.Active, signed); err != nil {
			return err
		}
	}
	for _, name := range req.Owner {
		if err := s.checkAccountAuthority(name, operation.Owner, signed); err != nil {
			return err
		}
	}

	return nil
}

// checkAccountAuthority checks the signer set against an account's
// authority at the demanded level, falling back to the stronger levels.
func (s *State) checkAccountAuthority(name string, level operation.Level, signed map[string]bool) error {
	acct := s.db.AccountByName(name)
	if acct == nil {
		return errors.Errorf("authority demanded of unknown account %q", name)
	}

	auths := []operation.Authority{acct.Owner}
	switch level {
	case operation.Posting:
		auths = []operation.Authority{acct.Posting, acct.Active, acct.Owner}
	case operation.Active:
		auths = []operation.Authority{acct.Active, acct.Owner}
	}

	for _, auth := range auths {
		if s.authoritySatisfied(auth, signed, 0) {
			return nil
		}
	}

	return errors.Errorf("missing %s authority of account %q", level, name)
}

// authoritySatisfied evaluates a weighted-threshold multisig. Account
// authorities recurse into the named account's active authority up to
// the depth limit.
func (s *State) authoritySatisfied(auth operation.Authority, signed map[string]bool, depth int) bool {
	if auth.WeightThreshold == 0 || auth.IsEmpty() {
		return false
	}

	var weight uint64
	for addr, w := range auth.KeyAuths {
		if signed[addr] {
			weight += uint64(w)
		}
		if weight >= uint64(auth.WeightThreshold) {
			return true
		}
	}

	if depth >= genesis.MaxSigCheckDepth {
		return false
	}

	for name, w := range auth.AccountAuths {
		member := s.db.AccountByName(name)
		if member == nil {
			continue
		}
		if s.authoritySatisfied(member.Active, signed, depth+1) {
			weight += uint64(w)
		}
		if weight >= uint64(auth.WeightThreshold) {
			return true
		}
	}

	return false
}

// =============================================================================

// updateBandwidth charges the transaction's size against the first
// signing authority's rolling bandwidth average. Going over capacity is
// only a soft rejection: blocks produced by others may still include
// the transaction.
func (s *State) updateBandwidth(tx operation.SignedTransaction) error {
	req := tx.RequiredAuthorities()

	var name string
	switch {
	case len(req.Active) > 0:
		name = req.Active[0]
	case len(req.Owner) > 0:
		name = req.Owner[0]
	case len(req.Posting) > 0:
		name = req.Posting[0]
	default:
		return nil
	}

	acct := s.db.AccountByName(name)
	if acct == nil {
		return nil
	}

	gp := s.db.Gprops()
	txSize := int64(tx.Size())

	if s.HasHardfork(genesis.HardforkBandwidth) {
		return s.chargeAverageBandwidth(acct, gp, txSize)
	}
	return s.chargeLifetimeBandwidth(acct, gp, txSize)
}

// chargeAverageBandwidth is the reserve-ratio algorithm: an exponential
// moving average of bytes used, compared against a virtual capacity
// that shrinks when blocks run full.
func (s *State) chargeAverageBandwidth(acct *statedb.Account, gp *statedb.GlobalProperties, txSize int64) error {
	var over bool

	s.db.Accounts.Modify(acct, func(a *statedb.Account) {
		elapsed := gp.Time - a.LastBandwidthUpdate

		avg := new(big.Int).Set(a.AverageBandwidth)
		if elapsed >= genesis.BandwidthAverageWindowSeconds {
			avg.SetInt64(0)
		} else {
			remain := big.NewInt(int64(genesis.BandwidthAverageWindowSeconds - elapsed))
			avg.Mul(avg, remain)
			avg.Div(avg, big.NewInt(int64(genesis.BandwidthAverageWindowSeconds)))
		}
		avg.Add(avg, big.NewInt(txSize*genesis.BandwidthPrecision))

		a.AverageBandwidth = avg
		a.LastBandwidthUpdate = gp.Time

		if gp.TotalVestingShares.Amount > 0 {
			allowed := new(big.Int).Mul(gp.MaxVirtualBandwidth, big.NewInt(a.EffectiveVestingShares()))
			used := new(big.Int).Mul(avg, big.NewInt(gp.TotalVestingShares.Amount))
			over = used.Cmp(allowed) > 0
		}
	})

	if over && s.producing {
		return errors.Errorf("account %q exceeds its bandwidth allowance", acct.Name)
	}
	return nil
}

// chargeLifetimeBandwidth is the original algorithm: total lifetime
// bytes must stay proportional to the account's vesting stake against
// lifetime chain throughput.
func (s *State) chargeLifetimeBandwidth(acct *statedb.Account, gp *statedb.GlobalProperties, txSize int64) error {
	var over bool

	s.db.Accounts.Modify(acct, func(a *statedb.Account) {
		a.LifetimeBandwidth = new(big.Int).Add(a.LifetimeBandwidth, big.NewInt(txSize*genesis.BandwidthPrecision))
		a.LastBandwidthUpdate = gp.Time

		if gp.TotalVestingShares.Amount > 0 && gp.HeadBlockNumber > 0 {
			lifetimeChain := new(big.Int).SetUint64(gp.HeadBlockNumber)
			lifetimeChain.Mul(lifetimeChain, big.NewInt(int64(gp.MaximumBlockSize)*genesis.BandwidthPrecision))

			allowed := new(big.Int).Mul(lifetimeChain, big.NewInt(a.EffectiveVestingShares()))
			used := new(big.Int).Mul(a.LifetimeBandwidth, big.NewInt(gp.TotalVestingShares.Amount))
			over = used.Cmp(allowed) > 0
		}
	})

	if over && s.producing {
		return errors.Errorf("account %q exceeds its lifetime bandwidth allowance", acct.Name)
	}
	return nil
}
