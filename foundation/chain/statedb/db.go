package statedb

// DB is the typed store holding every chain entity table. All tables
// share one undo stack, so a session spans the whole object graph.
type DB struct {
	Store

	Globals          *Table[GlobalProperties, *GlobalProperties]
	Accounts         *Table[Account, *Account]
	Witnesses        *Table[Witness, *Witness]
	WitnessVotes     *Table[WitnessVote, *WitnessVote]
	Schedules        *Table[WitnessSchedule, *WitnessSchedule]
	Comments         *Table[Comment, *Comment]
	CommentVotes     *Table[CommentVote, *CommentVote]
	LimitOrders      *Table[LimitOrder, *LimitOrder]
	CallOrders       *Table[CallOrder, *CallOrder]
	ConvertRequests  *Table[ConvertRequest, *ConvertRequest]
	Escrows          *Table[Escrow, *Escrow]
	SavingsWithdraws *Table[SavingsWithdraw, *SavingsWithdraw]
	WithdrawRoutes   *Table[WithdrawVestingRoute, *WithdrawVestingRoute]
	Feeds            *Table[FeedHistory, *FeedHistory]
	RewardFunds      *Table[RewardFund, *RewardFund]
	Transactions     *Table[TransactionObject, *TransactionObject]
	BlockSummaries   *Table[BlockSummary, *BlockSummary]
	Hardforks        *Table[HardforkProperty, *HardforkProperty]
}

// New constructs an empty DB with every table registered against the
// shared undo stack.
func New() *DB {
	db := DB{}

	db.Globals = NewTable[GlobalProperties](&db.Store, "globals")
	db.Accounts = NewTable[Account](&db.Store, "accounts")
	db.Witnesses = NewTable[Witness](&db.Store, "witnesses")
	db.WitnessVotes = NewTable[WitnessVote](&db.Store, "witness_votes")
	db.Schedules = NewTable[WitnessSchedule](&db.Store, "schedules")
	db.Comments = NewTable[Comment](&db.Store, "comments")
	db.CommentVotes = NewTable[CommentVote](&db.Store, "comment_votes")
	db.LimitOrders = NewTable[LimitOrder](&db.Store, "limit_orders")
	db.CallOrders = NewTable[CallOrder](&db.Store, "call_orders")
	db.ConvertRequests = NewTable[ConvertRequest](&db.Store, "convert_requests")
	db.Escrows = NewTable[Escrow](&db.Store, "escrows")
	db.SavingsWithdraws = NewTable[SavingsWithdraw](&db.Store, "savings_withdraws")
	db.WithdrawRoutes = NewTable[WithdrawVestingRoute](&db.Store, "withdraw_routes")
	db.Feeds = NewTable[FeedHistory](&db.Store, "feeds")
	db.RewardFunds = NewTable[RewardFund](&db.Store, "reward_funds")
	db.Transactions = NewTable[TransactionObject](&db.Store, "transactions")
	db.BlockSummaries = NewTable[BlockSummary](&db.Store, "block_summaries")
	db.Hardforks = NewTable[HardforkProperty](&db.Store, "hardforks")

	return &db
}

// =============================================================================
// Singleton accessors. The singletons are created during genesis
// initialization and exist for the life of the chain.

// Gprops returns the dynamic global properties singleton.
func (db *DB) Gprops() *GlobalProperties {
	return db.Globals.Get(0)
}

// Schedule returns the witness schedule singleton.
func (db *DB) Schedule() *WitnessSchedule {
	return db.Schedules.Get(0)
}

// Feed returns the feed history singleton.
func (db *DB) Feed() *FeedHistory {
	return db.Feeds.Get(0)
}

// HardforkState returns the hardfork property singleton.
func (db *DB) HardforkState() *HardforkProperty {
	return db.Hardforks.Get(0)
}

// =============================================================================
// Keyed lookups. These scan in id order so results are deterministic.

// AccountByName returns the account with the given name, or nil.
func (db *DB) AccountByName(name string) *Account {
	return db.Accounts.Find(func(a *Account) bool { return a.Name == name })
}

// WitnessByOwner returns the witness record owned by the account, or nil.
func (db *DB) WitnessByOwner(owner string) *Witness {
	return db.Witnesses.Find(func(w *Witness) bool { return w.Owner == owner })
}

// WitnessVoteBy returns the approval record of an account for a
// witness, or nil.
func (db *DB) WitnessVoteBy(witness string, account string) *WitnessVote {
	return db.WitnessVotes.Find(func(v *WitnessVote) bool {
		return v.Witness == witness && v.Account == account
	})
}

// WitnessVotesByAccount returns every approval the account holds, in id
// order.
func (db *DB) WitnessVotesByAccount(account string) []*WitnessVote {
	var out []*WitnessVote
	for _, v := range db.WitnessVotes.All(nil) {
		if v.Account == account {
			out = append(out, v)
		}
	}
	return out
}

// AdjustWitnessVotes propagates a vote-weight delta up the account's
// proxy chain and applies it to the witnesses approved by the terminal
// account of the chain.
func (db *DB) AdjustWitnessVotes(account *Account, delta int64) {
	acct := account
	for depth := 0; depth < MaxProxyDepth && acct.Proxy != ""; depth++ {
		proxy := db.AccountByName(acct.Proxy)
		if proxy == nil {
			return
		}
		d := depth
		db.Accounts.Modify(proxy, func(p *Account) { p.ProxiedVsfVotes[d] += delta })
		acct = proxy
	}

	for _, wv := range db.WitnessVotesByAccount(acct.Name) {
		witness := db.WitnessByOwner(wv.Witness)
		if witness == nil {
			continue
		}
		db.Witnesses.Modify(witness, func(w *Witness) { w.Votes += delta })
	}
}

// CommentBy returns the comment at (author, permlink), or nil.
func (db *DB) CommentBy(author string, permlink string) *Comment {
	return db.Comments.Find(func(c *Comment) bool {
		return c.Author == author && c.Permlink == permlink
	})
}

// CommentVoteBy returns the vote of a voter on a comment, or nil.
func (db *DB) CommentVoteBy(commentID uint64, voter string) *CommentVote {
	return db.CommentVotes.Find(func(v *CommentVote) bool {
		return v.CommentID == commentID && v.Voter == voter
	})
}

// LimitOrderBy returns an open order by owner and client order id.
func (db *DB) LimitOrderBy(owner string, orderID uint32) *LimitOrder {
	return db.LimitOrders.Find(func(o *LimitOrder) bool {
		return o.Seller == owner && o.OrderID == orderID
	})
}

// CallOrderBy returns the margin position of the borrower, or nil.
func (db *DB) CallOrderBy(borrower string) *CallOrder {
	return db.CallOrders.Find(func(c *CallOrder) bool { return c.Borrower == borrower })
}

// ConvertRequestBy returns a pending conversion by owner and request id.
func (db *DB) ConvertRequestBy(owner string, requestID uint32) *ConvertRequest {
	return db.ConvertRequests.Find(func(c *ConvertRequest) bool {
		return c.Owner == owner && c.RequestID == requestID
	})
}

// EscrowBy returns an escrow by the funding party and escrow id.
func (db *DB) EscrowBy(from string, escrowID uint32) *Escrow {
	return db.Escrows.Find(func(e *Escrow) bool {
		return e.From == from && e.EscrowID == escrowID
	})
}

// SavingsWithdrawBy returns a pending savings withdrawal.
func (db *DB) SavingsWithdrawBy(from string, requestID uint32) *SavingsWithdraw {
	return db.SavingsWithdraws.Find(func(s *SavingsWithdraw) bool {
		return s.From == from && s.RequestID == requestID
	})
}

// WithdrawRouteBy returns the route between two accounts, or nil.
func (db *DB) WithdrawRouteBy(from string, to string) *WithdrawVestingRoute {
	return db.WithdrawRoutes.Find(func(r *WithdrawVestingRoute) bool {
		return r.FromAccount == from && r.ToAccount == to
	})
}

// RewardFundByName returns the named reward fund, or nil before HF17.
func (db *DB) RewardFundByName(name string) *RewardFund {
	return db.RewardFunds.Find(func(f *RewardFund) bool { return f.Name == name })
}

// TransactionByID returns the dedup record of a transaction, or nil.
func (db *DB) TransactionByID(txID string) *TransactionObject {
	return db.Transactions.Find(func(t *TransactionObject) bool { return t.TxID == txID })
}

// BlockSummaryBySlot returns the TaPoS ring entry for a slot. The ring
// is fully populated at genesis so the entry always exists.
func (db *DB) BlockSummaryBySlot(slot uint16) *BlockSummary {
	return db.BlockSummaries.Get(uint64(slot))
}
