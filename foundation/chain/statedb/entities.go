package statedb

import (
	"math/big"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
)

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneAuth(a operation.Authority) operation.Authority {
	out := operation.Authority{
		WeightThreshold: a.WeightThreshold,
		KeyAuths:        make(map[string]uint32, len(a.KeyAuths)),
		AccountAuths:    make(map[string]uint32, len(a.AccountAuths)),
	}
	for k, w := range a.KeyAuths {
		out.KeyAuths[k] = w
	}
	for k, w := range a.AccountAuths {
		out.AccountAuths[k] = w
	}
	return out
}

// =============================================================================

// MaxProxyDepth bounds the levels of vote delegation that roll up
// through proxy chains.
const MaxProxyDepth = 4

// GlobalProperties is the chain-wide singleton mutated every block.
type GlobalProperties struct {
	ID

	HeadBlockNumber uint64
	HeadBlockID     string
	Time            uint64
	CurrentWitness  string

	CurrentSupply    asset.Asset
	CurrentCRDSupply asset.Asset
	VirtualSupply    asset.Asset
	ConfidentialCRES asset.Asset

	TotalVestingFund   asset.Asset
	TotalVestingShares asset.Asset

	// Pre-HF17 content reward accumulator pair.
	TotalRewardFund    asset.Asset
	TotalRewardShares2 *big.Int

	MaximumBlockSize uint32
	CRDInterestRate  uint16
	CRDPrintRate     uint16

	CurrentASlot             uint64
	RecentSlotsFilled        *big.Int
	ParticipationCount       uint8
	LastIrreversibleBlockNum uint64

	// Reserve-ratio bandwidth throttle.
	CurrentReserveRatio int64
	AverageBlockSize    int64
	MaxVirtualBandwidth *big.Int
}

func (g *GlobalProperties) clone() GlobalProperties {
	out := *g
	out.TotalRewardShares2 = cloneBig(g.TotalRewardShares2)
	out.RecentSlotsFilled = cloneBig(g.RecentSlotsFilled)
	out.MaxVirtualBandwidth = cloneBig(g.MaxVirtualBandwidth)
	return out
}

// =============================================================================

// Account is an identity with balances, bandwidth accumulators and
// governance state. Accounts are never structurally deleted.
type Account struct {
	ID

	Name         string
	Owner        operation.Authority
	Active       operation.Authority
	Posting      operation.Authority
	MemoKey      string
	JSONMetadata string

	Created         uint64
	RecoveryAccount string

	Balance           asset.Asset
	SavingsBalance    asset.Asset
	CRDBalance        asset.Asset
	SavingsCRDBalance asset.Asset

	// Interest accrual on the savings CRD balance.
	CRDSeconds           *big.Int
	CRDSecondsLastUpdate uint64
	LastInterestPayment  uint64

	SavingsWithdrawRequests uint16

	VestingShares         asset.Asset
	VestingWithdrawRate   asset.Asset
	NextVestingWithdrawal uint64
	Withdrawn             int64
	ToWithdraw            int64
	WithdrawRoutes        uint16

	Proxy             string
	ProxiedVsfVotes   [MaxProxyDepth]int64
	WitnessesVotedFor uint16
	DeclinedVoting    bool
	DeclineEffective  uint64

	VotingPower  uint16
	LastVoteTime uint64
	PostCount    uint32
	LastPost     uint64
	LastRootPost uint64

	AverageBandwidth          *big.Int
	LifetimeBandwidth         *big.Int
	LastBandwidthUpdate       uint64
	AverageMarketBandwidth    *big.Int
	LastMarketBandwidthUpdate uint64

	// Market making volume tracked for the hourly liquidity reward.
	CRESVolume          int64
	CRDVolume           int64
	LiquidityLastUpdate uint64
}

func (a *Account) clone() Account {
	out := *a
	out.Owner = cloneAuth(a.Owner)
	out.Active = cloneAuth(a.Active)
	out.Posting = cloneAuth(a.Posting)
	out.CRDSeconds = cloneBig(a.CRDSeconds)
	out.AverageBandwidth = cloneBig(a.AverageBandwidth)
	out.LifetimeBandwidth = cloneBig(a.LifetimeBandwidth)
	out.AverageMarketBandwidth = cloneBig(a.AverageMarketBandwidth)
	return out
}

// ProxiedVotesTotal sums the vote weight delegated to this account.
func (a *Account) ProxiedVotesTotal() int64 {
	var total int64
	for _, v := range a.ProxiedVsfVotes {
		total += v
	}
	return total
}

// EffectiveVestingShares is the vote weight this account wields itself.
func (a *Account) EffectiveVestingShares() int64 {
	return a.VestingShares.Amount
}

// LiquidityWeight scores the account's market making for the liquidity
// reward: volume on both sides is required to score at all.
func (a *Account) LiquidityWeight() *big.Int {
	if a.CRESVolume <= 0 || a.CRDVolume <= 0 {
		return big.NewInt(0)
	}
	w := new(big.Int).Mul(big.NewInt(a.CRESVolume), big.NewInt(a.CRDVolume))
	return w
}

// =============================================================================

// Witness is a block-producer candidate with virtual-time scheduling
// state.
type Witness struct {
	ID

	Owner      string
	Created    uint64
	URL        string
	SigningKey string

	TotalMissed           uint32
	LastConfirmedBlockNum uint64

	Props           operation.ChainProperties
	CRDExchangeRate asset.Price
	LastCRDExchange uint64

	Votes                int64
	VirtualLastUpdate    *big.Int
	VirtualPosition      *big.Int
	VirtualScheduledTime *big.Int

	HardforkVersionVote uint32
	HardforkTimeVote    uint64
}

func (w *Witness) clone() Witness {
	out := *w
	out.VirtualLastUpdate = cloneBig(w.VirtualLastUpdate)
	out.VirtualPosition = cloneBig(w.VirtualPosition)
	out.VirtualScheduledTime = cloneBig(w.VirtualScheduledTime)
	return out
}

// IsActive reports whether the witness can currently be scheduled.
func (w *Witness) IsActive() bool {
	return w.SigningKey != ""
}

// =============================================================================

// WitnessVote records one account's approval of one witness.
type WitnessVote struct {
	ID

	Witness string
	Account string
}

func (v *WitnessVote) clone() WitnessVote { return *v }

// =============================================================================

// WitnessSchedule is the singleton holding the shuffled producer round
// and the witness-voted median parameters.
type WitnessSchedule struct {
	ID

	CurrentVirtualTime       *big.Int
	NextShuffleBlockNum      uint64
	CurrentShuffledWitnesses []string
	NumScheduledWitnesses    uint8
	MedianProps              operation.ChainProperties
	MajorityHardforkVersion  uint32
}

func (ws *WitnessSchedule) clone() WitnessSchedule {
	out := *ws
	out.CurrentVirtualTime = cloneBig(ws.CurrentVirtualTime)
	out.CurrentShuffledWitnesses = append([]string(nil), ws.CurrentShuffledWitnesses...)
	return out
}

// =============================================================================

// Comment is a post or reply with its reward-share accumulators.
type Comment struct {
	ID

	Author         string
	Permlink       string
	ParentAuthor   string
	ParentPermlink string
	Category       string
	RootComment    uint64
	Depth          uint16
	Children       uint32

	Title        string
	Body         string
	JSONMetadata string

	Created        uint64
	LastUpdate     uint64
	LastPayout     uint64
	CashoutTime    uint64
	MaxCashoutTime uint64

	NetRshares       int64
	AbsRshares       int64
	VoteRshares      int64
	ChildrenRshares2 *big.Int
	TotalVoteWeight  uint64
	NetVotes         int32

	RewardWeight       uint16
	PercentCRD         uint16
	AllowVotes         bool
	AllowCuration      bool
	Beneficiaries      []operation.Beneficiary
	TotalPayoutValue   asset.Asset
	CuratorPayoutValue asset.Asset
	AuthorRewards      int64
}

func (c *Comment) clone() Comment {
	out := *c
	out.ChildrenRshares2 = cloneBig(c.ChildrenRshares2)
	out.Beneficiaries = append([]operation.Beneficiary(nil), c.Beneficiaries...)
	return out
}

// =============================================================================

// CommentVote records one voter's weight on one comment.
type CommentVote struct {
	ID

	Voter      string
	CommentID  uint64
	Weight     uint64
	Rshares    int64
	Percent    int16
	LastUpdate uint64
	NumChanges int8
}

func (v *CommentVote) clone() CommentVote { return *v }

// =============================================================================

// LimitOrder is a resting order holding the unsold remainder.
type LimitOrder struct {
	ID

	Created    uint64
	Expiration uint64
	Seller     string
	OrderID    uint32
	ForSale    int64
	SellPrice  asset.Price
}

func (o *LimitOrder) clone() LimitOrder { return *o }

// AmountForSale returns the remaining sell-side value.
func (o *LimitOrder) AmountForSale() asset.Asset {
	return asset.New(o.ForSale, o.SellPrice.Base.Symbol)
}

// AmountToReceive returns the proceeds if filled completely at the
// order's own price.
func (o *LimitOrder) AmountToReceive() asset.Asset {
	return o.SellPrice.Mul(o.AmountForSale())
}

// =============================================================================

// CallOrder is a margin position: CRES collateral against CRD debt.
type CallOrder struct {
	ID

	Borrower   string
	Collateral int64
	Debt       int64
}

func (c *CallOrder) clone() CallOrder { return *c }

// CollateralizationPrice returns the debt/collateral ratio price used to
// rank positions from least to most collateralized.
func (c *CallOrder) CollateralizationPrice() asset.Price {
	return asset.NewPrice(
		asset.New(c.Debt, asset.CRD),
		asset.New(c.Collateral, asset.CRES),
	)
}

// =============================================================================

// ConvertRequest is a pending CRD to CRES conversion (force settlement).
type ConvertRequest struct {
	ID

	Owner          string
	RequestID      uint32
	Amount         asset.Asset
	ConversionDate uint64
}

func (c *ConvertRequest) clone() ConvertRequest { return *c }

// =============================================================================

// Escrow holds funds locked between three parties.
type Escrow struct {
	ID

	EscrowID             uint32
	From                 string
	To                   string
	Agent                string
	RatificationDeadline uint64
	EscrowExpiration     uint64
	CRESBalance          asset.Asset
	CRDBalance           asset.Asset
	PendingFee           asset.Asset
	ToApproved           bool
	AgentApproved        bool
	Disputed             bool
}

func (e *Escrow) clone() Escrow { return *e }

// IsApproved reports whether both ratifications arrived.
func (e *Escrow) IsApproved() bool { return e.ToApproved && e.AgentApproved }

// =============================================================================

// SavingsWithdraw is a scheduled withdrawal out of a savings balance.
type SavingsWithdraw struct {
	ID

	From      string
	To        string
	Memo      string
	RequestID uint32
	Amount    asset.Asset
	Complete  uint64
}

func (s *SavingsWithdraw) clone() SavingsWithdraw { return *s }

// =============================================================================

// WithdrawVestingRoute redirects part of a vesting withdrawal.
type WithdrawVestingRoute struct {
	ID

	FromAccount string
	ToAccount   string
	Percent     uint16
	AutoVest    bool
}

func (r *WithdrawVestingRoute) clone() WithdrawVestingRoute { return *r }

// =============================================================================

// FeedHistory is the singleton price feed window for the CRD peg. After
// a black swan it additionally carries the frozen settlement terms.
type FeedHistory struct {
	ID

	CurrentMedian asset.Price
	PriceHistory  []asset.Price

	BlackSwan       bool
	SettlementPrice asset.Price
	SettlementFund  int64
}

func (f *FeedHistory) clone() FeedHistory {
	out := *f
	out.PriceHistory = append([]asset.Price(nil), f.PriceHistory...)
	return out
}

// =============================================================================

// RewardFund is a per-category payout pool with decaying recent claims.
type RewardFund struct {
	ID

	Name            string
	RewardBalance   asset.Asset
	RecentRshares2  *big.Int
	LastUpdate      uint64
	PercentCuration uint16
	PercentContent  uint16
}

func (f *RewardFund) clone() RewardFund {
	out := *f
	out.RecentRshares2 = cloneBig(f.RecentRshares2)
	return out
}

// =============================================================================

// TransactionObject is the dedup record of a recently applied
// transaction; expired entries leave the window every block.
type TransactionObject struct {
	ID

	TxID       string
	Expiration uint64
}

func (t *TransactionObject) clone() TransactionObject { return *t }

// =============================================================================

// BlockSummary is one entry of the 65536-slot TaPoS ring.
type BlockSummary struct {
	ID

	BlockID string
}

func (b *BlockSummary) clone() BlockSummary { return *b }

// =============================================================================

// HardforkProperty is the singleton tracking processed hardforks.
type HardforkProperty struct {
	ID

	LastHardfork       uint32
	ProcessedHardforks []uint64
	CurrentVersion     uint32
	NextHardfork       uint32
	NextHardforkTime   uint64
}

func (h *HardforkProperty) clone() HardforkProperty {
	out := *h
	out.ProcessedHardforks = append([]uint64(nil), h.ProcessedHardforks...)
	return out
}
