// Package genesis maintains access to the genesis file and the protocol
// constants every node must agree on.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Protocol constants. Changing any of these is a hardfork.
const (
	BlockInterval     = 3 * time.Second
	BlockIntervalSecs = uint64(3)
	BlocksPerYear     = uint64(365*24*60*60) / 3
	BlocksPerDay      = uint64(24*60*60) / 3
	BlocksPerHour     = uint64(60*60) / 3

	// Witness scheduling.
	MaxWitnesses               = 21
	TopWitnesses               = 20
	TimeshareWitnesses         = 1
	WitnessMissedBlocksAllowed = BlocksPerDay // misses before shutdown

	// Transaction admission.
	MaxTimeUntilExpiration = uint64(time.Hour / time.Second)
	MinBlockSizeLimit      = uint32(65536)
	IrreversibleThreshold  = 75 // percent of witnesses that must confirm

	// Bandwidth accounting.
	BandwidthAverageWindowSeconds = uint64(7 * 24 * 60 * 60)
	BandwidthPrecision            = int64(1000000)
	MaxReserveRatio               = int64(20000)
	MaxSigCheckDepth              = 2

	// CRD print throttle: full printing below the start debt ratio,
	// none above the stop ratio, linear in between.
	CRDStartPercentBP = int64(200)
	CRDStopPercentBP  = int64(500)

	// Voting power.
	VotePowerFull             = uint16(10000)
	VoteRegenerationSeconds   = uint64(5 * 24 * 60 * 60)
	MaxVotesPerDay            = 40 // scales the per-vote power drain
	ReverseAuctionWindowSecs  = uint64(30 * 60)
	MaxWitnessVotesPerAccount = 30

	// Content rewards.
	CashoutWindowSeconds       = uint64(12 * 60 * 60)
	CashoutWindowSecondsHF17   = uint64(7 * 24 * 60 * 60)
	MaxCashoutWindowSeconds    = uint64(14 * 24 * 60 * 60)
	RecentRshares2DecaySeconds = uint64(15 * 24 * 60 * 60)
	MaxCommentDepth            = 6
	MinRootCommentInterval     = uint64(5 * 60)
	MinReplyInterval           = uint64(20)

	// Curation's share of a comment payout, in basis points.
	CurationRewardPercent = int64(2500)
	PercentDenomBP        = int64(10000)

	// Inflation schedule (basis points of virtual supply per year).
	InflationRateStartPercent = int64(978)
	InflationRateStopPercent  = int64(95)
	InflationNarrowingPeriod  = uint64(250000)

	// Split of each block's inflation, in basis points.
	ContentRewardPercent = int64(7500)
	VestingFundPercent   = int64(1500)
	// The remainder pays the block producer.

	// Markets.
	LiquidityRewardIntervalSecs = uint64(60 * 60)
	LiquidityAPRPercent         = int64(750)
	ConversionDelaySeconds      = uint64(3*24*60*60 + 12*60*60)
	FeedIntervalBlocks          = BlocksPerHour
	FeedHistoryWindow           = 7 * 24
	MaxFeedAgeSeconds           = uint64(24 * 60 * 60)
	MinShortSqueezeRatioBP      = int64(1500) // 150% of the feed median
	MaintenanceCollateralBP     = int64(1750) // margin call below 175% collateral
	CollateralRatioDenom        = int64(1000)

	// Vesting withdrawals.
	VestingWithdrawIntervals        = 13
	VestingWithdrawIntervalSeconds  = uint64(7 * 24 * 60 * 60)
	SavingsWithdrawTimeSeconds      = uint64(3 * 24 * 60 * 60)
	DeclineVotingRightsDurationSecs = uint64(30 * 24 * 60 * 60)
	EscrowMaxAgents                 = 1
	MaxWithdrawRoutes               = 10
	SavingsWithdrawRequestLimit     = uint16(100)

	// CRD interest.
	InterestCompoundIntervalSecs = uint64(30 * 24 * 60 * 60)

	// Witness pay.
	ProducerVestingThreshold = int64(1000000 * 1000)

	// The account that burns what it receives.
	NullAccountName = "null"
	// The account whose authority nobody holds.
	TempAccountName = "temp"
)

// Hardfork numbers with migration bodies. The chain has applied
// hardforks 1 through NumHardforks in order.
const (
	NumHardforks         = uint16(17)
	HardforkVestingSplit = uint16(1)
	HardforkBandwidth    = uint16(10)
	HardforkInflation    = uint16(16)
	HardforkRewardFunds  = uint16(17)
)

// MainRewardFundName names the post payout pool seeded at the reward
// fund hardfork.
const MainRewardFundName = "post"

// =============================================================================

// Genesis represents the genesis file.
type Genesis struct {
	Date           time.Time         `json:"date"`
	ChainID        uint16            `json:"chain_id"`
	InitAccount    string            `json:"init_account"`
	InitKeyAddress string            `json:"init_key_address"`
	InitSupply     int64             `json:"init_supply"`
	Balances       map[string]int64  `json:"balances"`
	KeyAddresses   map[string]string `json:"key_addresses"`

	// HardforkTimes[n-1] is the activation time of hardfork n. Missing
	// entries activate immediately, which is what fresh chains want.
	HardforkTimes []uint64 `json:"hardfork_times,omitempty"`
}

// HardforkTime returns the scheduled activation time of hardfork n.
func (g Genesis) HardforkTime(n uint16) uint64 {
	if int(n) > len(g.HardforkTimes) || n == 0 {
		return 0
	}
	return g.HardforkTimes[n-1]
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Save writes the genesis document, used by the admin tooling.
func (g Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
