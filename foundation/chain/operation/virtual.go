package operation

import (
	"errors"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
)

// virtualBase supplies the shared behavior of engine-generated
// operations: they are structurally valid by construction and demand no
// authority since no user submits them.
type virtualBase struct{}

func (virtualBase) Validate() error       { return errors.New("virtual operations cannot be submitted") }
func (virtualBase) Authorities() Required { return Required{} }
func (virtualBase) virtual()              {}

// =============================================================================

// FillOrder reports a (partial) fill between two orders.
type FillOrder struct {
	virtualBase
	CurrentOwner   string      `json:"current_owner"`
	CurrentOrderID uint32      `json:"current_order_id"`
	CurrentPays    asset.Asset `json:"current_pays"`
	OpenOwner      string      `json:"open_owner"`
	OpenOrderID    uint32      `json:"open_order_id"`
	OpenPays       asset.Asset `json:"open_pays"`
}

// Kind implements the Operation interface.
func (op *FillOrder) Kind() Kind { return KindFillOrder }

// FillConvertRequest reports a matured CRD conversion paying out.
type FillConvertRequest struct {
	virtualBase
	Owner     string      `json:"owner"`
	RequestID uint32      `json:"request_id"`
	AmountIn  asset.Asset `json:"amount_in"`
	AmountOut asset.Asset `json:"amount_out"`
}

// Kind implements the Operation interface.
func (op *FillConvertRequest) Kind() Kind { return KindFillConvertRequest }

// FillVestingWithdraw reports one installment of a vesting withdrawal.
type FillVestingWithdraw struct {
	virtualBase
	FromAccount string      `json:"from_account"`
	ToAccount   string      `json:"to_account"`
	Withdrawn   asset.Asset `json:"withdrawn"`
	Deposited   asset.Asset `json:"deposited"`
}

// Kind implements the Operation interface.
func (op *FillVestingWithdraw) Kind() Kind { return KindFillVestingWithdraw }

// AuthorReward reports the author share of a comment payout.
type AuthorReward struct {
	virtualBase
	Author        string      `json:"author"`
	Permlink      string      `json:"permlink"`
	CRDPayout     asset.Asset `json:"crd_payout"`
	VestingPayout asset.Asset `json:"vesting_payout"`
}

// Kind implements the Operation interface.
func (op *AuthorReward) Kind() Kind { return KindAuthorReward }

// CurationReward reports one curator's share of a comment payout.
type CurationReward struct {
	virtualBase
	Curator         string      `json:"curator"`
	Reward          asset.Asset `json:"reward"`
	CommentAuthor   string      `json:"comment_author"`
	CommentPermlink string      `json:"comment_permlink"`
}

// Kind implements the Operation interface.
func (op *CurationReward) Kind() Kind { return KindCurationReward }

// CommentReward reports the total value paid out for a comment.
type CommentReward struct {
	virtualBase
	Author   string      `json:"author"`
	Permlink string      `json:"permlink"`
	Payout   asset.Asset `json:"payout"`
}

// Kind implements the Operation interface.
func (op *CommentReward) Kind() Kind { return KindCommentReward }

// ProducerReward reports the witness pay for a block.
type ProducerReward struct {
	virtualBase
	Producer      string      `json:"producer"`
	VestingShares asset.Asset `json:"vesting_shares"`
}

// Kind implements the Operation interface.
func (op *ProducerReward) Kind() Kind { return KindProducerReward }

// LiquidityReward reports the hourly liquidity provider payout.
type LiquidityReward struct {
	virtualBase
	Owner  string      `json:"owner"`
	Payout asset.Asset `json:"payout"`
}

// Kind implements the Operation interface.
func (op *LiquidityReward) Kind() Kind { return KindLiquidityReward }

// Interest reports CRD interest credited on a savings balance.
type Interest struct {
	virtualBase
	Owner    string      `json:"owner"`
	Interest asset.Asset `json:"interest"`
}

// Kind implements the Operation interface.
func (op *Interest) Kind() Kind { return KindInterest }

// ShutdownWitness reports a witness taken out of rotation for missing
// too many recent blocks.
type ShutdownWitness struct {
	virtualBase
	Witness string `json:"witness"`
}

// Kind implements the Operation interface.
func (op *ShutdownWitness) Kind() Kind { return KindShutdownWitness }

// Hardfork marks the activation of a hardfork in the operation stream.
type Hardfork struct {
	virtualBase
	HardforkNum uint32 `json:"hardfork_num"`
}

// Kind implements the Operation interface.
func (op *Hardfork) Kind() Kind { return KindHardfork }
