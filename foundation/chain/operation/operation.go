// Package operation defines the tagged union of chain operations, the
// signed transaction envelope that carries them, and the weighted
// authority model that authorizes them.
package operation

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Kind tags one concrete operation type inside the union.
type Kind string

// The operation kinds users submit in transactions.
const (
	KindAccountCreate             Kind = "account_create"
	KindAccountUpdate             Kind = "account_update"
	KindTransfer                  Kind = "transfer"
	KindTransferToVesting         Kind = "transfer_to_vesting"
	KindWithdrawVesting           Kind = "withdraw_vesting"
	KindSetWithdrawVestingRoute   Kind = "set_withdraw_vesting_route"
	KindWitnessUpdate             Kind = "witness_update"
	KindAccountWitnessVote        Kind = "account_witness_vote"
	KindAccountWitnessProxy       Kind = "account_witness_proxy"
	KindComment                   Kind = "comment"
	KindCommentOptions            Kind = "comment_options"
	KindDeleteComment             Kind = "delete_comment"
	KindVote                      Kind = "vote"
	KindCustomJSON                Kind = "custom_json"
	KindFeedPublish               Kind = "feed_publish"
	KindConvert                   Kind = "convert"
	KindLimitOrderCreate          Kind = "limit_order_create"
	KindLimitOrderCreate2         Kind = "limit_order_create2"
	KindLimitOrderCancel          Kind = "limit_order_cancel"
	KindCallOrderUpdate           Kind = "call_order_update"
	KindEscrowTransfer            Kind = "escrow_transfer"
	KindEscrowApprove             Kind = "escrow_approve"
	KindEscrowDispute             Kind = "escrow_dispute"
	KindEscrowRelease             Kind = "escrow_release"
	KindTransferToSavings         Kind = "transfer_to_savings"
	KindTransferFromSavings       Kind = "transfer_from_savings"
	KindCancelTransferFromSavings Kind = "cancel_transfer_from_savings"
	KindDeclineVotingRights       Kind = "decline_voting_rights"
)

// The virtual operation kinds the engine itself generates. They never
// appear inside a transaction; they exist so observers see every state
// effect in one totally ordered stream.
const (
	KindFillOrder           Kind = "fill_order"
	KindFillConvertRequest  Kind = "fill_convert_request"
	KindFillVestingWithdraw Kind = "fill_vesting_withdraw"
	KindAuthorReward        Kind = "author_reward"
	KindCurationReward      Kind = "curation_reward"
	KindCommentReward       Kind = "comment_reward"
	KindProducerReward      Kind = "producer_reward"
	KindLiquidityReward     Kind = "liquidity_reward"
	KindInterest            Kind = "interest"
	KindShutdownWitness     Kind = "shutdown_witness"
	KindHardfork            Kind = "hardfork"
)

// =============================================================================

// Operation is the behavior every member of the union implements. Validate
// performs structural checks only; business rules live in the evaluators.
type Operation interface {
	Kind() Kind
	Validate() error
	Authorities() Required
}

// VirtualOp marks operations generated by the engine. They are refused at
// the transaction boundary.
type VirtualOp interface {
	Operation
	virtual()
}

// =============================================================================

// The factory table is resolved once at package load; it maps each wire
// tag to a constructor for the concrete type.
var factories = map[Kind]func() Operation{
	KindAccountCreate:             func() Operation { return &AccountCreate{} },
	KindAccountUpdate:             func() Operation { return &AccountUpdate{} },
	KindTransfer:                  func() Operation { return &Transfer{} },
	KindTransferToVesting:         func() Operation { return &TransferToVesting{} },
	KindWithdrawVesting:           func() Operation { return &WithdrawVesting{} },
	KindSetWithdrawVestingRoute:   func() Operation { return &SetWithdrawVestingRoute{} },
	KindWitnessUpdate:             func() Operation { return &WitnessUpdate{} },
	KindAccountWitnessVote:        func() Operation { return &AccountWitnessVote{} },
	KindAccountWitnessProxy:       func() Operation { return &AccountWitnessProxy{} },
	KindComment:                   func() Operation { return &Comment{} },
	KindCommentOptions:            func() Operation { return &CommentOptions{} },
	KindDeleteComment:             func() Operation { return &DeleteComment{} },
	KindVote:                      func() Operation { return &Vote{} },
	KindCustomJSON:                func() Operation { return &CustomJSON{} },
	KindFeedPublish:               func() Operation { return &FeedPublish{} },
	KindConvert:                   func() Operation { return &Convert{} },
	KindLimitOrderCreate:          func() Operation { return &LimitOrderCreate{} },
	KindLimitOrderCreate2:         func() Operation { return &LimitOrderCreate2{} },
	KindLimitOrderCancel:          func() Operation { return &LimitOrderCancel{} },
	KindCallOrderUpdate:           func() Operation { return &CallOrderUpdate{} },
	KindEscrowTransfer:            func() Operation { return &EscrowTransfer{} },
	KindEscrowApprove:             func() Operation { return &EscrowApprove{} },
	KindEscrowDispute:             func() Operation { return &EscrowDispute{} },
	KindEscrowRelease:             func() Operation { return &EscrowRelease{} },
	KindTransferToSavings:         func() Operation { return &TransferToSavings{} },
	KindTransferFromSavings:       func() Operation { return &TransferFromSavings{} },
	KindCancelTransferFromSavings: func() Operation { return &CancelTransferFromSavings{} },
	KindDeclineVotingRights:       func() Operation { return &DeclineVotingRights{} },
}

// =============================================================================

// Op wraps a concrete operation for wire and disk encoding with an
// explicit type tag.
type Op struct {
	Operation
}

// Wrap packages a concrete operation for inclusion in a transaction.
func Wrap(op Operation) Op {
	return Op{Operation: op}
}

type opEnvelope struct {
	Type  Kind            `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON implements the json.Marshaler interface.
func (o Op) MarshalJSON() ([]byte, error) {
	if o.Operation == nil {
		return nil, errors.New("cannot encode empty operation")
	}

	value, err := json.Marshal(o.Operation)
	if err != nil {
		return nil, err
	}

	return json.Marshal(opEnvelope{Type: o.Operation.Kind(), Value: value})
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (o *Op) UnmarshalJSON(data []byte) error {
	var env opEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	factory, exists := factories[env.Type]
	if !exists {
		return fmt.Errorf("unknown operation type %q", env.Type)
	}

	op := factory()
	if err := json.Unmarshal(env.Value, op); err != nil {
		return errors.Wrapf(err, "decoding %s operation", env.Type)
	}

	o.Operation = op
	return nil
}
