package operation

import (
	"fmt"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
)

// EscrowTransfer locks funds with a third-party agent until released or
// the ratification deadline expires.
type EscrowTransfer struct {
	From                 string      `json:"from" validate:"required"`
	To                   string      `json:"to" validate:"required"`
	Agent                string      `json:"agent" validate:"required"`
	EscrowID             uint32      `json:"escrow_id"`
	CRESAmount           asset.Asset `json:"cres_amount"`
	CRDAmount            asset.Asset `json:"crd_amount"`
	Fee                  asset.Asset `json:"fee"`
	RatificationDeadline uint64      `json:"ratification_deadline" validate:"required"`
	EscrowExpiration     uint64      `json:"escrow_expiration" validate:"required"`
	JSONMeta             string      `json:"json_meta"`
}

// Kind implements the Operation interface.
func (op *EscrowTransfer) Kind() Kind { return KindEscrowTransfer }

// Validate implements the Operation interface.
func (op *EscrowTransfer) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	for _, name := range []string{op.From, op.To, op.Agent} {
		if !IsValidAccountName(name) {
			return fmt.Errorf("invalid account name %q in escrow", name)
		}
	}
	if op.From == op.To || op.From == op.Agent || op.To == op.Agent {
		return fmt.Errorf("escrow parties must be three distinct accounts")
	}
	if op.CRESAmount.Symbol != asset.CRES || op.CRESAmount.Amount < 0 {
		return fmt.Errorf("invalid escrow %s amount", asset.CRES)
	}
	if op.CRDAmount.Symbol != asset.CRD || op.CRDAmount.Amount < 0 {
		return fmt.Errorf("invalid escrow %s amount", asset.CRD)
	}
	if op.CRESAmount.Amount+op.CRDAmount.Amount <= 0 {
		return fmt.Errorf("escrow must lock a positive amount")
	}
	if op.Fee.Amount < 0 || op.Fee.Symbol == asset.VESTS {
		return fmt.Errorf("invalid escrow fee")
	}
	if op.RatificationDeadline >= op.EscrowExpiration {
		return fmt.Errorf("ratification deadline must precede escrow expiration")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *EscrowTransfer) Authorities() Required {
	return Required{Active: []string{op.From}}
}

// =============================================================================

// EscrowApprove records the agent's or receiver's ratification. Both must
// approve before the deadline or the escrow refunds.
type EscrowApprove struct {
	From     string `json:"from" validate:"required"`
	To       string `json:"to" validate:"required"`
	Agent    string `json:"agent" validate:"required"`
	Who      string `json:"who" validate:"required"`
	EscrowID uint32 `json:"escrow_id"`
	Approve  bool   `json:"approve"`
}

// Kind implements the Operation interface.
func (op *EscrowApprove) Kind() Kind { return KindEscrowApprove }

// Validate implements the Operation interface.
func (op *EscrowApprove) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if op.Who != op.To && op.Who != op.Agent {
		return fmt.Errorf("only the receiver or the agent ratify an escrow")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *EscrowApprove) Authorities() Required {
	return Required{Active: []string{op.Who}}
}

// =============================================================================

// EscrowDispute freezes an active escrow so only the agent may release.
type EscrowDispute struct {
	From     string `json:"from" validate:"required"`
	To       string `json:"to" validate:"required"`
	Agent    string `json:"agent" validate:"required"`
	Who      string `json:"who" validate:"required"`
	EscrowID uint32 `json:"escrow_id"`
}

// Kind implements the Operation interface.
func (op *EscrowDispute) Kind() Kind { return KindEscrowDispute }

// Validate implements the Operation interface.
func (op *EscrowDispute) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if op.Who != op.From && op.Who != op.To {
		return fmt.Errorf("only a party to the escrow may dispute it")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *EscrowDispute) Authorities() Required {
	return Required{Active: []string{op.Who}}
}

// =============================================================================

// EscrowRelease pays escrowed funds out to one of the parties according
// to the dispute rules.
type EscrowRelease struct {
	From       string      `json:"from" validate:"required"`
	To         string      `json:"to" validate:"required"`
	Agent      string      `json:"agent" validate:"required"`
	Who        string      `json:"who" validate:"required"`
	Receiver   string      `json:"receiver" validate:"required"`
	EscrowID   uint32      `json:"escrow_id"`
	CRESAmount asset.Asset `json:"cres_amount"`
	CRDAmount  asset.Asset `json:"crd_amount"`
}

// Kind implements the Operation interface.
func (op *EscrowRelease) Kind() Kind { return KindEscrowRelease }

// Validate implements the Operation interface.
func (op *EscrowRelease) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if op.Receiver != op.From && op.Receiver != op.To {
		return fmt.Errorf("escrow funds release to a party of the escrow only")
	}
	if op.CRESAmount.Symbol != asset.CRES || op.CRESAmount.Amount < 0 {
		return fmt.Errorf("invalid release %s amount", asset.CRES)
	}
	if op.CRDAmount.Symbol != asset.CRD || op.CRDAmount.Amount < 0 {
		return fmt.Errorf("invalid release %s amount", asset.CRD)
	}
	if op.CRESAmount.Amount+op.CRDAmount.Amount <= 0 {
		return fmt.Errorf("escrow release must move a positive amount")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *EscrowRelease) Authorities() Required {
	return Required{Active: []string{op.Who}}
}
