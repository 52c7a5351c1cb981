package operation

import (
	"fmt"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
)

// ChainProperties are the witness-voted runtime parameters. The values in
// force are the medians across the active witness set.
type ChainProperties struct {
	AccountCreationFee asset.Asset `json:"account_creation_fee"`
	MaximumBlockSize   uint32      `json:"maximum_block_size" validate:"gte=65536"`
	CRDInterestRate    uint16      `json:"crd_interest_rate" validate:"lte=10000"`
}

// Validate checks the properties hold sane values.
func (p ChainProperties) Validate() error {
	if err := check(p); err != nil {
		return err
	}
	if p.AccountCreationFee.Symbol != asset.CRES || p.AccountCreationFee.Amount < 1 {
		return fmt.Errorf("account creation fee must be at least 1 %s", asset.CRES)
	}
	return nil
}

// =============================================================================

// WitnessUpdate registers or updates a block-producer candidate. An empty
// signing key address takes the witness out of rotation.
type WitnessUpdate struct {
	Owner           string          `json:"owner" validate:"required"`
	URL             string          `json:"url" validate:"max=2048"`
	BlockSigningKey string          `json:"block_signing_key"`
	Props           ChainProperties `json:"props"`
	Fee             asset.Asset     `json:"fee"`
}

// Kind implements the Operation interface.
func (op *WitnessUpdate) Kind() Kind { return KindWitnessUpdate }

// Validate implements the Operation interface.
func (op *WitnessUpdate) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Owner) {
		return fmt.Errorf("invalid account name %q", op.Owner)
	}
	if err := op.Props.Validate(); err != nil {
		return err
	}
	if op.Fee.Symbol != asset.CRES || op.Fee.Amount < 0 {
		return fmt.Errorf("witness fee must be a non-negative amount of %s", asset.CRES)
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *WitnessUpdate) Authorities() Required {
	return Required{Active: []string{op.Owner}}
}

// =============================================================================

// AccountWitnessVote approves or withdraws approval of a witness with the
// voter's full vesting weight.
type AccountWitnessVote struct {
	Account string `json:"account" validate:"required"`
	Witness string `json:"witness" validate:"required"`
	Approve bool   `json:"approve"`
}

// Kind implements the Operation interface.
func (op *AccountWitnessVote) Kind() Kind { return KindAccountWitnessVote }

// Validate implements the Operation interface.
func (op *AccountWitnessVote) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Account) || !IsValidAccountName(op.Witness) {
		return fmt.Errorf("invalid account name in witness vote")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *AccountWitnessVote) Authorities() Required {
	return Required{Active: []string{op.Account}}
}

// =============================================================================

// AccountWitnessProxy delegates all of an account's governance votes to
// another account. An empty proxy clears the delegation.
type AccountWitnessProxy struct {
	Account string `json:"account" validate:"required"`
	Proxy   string `json:"proxy"`
}

// Kind implements the Operation interface.
func (op *AccountWitnessProxy) Kind() Kind { return KindAccountWitnessProxy }

// Validate implements the Operation interface.
func (op *AccountWitnessProxy) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Account) {
		return fmt.Errorf("invalid account name %q", op.Account)
	}
	if op.Proxy != "" && !IsValidAccountName(op.Proxy) {
		return fmt.Errorf("invalid proxy name %q", op.Proxy)
	}
	if op.Proxy == op.Account {
		return fmt.Errorf("cannot proxy to self")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *AccountWitnessProxy) Authorities() Required {
	return Required{Active: []string{op.Account}}
}
