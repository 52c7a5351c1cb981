package operation

import (
	"fmt"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
)

// Transfer moves liquid CRES or CRD between two accounts.
type Transfer struct {
	From   string      `json:"from" validate:"required"`
	To     string      `json:"to" validate:"required"`
	Amount asset.Asset `json:"amount"`
	Memo   string      `json:"memo" validate:"max=2048"`
}

// Kind implements the Operation interface.
func (op *Transfer) Kind() Kind { return KindTransfer }

// Validate implements the Operation interface.
func (op *Transfer) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.From) || !IsValidAccountName(op.To) {
		return fmt.Errorf("invalid account name in transfer %q -> %q", op.From, op.To)
	}
	if op.From == op.To {
		return fmt.Errorf("cannot transfer to self")
	}
	if err := op.Amount.Validate(); err != nil {
		return err
	}
	if op.Amount.Symbol == asset.VESTS {
		return fmt.Errorf("vesting shares are not transferable")
	}
	if op.Amount.Amount <= 0 {
		return fmt.Errorf("transfer amount must be positive")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *Transfer) Authorities() Required {
	return Required{Active: []string{op.From}}
}

// =============================================================================

// TransferToVesting converts liquid CRES into vesting shares for the
// receiving account ("powering up").
type TransferToVesting struct {
	From   string      `json:"from" validate:"required"`
	To     string      `json:"to"`
	Amount asset.Asset `json:"amount"`
}

// Kind implements the Operation interface.
func (op *TransferToVesting) Kind() Kind { return KindTransferToVesting }

// Validate implements the Operation interface.
func (op *TransferToVesting) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.From) {
		return fmt.Errorf("invalid account name %q", op.From)
	}
	if op.To != "" && !IsValidAccountName(op.To) {
		return fmt.Errorf("invalid account name %q", op.To)
	}
	if op.Amount.Symbol != asset.CRES || op.Amount.Amount <= 0 {
		return fmt.Errorf("must vest a positive amount of %s", asset.CRES)
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *TransferToVesting) Authorities() Required {
	return Required{Active: []string{op.From}}
}

// =============================================================================

// WithdrawVesting starts (or resets) a scheduled conversion of vesting
// shares back to liquid CRES across weekly installments.
type WithdrawVesting struct {
	Account       string      `json:"account" validate:"required"`
	VestingShares asset.Asset `json:"vesting_shares"`
}

// Kind implements the Operation interface.
func (op *WithdrawVesting) Kind() Kind { return KindWithdrawVesting }

// Validate implements the Operation interface.
func (op *WithdrawVesting) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Account) {
		return fmt.Errorf("invalid account name %q", op.Account)
	}
	if op.VestingShares.Symbol != asset.VESTS || op.VestingShares.Amount < 0 {
		return fmt.Errorf("withdrawal must name a non-negative amount of %s", asset.VESTS)
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *WithdrawVesting) Authorities() Required {
	return Required{Active: []string{op.Account}}
}

// =============================================================================

// SetWithdrawVestingRoute directs a percentage of future vesting
// withdrawals to another account, optionally re-vesting on arrival.
type SetWithdrawVestingRoute struct {
	FromAccount string `json:"from_account" validate:"required"`
	ToAccount   string `json:"to_account" validate:"required"`
	Percent     uint16 `json:"percent" validate:"lte=10000"`
	AutoVest    bool   `json:"auto_vest"`
}

// Kind implements the Operation interface.
func (op *SetWithdrawVestingRoute) Kind() Kind { return KindSetWithdrawVestingRoute }

// Validate implements the Operation interface.
func (op *SetWithdrawVestingRoute) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.FromAccount) || !IsValidAccountName(op.ToAccount) {
		return fmt.Errorf("invalid account name in withdraw route")
	}
	if op.FromAccount == op.ToAccount {
		return fmt.Errorf("cannot route a withdrawal to its own account")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *SetWithdrawVestingRoute) Authorities() Required {
	return Required{Active: []string{op.FromAccount}}
}

// =============================================================================

// TransferToSavings moves liquid funds into the 3-day protected savings
// balance.
type TransferToSavings struct {
	From   string      `json:"from" validate:"required"`
	To     string      `json:"to" validate:"required"`
	Amount asset.Asset `json:"amount"`
	Memo   string      `json:"memo" validate:"max=2048"`
}

// Kind implements the Operation interface.
func (op *TransferToSavings) Kind() Kind { return KindTransferToSavings }

// Validate implements the Operation interface.
func (op *TransferToSavings) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.From) || !IsValidAccountName(op.To) {
		return fmt.Errorf("invalid account name in savings transfer")
	}
	if op.Amount.Symbol == asset.VESTS || op.Amount.Amount <= 0 {
		return fmt.Errorf("savings must hold a positive liquid amount")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *TransferToSavings) Authorities() Required {
	return Required{Active: []string{op.From}}
}

// =============================================================================

// TransferFromSavings schedules a withdrawal out of savings that
// completes after the protection window.
type TransferFromSavings struct {
	From      string      `json:"from" validate:"required"`
	RequestID uint32      `json:"request_id"`
	To        string      `json:"to" validate:"required"`
	Amount    asset.Asset `json:"amount"`
	Memo      string      `json:"memo" validate:"max=2048"`
}

// Kind implements the Operation interface.
func (op *TransferFromSavings) Kind() Kind { return KindTransferFromSavings }

// Validate implements the Operation interface.
func (op *TransferFromSavings) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.From) || !IsValidAccountName(op.To) {
		return fmt.Errorf("invalid account name in savings withdrawal")
	}
	if op.Amount.Symbol == asset.VESTS || op.Amount.Amount <= 0 {
		return fmt.Errorf("savings withdrawal must name a positive liquid amount")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *TransferFromSavings) Authorities() Required {
	return Required{Active: []string{op.From}}
}

// =============================================================================

// CancelTransferFromSavings aborts a pending savings withdrawal.
type CancelTransferFromSavings struct {
	From      string `json:"from" validate:"required"`
	RequestID uint32 `json:"request_id"`
}

// Kind implements the Operation interface.
func (op *CancelTransferFromSavings) Kind() Kind { return KindCancelTransferFromSavings }

// Validate implements the Operation interface.
func (op *CancelTransferFromSavings) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.From) {
		return fmt.Errorf("invalid account name %q", op.From)
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *CancelTransferFromSavings) Authorities() Required {
	return Required{Active: []string{op.From}}
}

// =============================================================================

// Convert destroys CRD now and credits CRES after the conversion delay at
// the median feed price collected at fill time.
type Convert struct {
	Owner     string      `json:"owner" validate:"required"`
	RequestID uint32      `json:"request_id"`
	Amount    asset.Asset `json:"amount"`
}

// Kind implements the Operation interface.
func (op *Convert) Kind() Kind { return KindConvert }

// Validate implements the Operation interface.
func (op *Convert) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Owner) {
		return fmt.Errorf("invalid account name %q", op.Owner)
	}
	if op.Amount.Symbol != asset.CRD || op.Amount.Amount <= 0 {
		return fmt.Errorf("conversion must burn a positive amount of %s", asset.CRD)
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *Convert) Authorities() Required {
	return Required{Active: []string{op.Owner}}
}
