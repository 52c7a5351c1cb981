package operation

import (
	"fmt"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
)

// AccountCreate registers a new account, funding its vesting balance with
// the fee.
type AccountCreate struct {
	Fee            asset.Asset `json:"fee"`
	Creator        string      `json:"creator" validate:"required"`
	NewAccountName string      `json:"new_account_name" validate:"required"`
	Owner          Authority   `json:"owner"`
	Active         Authority   `json:"active"`
	Posting        Authority   `json:"posting"`
	MemoKey        string      `json:"memo_key"`
	JSONMetadata   string      `json:"json_metadata"`
}

// Kind implements the Operation interface.
func (op *AccountCreate) Kind() Kind { return KindAccountCreate }

// Validate implements the Operation interface.
func (op *AccountCreate) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.NewAccountName) {
		return fmt.Errorf("invalid new account name %q", op.NewAccountName)
	}
	if !IsValidAccountName(op.Creator) {
		return fmt.Errorf("invalid creator account name %q", op.Creator)
	}
	if err := op.Fee.Validate(); err != nil {
		return err
	}
	if op.Fee.Symbol != asset.CRES {
		return fmt.Errorf("account creation fee must be %s", asset.CRES)
	}
	for _, auth := range []Authority{op.Owner, op.Active, op.Posting} {
		if err := auth.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *AccountCreate) Authorities() Required {
	return Required{Active: []string{op.Creator}}
}

// =============================================================================

// AccountUpdate replaces an account's authorities and metadata. Changing
// the owner authority demands the owner authority itself.
type AccountUpdate struct {
	Account      string     `json:"account" validate:"required"`
	Owner        *Authority `json:"owner,omitempty"`
	Active       *Authority `json:"active,omitempty"`
	Posting      *Authority `json:"posting,omitempty"`
	MemoKey      string     `json:"memo_key"`
	JSONMetadata string     `json:"json_metadata"`
}

// Kind implements the Operation interface.
func (op *AccountUpdate) Kind() Kind { return KindAccountUpdate }

// Validate implements the Operation interface.
func (op *AccountUpdate) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Account) {
		return fmt.Errorf("invalid account name %q", op.Account)
	}
	for _, auth := range []*Authority{op.Owner, op.Active, op.Posting} {
		if auth != nil {
			if err := auth.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *AccountUpdate) Authorities() Required {
	if op.Owner != nil {
		return Required{Owner: []string{op.Account}}
	}
	return Required{Active: []string{op.Account}}
}

// =============================================================================

// DeclineVotingRights irreversibly removes an account's governance and
// curation influence after a waiting period.
type DeclineVotingRights struct {
	Account string `json:"account" validate:"required"`
	Decline bool   `json:"decline"`
}

// Kind implements the Operation interface.
func (op *DeclineVotingRights) Kind() Kind { return KindDeclineVotingRights }

// Validate implements the Operation interface.
func (op *DeclineVotingRights) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Account) {
		return fmt.Errorf("invalid account name %q", op.Account)
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *DeclineVotingRights) Authorities() Required {
	return Required{Owner: []string{op.Account}}
}

// =============================================================================

// CustomJSON carries app-defined payloads through consensus ordering
// without consensus effect.
type CustomJSON struct {
	RequiredAuths        []string `json:"required_auths"`
	RequiredPostingAuths []string `json:"required_posting_auths"`
	ID                   string   `json:"id" validate:"required,max=32"`
	JSON                 string   `json:"json" validate:"required"`
}

// Kind implements the Operation interface.
func (op *CustomJSON) Kind() Kind { return KindCustomJSON }

// Validate implements the Operation interface.
func (op *CustomJSON) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if len(op.RequiredAuths)+len(op.RequiredPostingAuths) == 0 {
		return fmt.Errorf("custom_json requires at least one authority")
	}
	for _, name := range append(append([]string{}, op.RequiredAuths...), op.RequiredPostingAuths...) {
		if !IsValidAccountName(name) {
			return fmt.Errorf("invalid account name %q", name)
		}
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *CustomJSON) Authorities() Required {
	return Required{Active: op.RequiredAuths, Posting: op.RequiredPostingAuths}
}
