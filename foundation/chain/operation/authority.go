package operation

import (
	"errors"
	"fmt"
)

// Level identifies the strength of authority an operation demands from an
// account. Owner outranks active which outranks posting.
type Level int

// The three authority levels an account maintains.
const (
	Posting Level = iota
	Active
	Owner
)

// String implements the fmt.Stringer interface.
func (l Level) String() string {
	switch l {
	case Posting:
		return "posting"
	case Active:
		return "active"
	case Owner:
		return "owner"
	}
	return "unknown"
}

// =============================================================================

// Authority is a weighted-threshold multisig specification. A signer set
// satisfies it when the sum of the weights of the matched key addresses
// and recursively satisfied account authorities reaches the threshold.
type Authority struct {
	WeightThreshold uint32            `json:"weight_threshold"`
	KeyAuths        map[string]uint32 `json:"key_auths"`
	AccountAuths    map[string]uint32 `json:"account_auths"`
}

// NewAuthority constructs a single-key authority with threshold 1.
func NewAuthority(keyAddress string) Authority {
	return Authority{
		WeightThreshold: 1,
		KeyAuths:        map[string]uint32{keyAddress: 1},
	}
}

// Validate checks the authority is satisfiable at all.
func (a Authority) Validate() error {
	if a.WeightThreshold == 0 {
		return errors.New("authority threshold must be positive")
	}

	var total uint64
	for addr, weight := range a.KeyAuths {
		if weight == 0 {
			return fmt.Errorf("zero weight for key %s", addr)
		}
		total += uint64(weight)
	}
	for name, weight := range a.AccountAuths {
		if !IsValidAccountName(name) {
			return fmt.Errorf("invalid account name %q in authority", name)
		}
		if weight == 0 {
			return fmt.Errorf("zero weight for account %s", name)
		}
		total += uint64(weight)
	}

	if total < uint64(a.WeightThreshold) {
		return errors.New("authority is impossible to satisfy")
	}

	return nil
}

// IsEmpty reports whether the authority names no keys and no accounts.
func (a Authority) IsEmpty() bool {
	return len(a.KeyAuths) == 0 && len(a.AccountAuths) == 0
}

// =============================================================================

// Required collects the account names whose authority an operation
// demands, grouped by level.
type Required struct {
	Owner   []string
	Active  []string
	Posting []string
}

// Merge folds another requirement set into this one.
func (r *Required) Merge(o Required) {
	r.Owner = append(r.Owner, o.Owner...)
	r.Active = append(r.Active, o.Active...)
	r.Posting = append(r.Posting, o.Posting...)
}

// =============================================================================

// IsValidAccountName checks the chain's account naming rules: 3 to 16
// characters of lowercase letters, digits, dashes and dots, each dot
// separated label starting with a letter.
func IsValidAccountName(name string) bool {
	const minLength = 3
	const maxLength = 16

	if len(name) < minLength || len(name) > maxLength {
		return false
	}

	labelStart := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case labelStart:
			if c < 'a' || c > 'z' {
				return false
			}
			labelStart = false

		case c == '.':
			labelStart = true

		case c == '-', c >= 'a' && c <= 'z', c >= '0' && c <= '9':

		default:
			return false
		}
	}

	// A trailing dot or dash leaves an unterminated label.
	return !labelStart && name[len(name)-1] != '-'
}
