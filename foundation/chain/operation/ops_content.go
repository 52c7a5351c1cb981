package operation

import (
	"fmt"
)

// maxPermlinkLength bounds permlinks so index keys stay small.
const maxPermlinkLength = 256

func validPermlink(permlink string) bool {
	if len(permlink) == 0 || len(permlink) > maxPermlinkLength {
		return false
	}
	for i := 0; i < len(permlink); i++ {
		c := permlink[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}

// =============================================================================

// Comment creates or edits a post or a reply. A top level post carries an
// empty parent author and uses the parent permlink as its category.
type Comment struct {
	ParentAuthor   string `json:"parent_author"`
	ParentPermlink string `json:"parent_permlink" validate:"required"`
	Author         string `json:"author" validate:"required"`
	Permlink       string `json:"permlink" validate:"required"`
	Title          string `json:"title" validate:"max=256"`
	Body           string `json:"body" validate:"required"`
	JSONMetadata   string `json:"json_metadata"`
}

// Kind implements the Operation interface.
func (op *Comment) Kind() Kind { return KindComment }

// Validate implements the Operation interface.
func (op *Comment) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Author) {
		return fmt.Errorf("invalid author name %q", op.Author)
	}
	if op.ParentAuthor != "" && !IsValidAccountName(op.ParentAuthor) {
		return fmt.Errorf("invalid parent author name %q", op.ParentAuthor)
	}
	if !validPermlink(op.Permlink) || !validPermlink(op.ParentPermlink) {
		return fmt.Errorf("invalid permlink")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *Comment) Authorities() Required {
	return Required{Posting: []string{op.Author}}
}

// =============================================================================

// Beneficiary routes a basis-point share of a comment's author reward to
// another account.
type Beneficiary struct {
	Account string `json:"account" validate:"required"`
	Weight  uint16 `json:"weight" validate:"lte=10000"`
}

// CommentOptions adjusts payout behavior for a comment before its first
// vote: maximum payout, payout split and beneficiary routing.
type CommentOptions struct {
	Author               string        `json:"author" validate:"required"`
	Permlink             string        `json:"permlink" validate:"required"`
	PercentCRD           uint16        `json:"percent_crd" validate:"lte=10000"`
	AllowVotes           bool          `json:"allow_votes"`
	AllowCurationRewards bool          `json:"allow_curation_rewards"`
	Beneficiaries        []Beneficiary `json:"beneficiaries" validate:"max=8,dive"`
}

// Kind implements the Operation interface.
func (op *CommentOptions) Kind() Kind { return KindCommentOptions }

// Validate implements the Operation interface.
func (op *CommentOptions) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Author) {
		return fmt.Errorf("invalid author name %q", op.Author)
	}
	if !validPermlink(op.Permlink) {
		return fmt.Errorf("invalid permlink")
	}

	// Beneficiaries must be sorted, unique, and sum within 100%.
	var total uint32
	for i, b := range op.Beneficiaries {
		if !IsValidAccountName(b.Account) {
			return fmt.Errorf("invalid beneficiary name %q", b.Account)
		}
		if b.Weight == 0 {
			return fmt.Errorf("zero weight beneficiary %q", b.Account)
		}
		if i > 0 && op.Beneficiaries[i-1].Account >= b.Account {
			return fmt.Errorf("beneficiaries must be sorted by account with no duplicates")
		}
		total += uint32(b.Weight)
	}
	if total > 10000 {
		return fmt.Errorf("beneficiary weights exceed 100%%")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *CommentOptions) Authorities() Required {
	return Required{Posting: []string{op.Author}}
}

// =============================================================================

// DeleteComment removes a comment that has no replies and no positive
// reward shares pending.
type DeleteComment struct {
	Author   string `json:"author" validate:"required"`
	Permlink string `json:"permlink" validate:"required"`
}

// Kind implements the Operation interface.
func (op *DeleteComment) Kind() Kind { return KindDeleteComment }

// Validate implements the Operation interface.
func (op *DeleteComment) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Author) {
		return fmt.Errorf("invalid author name %q", op.Author)
	}
	if !validPermlink(op.Permlink) {
		return fmt.Errorf("invalid permlink")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *DeleteComment) Authorities() Required {
	return Required{Posting: []string{op.Author}}
}

// =============================================================================

// Vote casts or changes a weighted vote on a comment. Weight is in basis
// points, negative for a downvote.
type Vote struct {
	Voter    string `json:"voter" validate:"required"`
	Author   string `json:"author" validate:"required"`
	Permlink string `json:"permlink" validate:"required"`
	Weight   int16  `json:"weight" validate:"gte=-10000,lte=10000"`
}

// Kind implements the Operation interface.
func (op *Vote) Kind() Kind { return KindVote }

// Validate implements the Operation interface.
func (op *Vote) Validate() error {
	if err := check(op); err != nil {
		return err
	}
	if !IsValidAccountName(op.Voter) || !IsValidAccountName(op.Author) {
		return fmt.Errorf("invalid account name in vote")
	}
	if !validPermlink(op.Permlink) {
		return fmt.Errorf("invalid permlink")
	}
	return nil
}

// Authorities implements the Operation interface.
func (op *Vote) Authorities() Required {
	return Required{Posting: []string{op.Voter}}
}
