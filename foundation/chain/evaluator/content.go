package evaluator

import (
	"math"
	"math/big"

	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/genesis"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/reward"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

const maxVoteChanges = 5

func evalComment(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.Comment)

	author, err := account(ctx, op.Author)
	if err != nil {
		return err
	}

	if existing := ctx.DB.CommentBy(op.Author, op.Permlink); existing != nil {
		ctx.DB.Comments.Modify(existing, func(c *statedb.Comment) {
			c.Title = op.Title
			c.Body = op.Body
			c.JSONMetadata = op.JSONMetadata
			c.LastUpdate = ctx.Now()
		})
		return nil
	}

	now := ctx.Now()

	var parent *statedb.Comment
	if op.ParentAuthor != "" {
		parent = ctx.DB.CommentBy(op.ParentAuthor, op.ParentPermlink)
		if parent == nil {
			return errors.Errorf("parent comment %s/%s does not exist", op.ParentAuthor, op.ParentPermlink)
		}
		if int(parent.Depth) >= genesis.MaxCommentDepth {
			return errors.Errorf("comment nesting exceeds depth %d", genesis.MaxCommentDepth)
		}
		if author.LastPost != 0 && now-author.LastPost < genesis.MinReplyInterval {
			return errors.Errorf("account %q may only reply every %d seconds", op.Author, genesis.MinReplyInterval)
		}
	} else {
		if author.LastRootPost != 0 && now-author.LastRootPost < genesis.MinRootCommentInterval {
			return errors.Errorf("account %q may only post every %d seconds", op.Author, genesis.MinRootCommentInterval)
		}
	}

	cashoutWindow := genesis.CashoutWindowSeconds
	if ctx.HasFork(genesis.HardforkRewardFunds) {
		cashoutWindow = genesis.CashoutWindowSecondsHF17
	}

	ctx.DB.Comments.Create(func(c *statedb.Comment) {
		c.Author = op.Author
		c.Permlink = op.Permlink
		c.ParentAuthor = op.ParentAuthor
		c.ParentPermlink = op.ParentPermlink
		c.Title = op.Title
		c.Body = op.Body
		c.JSONMetadata = op.JSONMetadata
		c.Created = now
		c.LastUpdate = now
		c.CashoutTime = now + cashoutWindow
		c.MaxCashoutTime = now + genesis.MaxCashoutWindowSeconds
		c.ChildrenRshares2 = big.NewInt(0)
		c.RewardWeight = genesis.VotePowerFull
		c.PercentCRD = uint16(genesis.PercentDenomBP)
		c.AllowVotes = true
		c.AllowCuration = true
		c.TotalPayoutValue = asset.Zero(asset.CRD)
		c.CuratorPayoutValue = asset.Zero(asset.CRD)
		c.AuthorRewards = 0

		if parent != nil {
			c.RootComment = parent.RootComment
			c.Category = parent.Category
			c.Depth = parent.Depth + 1
		} else {
			c.RootComment = uint64(c.ID)
			c.Category = op.ParentPermlink
		}
	})

	for p := parent; p != nil; p = parentOf(ctx, p) {
		ctx.DB.Comments.Modify(p, func(c *statedb.Comment) {
			c.Children++
		})
	}

	ctx.DB.Accounts.Modify(author, func(a *statedb.Account) {
		a.PostCount++
		a.LastPost = now
		if op.ParentAuthor == "" {
			a.LastRootPost = now
		}
	})

	return nil
}

func evalCommentOptions(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.CommentOptions)

	c := ctx.DB.CommentBy(op.Author, op.Permlink)
	if c == nil {
		return errors.Errorf("comment %s/%s does not exist", op.Author, op.Permlink)
	}

	// Payout terms can only tighten, and only before any vote lands.
	if c.AbsRshares != 0 {
		return errors.Errorf("comment %s/%s already has votes, options are frozen", op.Author, op.Permlink)
	}
	if op.PercentCRD > c.PercentCRD {
		return errors.Errorf("percent CRD can only be lowered, comment allows %d", c.PercentCRD)
	}
	if op.AllowVotes && !c.AllowVotes {
		return errors.Errorf("votes cannot be re-enabled")
	}
	if op.AllowCurationRewards && !c.AllowCuration {
		return errors.Errorf("curation rewards cannot be re-enabled")
	}
	if len(op.Beneficiaries) > 0 && len(c.Beneficiaries) > 0 {
		return errors.Errorf("comment %s/%s already has beneficiaries set", op.Author, op.Permlink)
	}

	ctx.DB.Comments.Modify(c, func(c *statedb.Comment) {
		c.PercentCRD = op.PercentCRD
		c.AllowVotes = op.AllowVotes
		c.AllowCuration = op.AllowCurationRewards
		if len(op.Beneficiaries) > 0 {
			c.Beneficiaries = append([]operation.Beneficiary(nil), op.Beneficiaries...)
		}
	})

	return nil
}

func evalDeleteComment(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.DeleteComment)

	c := ctx.DB.CommentBy(op.Author, op.Permlink)
	if c == nil {
		return errors.Errorf("comment %s/%s does not exist", op.Author, op.Permlink)
	}
	if c.Children != 0 {
		return errors.Errorf("cannot delete a comment with replies")
	}
	if c.NetRshares > 0 {
		return errors.Errorf("cannot delete a comment with positive reward shares")
	}
	if c.CashoutTime == math.MaxUint64 {
		return errors.Errorf("cannot delete a comment that has been paid")
	}

	var votes []*statedb.CommentVote
	for _, v := range ctx.DB.CommentVotes.All(nil) {
		if v.CommentID == uint64(c.ID) {
			votes = append(votes, v)
		}
	}
	for _, v := range votes {
		ctx.DB.CommentVotes.Remove(v)
	}

	if parent := parentOf(ctx, c); parent != nil {
		ctx.DB.Comments.Modify(parent, func(p *statedb.Comment) {
			p.Children--
		})
	}
	ctx.DB.Comments.Remove(c)

	return nil
}

// =============================================================================

func evalVote(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.Vote)

	voter, err := account(ctx, op.Voter)
	if err != nil {
		return err
	}
	if voter.DeclinedVoting {
		return errors.Errorf("account %q has declined its voting rights", op.Voter)
	}

	c := ctx.DB.CommentBy(op.Author, op.Permlink)
	if c == nil {
		return errors.Errorf("comment %s/%s does not exist", op.Author, op.Permlink)
	}
	if !c.AllowVotes {
		return errors.Errorf("comment %s/%s does not allow votes", op.Author, op.Permlink)
	}
	if c.CashoutTime == math.MaxUint64 {
		return errors.Errorf("comment %s/%s is past its payout window", op.Author, op.Permlink)
	}

	now := ctx.Now()

	// Voting power regenerates linearly over the regeneration window.
	elapsed := now - voter.LastVoteTime
	power := int64(voter.VotingPower) + int64(elapsed*uint64(genesis.VotePowerFull)/genesis.VoteRegenerationSeconds)
	if power > int64(genesis.VotePowerFull) {
		power = int64(genesis.VotePowerFull)
	}

	absWeight := int64(op.Weight)
	if absWeight < 0 {
		absWeight = -absWeight
	}

	// The drain denominator sets how many full-power votes a day the
	// regeneration rate sustains.
	voteDenom := int64(genesis.MaxVotesPerDay) * int64(genesis.VoteRegenerationSeconds) / (60 * 60 * 24)
	usedPower := (power*absWeight/int64(genesis.PercentDenomBP) + voteDenom - 1) / voteDenom
	if usedPower <= 0 && op.Weight != 0 {
		return errors.Errorf("vote weight %d is too small to register", op.Weight)
	}

	rshares := voter.EffectiveVestingShares() / int64(genesis.PercentDenomBP) * usedPower
	if op.Weight < 0 {
		rshares = -rshares
	}
	if op.Weight == 0 {
		rshares = 0
	}

	existing := ctx.DB.CommentVoteBy(uint64(c.ID), op.Voter)

	oldRshares2 := reward.CurveRshares2(c.NetRshares)

	switch {
	case existing == nil:
		// A fresh vote earns curation weight, discounted inside the
		// reverse auction window after the post's creation.
		var voteWeight uint64
		if rshares > 0 && c.AllowCuration {
			sinceCreated := now - c.Created
			if sinceCreated > genesis.ReverseAuctionWindowSecs {
				sinceCreated = genesis.ReverseAuctionWindowSecs
			}
			voteWeight = uint64(rshares) * sinceCreated / genesis.ReverseAuctionWindowSecs
		}

		ctx.DB.CommentVotes.Create(func(v *statedb.CommentVote) {
			v.Voter = op.Voter
			v.CommentID = uint64(c.ID)
			v.Weight = voteWeight
			v.Rshares = rshares
			v.Percent = op.Weight
			v.LastUpdate = now
		})

		ctx.DB.Comments.Modify(c, func(cm *statedb.Comment) {
			cm.NetRshares += rshares
			cm.AbsRshares += abs64(rshares)
			if rshares > 0 {
				cm.VoteRshares += rshares
			}
			cm.TotalVoteWeight += voteWeight
			switch {
			case rshares > 0:
				cm.NetVotes++
			case rshares < 0:
				cm.NetVotes--
			}
		})

	default:
		if existing.NumChanges >= maxVoteChanges {
			return errors.Errorf("account %q has changed this vote too many times", op.Voter)
		}
		if existing.Percent == op.Weight {
			return errors.Errorf("vote is unchanged")
		}

		oldVote := *existing

		// A changed vote forfeits its curation weight.
		ctx.DB.CommentVotes.Modify(existing, func(v *statedb.CommentVote) {
			v.Rshares = rshares
			v.Percent = op.Weight
			v.Weight = 0
			v.LastUpdate = now
			v.NumChanges++
		})

		ctx.DB.Comments.Modify(c, func(cm *statedb.Comment) {
			cm.NetRshares += rshares - oldVote.Rshares
			cm.AbsRshares += abs64(rshares)
			if rshares > 0 {
				cm.VoteRshares += rshares
			}
			cm.TotalVoteWeight -= oldVote.Weight
			switch {
			case oldVote.Rshares > 0:
				cm.NetVotes--
			case oldVote.Rshares < 0:
				cm.NetVotes++
			}
			switch {
			case rshares > 0:
				cm.NetVotes++
			case rshares < 0:
				cm.NetVotes--
			}
		})
	}

	adjustRshares2(ctx, c, oldRshares2, reward.CurveRshares2(c.NetRshares))

	ctx.DB.Accounts.Modify(voter, func(a *statedb.Account) {
		a.VotingPower = uint16(power - usedPower)
		a.LastVoteTime = now
	})

	return nil
}

// adjustRshares2 propagates a change in a comment's squared reward
// shares up its ancestor chain, and into the pre-fund global total.
func adjustRshares2(ctx *Context, c *statedb.Comment, oldR2 *big.Int, newR2 *big.Int) {
	delta := new(big.Int).Sub(newR2, oldR2)
	if delta.Sign() == 0 {
		return
	}

	for node := c; node != nil; node = parentOf(ctx, node) {
		ctx.DB.Comments.Modify(node, func(cm *statedb.Comment) {
			cm.ChildrenRshares2 = new(big.Int).Add(cm.ChildrenRshares2, delta)
		})
	}

	if !ctx.HasFork(genesis.HardforkRewardFunds) {
		gp := ctx.DB.Gprops()
		ctx.DB.Globals.Modify(gp, func(g *statedb.GlobalProperties) {
			g.TotalRewardShares2 = new(big.Int).Add(g.TotalRewardShares2, delta)
		})
	}
}

func parentOf(ctx *Context, c *statedb.Comment) *statedb.Comment {
	if c.ParentAuthor == "" {
		return nil
	}
	return ctx.DB.CommentBy(c.ParentAuthor, c.ParentPermlink)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
