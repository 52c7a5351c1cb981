package evaluator

import (
	"github.com/pkg/errors"

	"github.com/crescentlabs/crescent/foundation/chain/asset"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/statedb"
)

func evalEscrowTransfer(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.EscrowTransfer)

	from, err := account(ctx, op.From)
	if err != nil {
		return err
	}
	if _, err := account(ctx, op.To); err != nil {
		return err
	}
	if _, err := account(ctx, op.Agent); err != nil {
		return err
	}

	now := ctx.Now()
	if op.RatificationDeadline <= now {
		return errors.Errorf("escrow ratification deadline is in the past")
	}
	if op.EscrowExpiration <= op.RatificationDeadline {
		return errors.Errorf("escrow must expire after its ratification deadline")
	}
	if op.CRESAmount.IsNegative() || op.CRDAmount.IsNegative() {
		return errors.Errorf("escrow amounts cannot be negative")
	}
	if op.CRESAmount.IsZero() && op.CRDAmount.IsZero() {
		return errors.Errorf("escrow must hold something")
	}
	if ctx.DB.EscrowBy(op.From, op.EscrowID) != nil {
		return errors.Errorf("escrow %d already exists for %q", op.EscrowID, op.From)
	}

	if !op.CRESAmount.IsZero() {
		if err := debitLiquid(ctx, from, op.CRESAmount); err != nil {
			return err
		}
	}
	if !op.CRDAmount.IsZero() {
		if err := debitLiquid(ctx, from, op.CRDAmount); err != nil {
			return err
		}
	}
	if !op.Fee.IsZero() {
		if err := debitLiquid(ctx, from, op.Fee); err != nil {
			return err
		}
	}

	ctx.DB.Escrows.Create(func(e *statedb.Escrow) {
		e.EscrowID = op.EscrowID
		e.From = op.From
		e.To = op.To
		e.Agent = op.Agent
		e.RatificationDeadline = op.RatificationDeadline
		e.EscrowExpiration = op.EscrowExpiration
		e.CRESBalance = op.CRESAmount
		e.CRDBalance = op.CRDAmount
		e.PendingFee = op.Fee
	})

	return nil
}

func evalEscrowApprove(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.EscrowApprove)

	escrow := ctx.DB.EscrowBy(op.From, op.EscrowID)
	if escrow == nil {
		return errors.Errorf("no escrow %d from %q", op.EscrowID, op.From)
	}
	if escrow.To != op.To || escrow.Agent != op.Agent {
		return errors.Errorf("escrow %d parties do not match", op.EscrowID)
	}
	if op.Who != escrow.To && op.Who != escrow.Agent {
		return errors.Errorf("only the receiver or the agent may ratify an escrow")
	}

	if op.Who == escrow.To && escrow.ToApproved {
		return errors.Errorf("%q has already approved escrow %d", op.Who, op.EscrowID)
	}
	if op.Who == escrow.Agent && escrow.AgentApproved {
		return errors.Errorf("%q has already approved escrow %d", op.Who, op.EscrowID)
	}

	// Any rejection before full ratification refunds the sender.
	if !op.Approve {
		return refundEscrow(ctx, escrow)
	}

	ctx.DB.Escrows.Modify(escrow, func(e *statedb.Escrow) {
		if op.Who == e.To {
			e.ToApproved = true
		} else {
			e.AgentApproved = true
		}
	})

	// The agent earns the fee once both parties have ratified.
	if escrow.ToApproved && escrow.AgentApproved && !escrow.PendingFee.IsZero() {
		agent, err := account(ctx, escrow.Agent)
		if err != nil {
			return err
		}
		if err := creditLiquid(ctx, agent, escrow.PendingFee); err != nil {
			return err
		}
		ctx.DB.Escrows.Modify(escrow, func(e *statedb.Escrow) {
			e.PendingFee = asset.Zero(e.PendingFee.Symbol)
		})
	}

	return nil
}

func evalEscrowDispute(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.EscrowDispute)

	escrow := ctx.DB.EscrowBy(op.From, op.EscrowID)
	if escrow == nil {
		return errors.Errorf("no escrow %d from %q", op.EscrowID, op.From)
	}
	if escrow.To != op.To || escrow.Agent != op.Agent {
		return errors.Errorf("escrow %d parties do not match", op.EscrowID)
	}
	if op.Who != escrow.From && op.Who != escrow.To {
		return errors.Errorf("only the sender or receiver may dispute an escrow")
	}
	if !escrow.ToApproved || !escrow.AgentApproved {
		return errors.Errorf("escrow %d has not been fully ratified", op.EscrowID)
	}
	if escrow.Disputed {
		return errors.Errorf("escrow %d is already disputed", op.EscrowID)
	}
	if ctx.Now() >= escrow.EscrowExpiration {
		return errors.Errorf("escrow %d has expired", op.EscrowID)
	}

	ctx.DB.Escrows.Modify(escrow, func(e *statedb.Escrow) {
		e.Disputed = true
	})

	return nil
}

func evalEscrowRelease(ctx *Context, raw operation.Operation) error {
	op := raw.(*operation.EscrowRelease)

	escrow := ctx.DB.EscrowBy(op.From, op.EscrowID)
	if escrow == nil {
		return errors.Errorf("no escrow %d from %q", op.EscrowID, op.From)
	}
	if escrow.To != op.To || escrow.Agent != op.Agent {
		return errors.Errorf("escrow %d parties do not match", op.EscrowID)
	}
	if !escrow.ToApproved || !escrow.AgentApproved {
		return errors.Errorf("escrow %d has not been fully ratified", op.EscrowID)
	}
	if op.Receiver != escrow.From && op.Receiver != escrow.To {
		return errors.Errorf("escrow funds may only release to the sender or receiver")
	}

	// Who may release depends on the escrow's phase: the agent decides
	// disputes, the counterparties release to each other before
	// expiration, and either party may claim after expiration.
	switch {
	case escrow.Disputed:
		if op.Who != escrow.Agent {
			return errors.Errorf("only agent %q may release a disputed escrow", escrow.Agent)
		}

	case ctx.Now() < escrow.EscrowExpiration:
		switch op.Who {
		case escrow.From:
			if op.Receiver != escrow.To {
				return errors.Errorf("sender may only release to %q", escrow.To)
			}
		case escrow.To:
			if op.Receiver != escrow.From {
				return errors.Errorf("receiver may only release back to %q", escrow.From)
			}
		default:
			return errors.Errorf("only the sender or receiver may release this escrow")
		}

	default:
		if op.Who != escrow.From && op.Who != escrow.To {
			return errors.Errorf("only the sender or receiver may release an expired escrow")
		}
	}

	if op.CRESAmount.Amount > escrow.CRESBalance.Amount {
		return errors.Errorf("escrow holds %s, cannot release %s", escrow.CRESBalance, op.CRESAmount)
	}
	if op.CRDAmount.Amount > escrow.CRDBalance.Amount {
		return errors.Errorf("escrow holds %s, cannot release %s", escrow.CRDBalance, op.CRDAmount)
	}

	receiver, err := account(ctx, op.Receiver)
	if err != nil {
		return err
	}
	if !op.CRESAmount.IsZero() {
		if err := creditLiquid(ctx, receiver, op.CRESAmount); err != nil {
			return err
		}
	}
	if !op.CRDAmount.IsZero() {
		if err := creditLiquid(ctx, receiver, op.CRDAmount); err != nil {
			return err
		}
	}

	remainingCRES := escrow.CRESBalance.Sub(op.CRESAmount)
	remainingCRD := escrow.CRDBalance.Sub(op.CRDAmount)

	if remainingCRES.IsZero() && remainingCRD.IsZero() {
		ctx.DB.Escrows.Remove(escrow)
		return nil
	}
	ctx.DB.Escrows.Modify(escrow, func(e *statedb.Escrow) {
		e.CRESBalance = remainingCRES
		e.CRDBalance = remainingCRD
	})

	return nil
}

// refundEscrow returns everything held, fee included, to the sender and
// drops the escrow.
func refundEscrow(ctx *Context, escrow *statedb.Escrow) error {
	from, err := account(ctx, escrow.From)
	if err != nil {
		return err
	}

	if !escrow.CRESBalance.IsZero() {
		if err := creditLiquid(ctx, from, escrow.CRESBalance); err != nil {
			return err
		}
	}
	if !escrow.CRDBalance.IsZero() {
		if err := creditLiquid(ctx, from, escrow.CRDBalance); err != nil {
			return err
		}
	}
	if !escrow.PendingFee.IsZero() {
		if err := creditLiquid(ctx, from, escrow.PendingFee); err != nil {
			return err
		}
	}

	ctx.DB.Escrows.Remove(escrow)
	return nil
}
