// Package chaingrp maintains the group of handlers for chain access.
package chaingrp

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/crescentlabs/crescent/business/web/errs"
	"github.com/crescentlabs/crescent/foundation/chain/operation"
	"github.com/crescentlabs/crescent/foundation/chain/state"
	"github.com/crescentlabs/crescent/foundation/events"
	"github.com/crescentlabs/crescent/foundation/web"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Handlers manages the set of chain endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, wd := <-ch:
			if !wd {
				return nil
			}

			data, err := json.Marshal(event)
			if err != nil {
				return err
			}

			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Chain returns the dynamic global properties at the head block.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gp := h.State.Gprops()
	pending := len(h.State.PendingTransactions())
	return web.Respond(ctx, w, toChain(gp, pending), http.StatusOK)
}

// Accounts returns every account on the chain.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	rows := h.State.Accounts()

	accts := make([]account, len(rows))
	for i, a := range rows {
		accts[i] = toAccount(a)
	}

	return web.Respond(ctx, w, accts, http.StatusOK)
}

// Account returns the named account.
func (h Handlers) Account(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	name := web.Param(r, "name")

	acct, err := h.State.Account(name)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return errs.NewTrusted(err, http.StatusNotFound)
		}
		return err
	}

	return web.Respond(ctx, w, toAccount(acct), http.StatusOK)
}

// Witnesses returns every registered witness.
func (h Handlers) Witnesses(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	rows := h.State.Witnesses()

	wits := make([]witness, len(rows))
	for i, wit := range rows {
		wits[i] = toWitness(wit)
	}

	return web.Respond(ctx, w, wits, http.StatusOK)
}

// Orders returns the open limit orders on the given market.
func (h Handlers) Orders(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	base := web.Param(r, "base")
	quote := web.Param(r, "quote")

	var ords []order
	for _, o := range h.State.Orders("") {
		sells := string(o.SellPrice.Base.Symbol)
		buys := string(o.SellPrice.Quote.Symbol)
		if (sells == base && buys == quote) || (sells == quote && buys == base) {
			ords = append(ords, toOrder(o))
		}
	}

	return web.Respond(ctx, w, ords, http.StatusOK)
}

// Block returns the block at the given height.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	num, err := strconv.ParseUint(web.Param(r, "num"), 10, 64)
	if err != nil {
		return errs.NewTrusted(errors.New("block number must be numeric"), http.StatusBadRequest)
	}

	b, err := h.State.BlockByNumber(num)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return errs.NewTrusted(err, http.StatusNotFound)
		}
		return err
	}

	return web.Respond(ctx, w, blockView{ID: b.ID(), Block: b}, http.StatusOK)
}

// Pending returns the transactions waiting for the next block.
func (h Handlers) Pending(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.PendingTransactions()
	return web.Respond(ctx, w, txs, http.StatusOK)
}

// SubmitTransaction adds a new signed transaction to the pending state.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx operation.SignedTransaction
	if err := web.Decode(r, &signedTx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "txid", signedTx.ID(), "ops", len(signedTx.Operations))
	if err := h.State.PushTransaction(signedTx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		TxID   string `json:"txid"`
	}{
		Status: "transaction added to pending state",
		TxID:   signedTx.ID(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
