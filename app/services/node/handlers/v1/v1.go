// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/crescentlabs/crescent/app/services/node/handlers/v1/chaingrp"
	"github.com/crescentlabs/crescent/foundation/chain/state"
	"github.com/crescentlabs/crescent/foundation/events"
	"github.com/crescentlabs/crescent/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// Routes binds all the version 1 routes.
func Routes(app *web.App, cfg Config) {
	cgr := chaingrp.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", cgr.Events)
	app.Handle(http.MethodGet, version, "/genesis", cgr.Genesis)
	app.Handle(http.MethodGet, version, "/chain", cgr.Chain)
	app.Handle(http.MethodGet, version, "/accounts", cgr.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/:name", cgr.Account)
	app.Handle(http.MethodGet, version, "/witnesses", cgr.Witnesses)
	app.Handle(http.MethodGet, version, "/orders/:base/:quote", cgr.Orders)
	app.Handle(http.MethodGet, version, "/blocks/:num", cgr.Block)
	app.Handle(http.MethodGet, version, "/tx/pending", cgr.Pending)
	app.Handle(http.MethodPost, version, "/tx", cgr.SubmitTransaction)
}
