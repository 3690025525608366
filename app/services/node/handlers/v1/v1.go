// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/ardanlabs/merklechain/app/services/node/handlers/v1/chaingrp"
	"github.com/ardanlabs/merklechain/foundation/blockchain/chain"
	"github.com/ardanlabs/merklechain/foundation/events"
	"github.com/ardanlabs/merklechain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	Chain *chain.Chain
	Evts  *events.Events
}

// Routes binds all the version 1 routes.
func Routes(app *web.App, cfg Config) {
	cgh := chaingrp.Handlers{
		Log:   cfg.Log,
		Chain: cfg.Chain,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", cgh.Events)
	app.Handle(http.MethodGet, version, "/genesis", cgh.Genesis)
	app.Handle(http.MethodGet, version, "/blocks", cgh.Blocks)
	app.Handle(http.MethodGet, version, "/blocks/:index", cgh.Block)
	app.Handle(http.MethodPost, version, "/blocks", cgh.MineBlock)
	app.Handle(http.MethodPost, version, "/blocks/import", cgh.ImportBlock)
	app.Handle(http.MethodPost, version, "/batches", cgh.SubmitBatch)
	app.Handle(http.MethodGet, version, "/mempool", cgh.Mempool)
	app.Handle(http.MethodGet, version, "/validate", cgh.Validate)
	app.Handle(http.MethodPost, version, "/reset", cgh.Reset)
}
