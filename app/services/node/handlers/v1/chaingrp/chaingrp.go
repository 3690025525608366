// Package chaingrp maintains the group of handlers for chain access.
package chaingrp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/merklechain/business/web/errs"
	"github.com/ardanlabs/merklechain/foundation/blockchain/chain"
	"github.com/ardanlabs/merklechain/foundation/blockchain/database"
	"github.com/ardanlabs/merklechain/foundation/blockchain/mempool"
	"github.com/ardanlabs/merklechain/foundation/blockchain/merkle"
	"github.com/ardanlabs/merklechain/foundation/events"
	"github.com/ardanlabs/merklechain/foundation/validate"
	"github.com/ardanlabs/merklechain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of chain endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	Chain *chain.Chain
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	id, ch := h.Evts.Subscribe()
	defer h.Evts.Unsubscribe(id)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteJSON(evt); err != nil {
				return nil
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
	gen := h.Chain.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Blocks returns every block in the chain in index order.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks := h.Chain.RetrieveBlocks()
	return web.Respond(ctx, w, toBlocks(blocks), http.StatusOK)
}

// Block returns the block with the specified index.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	num, err := strconv.ParseUint(web.Param(r, "index"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block index: %w", err), http.StatusBadRequest)
	}

	blk, err := h.Chain.RetrieveBlock(num)
	if err != nil {
		return toTrusted(err)
	}

	return web.Respond(ctx, w, database.NewBlockData(blk), http.StatusOK)
}

// MineBlock mines the provided transactions into a new block and appends it
// to the chain before responding.
func (h Handlers) MineBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req batchRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	h.Log.Infow("mine block", "traceid", v.TraceID, "transactions", len(req.Transactions))

	blk, err := h.Chain.MineBlock(ctx, req.Transactions)
	if err != nil {
		return toTrusted(err)
	}

	return web.Respond(ctx, w, database.NewBlockData(blk), http.StatusCreated)
}

// ImportBlock appends a block mined elsewhere. The block must extend the
// current tip of the chain.
func (h Handlers) ImportBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var data database.BlockData
	if err := web.Decode(r, &data); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("import block", "traceid", v.TraceID, "index", data.Number, "hash", data.Hash)

	blk, err := h.Chain.Import(data)
	if err != nil {
		return toTrusted(err)
	}

	return web.Respond(ctx, w, database.NewBlockData(blk), http.StatusCreated)
}

// SubmitBatch adds the provided transactions to the mempool to be mined by
// the background worker.
func (h Handlers) SubmitBatch(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req batchRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	b, err := h.Chain.SubmitBatch(req.Transactions)
	if err != nil {
		return toTrusted(err)
	}

	h.Log.Infow("submit batch", "traceid", v.TraceID, "batch", b.ID, "transactions", len(b.Trans))

	return web.Respond(ctx, w, toBatch(b), http.StatusAccepted)
}

// Mempool returns the batches waiting to be mined in mining order.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pool := h.Chain.RetrieveMempool()

	batches := make([]batch, len(pool))
	for i, b := range pool {
		batches[i] = toBatch(b)
	}

	return web.Respond(ctx, w, batches, http.StatusOK)
}

// Validate walks the full chain and reports whether every block is valid.
func (h Handlers) Validate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := validation{
		Valid:  true,
		Height: h.Chain.QueryHeight(),
	}

	if err := h.Chain.Validate(); err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Reset drops every block and queued batch and starts the chain over from a
// freshly mined genesis block.
func (h Handlers) Reset(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.Log.Infow("reset chain", "traceid", v.TraceID, "height", h.Chain.QueryHeight(), "mempool", h.Chain.QueryMempoolLength())

	gen, err := h.Chain.Reset(ctx)
	if err != nil {
		return toTrusted(err)
	}

	return web.Respond(ctx, w, database.NewBlockData(gen), http.StatusOK)
}

// =============================================================================

// toTrusted maps the chain errors to the status codes clients should see.
func toTrusted(err error) error {
	switch {
	case errors.Is(err, chain.ErrBlockNotFound):
		return errs.NewTrusted(err, http.StatusNotFound)

	case errors.Is(err, merkle.ErrEmptyTransactionSet),
		errors.Is(err, mempool.ErrEmptyBatch):
		return errs.NewTrusted(err, http.StatusBadRequest)

	case errors.Is(err, chain.ErrNoGenesis),
		errors.Is(err, chain.ErrChainLinkageMismatch):
		return errs.NewTrusted(err, http.StatusConflict)

	case errors.Is(err, chain.ErrInvalidBlock):
		return errs.NewTrusted(err, http.StatusBadRequest)

	case errors.Is(err, database.ErrMiningExhausted):
		return errs.NewTrusted(err, http.StatusServiceUnavailable)
	}

	return err
}
