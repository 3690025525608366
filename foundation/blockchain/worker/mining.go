package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/merklechain/foundation/blockchain/chain"
	"github.com/ardanlabs/merklechain/foundation/blockchain/database"
)

// exhaustedRetryDelay is how long the worker waits before mining a batch
// that ran out of nonces again. Block timestamps have second precision, so
// the next attempt hashes a different header.
const exhaustedRetryDelay = time.Second

// miningOperations waits for start signals and mines one batch per signal
// until the worker is shut down.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: loop started")
	defer w.evHandler("worker: miningOperations: loop stopped")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.mineBatch()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: shut down requested")
			return
		}
	}
}

// mineBatch mines the next batch in the mempool as a new block. It returns
// once the block is appended, mining fails, or MineBlock asks it to step
// aside.
func (w *Worker) mineBatch() {
	w.evHandler("worker: mineBatch: begin")
	defer w.evHandler("worker: mineBatch: end")

	pending := w.chain.QueryMempoolLength()
	if pending == 0 {
		w.evHandler("worker: mineBatch: mempool empty")
		return
	}

	// outcome decides what happens to the batches left in the mempool once
	// this operation is over.
	var outcome = outcomeNext
	defer func() {
		if w.isShutdown() {
			return
		}

		pending := w.chain.QueryMempoolLength()
		if pending == 0 {
			return
		}

		switch outcome {
		case outcomeNext:
			w.evHandler("worker: mineBatch: batches pending[%d]: mine next", pending)
			w.SignalStartMining()

		case outcomeRetry:
			w.evHandler("worker: mineBatch: batches pending[%d]: mine again in %v", pending, exhaustedRetryDelay)
			time.AfterFunc(exhaustedRetryDelay, func() {
				if !w.isShutdown() {
					w.SignalStartMining()
				}
			})

		case outcomeStop:
			w.evHandler("worker: mineBatch: batches pending[%d]: wait for the next submission", pending)
		}
	}()

	// MineBlock holds the tip while it mines. Once it has cancelled this
	// operation, hold here until it hands the tip back.
	var resume chan struct{}
	defer func() {
		if resume != nil {
			w.evHandler("worker: mineBatch: paused for MineBlock")
			<-resume
			w.evHandler("worker: mineBatch: resumed")
		}
	}()

	// A stale cancel request belongs to an operation that already ended.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: mineBatch: dropped stale cancel request")
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	// Cancel the proof of work when MineBlock asks for the tip.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case resume = <-w.cancelMining:
			w.evHandler("worker: mineBatch: cancel requested")
		case <-ctx.Done():
		}
	}()

	// Run the proof of work for the next batch.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		start := time.Now()
		block, err := w.chain.MineNewBlock(ctx)
		took := time.Since(start)

		if err != nil {
			switch {
			case errors.Is(err, chain.ErrNoTransactions):
				w.evHandler("worker: mineBatch: batch taken before mining started")

			case ctx.Err() != nil:
				w.evHandler("worker: mineBatch: cancelled after %v", took)

			case errors.Is(err, chain.ErrChainLinkageMismatch):
				w.evHandler("worker: mineBatch: tip moved after %v: batch kept", took)

			case errors.Is(err, database.ErrMiningExhausted):
				outcome = outcomeRetry
				w.evHandler("worker: mineBatch: nonces exhausted after %v", took)

			default:
				outcome = outcomeStop
				w.evHandler("worker: mineBatch: ERROR: %s", err)
			}
			return
		}

		w.evHandler("worker: mineBatch: blk[%d] solved in %v: hash[%s]", block.Header.Number, took, block.Hash)
	}()

	wg.Wait()
}

// Set of outcomes for a mining operation.
const (
	outcomeNext = iota
	outcomeRetry
	outcomeStop
)
