package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/merklechain/foundation/blockchain/database"
	"github.com/ardanlabs/merklechain/foundation/blockchain/genesis"
	"github.com/ardanlabs/merklechain/foundation/blockchain/mempool"
)

// maxBatchAttempts is the number of times a batch from the mempool is mined
// and runs out of nonces before it is dropped.
const maxBatchAttempts = 3

// Genesis mines the first block of the chain from the genesis transactions.
func (c *Chain) Genesis(ctx context.Context) (database.Block, error) {
	c.evHandler("chain: Genesis: started")
	defer c.evHandler("chain: Genesis: completed")

	if c.storage.Count() > 0 {
		return database.Block{}, ErrChainNotEmpty
	}

	return c.mine(ctx, 0, genesis.PrevBlockHash, c.genesis.Transactions)
}

// MineBlock mines a block for the transactions on top of the current tip of
// the chain and appends it. Any background mining operation is cancelled
// while this block is mined.
func (c *Chain) MineBlock(ctx context.Context, trans []string) (database.Block, error) {
	c.evHandler("chain: MineBlock: started: txs[%d]", len(trans))
	defer c.evHandler("chain: MineBlock: completed")

	if c.Worker != nil {
		done := c.Worker.SignalCancelMining()
		defer func() {
			c.evHandler("chain: MineBlock: signal background mining to continue")
			done()
		}()
	}

	// Another block can land on the tip while this one is being mined. Each
	// mismatch means the chain grew, so mine again on the new tip until the
	// block lands or the context is done.
	for attempt := 1; ; attempt++ {
		block, err := c.mineNext(ctx, trans)
		if !errors.Is(err, ErrChainLinkageMismatch) || ctx.Err() != nil {
			return block, err
		}
		c.evHandler("chain: MineBlock: tip moved, mining again: attempt[%d]", attempt)
	}
}

// MineNewBlock takes the next batch from the mempool and attempts to mine it
// as the next block in the chain.
func (c *Chain) MineNewBlock(ctx context.Context) (database.Block, error) {
	c.evHandler("chain: MineNewBlock: MINING: check mempool count")

	batch, ok := c.mempool.PickBest()
	if !ok {
		return database.Block{}, ErrNoTransactions
	}

	c.evHandler("chain: MineNewBlock: MINING: perform POW: batch[%s] txs[%d]", batch.ID, len(batch.Trans))

	block, err := c.mineNext(ctx, batch.Trans)
	if err != nil {
		if errors.Is(err, database.ErrMiningExhausted) {
			c.exhausted(batch)
		}
		return database.Block{}, err
	}

	c.mempool.Delete(batch.ID)
	c.metrics.SetMempoolSize(c.mempool.Count())

	return block, nil
}

// SubmitBatch adds a batch of transactions to the mempool and signals the
// worker to start mining.
func (c *Chain) SubmitBatch(trans []string) (mempool.Batch, error) {
	batch, err := c.mempool.Add(trans)
	if err != nil {
		return mempool.Batch{}, err
	}
	c.metrics.SetMempoolSize(c.mempool.Count())

	c.evHandler("chain: SubmitBatch: batch[%s] txs[%d]", batch.ID, len(batch.Trans))

	if c.Worker != nil {
		c.Worker.SignalStartMining()
	}

	return batch, nil
}

// Append validates the block against the current tip and adds it to the
// chain. A block whose previous hash does not match the tip's hash is
// rejected with ErrChainLinkageMismatch.
func (c *Chain) Append(block database.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evHandler("chain: Append: blk[%d]: hash[%s]", block.Header.Number, block.Hash)

	if block.Header.Difficulty < c.genesis.Difficulty {
		return fmt.Errorf("%w: difficulty %d is less than chain difficulty %d", ErrInvalidBlock, block.Header.Difficulty, c.genesis.Difficulty)
	}

	var parent *database.Block
	if latest, ok := c.storage.Latest(); ok {
		parent = &latest
	} else if block.Header.Number != 0 {
		return ErrNoGenesis
	}

	if err := block.ValidateBlock(parent, c.evHandler); err != nil {
		return fmt.Errorf("%w: block %d: %w", ErrInvalidBlock, block.Header.Number, err)
	}

	if err := c.storage.Write(block); err != nil {
		return fmt.Errorf("write block %d: %w", block.Header.Number, err)
	}

	return nil
}

// Import converts a block received in its flat form using the chain's hash
// strategy and appends it.
func (c *Chain) Import(data database.BlockData) (database.Block, error) {
	block, err := database.ToBlock(data, c.strategy)
	if err != nil {
		return database.Block{}, fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}

	if err := c.Append(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// =============================================================================

// exhausted records a failed attempt at the batch and drops it from the
// mempool once it has used up its attempts.
func (c *Chain) exhausted(batch mempool.Batch) {
	attempts := c.mempool.Attempted(batch.ID)
	if attempts < maxBatchAttempts {
		c.evHandler("chain: MineNewBlock: MINING: batch[%s] exhausted: attempt[%d] of [%d]", batch.ID, attempts, maxBatchAttempts)
		return
	}

	c.mempool.Delete(batch.ID)
	c.metrics.SetMempoolSize(c.mempool.Count())
	c.metrics.ObserveFailure("dropped")

	c.evHandler("chain: MineNewBlock: MINING: batch[%s] dropped: attempts[%d]", batch.ID, attempts)
}

// mineNext mines the transactions on top of the current tip.
func (c *Chain) mineNext(ctx context.Context, trans []string) (database.Block, error) {
	latest, ok := c.RetrieveLatestBlock()
	if !ok {
		return database.Block{}, ErrNoGenesis
	}

	return c.mine(ctx, latest.Header.Number+1, latest.Hash, trans)
}

// mine runs the proof of work for the block and appends it to the chain.
func (c *Chain) mine(ctx context.Context, number uint64, prevHash string, trans []string) (database.Block, error) {
	t := time.Now()

	block, err := database.POW(ctx, database.POWArgs{
		Number:        number,
		TimeStamp:     uint64(c.now().UTC().Unix()),
		PrevBlockHash: prevHash,
		Trans:         trans,
		Difficulty:    c.genesis.Difficulty,
		MaxNonce:      c.genesis.MaxNonce,
		Workers:       c.genesis.Workers,
		HashStrategy:  c.strategy,
		EvHandler:     c.evHandler,
	})
	duration := time.Since(t)

	c.evHandler("chain: mine: MINING: blk[%d]: mining duration[%v]", number, duration)

	if err != nil {
		c.metrics.ObserveFailure(failureReason(ctx, err))
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		c.metrics.ObserveFailure("cancelled")
		return database.Block{}, ctx.Err()
	}

	if err := c.Append(block); err != nil {
		c.metrics.ObserveFailure("rejected")
		return database.Block{}, err
	}

	c.metrics.ObserveBlock(c.storage.Count(), len(trans), block.Header.Nonce, duration)

	return block, nil
}

// failureReason maps a mining error to a metrics label.
func failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, database.ErrMiningExhausted):
		return "exhausted"
	case ctx.Err() != nil:
		return "cancelled"
	default:
		return "invalid"
	}
}
