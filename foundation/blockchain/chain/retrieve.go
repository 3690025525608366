package chain

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/merklechain/foundation/blockchain/database"
	"github.com/ardanlabs/merklechain/foundation/blockchain/genesis"
	"github.com/ardanlabs/merklechain/foundation/blockchain/mempool"
)

// RetrieveGenesis returns a copy of the genesis information.
func (c *Chain) RetrieveGenesis() genesis.Genesis {
	return c.genesis
}

// RetrieveLatestBlock returns a copy the current latest block and false if
// the chain has no blocks.
func (c *Chain) RetrieveLatestBlock() (database.Block, bool) {
	return c.storage.Latest()
}

// RetrieveBlock returns the block with the specified number.
func (c *Chain) RetrieveBlock(num uint64) (database.Block, error) {
	block, err := c.storage.GetBlock(num)
	if err != nil {
		return database.Block{}, fmt.Errorf("%w: %d", ErrBlockNotFound, num)
	}

	return block, nil
}

// RetrieveBlocks returns a copy of every block in number order.
func (c *Chain) RetrieveBlocks() []database.Block {
	return c.storage.Copy()
}

// RetrieveMempool returns a copy of the mempool in mining order.
func (c *Chain) RetrieveMempool() []mempool.Batch {
	return c.mempool.Copy()
}

// QueryMempoolLength returns the current length of the mempool.
func (c *Chain) QueryMempoolLength() int {
	return c.mempool.Count()
}

// QueryHeight returns the number of blocks in the chain.
func (c *Chain) QueryHeight() int {
	return c.storage.Count()
}

// Validate walks the whole chain and validates every block against its
// parent. Validation never changes any block.
func (c *Chain) Validate() error {
	blocks := c.storage.Copy()
	if len(blocks) == 0 {
		return ErrNoGenesis
	}

	var parent *database.Block
	for i := range blocks {
		if err := blocks[i].ValidateBlock(parent, c.evHandler); err != nil {
			return fmt.Errorf("block %d: %w", blocks[i].Header.Number, err)
		}
		parent = &blocks[i]
	}

	return nil
}

// IsNotFound reports whether the error is a missing block.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBlockNotFound)
}
