// Package chain is the core API for the blockchain and implements all the
// rules for mining blocks and linking them into an append-only chain.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ardanlabs/merklechain/foundation/blockchain/database"
	"github.com/ardanlabs/merklechain/foundation/blockchain/digest"
	"github.com/ardanlabs/merklechain/foundation/blockchain/genesis"
	"github.com/ardanlabs/merklechain/foundation/blockchain/mempool"
	"github.com/ardanlabs/merklechain/foundation/blockchain/metrics"
	"github.com/ardanlabs/merklechain/foundation/blockchain/storage/memory"
)

// Set of errors returned by the chain.
var (
	ErrNoGenesis            = errors.New("chain has no genesis block")
	ErrChainNotEmpty        = errors.New("chain already has a genesis block")
	ErrNoTransactions       = errors.New("no batches in mempool")
	ErrBlockNotFound        = errors.New("block not found")
	ErrInvalidBlock         = errors.New("invalid block")
	ErrChainLinkageMismatch = database.ErrChainLinkageMismatch
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of mining and appending blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for background mining.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
}

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing the blocks of the chain.
type Storage interface {
	Write(block database.Block) error
	GetBlock(num uint64) (database.Block, error)
	Latest() (database.Block, bool)
	Count() int
	Copy() []database.Block
	Reset() error
	Close() error
}

// =============================================================================

// Config represents the configuration required to start the chain.
type Config struct {
	Genesis        genesis.Genesis
	Storage        Storage
	SelectStrategy string
	Metrics        *metrics.Metrics
	Now            func() time.Time
	EvHandler      EventHandler
}

// Chain manages the blocks of the blockchain and the batches waiting to be
// mined into new blocks.
type Chain struct {
	mu sync.Mutex

	genesis   genesis.Genesis
	strategy  digest.Strategy
	evHandler EventHandler
	now       func() time.Time

	storage Storage
	mempool *mempool.Mempool
	metrics *metrics.Metrics

	Worker Worker
}

// New constructs a new chain for block management. The chain starts empty,
// call Genesis to mine the first block.
func New(cfg Config) (*Chain, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	gen := cfg.Genesis
	if gen.MaxNonce == 0 {
		gen.MaxNonce = math.MaxUint64
	}

	strategy, err := digest.Retrieve(gen.HashStrategy)
	if err != nil {
		return nil, err
	}

	if int(gen.Difficulty) > digest.Len(strategy) {
		return nil, fmt.Errorf("%w: difficulty[%d]", database.ErrInvalidDifficulty, gen.Difficulty)
	}

	if len(gen.Transactions) == 0 {
		return nil, errors.New("genesis requires at least one transaction")
	}

	strg := cfg.Storage
	if strg == nil {
		strg = memory.New()
	}

	selectStrategy := cfg.SelectStrategy
	if selectStrategy == "" {
		selectStrategy = mempool.StrategyFIFO
	}

	mp, err := mempool.NewWithStrategy(selectStrategy)
	if err != nil {
		return nil, err
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := Chain{
		genesis:   gen,
		strategy:  strategy,
		evHandler: ev,
		now:       now,
		storage:   strg,
		mempool:   mp,
		metrics:   cfg.Metrics,
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &c, nil
}

// Shutdown cleanly brings the chain down.
func (c *Chain) Shutdown() error {
	c.evHandler("chain: shutdown: started")
	defer c.evHandler("chain: shutdown: completed")

	// Make sure the storage is properly closed.
	defer func() {
		c.storage.Close()
	}()

	// Stop all mining activity.
	if c.Worker != nil {
		c.Worker.Shutdown()
	}

	return nil
}

// Reset clears every block and batch from the chain and mines a new genesis
// block. Any background mining operation is cancelled first.
func (c *Chain) Reset(ctx context.Context) (database.Block, error) {
	c.evHandler("chain: Reset: started")
	defer c.evHandler("chain: Reset: completed")

	if c.Worker != nil {
		done := c.Worker.SignalCancelMining()
		defer done()
	}

	c.mu.Lock()
	if err := c.storage.Reset(); err != nil {
		c.mu.Unlock()
		return database.Block{}, fmt.Errorf("reset storage: %w", err)
	}
	c.mempool.Truncate()
	c.metrics.SetMempoolSize(0)
	c.mu.Unlock()

	return c.Genesis(ctx)
}
