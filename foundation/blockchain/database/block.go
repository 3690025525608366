// Package database handles the construction, mining and validation of the
// blocks that make up the blockchain.
package database

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/merklechain/foundation/blockchain/digest"
	"github.com/ardanlabs/merklechain/foundation/blockchain/genesis"
	"github.com/ardanlabs/merklechain/foundation/blockchain/merkle"
)

// Set of errors returned by block construction and validation.
var (
	ErrMiningExhausted      = errors.New("nonce space exhausted without solving the block")
	ErrInvalidDifficulty    = errors.New("difficulty exceeds the digest length")
	ErrChainLinkageMismatch = errors.New("previous hash does not match the chain tip")
)

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number        uint64 `json:"index"`         // Position of the block in the chain.
	TimeStamp     uint64 `json:"timestamp"`     // Unix seconds when the block was created.
	TransRoot     string `json:"merkle_root"`   // Merkle tree root hash for the transactions in this block.
	PrevBlockHash string `json:"previous_hash"` // Hash of the previous block in the chain.
	Nonce         uint64 `json:"nonce"`         // Value identified to solve the hash solution.
	Difficulty    uint   `json:"difficulty"`    // Number of 0's needed to solve the hash solution.
}

// PreImage returns the string that is hashed to produce the block hash.
func (bh BlockHeader) PreImage() string {
	return fmt.Sprintf("%d %d %s %s %d", bh.Number, bh.TimeStamp, bh.TransRoot, bh.PrevBlockHash, bh.Nonce)
}

// Block represents a group of transactions batched together. A Block is only
// handed out by POW once its hash has been solved.
type Block struct {
	Header   BlockHeader
	Hash     string
	Trans    *merkle.Tree
	strategy digest.Strategy
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	Number        uint64
	TimeStamp     uint64
	PrevBlockHash string
	Trans         []string
	Difficulty    uint
	MaxNonce      uint64
	Workers       int
	HashStrategy  digest.Strategy
	EvHandler     func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	ev := args.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	strategy := args.HashStrategy
	if strategy == nil {
		strategy = digest.SHA256
	}

	if int(args.Difficulty) > digest.Len(strategy) {
		return Block{}, fmt.Errorf("%w: difficulty[%d]", ErrInvalidDifficulty, args.Difficulty)
	}

	// A zero bound searches the full nonce space.
	maxNonce := args.MaxNonce
	if maxNonce == 0 {
		maxNonce = math.MaxUint64
	}

	// Construct a merkle tree from the transactions for this block. The root
	// of this tree will be part of the block to be mined.
	tree, err := merkle.NewTree(args.Trans, merkle.WithHashStrategy(strategy))
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header: BlockHeader{
			Number:        args.Number,
			TimeStamp:     args.TimeStamp,
			TransRoot:     tree.RootHex(),
			PrevBlockHash: args.PrevBlockHash,
			Nonce:         0, // Will be identified by the POW algorithm.
			Difficulty:    args.Difficulty,
		},
		Trans:    tree,
		strategy: strategy,
	}

	ev("database: POW: MINING: started: blk[%d] txs[%d] workers[%d]", nb.Header.Number, len(args.Trans), args.Workers)
	defer ev("database: POW: MINING: completed: blk[%d]", nb.Header.Number)

	if args.Workers > 1 {
		err = nb.performParallelPOW(ctx, args.Workers, maxNonce, ev)
	} else {
		err = nb.performPOW(ctx, maxNonce, ev)
	}
	if err != nil {
		return Block{}, err
	}

	return nb, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, maxNonce uint64, ev func(v string, args ...any)) error {
	var attempts uint64
	for nonce := uint64(0); ; nonce++ {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: performPOW: MINING: attempts[%d]", attempts)
		}

		// Did we timeout trying to solve the problem.
		if ctx.Err() != nil {
			ev("database: performPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		b.Header.Nonce = nonce
		hash := b.CalculateHash()
		if IsHashSolved(b.Header.Difficulty, hash) {
			b.Hash = hash
			ev("database: performPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: attempts[%d]", b.Header.PrevBlockHash, hash, attempts)
			return nil
		}

		if nonce == maxNonce {
			ev("database: performPOW: MINING: EXHAUSTED: attempts[%d]", attempts)
			return fmt.Errorf("%w: attempts[%d]", ErrMiningExhausted, attempts)
		}
	}
}

// performParallelPOW splits the nonce space across the workers by stride.
// Worker w tries w, w+n, w+2n and so on. A worker stops once its next nonce is
// larger than the best solution found so far, so the lowest solving nonce is
// always the one kept and the result matches performPOW.
func (b *Block) performParallelPOW(ctx context.Context, workers int, maxNonce uint64, ev func(v string, args ...any)) error {
	var (
		mu       sync.Mutex
		found    bool
		bestHash string
		attempts atomic.Uint64
		limit    atomic.Uint64
	)
	limit.Store(maxNonce)

	stride := uint64(workers)
	header := b.Header
	strategy := b.hashStrategy()

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := range workers {
		go func(start uint64) {
			defer wg.Done()

			bh := header
			for nonce := start; nonce <= limit.Load(); nonce += stride {
				if n := attempts.Add(1); n%1_000_000 == 0 {
					ev("database: performParallelPOW: MINING: attempts[%d]", n)
				}

				if ctx.Err() != nil {
					return
				}

				bh.Nonce = nonce
				hash := digest.String(strategy, bh.PreImage())
				if IsHashSolved(bh.Difficulty, hash) {
					mu.Lock()
					if !found || nonce < limit.Load() {
						found = true
						bestHash = hash
						limit.Store(nonce)
					}
					mu.Unlock()
					return
				}

				// The next increment would wrap around.
				if nonce > math.MaxUint64-stride {
					return
				}
			}
		}(uint64(w))
	}

	wg.Wait()

	if ctx.Err() != nil {
		ev("database: performParallelPOW: MINING: CANCELLED")
		return ctx.Err()
	}

	if !found {
		ev("database: performParallelPOW: MINING: EXHAUSTED: attempts[%d]", attempts.Load())
		return fmt.Errorf("%w: attempts[%d]", ErrMiningExhausted, attempts.Load())
	}

	b.Header.Nonce = limit.Load()
	b.Hash = bestHash
	ev("database: performParallelPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: attempts[%d]", b.Header.PrevBlockHash, bestHash, attempts.Load())

	return nil
}

// CalculateHash recomputes the hash from the header fields. It never changes
// the block.
func (b Block) CalculateHash() string {
	return digest.String(b.hashStrategy(), b.Header.PreImage())
}

// ValidateBlock takes a block and validates it to be included into the
// blockchain after the specified parent. A nil parent means the block must be
// a genesis block.
func (b Block) ValidateBlock(previousBlock *Block, evHandler func(v string, args ...any)) error {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	switch previousBlock {
	case nil:
		evHandler("database: ValidateBlock: validate: blk[%d]: check: genesis block", b.Header.Number)

		if b.Header.Number != 0 {
			return fmt.Errorf("genesis block must have number 0, got %d", b.Header.Number)
		}

		if b.Header.PrevBlockHash != genesis.PrevBlockHash {
			return fmt.Errorf("%w: got %s, exp %s", ErrChainLinkageMismatch, b.Header.PrevBlockHash, genesis.PrevBlockHash)
		}

	default:
		// The previous hash is checked first. A block mined on a tip that
		// has since moved fails here and reports a linkage mismatch.
		evHandler("database: ValidateBlock: validate: blk[%d]: check: previous hash matches the tip", b.Header.Number)

		if b.Header.PrevBlockHash != previousBlock.Hash {
			return fmt.Errorf("%w: blk[%d]: got %s, exp %s", ErrChainLinkageMismatch, b.Header.Number, b.Header.PrevBlockHash, previousBlock.Hash)
		}

		evHandler("database: ValidateBlock: validate: blk[%d]: check: index follows the tip", b.Header.Number)

		nextNumber := previousBlock.Header.Number + 1
		if b.Header.Number != nextNumber {
			return fmt.Errorf("block index does not follow the tip, got %d, exp %d", b.Header.Number, nextNumber)
		}

		evHandler("database: ValidateBlock: validate: blk[%d]: check: block difficulty is the same or greater than parent block difficulty", b.Header.Number)

		if b.Header.Difficulty < previousBlock.Header.Difficulty {
			return fmt.Errorf("block difficulty is less than previous block difficulty, parent %d, block %d", previousBlock.Header.Difficulty, b.Header.Difficulty)
		}
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: block hash has been solved", b.Header.Number)

	hash := b.CalculateHash()
	if hash != b.Hash {
		return fmt.Errorf("block hash does not match its fields, got %s, exp %s", b.Hash, hash)
	}

	if !IsHashSolved(b.Header.Difficulty, hash) {
		return fmt.Errorf("%s invalid block hash", hash)
	}

	evHandler("database: ValidateBlock: validate: blk[%d]: check: merkle root does match transactions", b.Header.Number)

	if b.Trans == nil {
		return merkle.ErrEmptyTransactionSet
	}

	if b.Header.TransRoot != b.Trans.RootHex() {
		return fmt.Errorf("merkle root does not match transactions, got %s, exp %s", b.Trans.RootHex(), b.Header.TransRoot)
	}

	return nil
}

// hashStrategy returns the strategy the block was mined with.
func (b Block) hashStrategy() digest.Strategy {
	if b.strategy == nil {
		return digest.SHA256
	}

	return b.strategy
}

// IsHashSolved checks the hash to make sure it complies with
// the POW rules. We need to match a difficulty number of 0's.
func IsHashSolved(difficulty uint, hash string) bool {
	if int(difficulty) > len(hash) {
		return false
	}

	return strings.Count(hash[:difficulty], "0") == int(difficulty)
}

// =============================================================================

// BlockData is the flat form of a block sent over the API. The header fields
// are promoted so the document reads index, timestamp, merkle_root,
// previous_hash, nonce, difficulty, hash, transactions.
type BlockData struct {
	BlockHeader
	Hash  string   `json:"hash"`
	Trans []string `json:"transactions"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	return BlockData{
		BlockHeader: block.Header,
		Hash:        block.Hash,
		Trans:       block.Trans.Values(),
	}
}

// ToBlock converts a BlockData into a Block using the specified hash strategy.
func ToBlock(blockData BlockData, strategy digest.Strategy) (Block, error) {
	if strategy == nil {
		strategy = digest.SHA256
	}

	tree, err := merkle.NewTree(blockData.Trans, merkle.WithHashStrategy(strategy))
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Header:   blockData.BlockHeader,
		Hash:     blockData.Hash,
		Trans:    tree,
		strategy: strategy,
	}

	return nb, nil
}
