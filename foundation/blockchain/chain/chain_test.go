package chain_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/merklechain/foundation/blockchain/chain"
	"github.com/ardanlabs/merklechain/foundation/blockchain/database"
	"github.com/ardanlabs/merklechain/foundation/blockchain/genesis"
	"github.com/ardanlabs/merklechain/foundation/blockchain/metrics"
	"github.com/ardanlabs/merklechain/foundation/blockchain/storage/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func newChain(t *testing.T, difficulty uint, maxNonce uint64) *chain.Chain {
	gen := genesis.Default()
	gen.Difficulty = difficulty
	gen.MaxNonce = maxNonce

	clock := time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC)

	ch, err := chain.New(chain.Config{
		Genesis: gen,
		Metrics: metrics.New(nil),
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the chain: %v", failed, err)
	}

	return ch
}

// =============================================================================

func Test_ChainLinkage(t *testing.T) {
	ch := newChain(t, 3, 0)
	ctx := context.Background()

	t.Log("Given the need to link blocks into a chain.")
	{
		t.Logf("\tTest 0:\tWhen mining a genesis block and three more blocks.")
		{
			gen, err := ch.Genesis(ctx)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine the genesis block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine the genesis block.", success)

			if gen.Header.Number != 0 || gen.Header.PrevBlockHash != genesis.PrevBlockHash {
				t.Fatalf("\t%s\tTest 0:\tShould have index 0 and the sentinel previous hash.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould have index 0 and the sentinel previous hash.", success)

			batches := [][]string{
				{"alice->bob"},
				{"bob->carol", "carol->dave"},
				{"dave->erin", "erin->frank", "frank->alice"},
			}
			for _, trans := range batches {
				if _, err := ch.MineBlock(ctx, trans); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to mine a block: %v", failed, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine the blocks.", success)

			blocks := ch.RetrieveBlocks()
			if len(blocks) != 4 {
				t.Fatalf("\t%s\tTest 0:\tShould have 4 blocks, got %d.", failed, len(blocks))
			}
			t.Logf("\t%s\tTest 0:\tShould have 4 blocks.", success)

			for i := 1; i < len(blocks); i++ {
				if blocks[i].Header.PrevBlockHash != blocks[i-1].Hash {
					t.Fatalf("\t%s\tTest 0:\tShould link block %d to its parent.", failed, i)
				}
				if blocks[i].Header.Number != blocks[i-1].Header.Number+1 {
					t.Fatalf("\t%s\tTest 0:\tShould increase the index of block %d by one.", failed, i)
				}
				if !strings.HasPrefix(blocks[i].Hash, "000") {
					t.Fatalf("\t%s\tTest 0:\tShould solve block %d: %s", failed, i, blocks[i].Hash)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould link every block to its parent.", success)

			if err := ch.Validate(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to validate the chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to validate the chain.", success)

			block, err := ch.RetrieveBlock(2)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to retrieve block 2: %v", failed, err)
			}
			if len(block.Trans.Values()) != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould get back the transactions of block 2.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to retrieve block 2.", success)

			if _, err := ch.RetrieveBlock(9); !chain.IsNotFound(err) {
				t.Fatalf("\t%s\tTest 0:\tShould get ErrBlockNotFound: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get ErrBlockNotFound.", success)
		}
	}
}

func Test_AppendRejects(t *testing.T) {
	ch := newChain(t, 2, 0)
	ctx := context.Background()

	t.Log("Given the need to reject blocks that don't extend the chain.")
	{
		t.Logf("\tTest 0:\tWhen mining before a genesis block exists.")
		{
			if _, err := ch.MineBlock(ctx, []string{"a"}); !errors.Is(err, chain.ErrNoGenesis) {
				t.Fatalf("\t%s\tTest 0:\tShould get ErrNoGenesis: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get ErrNoGenesis.", success)
		}

		gen, err := ch.Genesis(ctx)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine the genesis block: %v", failed, err)
		}

		t.Logf("\tTest 1:\tWhen mining a second genesis block.")
		{
			if _, err := ch.Genesis(ctx); !errors.Is(err, chain.ErrChainNotEmpty) {
				t.Fatalf("\t%s\tTest 1:\tShould get ErrChainNotEmpty: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get ErrChainNotEmpty.", success)
		}

		t.Logf("\tTest 2:\tWhen appending a block with the wrong previous hash.")
		{
			block, err := database.POW(ctx, database.POWArgs{
				Number:        1,
				TimeStamp:     uint64(time.Now().Unix()),
				PrevBlockHash: strings.Repeat("f", 64),
				Trans:         []string{"a"},
				Difficulty:    2,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to mine the block: %v", failed, err)
			}

			if err := ch.Append(block); !errors.Is(err, chain.ErrChainLinkageMismatch) {
				t.Fatalf("\t%s\tTest 2:\tShould get ErrChainLinkageMismatch: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould get ErrChainLinkageMismatch.", success)
		}

		t.Logf("\tTest 3:\tWhen appending a block with a lower difficulty.")
		{
			block, err := database.POW(ctx, database.POWArgs{
				Number:        1,
				TimeStamp:     uint64(time.Now().Unix()),
				PrevBlockHash: gen.Hash,
				Trans:         []string{"a"},
				Difficulty:    1,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to mine the block: %v", failed, err)
			}

			if err := ch.Append(block); !errors.Is(err, chain.ErrInvalidBlock) {
				t.Fatalf("\t%s\tTest 3:\tShould not be able to append the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould not be able to append the block.", success)
		}

		t.Logf("\tTest 4:\tWhen appending a correctly linked block.")
		{
			block, err := database.POW(ctx, database.POWArgs{
				Number:        1,
				TimeStamp:     uint64(time.Now().Unix()),
				PrevBlockHash: gen.Hash,
				Trans:         []string{"a"},
				Difficulty:    2,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould be able to mine the block: %v", failed, err)
			}

			if err := ch.Append(block); err != nil {
				t.Fatalf("\t%s\tTest 4:\tShould be able to append the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 4:\tShould be able to append the block.", success)

			if err := ch.Append(block); err == nil {
				t.Fatalf("\t%s\tTest 4:\tShould not be able to append the block twice.", failed)
			}
			t.Logf("\t%s\tTest 4:\tShould not be able to append the block twice.", success)

			if ch.QueryHeight() != 2 {
				t.Fatalf("\t%s\tTest 4:\tShould have a height of 2, got %d.", failed, ch.QueryHeight())
			}
			t.Logf("\t%s\tTest 4:\tShould have a height of 2.", success)
		}

		t.Logf("\tTest 5:\tWhen importing a block in its flat form.")
		{
			tip, _ := ch.RetrieveLatestBlock()

			block, err := database.POW(ctx, database.POWArgs{
				Number:        2,
				TimeStamp:     uint64(time.Now().Unix()),
				PrevBlockHash: tip.Hash,
				Trans:         []string{"x", "y"},
				Difficulty:    2,
			})
			if err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould be able to mine the block: %v", failed, err)
			}

			data := database.NewBlockData(block)
			data.Trans = []string{"x", "z"}
			if _, err := ch.Import(data); !errors.Is(err, chain.ErrInvalidBlock) {
				t.Fatalf("\t%s\tTest 5:\tShould reject tampered transactions: %v", failed, err)
			}
			t.Logf("\t%s\tTest 5:\tShould reject tampered transactions.", success)

			if _, err := ch.Import(database.NewBlockData(block)); err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould be able to import the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 5:\tShould be able to import the block.", success)

			if err := ch.Validate(); err != nil {
				t.Fatalf("\t%s\tTest 5:\tShould have a valid chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 5:\tShould have a valid chain.", success)
		}
	}
}

func Test_StaleTip(t *testing.T) {
	ch := newChain(t, 2, 0)
	ctx := context.Background()

	gen, err := ch.Genesis(ctx)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine the genesis block: %v", failed, err)
	}

	t.Log("Given the need to reject a block mined on a tip that has moved.")
	{
		stale, err := database.POW(ctx, database.POWArgs{
			Number:        1,
			TimeStamp:     uint64(time.Now().Unix()),
			PrevBlockHash: gen.Hash,
			Trans:         []string{"late"},
			Difficulty:    2,
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine the block: %v", failed, err)
		}

		if _, err := ch.MineBlock(ctx, []string{"early"}); err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block on the tip: %v", failed, err)
		}

		err = ch.Append(stale)
		if !errors.Is(err, chain.ErrChainLinkageMismatch) {
			t.Fatalf("\t%s\tShould get ErrChainLinkageMismatch: %v", failed, err)
		}
		t.Logf("\t%s\tShould get ErrChainLinkageMismatch.", success)

		if !errors.Is(err, chain.ErrInvalidBlock) {
			t.Fatalf("\t%s\tShould also get ErrInvalidBlock: %v", failed, err)
		}
		t.Logf("\t%s\tShould also get ErrInvalidBlock.", success)

		if ch.QueryHeight() != 2 {
			t.Fatalf("\t%s\tShould have a height of 2, got %d.", failed, ch.QueryHeight())
		}
		t.Logf("\t%s\tShould have a height of 2.", success)
	}
}

func Test_ConcurrentMining(t *testing.T) {
	const miners = 16

	gen := genesis.Default()
	gen.Difficulty = 2

	ch, err := chain.New(chain.Config{Genesis: gen, Metrics: metrics.New(nil)})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the chain: %v", failed, err)
	}

	ctx := context.Background()
	if _, err := ch.Genesis(ctx); err != nil {
		t.Fatalf("\t%s\tShould be able to mine the genesis block: %v", failed, err)
	}

	t.Log("Given the need to mine blocks concurrently on the same tip.")
	{
		t.Logf("\tTest 0:\tWhen %d miners start on the genesis block at once.", miners)
		{
			var wg sync.WaitGroup
			errs := make(chan error, miners)

			start := make(chan struct{})
			for i := range miners {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					if _, err := ch.MineBlock(ctx, []string{fmt.Sprintf("miner-%d", i)}); err != nil {
						errs <- fmt.Errorf("miner %d: %w", i, err)
					}
				}()
			}
			close(start)
			wg.Wait()
			close(errs)

			for err := range errs {
				t.Errorf("\t%s\tTest 0:\tShould be able to mine every block: %v", failed, err)
			}
			if t.Failed() {
				t.FailNow()
			}
			t.Logf("\t%s\tTest 0:\tShould be able to mine every block.", success)

			if ch.QueryHeight() != miners+1 {
				t.Fatalf("\t%s\tTest 0:\tShould have a height of %d, got %d.", failed, miners+1, ch.QueryHeight())
			}
			t.Logf("\t%s\tTest 0:\tShould have a height of %d.", success, miners+1)

			seen := make(map[string]bool)
			for _, blk := range ch.RetrieveBlocks()[1:] {
				seen[blk.Trans.Values()[0]] = true
			}
			if len(seen) != miners {
				t.Fatalf("\t%s\tTest 0:\tShould have one block per miner, got %d.", failed, len(seen))
			}
			t.Logf("\t%s\tTest 0:\tShould have one block per miner.", success)

			if err := ch.Validate(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to validate the chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to validate the chain.", success)
		}
	}
}

func Test_Mempool(t *testing.T) {
	ch := newChain(t, 2, 0)
	ctx := context.Background()

	if _, err := ch.Genesis(ctx); err != nil {
		t.Fatalf("\t%s\tShould be able to mine the genesis block: %v", failed, err)
	}

	t.Log("Given the need to mine the batches waiting in the mempool.")
	{
		t.Logf("\tTest 0:\tWhen the mempool is empty.")
		{
			if _, err := ch.MineNewBlock(ctx); !errors.Is(err, chain.ErrNoTransactions) {
				t.Fatalf("\t%s\tTest 0:\tShould get ErrNoTransactions: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get ErrNoTransactions.", success)
		}

		t.Logf("\tTest 1:\tWhen two batches are submitted.")
		{
			if _, err := ch.SubmitBatch([]string{"a", "b"}); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to submit a batch: %v", failed, err)
			}
			if _, err := ch.SubmitBatch([]string{"c"}); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to submit a batch: %v", failed, err)
			}

			if _, err := ch.SubmitBatch(nil); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould not be able to submit an empty batch.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to submit batches.", success)

			first, err := ch.MineNewBlock(ctx)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to mine the first batch: %v", failed, err)
			}

			if got := first.Trans.Values(); len(got) != 2 || got[0] != "a" {
				t.Fatalf("\t%s\tTest 1:\tShould mine the first batch first, got %v.", failed, got)
			}
			t.Logf("\t%s\tTest 1:\tShould mine the first batch first.", success)

			if ch.QueryMempoolLength() != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould have one batch left, got %d.", failed, ch.QueryMempoolLength())
			}
			t.Logf("\t%s\tTest 1:\tShould have one batch left.", success)

			if _, err := ch.MineNewBlock(ctx); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to mine the second batch: %v", failed, err)
			}

			if ch.QueryHeight() != 3 || ch.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould have mined every batch.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould have mined every batch.", success)
		}
	}
}

func Test_MiningExhausted(t *testing.T) {
	ch := newChain(t, 64, 10)

	t.Log("Given the need to report when a block can't be solved.")
	{
		if _, err := ch.Genesis(context.Background()); !errors.Is(err, database.ErrMiningExhausted) {
			t.Fatalf("\t%s\tShould get ErrMiningExhausted: %v", failed, err)
		}
		t.Logf("\t%s\tShould get ErrMiningExhausted.", success)

		if ch.QueryHeight() != 0 {
			t.Fatalf("\t%s\tShould not append anything to the chain.", failed)
		}
		t.Logf("\t%s\tShould not append anything to the chain.", success)
	}
}

func Test_BatchDropped(t *testing.T) {
	ctx := context.Background()

	// The genesis block is solved at a low difficulty and stored directly so
	// the next block can be mined against a difficulty it can't reach.
	root, err := database.POW(ctx, database.POWArgs{
		Number:        0,
		TimeStamp:     uint64(time.Now().Unix()),
		PrevBlockHash: genesis.PrevBlockHash,
		Trans:         []string{"root"},
		Difficulty:    1,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine the genesis block: %v", failed, err)
	}

	strg := memory.New()
	if err := strg.Write(root); err != nil {
		t.Fatalf("\t%s\tShould be able to store the genesis block: %v", failed, err)
	}

	gen := genesis.Default()
	gen.Difficulty = 64
	gen.MaxNonce = 10

	m := metrics.New(nil)
	ch, err := chain.New(chain.Config{Genesis: gen, Storage: strg, Metrics: m})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the chain: %v", failed, err)
	}

	t.Log("Given the need to drop a batch that can't be mined.")
	{
		batch, err := ch.SubmitBatch([]string{"unsolvable"})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to submit the batch: %v", failed, err)
		}

		for attempt := 1; attempt <= 3; attempt++ {
			t.Logf("\tTest %d:\tWhen mining attempt %d runs out of nonces.", attempt-1, attempt)
			{
				if _, err := ch.MineNewBlock(ctx); !errors.Is(err, database.ErrMiningExhausted) {
					t.Fatalf("\t%s\tTest %d:\tShould get ErrMiningExhausted: %v", failed, attempt-1, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get ErrMiningExhausted.", success, attempt-1)

				pool := ch.RetrieveMempool()
				switch {
				case attempt < 3:
					if len(pool) != 1 || pool[0].ID != batch.ID || pool[0].Attempts != attempt {
						t.Fatalf("\t%s\tTest %d:\tShould keep the batch with %d attempts: %+v", failed, attempt-1, attempt, pool)
					}
					t.Logf("\t%s\tTest %d:\tShould keep the batch with %d attempts.", success, attempt-1, attempt)

				default:
					if len(pool) != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould drop the batch: %+v", failed, attempt-1, pool)
					}
					t.Logf("\t%s\tTest %d:\tShould drop the batch.", success, attempt-1)
				}
			}
		}

		if got := testutil.ToFloat64(m.MiningFailures.WithLabelValues("dropped")); got != 1 {
			t.Fatalf("\t%s\tShould count one dropped batch, got %v.", failed, got)
		}
		t.Logf("\t%s\tShould count one dropped batch.", success)

		if ch.QueryHeight() != 1 {
			t.Fatalf("\t%s\tShould not append anything to the chain, got %d.", failed, ch.QueryHeight())
		}
		t.Logf("\t%s\tShould not append anything to the chain.", success)
	}
}

func Test_Reset(t *testing.T) {
	ch := newChain(t, 2, 0)
	ctx := context.Background()

	if _, err := ch.Genesis(ctx); err != nil {
		t.Fatalf("\t%s\tShould be able to mine the genesis block: %v", failed, err)
	}

	t.Log("Given the need to start the chain over.")
	{
		if _, err := ch.MineBlock(ctx, []string{"a"}); err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}
		if _, err := ch.SubmitBatch([]string{"b"}); err != nil {
			t.Fatalf("\t%s\tShould be able to submit a batch: %v", failed, err)
		}

		gen, err := ch.Reset(ctx)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to reset the chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to reset the chain.", success)

		if gen.Header.Number != 0 || ch.QueryHeight() != 1 || ch.QueryMempoolLength() != 0 {
			t.Fatalf("\t%s\tShould have only a new genesis block: height[%d] mempool[%d]", failed, ch.QueryHeight(), ch.QueryMempoolLength())
		}
		t.Logf("\t%s\tShould have only a new genesis block.", success)

		if _, err := ch.MineBlock(ctx, []string{"c"}); err != nil {
			t.Fatalf("\t%s\tShould be able to mine on the new genesis block: %v", failed, err)
		}

		if err := ch.Validate(); err != nil {
			t.Fatalf("\t%s\tShould be able to validate the chain: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to validate the chain.", success)
	}
}

func Test_InvalidConfig(t *testing.T) {
	t.Log("Given the need to reject an invalid configuration.")
	{
		gen := genesis.Default()
		gen.Difficulty = 65
		if _, err := chain.New(chain.Config{Genesis: gen}); !errors.Is(err, database.ErrInvalidDifficulty) {
			t.Fatalf("\t%s\tShould get ErrInvalidDifficulty: %v", failed, err)
		}
		t.Logf("\t%s\tShould get ErrInvalidDifficulty.", success)

		gen = genesis.Default()
		gen.HashStrategy = "md5"
		if _, err := chain.New(chain.Config{Genesis: gen}); err == nil {
			t.Fatalf("\t%s\tShould not accept an unknown hash strategy.", failed)
		}
		t.Logf("\t%s\tShould not accept an unknown hash strategy.", success)

		gen = genesis.Default()
		gen.Transactions = nil
		if _, err := chain.New(chain.Config{Genesis: gen}); err == nil {
			t.Fatalf("\t%s\tShould not accept a genesis without transactions.", failed)
		}
		t.Logf("\t%s\tShould not accept a genesis without transactions.", success)
	}
}
