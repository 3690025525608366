package chaingrp

import (
	"time"

	"github.com/ardanlabs/merklechain/foundation/blockchain/database"
	"github.com/ardanlabs/merklechain/foundation/blockchain/mempool"
)

// batchRequest is the payload for mining or queuing a set of transactions.
// Empty strings are legal transactions.
type batchRequest struct {
	Transactions []string `json:"transactions" validate:"required,min=1,max=1000,dive,max=4096"`
}

func toBlocks(blks []database.Block) []database.BlockData {
	blocks := make([]database.BlockData, len(blks))
	for i, blk := range blks {
		blocks[i] = database.NewBlockData(blk)
	}
	return blocks
}

type batch struct {
	ID           string    `json:"id"`
	Received     time.Time `json:"received"`
	Attempts     int       `json:"attempts"`
	Transactions []string  `json:"transactions"`
}

func toBatch(b mempool.Batch) batch {
	return batch{
		ID:           b.ID,
		Received:     b.Received,
		Attempts:     b.Attempts,
		Transactions: b.Trans,
	}
}

type validation struct {
	Valid  bool   `json:"valid"`
	Height int    `json:"height"`
	Error  string `json:"error,omitempty"`
}
