// Package genesis maintains the settings the chain is started with.
package genesis

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"time"
)

// PrevBlockHash is the sentinel used as the previous hash of the genesis block.
const PrevBlockHash = "0"

// Genesis represents the genesis settings.
type Genesis struct {
	Date         time.Time `json:"date"`
	Difficulty   uint      `json:"difficulty"`    // Number of leading 0's needed to solve the hash solution.
	MaxNonce     uint64    `json:"max_nonce"`     // Largest nonce tried before mining reports exhaustion.
	Workers      int       `json:"workers"`       // Number of goroutines searching the nonce space.
	HashStrategy string    `json:"hash_strategy"` // Name of the digest strategy: sha256 or keccak256.
	Transactions []string  `json:"transactions"`  // Transactions committed by the genesis block.
}

// Default returns the settings used when no genesis file is provided.
func Default() Genesis {
	return Genesis{
		Date:         time.Now().UTC(),
		Difficulty:   4,
		MaxNonce:     math.MaxUint64,
		Workers:      1,
		HashStrategy: "sha256",
		Transactions: []string{"First Transaction"},
	}
}

// Load opens and consumes the genesis file. Fields not present in the file
// keep their default values.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	genesis := Default()
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if len(genesis.Transactions) == 0 {
		return Genesis{}, errors.New("genesis requires at least one transaction")
	}

	return genesis, nil
}
