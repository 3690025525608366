// Package digest provides the hashing primitives used by the merkle tree and
// the block proof of work. Every digest is rendered as lowercase hex without
// a 0x prefix.
package digest

import (
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Set of hash strategies that can be selected by name.
const (
	StrategySHA256    = "sha256"
	StrategyKeccak256 = "keccak256"
)

// Strategy constructs a fresh hash for every digest operation.
type Strategy func() hash.Hash

// SHA256 is the default strategy.
func SHA256() hash.Hash {
	return sha256.New()
}

// Keccak256 is the hashing algorithm Ethereum uses.
func Keccak256() hash.Hash {
	return crypto.NewKeccakState()
}

// Retrieve returns the strategy for the specified name.
func Retrieve(name string) (Strategy, error) {
	switch name {
	case StrategySHA256, "":
		return SHA256, nil
	case StrategyKeccak256:
		return Keccak256, nil
	}

	return nil, fmt.Errorf("strategy %q does not exist", name)
}

// Hex hashes the data with the strategy and returns the lowercase hex digest.
func Hex(strategy Strategy, data []byte) string {
	h := strategy()
	h.Write(data)
	return common.Bytes2Hex(h.Sum(nil))
}

// String is a convenience for hashing the bytes of a string.
func String(strategy Strategy, s string) string {
	return Hex(strategy, []byte(s))
}

// Len returns the number of hex characters the strategy produces.
func Len(strategy Strategy) int {
	return strategy().Size() * 2
}
