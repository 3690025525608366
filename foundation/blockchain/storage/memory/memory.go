// Package memory implements the ability to read and write blocks to memory
// using a slice.
package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/merklechain/foundation/blockchain/database"
)

// ErrNotFound is returned when a block number is not in storage.
var ErrNotFound = errors.New("block does not exist")

// Memory represents the storage implementation for reading and storing
// blocks in memory using a slice.
type Memory struct {
	mu     sync.RWMutex
	blocks []database.Block
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Write takes the specified block and stores it in memory. Blocks must be
// written in number order starting at 0.
func (m *Memory) Write(block database.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l := uint64(len(m.blocks)); l != block.Header.Number {
		return fmt.Errorf("block is out of order, got %d, exp %d", block.Header.Number, l)
	}

	m.blocks = append(m.blocks, block)

	return nil
}

// GetBlock searches the blockchain to locate and return the contents of
// the specified block by number.
func (m *Memory) GetBlock(num uint64) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if num >= uint64(len(m.blocks)) {
		return database.Block{}, fmt.Errorf("%w: %d", ErrNotFound, num)
	}

	return m.blocks[num], nil
}

// Latest returns the last block written and false when storage is empty.
func (m *Memory) Latest() (database.Block, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.blocks) == 0 {
		return database.Block{}, false
	}

	return m.blocks[len(m.blocks)-1], true
}

// Count returns the number of blocks in storage.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.blocks)
}

// Copy returns a copy of the blocks in number order.
func (m *Memory) Copy() []database.Block {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blocks := make([]database.Block, len(m.blocks))
	copy(blocks, m.blocks)

	return blocks
}

// Reset will clear out the blockchain.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = nil
	return nil
}
