// Package mempool maintains the batches of transactions waiting to be mined
// into a block.
package mempool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyBatch is returned when a batch without transactions is added.
var ErrEmptyBatch = errors.New("batch has no transactions")

// Batch represents the set of transactions that will be committed by a single
// block, in the order they were submitted.
type Batch struct {
	ID       string    `json:"id"`
	Seq      uint64    `json:"seq"`
	Trans    []string  `json:"transactions"`
	Received time.Time `json:"received"`
	Attempts int       `json:"attempts"`
}

// Mempool represents a cache of batches keyed by batch id.
type Mempool struct {
	pool     map[string]Batch
	seq      uint64
	mu       sync.RWMutex
	selectFn SortStrategy
}

// New constructs a new mempool using the default sort strategy.
func New() *Mempool {
	mp, _ := NewWithStrategy(StrategyFIFO)
	return mp
}

// NewWithStrategy constructs a new mempool with specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}

	mp := Mempool{
		pool:     make(map[string]Batch),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of batches in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Add stores a copy of the transactions as a new batch.
func (mp *Mempool) Add(trans []string) (Batch, error) {
	if len(trans) == 0 {
		return Batch{}, ErrEmptyBatch
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.seq++
	batch := Batch{
		ID:       uuid.NewString(),
		Seq:      mp.seq,
		Trans:    append([]string(nil), trans...),
		Received: time.Now().UTC(),
	}

	mp.pool[batch.ID] = batch

	return batch, nil
}

// Delete removes a batch from the mempool.
func (mp *Mempool) Delete(id string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, id)
}

// Attempted records a mining attempt for the batch that ran out of nonces
// and returns the number of attempts so far. Zero means the batch is gone.
func (mp *Mempool) Attempted(id string) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	batch, exists := mp.pool[id]
	if !exists {
		return 0
	}

	batch.Attempts++
	mp.pool[id] = batch

	return batch.Attempts
}

// Truncate clears all the batches from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]Batch)
}

// PickBest uses the configured sort strategy to return the batch that should
// be mined next. The batch stays in the pool until it is deleted.
func (mp *Mempool) PickBest() (Batch, bool) {
	batches := mp.Copy()
	if len(batches) == 0 {
		return Batch{}, false
	}

	return batches[0], true
}

// Copy returns the batches in the order of the sort strategy.
func (mp *Mempool) Copy() []Batch {
	mp.mu.RLock()
	batches := make([]Batch, 0, len(mp.pool))
	for _, batch := range mp.pool {
		batches = append(batches, batch)
	}
	mp.mu.RUnlock()

	mp.selectFn(batches)

	return batches
}
