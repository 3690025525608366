package mempool

import (
	"sort"
)

// List of different sort strategies.
const (
	StrategyFIFO    = "fifo"
	StrategyLargest = "largest"
)

// Map of different sort strategies with functions.
var strategies = map[string]SortStrategy{
	StrategyFIFO:    fifoSort,
	StrategyLargest: largestSort,
}

// SortStrategy orders the batches in place so the batch to mine next is first.
type SortStrategy func(batches []Batch)

// fifoSort orders the batches in the order they were added.
var fifoSort SortStrategy = func(batches []Batch) {
	sort.Sort(bySeq(batches))
}

// largestSort orders the batches by number of transactions, falling back to
// the order they were added.
var largestSort SortStrategy = func(batches []Batch) {
	sort.Sort(bySize(batches))
}

// =============================================================================

// bySeq provides sorting support by the batch sequence number.
type bySeq []Batch

// Len returns the number of batches in the list.
func (bs bySeq) Len() int {
	return len(bs)
}

// Less helps to sort the list by sequence in ascending order.
func (bs bySeq) Less(i, j int) bool {
	return bs[i].Seq < bs[j].Seq
}

// Swap moves batches in the order of the sequence.
func (bs bySeq) Swap(i, j int) {
	bs[i], bs[j] = bs[j], bs[i]
}

// =============================================================================

// bySize provides sorting support by the number of transactions.
type bySize []Batch

// Len returns the number of batches in the list.
func (bs bySize) Len() int {
	return len(bs)
}

// Less helps to sort the list by size in descending order.
func (bs bySize) Less(i, j int) bool {
	if len(bs[i].Trans) == len(bs[j].Trans) {
		return bs[i].Seq < bs[j].Seq
	}
	return len(bs[i].Trans) > len(bs[j].Trans)
}

// Swap moves batches in the order of size.
func (bs bySize) Swap(i, j int) {
	bs[i], bs[j] = bs[j], bs[i]
}
