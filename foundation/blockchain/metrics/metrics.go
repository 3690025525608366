// Package metrics provides the prometheus collectors describing the chain.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the set of collectors updated by the chain.
type Metrics struct {
	BlockHeight          prometheus.Gauge
	MempoolSize          prometheus.Gauge
	MiningTime           prometheus.Histogram
	MiningAttempts       prometheus.Histogram
	TransactionsPerBlock prometheus.Histogram
	MiningFailures       *prometheus.CounterVec
}

// New constructs the collectors and registers them with the registerer. A nil
// registerer leaves the collectors unregistered, which is useful for tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BlockHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "block_height",
			Help: "The current block height of the blockchain.",
		}),
		MempoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_size",
			Help: "The number of batches waiting to be mined.",
		}),
		MiningTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "mining_time_seconds",
			Help: "The time it takes to mine a new block.",
		}),
		MiningAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mining_attempts",
			Help:    "The number of nonces tried before a block was solved.",
			Buckets: prometheus.ExponentialBuckets(16, 4, 10),
		}),
		TransactionsPerBlock: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "transactions_per_block",
			Help:    "The number of transactions included in each new block.",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
		MiningFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mining_failures_total",
			Help: "The number of mining operations that did not produce a block.",
		}, []string{"reason"}),
	}
}

// ObserveBlock records a newly appended block.
func (m *Metrics) ObserveBlock(height int, trans int, nonce uint64, duration time.Duration) {
	if m == nil {
		return
	}

	m.BlockHeight.Set(float64(height))
	m.TransactionsPerBlock.Observe(float64(trans))
	m.MiningAttempts.Observe(float64(nonce) + 1)
	m.MiningTime.Observe(duration.Seconds())
}

// ObserveFailure records a mining operation that failed for the reason.
func (m *Metrics) ObserveFailure(reason string) {
	if m == nil {
		return
	}

	m.MiningFailures.WithLabelValues(reason).Inc()
}

// SetMempoolSize records the number of batches waiting.
func (m *Metrics) SetMempoolSize(n int) {
	if m == nil {
		return
	}

	m.MempoolSize.Set(float64(n))
}
