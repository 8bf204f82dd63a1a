package core

// Prometheus instrumentation. The teacher pulls in
// github.com/prometheus/client_golang transitively (via its libp2p/cosmos
// dependency chain) but never registers a single metric of its own; the
// rest of the example pack (erigon, bsc, avalanche forks) all expose a
// /metrics endpoint backed by this same client library, so that is the
// convention adopted here.

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the gauges and counters the engine updates as it produces
// blocks and executes transactions.
type Metrics struct {
	Height       prometheus.Gauge
	MempoolSize  prometheus.Gauge
	BlockGasUsed prometheus.Counter
	TxExecuted   *prometheus.CounterVec
}

// NewMetrics constructs and registers the chain's metric set against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Height: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mvm_chain_height",
			Help: "Current chain height.",
		}),
		MempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mvm_mempool_size",
			Help: "Number of transactions currently pending in the mempool.",
		}),
		BlockGasUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvm_block_gas_used_total",
			Help: "Cumulative gas consumed across all produced blocks.",
		}),
		TxExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mvm_tx_executed_total",
			Help: "Transactions executed, labeled by terminal status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.Height, m.MempoolSize, m.BlockGasUsed, m.TxExecuted)
	return m
}

// Observe updates the metric set from a just-produced block and the
// mempool's current size.
func (m *Metrics) Observe(b *Block, mempoolSize int) {
	if m == nil {
		return
	}
	m.Height.Set(float64(b.Height))
	m.MempoolSize.Set(float64(mempoolSize))
	m.BlockGasUsed.Add(float64(b.GasUsed))
	for _, tx := range b.Transactions {
		m.TxExecuted.WithLabelValues(string(tx.Status)).Inc()
	}
}
