// Package metrics exposes Prometheus collectors for cache and transaction
// activity of observed sequences.
//
// Collectors are registered on the registry given to New, so tests can use
// an isolated prometheus.Registry. The adapters returned by CacheObserver
// and Sink plug into the lazy and txn extension points without the core
// packages importing Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/txn"
)

const namespace = "observedseq"

// Metrics holds every collector.
type Metrics struct {
	// CacheLookups counts slot reads. Labels: sequence, result (hit, miss, absent).
	CacheLookups *prometheus.CounterVec

	// CacheEvictions counts slots dropped by updates, deletions or invalidation.
	// Labels: sequence
	CacheEvictions *prometheus.CounterVec

	// Transactions counts transactions delivered to a sequence's listeners.
	// Labels: sequence
	Transactions *prometheus.CounterVec

	// TransactionOps measures how many operations each transaction carried.
	// Labels: sequence
	TransactionOps *prometheus.HistogramVec

	// Reloads counts full reloads. Labels: sequence
	Reloads *prometheus.CounterVec

	// StageErrors counts pipeline stage evaluation failures. Labels: stage
	StageErrors *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache slot reads by result.",
		}, []string{"sequence", "result"}),
		CacheEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Cache slots dropped.",
		}, []string{"sequence"}),
		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txn",
			Name:      "transactions_total",
			Help:      "Transactions forwarded by a sequence.",
		}, []string{"sequence"}),
		TransactionOps: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "txn",
			Name:      "operations",
			Help:      "Operations per forwarded transaction.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"sequence"}),
		Reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "txn",
			Name:      "reloads_total",
			Help:      "Full reloads forwarded by a sequence.",
		}, []string{"sequence"}),
		StageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Stage expression evaluation failures.",
		}, []string{"stage"}),
	}
}

// CacheObserver returns a lazy.Observer recording under the given sequence
// label.
func (m *Metrics) CacheObserver(sequence string) lazy.Observer {
	return &cacheObserver{
		hit:     m.CacheLookups.WithLabelValues(sequence, "hit"),
		miss:    m.CacheLookups.WithLabelValues(sequence, "miss"),
		absent:  m.CacheLookups.WithLabelValues(sequence, "absent"),
		evicted: m.CacheEvictions.WithLabelValues(sequence),
	}
}

type cacheObserver struct {
	hit, miss, absent, evicted prometheus.Counter
}

func (o *cacheObserver) Hit()    { o.hit.Inc() }
func (o *cacheObserver) Miss()   { o.miss.Inc() }
func (o *cacheObserver) Absent() { o.absent.Inc() }

func (o *cacheObserver) Evicted(n int) {
	if n > 0 {
		o.evicted.Add(float64(n))
	}
}

// Sink returns a txn.Sink that counts what a sequence forwards. Subscribe it
// to the sequence being measured.
func (m *Metrics) Sink(sequence string) txn.Sink {
	transactions := m.Transactions.WithLabelValues(sequence)
	ops := m.TransactionOps.WithLabelValues(sequence)
	reloads := m.Reloads.WithLabelValues(sequence)
	return txn.SinkFuncs{
		ApplyFunc: func(tx txn.Transaction) error {
			transactions.Inc()
			ops.Observe(float64(tx.Len()))
			return nil
		},
		ReloadFunc: reloads.Inc,
	}
}

// StageError records a stage evaluation failure. Its signature matches
// pipeline.ErrorFunc.
func (m *Metrics) StageError(stage string, _ error) {
	m.StageErrors.WithLabelValues(stage).Inc()
}
