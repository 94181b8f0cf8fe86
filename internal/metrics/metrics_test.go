package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/txn"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestCacheObserver_CountsLookups(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m, _ := newTestMetrics(t)
	values := []int{1, 2, 3}
	cache := lazy.New(lazy.Generator[int]{
		Count: func() int { return len(values) },
		Generate: func(i int) (int, bool) {
			return values[i], values[i] != 2
		},
	}, lazy.WithObserver(m.CacheObserver("cell")))

	// --- Act ---
	cache.Get(0)
	cache.Get(0)
	cache.Get(1)
	cache.Get(2)
	cache.InvalidateAll()

	// --- Assert ---
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("cell", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("cell", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("cell", "absent")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheEvictions.WithLabelValues("cell")))
}

func TestSink_CountsTransactions(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m, reg := newTestMetrics(t)
	sink := m.Sink("root")

	// --- Act ---
	require.NoError(t, sink.Apply(txn.Transaction{RowInsertions: []index.Path{index.P(0, 0), index.P(0, 1)}}))
	require.NoError(t, sink.Apply(txn.Transaction{SectionDeletions: []int{0}}))
	sink.Reload()

	// --- Assert ---
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transactions.WithLabelValues("root")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reloads.WithLabelValues("root")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TransactionOps))

	count, err := testutil.GatherAndCount(reg, "observedseq_txn_operations")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStageError(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)

	m.StageError("cell", errors.New("boom"))
	m.StageError("cell", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("cell")))
}
