package testutil

import (
	"fmt"
	"slices"
	"sync"

	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/txn"
)

// Recorder captures everything delivered to it, either as a per-operation
// txn.Receiver or as a whole-transaction txn.Sink. It is safe for concurrent
// use so it can sit behind network clients.
type Recorder struct {
	mu           sync.Mutex
	events       []string
	transactions []txn.Transaction
	reloads      int
	// ApplyErr, when set, is returned from Apply.
	ApplyErr error
}

var (
	_ txn.Receiver = (*Recorder)(nil)
	_ txn.Sink     = (*Recorder)(nil)
)

func (r *Recorder) record(format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
	return nil
}

func (r *Recorder) Begin() error { return r.record("begin") }
func (r *Recorder) RowInsert(p index.Path) error { return r.record("row_insert(%s)", p) }
func (r *Recorder) RowDelete(p index.Path) error { return r.record("row_delete(%s)", p) }
func (r *Recorder) RowUpdate(p index.Path) error { return r.record("row_update(%s)", p) }
func (r *Recorder) RowMove(from, to index.Path) error { return r.record("row_move(%s->%s)", from, to) }
func (r *Recorder) SectionInsert(s int) error { return r.record("section_insert(%d)", s) }
func (r *Recorder) SectionDelete(s int) error { return r.record("section_delete(%d)", s) }
func (r *Recorder) Commit() error { return r.record("commit") }

func (r *Recorder) FullReload() {
	r.record("full_reload")
	r.mu.Lock()
	r.reloads++
	r.mu.Unlock()
}

// Apply implements txn.Sink.
func (r *Recorder) Apply(tx txn.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactions = append(r.transactions, tx)
	return r.ApplyErr
}

// Reload implements txn.Sink.
func (r *Recorder) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads++
}

// Events returns the recorded per-operation calls.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Transactions returns the transactions received through Apply.
func (r *Recorder) Transactions() []txn.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.transactions)
}

// Reloads returns how many reloads were received by either interface.
func (r *Recorder) Reloads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads
}
