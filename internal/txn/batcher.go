package txn

import (
	"errors"
	"fmt"

	"github.com/eapache/queue"

	"github.com/specialistvlad/observedseq/internal/index"
)

// ErrProtocol is returned when the Begin/Commit sequence is violated.
var ErrProtocol = errors.New("batch protocol violation")

// Batcher implements Receiver on top of a Sink.
//
// Operations received between Begin and Commit are queued in arrival order
// and coalesced into a single Transaction on Commit. Moves are decomposed:
// a move onto its own position becomes an update, any other move becomes a
// deletion at the old path and an insertion at the new one.
//
// Batcher is not safe for concurrent use.
type Batcher struct {
	sink Sink
	// pending is nil while idle.
	pending *queue.Queue
}

var _ Receiver = (*Batcher)(nil)

// NewBatcher creates an idle Batcher that commits into sink.
func NewBatcher(sink Sink) *Batcher {
	return &Batcher{sink: sink}
}

// Collecting reports whether a batch is open.
func (b *Batcher) Collecting() bool {
	return b.pending != nil
}

// Pending returns the number of queued operations.
func (b *Batcher) Pending() int {
	if b.pending == nil {
		return 0
	}
	return b.pending.Length()
}

// Begin opens a batch.
func (b *Batcher) Begin() error {
	if b.pending != nil {
		return fmt.Errorf("%w: begin while collecting", ErrProtocol)
	}
	b.pending = queue.New()
	return nil
}

// Push queues op into the open batch.
func (b *Batcher) Push(op Op) error {
	if b.pending == nil {
		return fmt.Errorf("%w: %s outside of a batch", ErrProtocol, op)
	}
	b.pending.Add(op)
	return nil
}

func (b *Batcher) RowInsert(p index.Path) error { return b.Push(Insert(p)) }
func (b *Batcher) RowDelete(p index.Path) error { return b.Push(Delete(p)) }
func (b *Batcher) RowUpdate(p index.Path) error { return b.Push(Update(p)) }
func (b *Batcher) RowMove(from, to index.Path) error { return b.Push(Move(from, to)) }
func (b *Batcher) SectionInsert(section int) error { return b.Push(InsertSection(section)) }
func (b *Batcher) SectionDelete(section int) error { return b.Push(DeleteSection(section)) }

// Commit closes the batch and hands the coalesced Transaction to the sink.
// An empty batch is dropped without reaching the sink.
func (b *Batcher) Commit() error {
	if b.pending == nil {
		return fmt.Errorf("%w: commit while idle", ErrProtocol)
	}
	pending := b.pending
	b.pending = nil

	tx := coalesce(pending)
	if tx.IsEmpty() {
		return nil
	}
	return b.sink.Apply(tx)
}

// FullReload discards any open batch and tells the sink to reload.
func (b *Batcher) FullReload() {
	b.pending = nil
	b.sink.Reload()
}

func coalesce(q *queue.Queue) Transaction {
	var tx Transaction
	updated := make(map[index.Path]struct{})
	addUpdate := func(p index.Path) {
		if _, dup := updated[p]; dup {
			return
		}
		updated[p] = struct{}{}
		tx.RowUpdates = append(tx.RowUpdates, p)
	}

	for q.Length() > 0 {
		op := q.Remove().(Op)
		switch op.Kind {
		case RowInsert:
			tx.RowInsertions = append(tx.RowInsertions, op.Path)
		case RowDelete:
			tx.RowDeletions = append(tx.RowDeletions, op.Path)
		case RowUpdate:
			addUpdate(op.Path)
		case RowMove:
			if op.Path == op.To {
				addUpdate(op.Path)
				continue
			}
			tx.RowDeletions = append(tx.RowDeletions, op.Path)
			tx.RowInsertions = append(tx.RowInsertions, op.To)
		case SectionInsert:
			tx.SectionInsertions = append(tx.SectionInsertions, op.Section)
		case SectionDelete:
			tx.SectionDeletions = append(tx.SectionDeletions, op.Section)
		}
	}
	return tx
}
