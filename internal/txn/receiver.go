package txn

import (
	"fmt"

	"github.com/specialistvlad/observedseq/internal/index"
)

// Receiver is the per-operation vocabulary a data source speaks.
type Receiver interface {
	Begin() error
	RowInsert(p index.Path) error
	RowDelete(p index.Path) error
	RowUpdate(p index.Path) error
	RowMove(from, to index.Path) error
	SectionInsert(section int) error
	SectionDelete(section int) error
	Commit() error
	FullReload()
}

// Sink consumes whole transactions.
type Sink interface {
	// Apply processes one committed transaction.
	Apply(tx Transaction) error

	// Reload discards all state derived from the source.
	Reload()
}

// SinkFuncs adapts a pair of functions to Sink. Nil functions are no-ops.
type SinkFuncs struct {
	ApplyFunc  func(Transaction) error
	ReloadFunc func()
}

func (s SinkFuncs) Apply(tx Transaction) error {
	if s.ApplyFunc == nil {
		return nil
	}
	return s.ApplyFunc(tx)
}

func (s SinkFuncs) Reload() {
	if s.ReloadFunc != nil {
		s.ReloadFunc()
	}
}

// Replay feeds tx to r as one Begin/Commit batch in the order of tx.Ops.
func Replay(tx Transaction, r Receiver) error {
	return Send(r, tx.Ops()...)
}

// Forward returns a Sink that replays every transaction into r.
func Forward(r Receiver) Sink {
	return SinkFuncs{
		ApplyFunc: func(tx Transaction) error {
			return Replay(tx, r)
		},
		ReloadFunc: r.FullReload,
	}
}

// Send delivers ops to r as one Begin/Commit batch, in the given order.
func Send(r Receiver, ops ...Op) error {
	if err := r.Begin(); err != nil {
		return err
	}
	for _, op := range ops {
		if err := Dispatch(r, op); err != nil {
			return err
		}
	}
	return r.Commit()
}

// Dispatch calls the Receiver method matching op.
func Dispatch(r Receiver, op Op) error {
	switch op.Kind {
	case RowInsert:
		return r.RowInsert(op.Path)
	case RowDelete:
		return r.RowDelete(op.Path)
	case RowUpdate:
		return r.RowUpdate(op.Path)
	case RowMove:
		return r.RowMove(op.Path, op.To)
	case SectionInsert:
		return r.SectionInsert(op.Section)
	case SectionDelete:
		return r.SectionDelete(op.Section)
	}
	return fmt.Errorf("%w: unknown operation %s", ErrProtocol, op)
}
