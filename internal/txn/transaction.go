package txn

import (
	"log/slog"
	"slices"

	"github.com/specialistvlad/observedseq/internal/index"
)

// Transaction is one coalesced batch of changes to a two-level sequence.
type Transaction struct {
	RowDeletions      []index.Path `json:"row_deletions,omitempty"`
	RowInsertions     []index.Path `json:"row_insertions,omitempty"`
	RowUpdates        []index.Path `json:"row_updates,omitempty"`
	SectionDeletions  []int        `json:"section_deletions,omitempty"`
	SectionInsertions []int        `json:"section_insertions,omitempty"`
}

// IsEmpty reports whether the transaction carries no changes.
func (t Transaction) IsEmpty() bool {
	return len(t.RowDeletions) == 0 &&
		len(t.RowInsertions) == 0 &&
		len(t.RowUpdates) == 0 &&
		len(t.SectionDeletions) == 0 &&
		len(t.SectionInsertions) == 0
}

// Len returns the number of operations in the transaction.
func (t Transaction) Len() int {
	return len(t.RowDeletions) + len(t.RowInsertions) + len(t.RowUpdates) +
		len(t.SectionDeletions) + len(t.SectionInsertions)
}

// Offset returns a copy with every section index shifted by sections and
// every row index shifted by rows. It is used by consumers that embed a
// sequence below other content.
func (t Transaction) Offset(sections, rows int) Transaction {
	shiftPaths := func(ps []index.Path) []index.Path {
		if ps == nil {
			return nil
		}
		out := make([]index.Path, len(ps))
		for i, p := range ps {
			out[i] = p.Offset(sections, rows)
		}
		return out
	}
	shiftInts := func(xs []int) []int {
		if xs == nil {
			return nil
		}
		out := make([]int, len(xs))
		for i, x := range xs {
			out[i] = x + sections
		}
		return out
	}
	return Transaction{
		RowDeletions:      shiftPaths(t.RowDeletions),
		RowInsertions:     shiftPaths(t.RowInsertions),
		RowUpdates:        shiftPaths(t.RowUpdates),
		SectionDeletions:  shiftInts(t.SectionDeletions),
		SectionInsertions: shiftInts(t.SectionInsertions),
	}
}

// Normalize returns a copy with every list sorted ascending.
func (t Transaction) Normalize() Transaction {
	sortPaths := func(ps []index.Path) []index.Path {
		out := slices.Clone(ps)
		index.SortPaths(out)
		return out
	}
	return Transaction{
		RowDeletions:      sortPaths(t.RowDeletions),
		RowInsertions:     sortPaths(t.RowInsertions),
		RowUpdates:        sortPaths(t.RowUpdates),
		SectionDeletions:  index.Sorted(t.SectionDeletions),
		SectionInsertions: index.Sorted(t.SectionInsertions),
	}
}

// Ops expands the transaction into per-operation form: section deletions,
// row deletions, row updates, section insertions, then row insertions, each
// list in ascending order.
func (t Transaction) Ops() []Op {
	t = t.Normalize()
	ops := make([]Op, 0, t.Len())
	for _, s := range t.SectionDeletions {
		ops = append(ops, DeleteSection(s))
	}
	for _, p := range t.RowDeletions {
		ops = append(ops, Delete(p))
	}
	for _, p := range t.RowUpdates {
		ops = append(ops, Update(p))
	}
	for _, s := range t.SectionInsertions {
		ops = append(ops, InsertSection(s))
	}
	for _, p := range t.RowInsertions {
		ops = append(ops, Insert(p))
	}
	return ops
}

// LogValue implements slog.LogValuer.
func (t Transaction) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("section_deletions", len(t.SectionDeletions)),
		slog.Int("section_insertions", len(t.SectionInsertions)),
		slog.Int("row_deletions", len(t.RowDeletions)),
		slog.Int("row_insertions", len(t.RowInsertions)),
		slog.Int("row_updates", len(t.RowUpdates)),
	)
}
