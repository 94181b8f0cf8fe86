package sections

import (
	"fmt"
	"iter"

	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/txn"
)

// Generator produces the elements of a two-level sequence.
type Generator[T any] struct {
	Sections func() int
	Rows     func(section int) int
	Generate func(section, row int) (T, bool)
}

// Reader is the read interface of a two-level sequence. Accessors panic with
// a *lazy.BoundsError on out-of-range indices, Lookup returns it instead.
type Reader[T any] interface {
	SectionCount() int
	RowCount(section int) int
	Get(p index.Path) (T, bool)
	Lookup(p index.Path) (T, bool, error)
	Section(section int) lazy.Seq[T]
}

// Applier is implemented by sequences with state to keep in sync.
type Applier interface {
	Apply(tx txn.Transaction) error
	InvalidateAll()
}

var (
	_ Reader[int] = (*Sequence[int])(nil)
	_ Applier     = (*Sequence[int])(nil)
	_ Reader[int] = (*View[int])(nil)
)

// ApplyError reports a transaction that could not be applied. Section is -1
// when the section-level diff itself was rejected.
type ApplyError struct {
	Section int
	Err     error
}

func (e *ApplyError) Error() string {
	if e.Section < 0 {
		return fmt.Sprintf("sections: %v", e.Err)
	}
	return fmt.Sprintf("sections: section %d: %v", e.Section, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Sequence is a memoizing two-level sequence.
type Sequence[T any] struct {
	gen   Generator[T]
	outer *lazy.Cache[*lazy.Cache[T]]
	// opts are passed to every row cache.
	opts []lazy.Option
}

// New creates an empty Sequence over gen.
func New[T any](gen Generator[T], opts ...lazy.Option) *Sequence[T] {
	s := &Sequence[T]{gen: gen, opts: opts}
	s.outer = lazy.New(lazy.Generator[*lazy.Cache[T]]{
		Count: gen.Sections,
		Generate: func(section int) (*lazy.Cache[T], bool) {
			return lazy.New(s.rowGenerator(section), s.opts...), true
		},
	})
	return s
}

func (s *Sequence[T]) rowGenerator(section int) lazy.Generator[T] {
	return rowGenerator(s.gen, section)
}

func rowGenerator[T any](gen Generator[T], section int) lazy.Generator[T] {
	return lazy.Generator[T]{
		Count: func() int { return gen.Rows(section) },
		Generate: func(row int) (T, bool) {
			return gen.Generate(section, row)
		},
	}
}

// SectionCount returns the live number of sections.
func (s *Sequence[T]) SectionCount() int {
	return s.gen.Sections()
}

// RowCount returns the live number of rows in section.
func (s *Sequence[T]) RowCount(section int) int {
	return s.rows(section).Count()
}

// Get returns the element at p.
func (s *Sequence[T]) Get(p index.Path) (T, bool) {
	return s.rows(p.Section).Get(p.Row)
}

// Lookup is the checked variant of Get.
func (s *Sequence[T]) Lookup(p index.Path) (T, bool, error) {
	rows, _, err := s.outer.Lookup(p.Section)
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("section: %w", err)
	}
	v, ok, err := rows.Lookup(p.Row)
	if err != nil {
		return v, ok, fmt.Errorf("row in section %d: %w", p.Section, err)
	}
	return v, ok, nil
}

// Section returns the memoized row sequence of section.
func (s *Sequence[T]) Section(section int) lazy.Seq[T] {
	return s.rows(section)
}

func (s *Sequence[T]) rows(section int) *lazy.Cache[T] {
	rows, _ := s.outer.Get(section)
	return rows
}

// Materialized returns the number of materialized sections and rows.
func (s *Sequence[T]) Materialized() (sections, rows int) {
	for _, i := range s.outer.Slots() {
		c, _ := s.outer.Peek(i)
		rows += c.Materialized()
	}
	return s.outer.Materialized(), rows
}

// InvalidateAll drops every memoized section and row.
func (s *Sequence[T]) InvalidateAll() {
	s.outer.InvalidateAll()
}

// Apply reflects tx in the memoized state. The live generator must already
// describe the post-batch state.
func (s *Sequence[T]) Apply(tx txn.Transaction) error {
	pre, post := s.outer.Synced(), s.SectionCount()
	sectionDiff := lazy.Diff{
		Deletions:  tx.SectionDeletions,
		Insertions: tx.SectionInsertions,
	}
	if err := sectionDiff.Validate(pre, post); err != nil {
		return &ApplyError{Section: -1, Err: err}
	}
	if err := validateRows(tx, pre, post); err != nil {
		return err
	}

	deleted := make(map[int]struct{}, len(tx.SectionDeletions))
	for _, i := range tx.SectionDeletions {
		deleted[i] = struct{}{}
	}
	remap := lazy.NewRemap(sectionDiff)
	if err := s.validateSections(tx, pre, deleted, remap); err != nil {
		return err
	}

	moved := make(map[int]*lazy.Cache[T])
	var prepared []*lazy.Prepared[T]
	for _, old := range s.outer.Slots() {
		if _, gone := deleted[old]; gone {
			continue
		}
		to, _ := remap.Index(old)
		rows, _ := s.outer.Peek(old)
		if to != old {
			rows = rows.Rebind(s.rowGenerator(to))
		}
		rowDiff := lazy.Diff{
			Deletions:  index.Rows(tx.RowDeletions, old),
			Updates:    index.Rows(tx.RowUpdates, old),
			Insertions: index.Rows(tx.RowInsertions, to),
		}
		p, err := rows.Prepare(rowDiff, nil)
		if err != nil {
			return &ApplyError{Section: old, Err: err}
		}
		moved[old] = rows
		prepared = append(prepared, p)
	}

	outer, err := s.outer.Prepare(sectionDiff, func(from, _ int, _ *lazy.Cache[T]) (*lazy.Cache[T], bool) {
		rows, ok := moved[from]
		return rows, ok
	})
	if err != nil {
		return &ApplyError{Section: -1, Err: err}
	}

	for _, p := range prepared {
		p.Commit()
	}
	outer.Commit()
	return nil
}

// validateSections checks the row ops of every surviving section against
// the counts the generator reports, whether or not the section is
// materialized. The pre-batch count of a section is implied by its
// post-batch count and the batch itself.
func (s *Sequence[T]) validateSections(tx txn.Transaction, pre int, deleted map[int]struct{}, remap *lazy.Remap) error {
	byOld := make(map[int]*lazy.Diff)
	byNew := make(map[int][]int)
	diffFor := func(section int) *lazy.Diff {
		d, ok := byOld[section]
		if !ok {
			d = &lazy.Diff{}
			byOld[section] = d
		}
		return d
	}
	for _, p := range tx.RowDeletions {
		d := diffFor(p.Section)
		d.Deletions = append(d.Deletions, p.Row)
	}
	for _, p := range tx.RowUpdates {
		d := diffFor(p.Section)
		d.Updates = append(d.Updates, p.Row)
	}
	for _, p := range tx.RowInsertions {
		byNew[p.Section] = append(byNew[p.Section], p.Row)
	}

	for old := range pre {
		if _, gone := deleted[old]; gone {
			continue
		}
		to, _ := remap.Index(old)
		d := lazy.Diff{Insertions: byNew[to]}
		if rows, ok := byOld[old]; ok {
			d.Deletions, d.Updates = rows.Deletions, rows.Updates
		}
		if d.IsEmpty() {
			continue
		}
		post := s.gen.Rows(to)
		if err := d.Validate(post-len(d.Insertions)+len(d.Deletions), post); err != nil {
			return &ApplyError{Section: old, Err: err}
		}
	}
	return nil
}

func validateRows(tx txn.Transaction, pre, post int) error {
	checks := []struct {
		op    string
		paths []index.Path
		limit int
	}{
		{"deletion", tx.RowDeletions, pre},
		{"update", tx.RowUpdates, pre},
		{"insertion", tx.RowInsertions, post},
	}
	for _, c := range checks {
		if p, ok := index.FirstDuplicatePath(c.paths); ok {
			return &ApplyError{Section: p.Section, Err: &lazy.DiffError{
				Kind: lazy.DiffDuplicate, Op: "row " + c.op, Index: p.Row, Pre: pre, Post: post,
			}}
		}
		for _, p := range c.paths {
			if p.Section < 0 || p.Section >= c.limit || p.Row < 0 {
				return &ApplyError{Section: p.Section, Err: &lazy.DiffError{
					Kind: lazy.DiffRange, Op: "row " + c.op, Index: p.Row, Pre: pre, Post: post,
				}}
			}
		}
	}
	return nil
}

// All iterates over the present elements of r in (section, row) order.
func All[T any](r Reader[T]) iter.Seq2[index.Path, T] {
	return func(yield func(index.Path, T) bool) {
		for s := range r.SectionCount() {
			for row, v := range lazy.All(r.Section(s)) {
				if !yield(index.P(s, row), v) {
					return
				}
			}
		}
	}
}
