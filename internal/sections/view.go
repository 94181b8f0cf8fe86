package sections

import (
	"fmt"

	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/lazy"
)

// View is an uncached two-level sequence: every access runs the generator.
type View[T any] struct {
	gen Generator[T]
}

// NewView wraps gen without memoization.
func NewView[T any](gen Generator[T]) *View[T] {
	return &View[T]{gen: gen}
}

func (v *View[T]) SectionCount() int {
	return v.gen.Sections()
}

func (v *View[T]) RowCount(section int) int {
	return v.Section(section).Count()
}

func (v *View[T]) Get(p index.Path) (T, bool) {
	return v.Section(p.Section).Get(p.Row)
}

func (v *View[T]) Lookup(p index.Path) (T, bool, error) {
	if p.Section < 0 || p.Section >= v.SectionCount() {
		var zero T
		return zero, false, fmt.Errorf("section: %w", &lazy.BoundsError{Index: p.Section, Count: v.SectionCount()})
	}
	val, ok, err := v.Section(p.Section).Lookup(p.Row)
	if err != nil {
		return val, ok, fmt.Errorf("row in section %d: %w", p.Section, err)
	}
	return val, ok, nil
}

// Section returns an uncached row sequence for section.
func (v *View[T]) Section(section int) lazy.Seq[T] {
	if n := v.SectionCount(); section < 0 || section >= n {
		panic(&lazy.BoundsError{Index: section, Count: n})
	}
	return lazy.Generate(rowGenerator(v.gen, section))
}
