package observed

import (
	"weak"

	"github.com/google/uuid"

	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/lifetime"
	"github.com/specialistvlad/observedseq/internal/sections"
	"github.com/specialistvlad/observedseq/internal/txn"
)

// Map derives a sequence whose elements are f applied to src's elements.
// When cached is true results are memoized and identities stay stable across
// transactions that do not touch them.
func Map[T, U any](src *Sequence[T], f func(T) U, cached bool, opts ...Option) *Sequence[U] {
	return MapMaybe(src, func(v T) (U, bool) { return f(v), true }, cached, opts...)
}

// MapMaybe is Map for transforms that may report an element as absent.
// Absent elements of src stay absent without calling f.
func MapMaybe[T, U any](src *Sequence[T], f func(T) (U, bool), cached bool, opts ...Option) *Sequence[U] {
	data := src.data
	gen := sections.Generator[U]{
		Sections: data.SectionCount,
		Rows:     data.RowCount,
		Generate: func(section, row int) (U, bool) {
			v, ok := data.Get(index.P(section, row))
			if !ok {
				var zero U
				return zero, false
			}
			return f(v)
		},
	}

	o := collect(opts)
	o.uncached = !cached
	derived := build(gen, src.chain.Extend(lifetime.Own(src, nil)), o)
	src.listeners = append(src.listeners, forwarder(derived.id, weak.Make(derived)))
	return derived
}

// forwarder returns a listener that reaches the derived sequence through a
// weak pointer. It goes inert once the sequence is collected or released.
func forwarder[U any](id uuid.UUID, ptr weak.Pointer[Sequence[U]]) listener {
	target := func() *Sequence[U] {
		d := ptr.Value()
		if d == nil || d.released {
			return nil
		}
		return d
	}
	return listener{
		id: id,
		sink: txn.SinkFuncs{
			ApplyFunc: func(tx txn.Transaction) error {
				if d := target(); d != nil {
					return d.Apply(tx)
				}
				return nil
			},
			ReloadFunc: func() {
				if d := target(); d != nil {
					d.Reload()
				}
			},
		},
		alive: func() bool { return target() != nil },
	}
}

// MapSections derives one value per section of src, for example a header
// computed from the section's rows. The result is not memoized and reflects
// src's current state on every access.
func MapSections[T, U any](src *Sequence[T], f func(section int, rows lazy.Seq[T]) (U, bool)) *lazy.Generated[U] {
	data := src.data
	return lazy.Generate(lazy.Generator[U]{
		Count: data.SectionCount,
		Generate: func(section int) (U, bool) {
			return f(section, data.Section(section))
		},
	})
}
