package lazy

import "iter"

// Generator produces the elements of a sequence on demand.
type Generator[T any] struct {
	// Count reports the current number of elements. It is called on every
	// access and must reflect the live state of the backing data.
	Count func() int

	// Generate returns the element at i, or ok == false when the element is
	// transiently unavailable.
	Generate func(i int) (value T, ok bool)
}

// Seq is the read interface shared by every sequence kind.
type Seq[T any] interface {
	// Count returns the live element count.
	Count() int

	// Get returns the element at i. It panics with a *BoundsError when i is
	// outside [0, Count()).
	Get(i int) (T, bool)

	// Lookup is Get with the bounds violation returned as an error.
	Lookup(i int) (T, bool, error)
}

// Diffable is a Seq whose materialized state can be remapped incrementally.
type Diffable[T any] interface {
	Seq[T]

	// ApplyDiff remaps materialized slots to reflect one batch of changes.
	ApplyDiff(d Diff, copyFn CopyFunc[T]) error

	// InvalidateAll drops every materialized slot.
	InvalidateAll()
}

var (
	_ Diffable[int] = (*Cache[int])(nil)
	_ Seq[int]      = (*Generated[int])(nil)
)

// Generated is an uncached sequence: each Get runs the generator again.
type Generated[T any] struct {
	gen Generator[T]
}

// Generate wraps gen in a sequence that never memoizes.
func Generate[T any](gen Generator[T]) *Generated[T] {
	return &Generated[T]{gen: gen}
}

// Count returns the live element count.
func (g *Generated[T]) Count() int {
	return g.gen.Count()
}

// Get runs the generator for index i.
func (g *Generated[T]) Get(i int) (T, bool) {
	if err := checkIndex(i, g.Count()); err != nil {
		panic(err)
	}
	return g.gen.Generate(i)
}

// Lookup is the checked variant of Get.
func (g *Generated[T]) Lookup(i int) (T, bool, error) {
	if err := checkIndex(i, g.Count()); err != nil {
		var zero T
		return zero, false, err
	}
	v, ok := g.gen.Generate(i)
	return v, ok, nil
}

// Map returns an uncached projection of src through f. Elements absent in
// src stay absent; f may also report absent.
func Map[T, U any](src Seq[T], f func(T) (U, bool)) *Generated[U] {
	return Generate(Generator[U]{
		Count: src.Count,
		Generate: func(i int) (U, bool) {
			v, ok := src.Get(i)
			if !ok {
				var zero U
				return zero, false
			}
			return f(v)
		},
	})
}

// All iterates over the present elements of s in index order.
func All[T any](s Seq[T]) iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		n := s.Count()
		for i := 0; i < n; i++ {
			v, ok := s.Get(i)
			if !ok {
				continue
			}
			if !yield(i, v) {
				return
			}
		}
	}
}
