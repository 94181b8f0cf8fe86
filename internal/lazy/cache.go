package lazy

import (
	"maps"
	"slices"
)

// Observer receives cache access events. Implementations must be cheap; they
// run inline with every access.
type Observer interface {
	Hit()
	Miss()
	Absent()
	Evicted(n int)
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	observer Observer
}

// WithObserver reports cache events to o.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		opts.observer = o
	}
}

// CopyFunc is consulted for every surviving element whose index changes
// during ApplyDiff. It returns the value to store at the new index, or
// ok == false to leave that slot empty.
type CopyFunc[T any] func(from, to int, v T) (T, bool)

// Cache is a memoizing sequence with incremental diff support.
//
// Cache is not safe for concurrent use. All access is expected to happen on
// the goroutine that owns the sequence.
type Cache[T any] struct {
	gen   Generator[T]
	slots map[int]T
	// known is the element count the slots were last synchronized with.
	known int
	opts  options
}

// New creates an empty cache over gen.
func New[T any](gen Generator[T], opts ...Option) *Cache[T] {
	c := &Cache[T]{gen: gen, slots: make(map[int]T)}
	for _, opt := range opts {
		opt(&c.opts)
	}
	c.known = gen.Count()
	return c
}

// Count returns the live element count from the generator.
func (c *Cache[T]) Count() int {
	return c.gen.Count()
}

// Get returns the element at i, generating and memoizing it on a miss.
// It panics with a *BoundsError when i is outside [0, Count()).
func (c *Cache[T]) Get(i int) (T, bool) {
	if err := checkIndex(i, c.Count()); err != nil {
		panic(err)
	}
	return c.get(i)
}

// Lookup is the checked variant of Get.
func (c *Cache[T]) Lookup(i int) (T, bool, error) {
	if err := checkIndex(i, c.Count()); err != nil {
		var zero T
		return zero, false, err
	}
	v, ok := c.get(i)
	return v, ok, nil
}

func (c *Cache[T]) get(i int) (T, bool) {
	if v, ok := c.slots[i]; ok {
		c.hit()
		return v, true
	}
	v, ok := c.gen.Generate(i)
	if !ok {
		c.absent()
		return v, false
	}
	c.miss()
	c.slots[i] = v
	return v, true
}

// Peek returns the memoized element at i without running the generator.
func (c *Cache[T]) Peek(i int) (T, bool) {
	v, ok := c.slots[i]
	return v, ok
}

// Slots returns the materialized indices in ascending order.
func (c *Cache[T]) Slots() []int {
	return slices.Sorted(maps.Keys(c.slots))
}

// Materialized returns the number of memoized elements.
func (c *Cache[T]) Materialized() int {
	return len(c.slots)
}

// Synced returns the element count the memoized slots were last
// synchronized with. A diff is validated against it as the pre-batch count.
func (c *Cache[T]) Synced() int {
	return c.known
}

// InvalidateAll drops every memoized element and resynchronizes with the
// generator's current count.
func (c *Cache[T]) InvalidateAll() {
	n := len(c.slots)
	clear(c.slots)
	c.known = c.Count()
	c.evicted(n)
}

// Rebind returns a cache over gen holding the same memoized elements.
// The receiver is left untouched.
func (c *Cache[T]) Rebind(gen Generator[T]) *Cache[T] {
	return &Cache[T]{
		gen:   gen,
		slots: maps.Clone(c.slots),
		known: c.known,
		opts:  c.opts,
	}
}

// ApplyDiff remaps the memoized elements to reflect d. On error the cache is
// unchanged.
func (c *Cache[T]) ApplyDiff(d Diff, copyFn CopyFunc[T]) error {
	p, err := c.Prepare(d, copyFn)
	if err != nil {
		return err
	}
	p.Commit()
	return nil
}

// Prepared is a validated, not yet visible ApplyDiff.
type Prepared[T any] struct {
	cache   *Cache[T]
	slots   map[int]T
	known   int
	evicted int
	done    bool
}

// Prepare validates d against the cache and computes the remapped slots
// without publishing them. copyFn is invoked during Prepare.
func (c *Cache[T]) Prepare(d Diff, copyFn CopyFunc[T]) (*Prepared[T], error) {
	post := c.Count()
	if err := d.Validate(c.known, post); err != nil {
		return nil, err
	}
	p := &Prepared[T]{cache: c, known: post}
	if d.IsEmpty() {
		p.slots = c.slots
		return p, nil
	}

	updated := make(map[int]struct{}, len(d.Updates))
	for _, i := range d.Updates {
		updated[i] = struct{}{}
	}
	remap := NewRemap(d)
	p.slots = make(map[int]T, len(c.slots))
	for _, old := range c.Slots() {
		if _, ok := updated[old]; ok {
			p.evicted++
			continue
		}
		to, ok := remap.Index(old)
		if !ok {
			p.evicted++
			continue
		}
		v := c.slots[old]
		if to != old && copyFn != nil {
			if v, ok = copyFn(old, to, v); !ok {
				p.evicted++
				continue
			}
		}
		p.slots[to] = v
	}
	return p, nil
}

// Commit publishes the prepared state. Calling it more than once is a no-op.
func (p *Prepared[T]) Commit() {
	if p.done {
		return
	}
	p.done = true
	p.cache.slots = p.slots
	p.cache.known = p.known
	p.cache.evicted(p.evicted)
}

func (c *Cache[T]) hit() {
	if c.opts.observer != nil {
		c.opts.observer.Hit()
	}
}

func (c *Cache[T]) miss() {
	if c.opts.observer != nil {
		c.opts.observer.Miss()
	}
}

func (c *Cache[T]) absent() {
	if c.opts.observer != nil {
		c.opts.observer.Absent()
	}
}

func (c *Cache[T]) evicted(n int) {
	if n > 0 && c.opts.observer != nil {
		c.opts.observer.Evicted(n)
	}
}
