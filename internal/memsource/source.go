// Package memsource is an in-memory data source for observed sequences.
//
// A Source holds keyed items, orders them with a comparison function and
// groups consecutive items into sections. Every mutation is diffed against
// the previous state and delivered to the observing root sequence as one
// batch.
package memsource

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"weak"

	"github.com/specialistvlad/observedseq/internal/lifetime"
	"github.com/specialistvlad/observedseq/internal/observed"
	"github.com/specialistvlad/observedseq/internal/sections"
	"github.com/specialistvlad/observedseq/internal/snapshot"
)

// ErrNotFound is returned when deleting a key that does not exist.
var ErrNotFound = errors.New("item not found")

// Config describes how items are keyed, ordered and sectioned.
type Config[T any] struct {
	Key     func(T) string
	Section func(T) string
	// Compare must order items by section first.
	Compare func(a, b T) int
	// Equal reports whether two versions of an item render the same.
	Equal func(a, b T) bool
}

// Source is an in-memory data source. It is not safe for concurrent use.
type Source[T any] struct {
	cfg   Config[T]
	items map[string]T
	snap  snapshot.Snapshot[T]
	root  weak.Pointer[observed.Sequence[T]]
}

// New creates a Source holding items.
func New[T any](cfg Config[T], items ...T) *Source[T] {
	s := &Source[T]{cfg: cfg, items: make(map[string]T, len(items))}
	for _, it := range items {
		s.items[cfg.Key(it)] = it
	}
	s.snap = s.build(s.items)
	return s
}

// Generator reads the current state of the source.
func (s *Source[T]) Generator() sections.Generator[T] {
	return sections.Generator[T]{
		Sections: func() int { return s.snap.SectionCount() },
		Rows:     func(section int) int { return s.snap.RowCount(section) },
		Generate: func(section, row int) (T, bool) {
			r, ok := s.snap.At(section, row)
			return r.Value, ok
		},
	}
}

// Observe returns the root sequence following the source. The root keeps the
// source alive; the source refers to the root weakly. Later calls return the
// same root while it is reachable.
func (s *Source[T]) Observe(opts ...observed.Option) *observed.Sequence[T] {
	if root := s.root.Value(); root != nil && !root.Released() {
		return root
	}
	root := observed.New(s.Generator(), lifetime.NewChain(lifetime.Own(s, nil)), opts...)
	s.root = weak.Make(root)
	return root
}

// Snapshot returns the current ordered state.
func (s *Source[T]) Snapshot() snapshot.Snapshot[T] {
	return s.snap
}

// Len returns the number of items.
func (s *Source[T]) Len() int {
	return len(s.items)
}

// Editor stages changes inside Mutate.
type Editor[T any] struct {
	key   func(T) string
	items map[string]T
}

// Put inserts or replaces an item.
func (e *Editor[T]) Put(item T) {
	e.items[e.key(item)] = item
}

// Delete removes the item with key.
func (e *Editor[T]) Delete(key string) error {
	if _, ok := e.items[key]; !ok {
		return fmt.Errorf("delete %q: %w", key, ErrNotFound)
	}
	delete(e.items, key)
	return nil
}

// Get returns the staged item with key.
func (e *Editor[T]) Get(key string) (T, bool) {
	v, ok := e.items[key]
	return v, ok
}

// Mutate stages changes through fn and publishes them as one batch. When fn
// returns an error nothing is changed.
func (s *Source[T]) Mutate(fn func(e *Editor[T]) error) error {
	staged := maps.Clone(s.items)
	if err := fn(&Editor[T]{key: s.cfg.Key, items: staged}); err != nil {
		return err
	}
	next := s.build(staged)
	swap := func() {
		s.items = staged
		s.snap = next
	}

	root := s.root.Value()
	if root == nil || root.Released() {
		swap()
		return nil
	}
	ops, ok := snapshot.Diff(s.snap, next, s.cfg.Equal)
	if !ok {
		swap()
		root.FullReload()
		return nil
	}
	return snapshot.Publish(root, ops, swap)
}

// Put inserts or replaces items in one batch.
func (s *Source[T]) Put(items ...T) error {
	return s.Mutate(func(e *Editor[T]) error {
		for _, it := range items {
			e.Put(it)
		}
		return nil
	})
}

// Delete removes items by key in one batch.
func (s *Source[T]) Delete(keys ...string) error {
	return s.Mutate(func(e *Editor[T]) error {
		for _, k := range keys {
			if err := e.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetCompare re-sorts the source. Observers receive a full reload.
func (s *Source[T]) SetCompare(compare func(a, b T) int) {
	s.cfg.Compare = compare
	s.snap = s.build(s.items)
	if root := s.root.Value(); root != nil && !root.Released() {
		root.FullReload()
	}
}

func (s *Source[T]) build(items map[string]T) snapshot.Snapshot[T] {
	keys := slices.Collect(maps.Keys(items))
	slices.SortFunc(keys, func(a, b string) int {
		if c := s.cfg.Compare(items[a], items[b]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	rows := make([]snapshot.Row[T], len(keys))
	for i, k := range keys {
		rows[i] = snapshot.Row[T]{Key: k, Value: items[k]}
	}
	return snapshot.Group(rows, s.cfg.Section)
}
