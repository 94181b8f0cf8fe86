package observed

import (
	"errors"
	"fmt"
	"runtime"
	"slices"

	"github.com/google/uuid"

	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/lifetime"
	"github.com/specialistvlad/observedseq/internal/sections"
	"github.com/specialistvlad/observedseq/internal/txn"
)

// Option configures a Sequence.
type Option func(*options)

type options struct {
	uncached  bool
	cacheOpts []lazy.Option
}

// WithCacheOptions passes opts to every row cache of the sequence.
func WithCacheOptions(opts ...lazy.Option) Option {
	return func(o *options) {
		o.cacheOpts = append(o.cacheOpts, opts...)
	}
}

// Uncached makes New build a sequence that never memoizes.
func Uncached() Option {
	return func(o *options) {
		o.uncached = true
	}
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type listener struct {
	id   uuid.UUID
	sink txn.Sink
	// alive is nil for subscriptions, which stay until Unsubscribe.
	alive func() bool
}

// Sequence is a two-level sequence kept in sync with a data source.
//
// Sequence is not safe for concurrent use. The data source, every reader and
// every listener must run on the same goroutine.
type Sequence[T any] struct {
	*txn.Batcher

	id        uuid.UUID
	chain     *lifetime.Chain
	data      sections.Reader[T]
	applier   sections.Applier
	listeners []listener
	cleanup   runtime.Cleanup
	released  bool
}

var (
	_ txn.Receiver         = (*Sequence[int])(nil)
	_ txn.Sink             = (*Sequence[int])(nil)
	_ sections.Reader[int] = (*Sequence[int])(nil)
)

// New creates a root sequence over gen. chain holds whatever the root needs
// to keep alive, typically the data source itself; it may be nil.
func New[T any](gen sections.Generator[T], chain *lifetime.Chain, opts ...Option) *Sequence[T] {
	return build(gen, chain, collect(opts))
}

func build[T any](gen sections.Generator[T], chain *lifetime.Chain, o options) *Sequence[T] {
	if chain == nil {
		chain = lifetime.NewChain()
	}
	s := &Sequence[T]{id: uuid.New(), chain: chain}
	if o.uncached {
		s.data = sections.NewView(gen)
	} else {
		seq := sections.New(gen, o.cacheOpts...)
		s.data, s.applier = seq, seq
	}
	s.Batcher = txn.NewBatcher(s)
	s.cleanup = runtime.AddCleanup(s, func(c *lifetime.Chain) { c.Release() }, chain)
	return s
}

// ID returns the unique identifier of the sequence.
func (s *Sequence[T]) ID() uuid.UUID {
	return s.id
}

// Cached reports whether the sequence memoizes its elements.
func (s *Sequence[T]) Cached() bool {
	return s.applier != nil
}

// Chain returns the ownership chain of the sequence.
func (s *Sequence[T]) Chain() *lifetime.Chain {
	return s.chain
}

// Data returns the underlying read interface.
func (s *Sequence[T]) Data() sections.Reader[T] {
	return s.data
}

func (s *Sequence[T]) SectionCount() int { return s.data.SectionCount() }
func (s *Sequence[T]) RowCount(section int) int { return s.data.RowCount(section) }
func (s *Sequence[T]) Get(p index.Path) (T, bool) { return s.data.Get(p) }
func (s *Sequence[T]) Lookup(p index.Path) (T, bool, error) { return s.data.Lookup(p) }
func (s *Sequence[T]) Section(section int) lazy.Seq[T] { return s.data.Section(section) }

// Apply applies tx to the sequence's own cache and forwards it to every
// listener. A listener that fails to apply tx is reloaded and its error is
// returned joined with the others.
func (s *Sequence[T]) Apply(tx txn.Transaction) error {
	if s.applier != nil {
		if err := s.applier.Apply(tx); err != nil {
			return fmt.Errorf("apply transaction: %w", err)
		}
	}
	var errs []error
	for _, l := range s.live() {
		if err := l.sink.Apply(tx); err != nil {
			l.sink.Reload()
			errs = append(errs, fmt.Errorf("listener %s: %w", l.id, err))
		}
	}
	return errors.Join(errs...)
}

// Reload drops every memoized element and forwards the reload.
func (s *Sequence[T]) Reload() {
	if s.applier != nil {
		s.applier.InvalidateAll()
	}
	for _, l := range s.live() {
		l.sink.Reload()
	}
}

// live prunes inert forwarders and returns a snapshot of the rest, so
// listeners may unsubscribe while being notified.
func (s *Sequence[T]) live() []listener {
	kept := s.listeners[:0]
	for _, l := range s.listeners {
		if l.alive == nil || l.alive() {
			kept = append(kept, l)
		}
	}
	clear(s.listeners[len(kept):])
	s.listeners = kept
	return slices.Clone(kept)
}

// Listeners returns the number of registered listeners, including forwarders
// that have gone inert but were not pruned yet.
func (s *Sequence[T]) Listeners() int {
	return len(s.listeners)
}

// Subscription is a listener registration.
type Subscription struct {
	id     uuid.UUID
	cancel func()
}

// ID returns the registration identifier.
func (sub *Subscription) ID() uuid.UUID {
	return sub.id
}

// Unsubscribe removes the listener. Calling it more than once is a no-op.
func (sub *Subscription) Unsubscribe() {
	if sub.cancel != nil {
		sub.cancel()
		sub.cancel = nil
	}
}

// Subscribe registers sink to receive every transaction and reload processed
// by s, after s has applied it. The sink is held strongly until Unsubscribe.
func (s *Sequence[T]) Subscribe(sink txn.Sink) *Subscription {
	id := uuid.New()
	s.listeners = append(s.listeners, listener{id: id, sink: sink})
	return &Subscription{id: id, cancel: func() { s.remove(id) }}
}

// SubscribeOffset is Subscribe for a consumer that shows s below other
// content: every forwarded transaction is shifted by the given number of
// sections and rows.
func (s *Sequence[T]) SubscribeOffset(sink txn.Sink, sections, rows int) *Subscription {
	return s.Subscribe(txn.SinkFuncs{
		ApplyFunc: func(tx txn.Transaction) error {
			return sink.Apply(tx.Offset(sections, rows))
		},
		ReloadFunc: sink.Reload,
	})
}

func (s *Sequence[T]) remove(id uuid.UUID) {
	s.listeners = slices.DeleteFunc(s.listeners, func(l listener) bool { return l.id == id })
}

// Release detaches s from its upstream and drops its ownership chain.
// Sequences derived from s stop receiving changes. Calling it more than once
// is a no-op.
func (s *Sequence[T]) Release() {
	if s.released {
		return
	}
	s.released = true
	s.cleanup.Stop()
	s.chain.Release()
}

// Released reports whether Release was called.
func (s *Sequence[T]) Released() bool {
	return s.released
}
