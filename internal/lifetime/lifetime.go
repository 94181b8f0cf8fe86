// Package lifetime implements explicit ownership for sequence pipelines.
//
// A Handle owns one upstream value and carries a reference count. A Chain is
// the ordered list of handles a sequence keeps alive: a derived sequence
// holds its upstream's chain plus a handle to the upstream itself, so the
// root stays reachable for exactly as long as some derived sequence does.
// When the last reference to a Handle is released its release function runs.
package lifetime

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is a reference-counted owner of a value.
type Handle struct {
	id      uuid.UUID
	value   atomic.Value
	refs    atomic.Int32
	release func()
}

type boxed struct{ v any }

// Own returns a Handle with one reference to value. release, if not nil, runs
// once when the last reference is dropped.
func Own(value any, release func()) *Handle {
	h := &Handle{id: uuid.New(), release: release}
	h.value.Store(boxed{value})
	h.refs.Store(1)
	return h
}

// ID returns the unique identifier of the handle.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Value returns the owned value, or nil once the handle has been released.
func (h *Handle) Value() any {
	return h.value.Load().(boxed).v
}

// Refs returns the current reference count.
func (h *Handle) Refs() int32 {
	return h.refs.Load()
}

// Retain adds a reference and returns h.
func (h *Handle) Retain() *Handle {
	if h.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("lifetime: retain of released handle %s", h.id))
	}
	return h
}

// Release drops one reference. It reports whether this was the last one.
func (h *Handle) Release() bool {
	n := h.refs.Add(-1)
	switch {
	case n > 0:
		return false
	case n < 0:
		panic(fmt.Sprintf("lifetime: handle %s released more times than retained", h.id))
	}
	h.value.Store(boxed{})
	if h.release != nil {
		h.release()
	}
	return true
}

// Chain is an ordered set of handles kept alive together.
type Chain struct {
	handles []*Handle
	once    sync.Once
}

// NewChain takes over the references held by hs.
func NewChain(hs ...*Handle) *Chain {
	return &Chain{handles: hs}
}

// Extend returns a new chain that retains every handle of c and takes over
// the reference held by h. c is unaffected.
func (c *Chain) Extend(h *Handle) *Chain {
	handles := make([]*Handle, 0, len(c.handles)+1)
	for _, existing := range c.handles {
		handles = append(handles, existing.Retain())
	}
	return &Chain{handles: append(handles, h)}
}

// Len returns the number of handles in the chain.
func (c *Chain) Len() int {
	return len(c.handles)
}

// Handles returns a copy of the chain's handles, root first.
func (c *Chain) Handles() []*Handle {
	return slices.Clone(c.handles)
}

// Release drops the chain's reference to every handle, newest first. Only
// the first call has an effect.
func (c *Chain) Release() {
	c.once.Do(func() {
		for _, h := range slices.Backward(c.handles) {
			h.Release()
		}
	})
}
