package lazy

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backing is a mutable slice of items that counts generator calls.
type backing struct {
	items []*item
	calls int
}

type item struct {
	name string
}

func newBacking(names ...string) *backing {
	b := &backing{}
	for _, n := range names {
		b.items = append(b.items, &item{name: n})
	}
	return b
}

func (b *backing) gen() Generator[*item] {
	return Generator[*item]{
		Count: func() int { return len(b.items) },
		Generate: func(i int) (*item, bool) {
			b.calls++
			if i >= len(b.items) {
				return nil, false
			}
			return b.items[i], true
		},
	}
}

func (b *backing) insert(at int, name string) {
	b.items = slices.Insert(b.items, at, &item{name: name})
}

func (b *backing) remove(at int) {
	b.items = slices.Delete(b.items, at, at+1)
}

type countingObserver struct {
	hits, misses, absents, evicted int
}

func (o *countingObserver) Hit()          { o.hits++ }
func (o *countingObserver) Miss()         { o.misses++ }
func (o *countingObserver) Absent()       { o.absents++ }
func (o *countingObserver) Evicted(n int) { o.evicted += n }

func TestCache_GetMemoizes(t *testing.T) {
	// --- Arrange ---
	b := newBacking("a", "b", "c")
	obs := &countingObserver{}
	c := New(b.gen(), WithObserver(obs))

	// --- Act ---
	first, ok1 := c.Get(1)
	second, ok2 := c.Get(1)

	// --- Assert ---
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Same(t, first, second)
	assert.Equal(t, 1, b.calls)
	assert.Equal(t, 1, c.Materialized())
	assert.Equal(t, 1, obs.misses)
	assert.Equal(t, 1, obs.hits)
}

func TestCache_AbsentIsNotMemoized(t *testing.T) {
	// --- Arrange ---
	missing := true
	gen := Generator[string]{
		Count: func() int { return 1 },
		Generate: func(int) (string, bool) {
			if missing {
				return "", false
			}
			return "late", true
		},
	}
	c := New(gen)

	// --- Act ---
	_, okBefore := c.Get(0)
	missing = false
	v, okAfter := c.Get(0)

	// --- Assert ---
	assert.False(t, okBefore)
	require.True(t, okAfter)
	assert.Equal(t, "late", v)
}

func TestCache_Bounds(t *testing.T) {
	c := New(newBacking("a").gen())

	testCases := []struct {
		name  string
		index int
	}{
		{name: "negative", index: -1},
		{name: "equal to count", index: 1},
		{name: "past count", index: 7},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := c.Lookup(tc.index)
			require.ErrorIs(t, err, ErrOutOfRange)

			var bounds *BoundsError
			require.ErrorAs(t, err, &bounds)
			assert.Equal(t, tc.index, bounds.Index)
			assert.Equal(t, 1, bounds.Count)

			assert.Panics(t, func() { c.Get(tc.index) })
		})
	}
}

func TestCache_InvalidateAllRoundTrip(t *testing.T) {
	// --- Arrange ---
	b := newBacking("a", "b", "c")
	c := New(b.gen())
	for i := range 3 {
		c.Get(i)
	}
	b.items[1] = &item{name: "B"}

	// --- Act ---
	c.InvalidateAll()
	v, ok := c.Get(1)

	// --- Assert ---
	require.True(t, ok)
	assert.Equal(t, "B", v.name)
	assert.Equal(t, 1, c.Materialized())
}

func TestCache_ApplyDiff_InsertShiftsSurvivors(t *testing.T) {
	// --- Arrange ---
	b := newBacking("a", "b", "c")
	c := New(b.gen())
	a0, _ := c.Get(0)
	c2, _ := c.Get(2)
	b.insert(1, "x")

	// --- Act ---
	err := c.ApplyDiff(Diff{Insertions: []int{1}}, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3}, c.Slots())
	got0, _ := c.Get(0)
	got3, _ := c.Get(3)
	assert.Same(t, a0, got0)
	assert.Same(t, c2, got3)
}

func TestCache_ApplyDiff_UpdateEvicts(t *testing.T) {
	// --- Arrange ---
	b := newBacking("a", "b")
	c := New(b.gen())
	c.Get(0)
	c.Get(1)
	b.items[0] = &item{name: "A"}

	// --- Act ---
	err := c.ApplyDiff(Diff{Updates: []int{0}}, nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []int{1}, c.Slots())
	v, _ := c.Get(0)
	assert.Equal(t, "A", v.name)
}

func TestCache_ApplyDiff_CopyFunc(t *testing.T) {
	// --- Arrange ---
	b := newBacking("a", "b", "c")
	c := New(b.gen())
	for i := range 3 {
		c.Get(i)
	}
	b.remove(0)
	var calls [][2]int

	// --- Act ---
	err := c.ApplyDiff(Diff{Deletions: []int{0}}, func(from, to int, v *item) (*item, bool) {
		calls = append(calls, [2]int{from, to})
		if v.name == "c" {
			return nil, false
		}
		return v, true
	})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 0}, {2, 1}}, calls)
	assert.Equal(t, []int{0}, c.Slots())
}

func TestCache_ApplyDiff_Rejects(t *testing.T) {
	testCases := []struct {
		name string
		// pre is the count before the batch, post after it.
		pre, post int
		diff      Diff
		kind      DiffKind
	}{
		{name: "duplicate deletion", pre: 3, post: 1, diff: Diff{Deletions: []int{1, 1}}, kind: DiffDuplicate},
		{name: "deletion at count", pre: 3, post: 2, diff: Diff{Deletions: []int{3}}, kind: DiffRange},
		{name: "negative update", pre: 3, post: 3, diff: Diff{Updates: []int{-1}}, kind: DiffRange},
		{name: "insertion past post count", pre: 3, post: 4, diff: Diff{Insertions: []int{4}}, kind: DiffRange},
		{name: "update and delete", pre: 3, post: 2, diff: Diff{Deletions: []int{1}, Updates: []int{1}}, kind: DiffConflict},
		{name: "count mismatch", pre: 3, post: 5, diff: Diff{Insertions: []int{0}}, kind: DiffCount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			names := make([]string, tc.pre)
			for i := range names {
				names[i] = fmt.Sprint(i)
			}
			b := newBacking(names...)
			c := New(b.gen())
			for i := range tc.pre {
				c.Get(i)
			}
			before := c.Slots()
			for len(b.items) < tc.post {
				b.insert(len(b.items), "new")
			}
			b.items = b.items[:tc.post]

			// --- Act ---
			err := c.ApplyDiff(tc.diff, nil)

			// --- Assert ---
			require.ErrorIs(t, err, ErrMalformedDiff)
			var diffErr *DiffError
			require.ErrorAs(t, err, &diffErr)
			assert.Equal(t, tc.kind, diffErr.Kind)
			assert.Equal(t, before, c.Slots(), "a rejected diff must not touch the slots")
		})
	}
}

func TestCache_Rebind(t *testing.T) {
	// --- Arrange ---
	b := newBacking("a", "b")
	c := New(b.gen())
	a, _ := c.Get(0)
	other := newBacking("x", "y")

	// --- Act ---
	rebound := c.Rebind(other.gen())

	// --- Assert ---
	got0, _ := rebound.Get(0)
	got1, _ := rebound.Get(1)
	assert.Same(t, a, got0, "memoized slots carry over")
	assert.Equal(t, "y", got1.name, "misses use the new generator")
	assert.Equal(t, 1, c.Materialized(), "the original cache is untouched")
}

// TestCache_ApplyDiff_MatchesFreshCache replays random batches and checks that
// every materialized slot holds exactly what a fresh cache would produce.
func TestCache_ApplyDiff_MatchesFreshCache(t *testing.T) {
	for seed := range uint64(50) {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed*31+7))
			b := newBacking()
			for i := range rng.IntN(12) {
				b.insert(i, fmt.Sprintf("s%d", i))
			}
			c := New(b.gen())

			for round := range 20 {
				for range rng.IntN(len(b.items) + 1) {
					c.Get(rng.IntN(len(b.items)))
				}
				diff := randomBatch(rng, b, round)

				require.NoError(t, c.ApplyDiff(diff, nil))

				for _, i := range c.Slots() {
					v, _ := c.Peek(i)
					require.Same(t, b.items[i], v, "slot %d after round %d", i, round)
				}
			}
		})
	}
}

// randomBatch mutates b and returns the diff describing the mutation.
func randomBatch(rng *rand.Rand, b *backing, round int) Diff {
	type tagged struct {
		it       *item
		inserted bool
	}
	var d Diff
	var next []tagged
	for i, it := range b.items {
		switch rng.IntN(5) {
		case 0:
			d.Deletions = append(d.Deletions, i)
		case 1:
			d.Updates = append(d.Updates, i)
			next = append(next, tagged{it: &item{name: it.name + "'"}})
		default:
			next = append(next, tagged{it: it})
		}
	}
	for k := range rng.IntN(4) {
		at := rng.IntN(len(next) + 1)
		next = slices.Insert(next, at, tagged{it: &item{name: fmt.Sprintf("r%d-%d", round, k)}, inserted: true})
	}
	b.items = b.items[:0]
	for i, tg := range next {
		if tg.inserted {
			d.Insertions = append(d.Insertions, i)
		}
		b.items = append(b.items, tg.it)
	}
	// Shuffle to show list order does not matter.
	rng.Shuffle(len(d.Insertions), func(i, j int) { d.Insertions[i], d.Insertions[j] = d.Insertions[j], d.Insertions[i] })
	return d
}
