package snapshot_test

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/lifetime"
	"github.com/specialistvlad/observedseq/internal/observed"
	"github.com/specialistvlad/observedseq/internal/sections"
	"github.com/specialistvlad/observedseq/internal/snapshot"
	"github.com/specialistvlad/observedseq/internal/txn"
)

// snap builds a snapshot from "section:key=value" style sections.
func snap(sections map[string][]string, order ...string) snapshot.Snapshot[string] {
	var s snapshot.Snapshot[string]
	for _, key := range order {
		sec := snapshot.Section[string]{Key: key}
		for _, kv := range sections[key] {
			k, v, _ := cutValue(kv)
			sec.Rows = append(sec.Rows, snapshot.Row[string]{Key: k, Value: v})
		}
		s.Sections = append(s.Sections, sec)
	}
	return s
}

func cutValue(kv string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(kv, "=")
	if !ok {
		value = key
	}
	return key, value, ok
}

func equalStrings(a, b string) bool { return a == b }

func TestDiff(t *testing.T) {
	testCases := []struct {
		name string
		old  snapshot.Snapshot[string]
		next snapshot.Snapshot[string]
		want []txn.Op
	}{
		{
			name: "no changes",
			old:  snap(map[string][]string{"a": {"1", "2"}}, "a"),
			next: snap(map[string][]string{"a": {"1", "2"}}, "a"),
			want: nil,
		},
		{
			name: "insert and delete rows",
			old:  snap(map[string][]string{"a": {"1", "2", "3"}}, "a"),
			next: snap(map[string][]string{"a": {"0", "1", "3"}}, "a"),
			want: []txn.Op{txn.Delete(index.P(0, 1)), txn.Insert(index.P(0, 0))},
		},
		{
			name: "content change in place is an update",
			old:  snap(map[string][]string{"a": {"1=x", "2=y"}}, "a"),
			next: snap(map[string][]string{"a": {"1=x", "2=z"}}, "a"),
			want: []txn.Op{txn.Update(index.P(0, 1))},
		},
		{
			name: "reordered row is a delete and an insert",
			old:  snap(map[string][]string{"a": {"1", "2", "3"}}, "a"),
			next: snap(map[string][]string{"a": {"2", "3", "1"}}, "a"),
			want: []txn.Op{txn.Delete(index.P(0, 0)), txn.Insert(index.P(0, 2))},
		},
		{
			name: "moved row keeping its numeric index",
			old:  snap(map[string][]string{"a": {"a", "b", "c", "d", "e"}}, "a"),
			next: snap(map[string][]string{"a": {"a", "n", "b", "d", "c"}}, "a"),
			want: []txn.Op{
				txn.Delete(index.P(0, 3)),
				txn.Delete(index.P(0, 4)),
				txn.Insert(index.P(0, 1)),
				txn.Insert(index.P(0, 3)),
			},
		},
		{
			name: "row changing section is a delete and an insert",
			old:  snap(map[string][]string{"a": {"1", "2"}, "b": {"3"}}, "a", "b"),
			next: snap(map[string][]string{"a": {"1"}, "b": {"2", "3"}}, "a", "b"),
			want: []txn.Op{txn.Delete(index.P(0, 1)), txn.Insert(index.P(1, 0))},
		},
		{
			name: "section insert and delete skip their rows",
			old:  snap(map[string][]string{"a": {"1"}, "b": {"2"}}, "a", "b"),
			next: snap(map[string][]string{"b": {"2"}, "c": {"1", "3"}}, "b", "c"),
			want: []txn.Op{txn.DeleteSection(0), txn.InsertSection(1)},
		},
		{
			name: "row leaving a surviving section for a new one",
			old:  snap(map[string][]string{"a": {"1", "2"}}, "a"),
			next: snap(map[string][]string{"a": {"1"}, "b": {"2"}}, "a", "b"),
			want: []txn.Op{txn.Delete(index.P(0, 1)), txn.InsertSection(1)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := snapshot.Diff(tc.old, tc.next, equalStrings)

			require.True(t, ok)
			if diff := cmp.Diff(tc.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("ops mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDiff_NotExpressible(t *testing.T) {
	testCases := []struct {
		name string
		old  snapshot.Snapshot[string]
		next snapshot.Snapshot[string]
	}{
		{
			name: "sections swapped",
			old:  snap(map[string][]string{"a": {"1"}, "b": {"2"}}, "a", "b"),
			next: snap(map[string][]string{"a": {"1"}, "b": {"2"}}, "b", "a"),
		},
		{
			name: "duplicate row key",
			old:  snap(map[string][]string{"a": {"1"}}, "a"),
			next: snap(map[string][]string{"a": {"1", "1"}}, "a"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := snapshot.Diff(tc.old, tc.next, equalStrings)
			assert.False(t, ok)
		})
	}
}

func TestGroup(t *testing.T) {
	rows := []snapshot.Row[string]{
		{Key: "1", Value: "a"}, {Key: "2", Value: "a"}, {Key: "3", Value: "b"},
	}

	got := snapshot.Group(rows, func(v string) string { return v })

	require.Equal(t, 2, got.SectionCount())
	assert.Equal(t, 2, got.RowCount(0))
	assert.Equal(t, 3, got.Len())
	p, ok := got.Find("3")
	require.True(t, ok)
	assert.Equal(t, index.P(1, 0), p)
	_, ok = got.At(2, 0)
	assert.False(t, ok)
}

func TestDiff_PublishKeepsMaterializedRowsFresh(t *testing.T) {
	// --- Arrange ---
	current := snap(map[string][]string{"a": {"a", "b", "c", "d", "e"}}, "a")
	next := snap(map[string][]string{"a": {"a", "n", "b", "d", "c"}}, "a")
	root := observed.New(sections.Generator[string]{
		Sections: func() int { return current.SectionCount() },
		Rows:     func(s int) int { return current.RowCount(s) },
		Generate: func(s, r int) (string, bool) {
			row, ok := current.At(s, r)
			return row.Value, ok
		},
	}, lifetime.NewChain())
	derived := observed.Map(root, func(v string) string { return v }, true)
	for r := range derived.RowCount(0) {
		derived.Get(index.P(0, r))
	}

	// --- Act ---
	ops, ok := snapshot.Diff(current, next, equalStrings)
	require.True(t, ok)
	err := snapshot.Publish(root, ops, func() { current = next })

	// --- Assert ---
	require.NoError(t, err)
	var got []string
	for _, v := range sections.All[string](derived) {
		got = append(got, v)
	}
	assert.Equal(t, []string{"a", "n", "b", "d", "c"}, got)
}

// TestDiff_DrivesObservedSequence feeds random snapshot changes through an
// observed sequence and checks the cache against the new snapshot.
func TestDiff_DrivesObservedSequence(t *testing.T) {
	for seed := range uint64(60) {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, 3))
			current := randomSnapshot(rng, nil, 0)
			root := observed.New(sections.Generator[string]{
				Sections: func() int { return current.SectionCount() },
				Rows:     func(s int) int { return current.RowCount(s) },
				Generate: func(s, r int) (string, bool) {
					row, ok := current.At(s, r)
					return row.Value, ok
				},
			}, lifetime.NewChain())
			derived := observed.Map(root, func(v string) *string { return &v }, true)

			for round := 1; round <= 10; round++ {
				for s := range derived.SectionCount() {
					for r := range derived.RowCount(s) {
						if rng.IntN(3) > 0 {
							derived.Get(index.P(s, r))
						}
					}
				}
				next := randomSnapshot(rng, &current, round)

				ops, ok := snapshot.Diff(current, next, equalStrings)
				require.True(t, ok)
				require.NoError(t, root.Begin())
				for _, op := range ops {
					require.NoError(t, root.Push(op))
				}
				current = next
				require.NoError(t, root.Commit(), "round %d ops %v", round, ops)

				for s := range next.SectionCount() {
					for r := range next.RowCount(s) {
						v, ok := derived.Get(index.P(s, r))
						require.True(t, ok)
						row, _ := next.At(s, r)
						require.Equal(t, row.Value, *v, "round %d at %d.%d", round, s, r)
					}
				}
			}
		})
	}
}

// randomSnapshot derives a new snapshot from prev (or a fresh one) whose
// section keys stay in ascending order.
func randomSnapshot(rng *rand.Rand, prev *snapshot.Snapshot[string], round int) snapshot.Snapshot[string] {
	type entry struct{ key, section, value string }
	var entries []entry
	if prev != nil {
		for _, sec := range prev.Sections {
			for _, r := range sec.Rows {
				e := entry{key: r.Key, section: sec.Key, value: r.Value}
				switch rng.IntN(6) {
				case 0:
					continue
				case 1:
					e.value += "'"
				case 2:
					e.section = fmt.Sprintf("s%d", rng.IntN(5))
				}
				entries = append(entries, e)
			}
		}
	}
	for k := range rng.IntN(5) {
		key := fmt.Sprintf("r%d-%d", round, k)
		entries = append(entries, entry{key: key, section: fmt.Sprintf("s%d", rng.IntN(5)), value: key})
	}
	rng.Shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })
	slices.SortStableFunc(entries, func(a, b entry) int {
		return strings.Compare(a.section, b.section)
	})

	var out snapshot.Snapshot[string]
	for _, e := range entries {
		if n := len(out.Sections); n == 0 || out.Sections[n-1].Key != e.section {
			out.Sections = append(out.Sections, snapshot.Section[string]{Key: e.section})
		}
		last := &out.Sections[len(out.Sections)-1]
		last.Rows = append(last.Rows, snapshot.Row[string]{Key: e.key, Value: e.value})
	}
	return out
}
