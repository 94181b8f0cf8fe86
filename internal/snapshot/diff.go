package snapshot

import (
	"slices"
	"sort"

	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/txn"
)

// Diff returns the operations that turn old into next, in the order section
// deletions, row deletions, updates, section insertions, row insertions,
// each group sorted by position. A row that changed position is reported as
// a deletion at its old path and an insertion at its new one. equal decides
// whether a row that kept its place changed content.
// ok is false when the change cannot be expressed as operations: duplicate
// keys, or surviving sections that were reordered.
func Diff[T any](old, next Snapshot[T], equal func(a, b T) bool) (ops []txn.Op, ok bool) {
	oldSections, ok1 := sectionPositions(old)
	nextSections, ok2 := sectionPositions(next)
	oldRows, ok3 := rowPositions(old)
	nextRows, ok4 := rowPositions(next)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, false
	}
	if !slices.Equal(survivors(old, nextSections), survivors(next, oldSections)) {
		return nil, false
	}

	var d collected

	for si, sec := range old.Sections {
		if _, kept := nextSections[sec.Key]; !kept {
			d.sectionDeletes = append(d.sectionDeletes, txn.DeleteSection(si))
			continue
		}
		for ri, r := range sec.Rows {
			to, found := nextRows[r.Key]
			if !found {
				d.deletes = append(d.deletes, txn.Delete(index.P(si, ri)))
				continue
			}
			if _, existed := oldSections[next.Sections[to.Section].Key]; !existed {
				d.deletes = append(d.deletes, txn.Delete(index.P(si, ri)))
			}
		}
	}

	for si, sec := range next.Sections {
		oldSection, existed := oldSections[sec.Key]
		if !existed {
			d.sectionInserts = append(d.sectionInserts, txn.InsertSection(si))
			continue
		}

		var stay []placement[T]
		for ri, r := range sec.Rows {
			to := index.P(si, ri)
			from, found := oldRows[r.Key]
			if !found {
				d.inserts = append(d.inserts, txn.Insert(to))
				continue
			}
			if _, kept := nextSections[old.Sections[from.Section].Key]; !kept {
				d.inserts = append(d.inserts, txn.Insert(to))
				continue
			}
			if from.Section != oldSection {
				d.deletes = append(d.deletes, txn.Delete(from))
				d.inserts = append(d.inserts, txn.Insert(to))
				continue
			}
			stay = append(stay, placement[T]{from: from, to: to, old: rowAt(old, from).Value, next: r.Value})
		}

		rows := make([]int, len(stay))
		for i, p := range stay {
			rows[i] = p.from.Row
		}
		keep := increasing(rows)
		for i, p := range stay {
			switch {
			case !keep[i]:
				// from and to may be equal while neighbours shift around the
				// row, so a move here would read as an update
				d.deletes = append(d.deletes, txn.Delete(p.from))
				d.inserts = append(d.inserts, txn.Insert(p.to))
			case !equal(p.old, p.next):
				d.updates = append(d.updates, txn.Update(p.from))
			}
		}
	}

	return d.ops(), true
}

type placement[T any] struct {
	from, to  index.Path
	old, next T
}

type collected struct {
	sectionDeletes []txn.Op
	deletes        []txn.Op
	updates        []txn.Op
	sectionInserts []txn.Op
	inserts        []txn.Op
}

func (c collected) ops() []txn.Op {
	for _, group := range [][]txn.Op{c.sectionDeletes, c.sectionInserts} {
		slices.SortFunc(group, func(a, b txn.Op) int { return a.Section - b.Section })
	}
	for _, group := range [][]txn.Op{c.deletes, c.updates, c.inserts} {
		slices.SortFunc(group, func(a, b txn.Op) int { return a.Path.Compare(b.Path) })
	}
	return slices.Concat(c.sectionDeletes, c.deletes, c.updates, c.sectionInserts, c.inserts)
}

func rowAt[T any](s Snapshot[T], p index.Path) Row[T] {
	return s.Sections[p.Section].Rows[p.Row]
}

func sectionPositions[T any](s Snapshot[T]) (map[string]int, bool) {
	out := make(map[string]int, len(s.Sections))
	for i, sec := range s.Sections {
		if _, dup := out[sec.Key]; dup {
			return nil, false
		}
		out[sec.Key] = i
	}
	return out, true
}

func rowPositions[T any](s Snapshot[T]) (map[string]index.Path, bool) {
	out := make(map[string]index.Path, s.Len())
	for si, sec := range s.Sections {
		for ri, r := range sec.Rows {
			if _, dup := out[r.Key]; dup {
				return nil, false
			}
			out[r.Key] = index.P(si, ri)
		}
	}
	return out, true
}

// survivors lists the section keys of s that are also present in other, in
// the order of s.
func survivors[T any](s Snapshot[T], other map[string]int) []string {
	var keys []string
	for _, sec := range s.Sections {
		if _, ok := other[sec.Key]; ok {
			keys = append(keys, sec.Key)
		}
	}
	return keys
}

// increasing marks one longest strictly increasing subsequence of xs.
func increasing(xs []int) []bool {
	var tails []int
	prev := make([]int, len(xs))
	for i, x := range xs {
		k := sort.Search(len(tails), func(j int) bool { return xs[tails[j]] >= x })
		prev[i] = -1
		if k > 0 {
			prev[i] = tails[k-1]
		}
		if k == len(tails) {
			tails = append(tails, i)
		} else {
			tails[k] = i
		}
	}
	keep := make([]bool, len(xs))
	if len(tails) == 0 {
		return keep
	}
	for i := tails[len(tails)-1]; i >= 0; i = prev[i] {
		keep[i] = true
	}
	return keep
}
