package lazy

import (
	"slices"

	"github.com/specialistvlad/observedseq/internal/index"
)

// Diff is one batch of index-level changes to a one-level sequence.
// Deletions and Updates are pre-batch indices, Insertions are post-batch
// indices. Order within each list is irrelevant.
type Diff struct {
	Deletions  []int
	Insertions []int
	Updates    []int
}

// IsEmpty reports whether the diff carries no changes.
func (d Diff) IsEmpty() bool {
	return len(d.Deletions) == 0 && len(d.Insertions) == 0 && len(d.Updates) == 0
}

// Validate checks d against the element counts before and after the batch.
func (d Diff) Validate(pre, post int) error {
	checks := []struct {
		op    string
		xs    []int
		limit int
	}{
		{"deletion", d.Deletions, pre},
		{"update", d.Updates, pre},
		{"insertion", d.Insertions, post},
	}
	for _, c := range checks {
		if i, ok := index.FirstDuplicate(c.xs); ok {
			return &DiffError{Kind: DiffDuplicate, Op: c.op, Index: i, Pre: pre, Post: post}
		}
		if i, ok := index.FirstOutside(c.xs, c.limit); ok {
			return &DiffError{Kind: DiffRange, Op: c.op, Index: i, Pre: pre, Post: post}
		}
	}
	if i, ok := index.FirstShared(d.Updates, d.Deletions); ok {
		return &DiffError{Kind: DiffConflict, Op: "update", Index: i, Pre: pre, Post: post}
	}
	if implied := post - len(d.Insertions) + len(d.Deletions); implied != pre {
		return &DiffError{Kind: DiffCount, Index: implied, Pre: pre, Post: post}
	}
	return nil
}

// Remap translates pre-batch indices to post-batch indices for one diff.
type Remap struct {
	deleted    map[int]struct{}
	deletions  []int
	insertions []int
}

// NewRemap prepares the translation for d. The diff is assumed valid.
func NewRemap(d Diff) *Remap {
	r := &Remap{
		deleted:    make(map[int]struct{}, len(d.Deletions)),
		deletions:  index.Sorted(d.Deletions),
		insertions: index.Sorted(d.Insertions),
	}
	for _, i := range d.Deletions {
		r.deleted[i] = struct{}{}
	}
	return r
}

// Index returns the post-batch index of the element at pre-batch index old,
// or ok == false when it was deleted.
func (r *Remap) Index(old int) (int, bool) {
	if _, gone := r.deleted[old]; gone {
		return 0, false
	}
	before, _ := slices.BinarySearch(r.deletions, old)
	cur := old - before
	for _, at := range r.insertions {
		if at > cur {
			break
		}
		cur++
	}
	return cur, true
}
