// Package snapshot models the ordered, sectioned result of a query and
// computes the change operations that turn one result into the next.
//
// Rows and sections are identified by string keys. Diff reports a row that
// left its position as a deletion plus an insertion, a row that kept its
// position but changed content as an update, and sections that appeared or vanished as section
// insertions and deletions. Surviving sections that change their relative
// order cannot be expressed that way; Diff reports them as not expressible
// and the caller falls back to a full reload.
package snapshot

import (
	"github.com/specialistvlad/observedseq/internal/index"
)

// Row is one keyed element of a snapshot.
type Row[T any] struct {
	Key   string
	Value T
}

// Section is a keyed, ordered group of rows.
type Section[T any] struct {
	Key  string
	Rows []Row[T]
}

// Snapshot is an ordered list of sections.
type Snapshot[T any] struct {
	Sections []Section[T]
}

// Group splits ordered rows into sections. Consecutive rows with the same
// section key form one section.
func Group[T any](rows []Row[T], section func(T) string) Snapshot[T] {
	var snap Snapshot[T]
	for _, r := range rows {
		key := section(r.Value)
		if n := len(snap.Sections); n == 0 || snap.Sections[n-1].Key != key {
			snap.Sections = append(snap.Sections, Section[T]{Key: key})
		}
		last := &snap.Sections[len(snap.Sections)-1]
		last.Rows = append(last.Rows, r)
	}
	return snap
}

// SectionCount returns the number of sections.
func (s Snapshot[T]) SectionCount() int {
	return len(s.Sections)
}

// RowCount returns the number of rows in section.
func (s Snapshot[T]) RowCount(section int) int {
	return len(s.Sections[section].Rows)
}

// Len returns the total number of rows.
func (s Snapshot[T]) Len() int {
	n := 0
	for _, sec := range s.Sections {
		n += len(sec.Rows)
	}
	return n
}

// At returns the row at (section, row), or ok == false when the position
// does not exist.
func (s Snapshot[T]) At(section, row int) (Row[T], bool) {
	if section < 0 || section >= len(s.Sections) {
		return Row[T]{}, false
	}
	rows := s.Sections[section].Rows
	if row < 0 || row >= len(rows) {
		return Row[T]{}, false
	}
	return rows[row], true
}

// Find returns the position of the row with the given key.
func (s Snapshot[T]) Find(key string) (index.Path, bool) {
	for si, sec := range s.Sections {
		for ri, r := range sec.Rows {
			if r.Key == key {
				return index.P(si, ri), true
			}
		}
	}
	return index.Path{}, false
}
