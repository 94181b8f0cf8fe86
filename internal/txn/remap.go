package txn

import (
	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/lazy"
)

// PathRemap translates pre-batch paths of a transaction to post-batch
// paths. It assumes the transaction is valid for the sequence it describes.
type PathRemap struct {
	tx       Transaction
	sections *lazy.Remap
	rows     map[int]*lazy.Remap
}

// Remap prepares path translation for t.
func (t Transaction) Remap() *PathRemap {
	return &PathRemap{
		tx: t,
		sections: lazy.NewRemap(lazy.Diff{
			Deletions:  t.SectionDeletions,
			Insertions: t.SectionInsertions,
		}),
		rows: make(map[int]*lazy.Remap),
	}
}

// Section returns the post-batch index of a pre-batch section.
func (m *PathRemap) Section(old int) (int, bool) {
	return m.sections.Index(old)
}

// Path returns the post-batch path of the row at old, or ok == false when
// the row or its section was deleted.
func (m *PathRemap) Path(old index.Path) (index.Path, bool) {
	section, ok := m.sections.Index(old.Section)
	if !ok {
		return index.Path{}, false
	}
	rows, ok := m.rows[old.Section]
	if !ok {
		rows = lazy.NewRemap(lazy.Diff{
			Deletions:  index.Rows(m.tx.RowDeletions, old.Section),
			Insertions: index.Rows(m.tx.RowInsertions, section),
		})
		m.rows[old.Section] = rows
	}
	row, ok := rows.Index(old.Row)
	if !ok {
		return index.Path{}, false
	}
	return index.P(section, row), true
}
