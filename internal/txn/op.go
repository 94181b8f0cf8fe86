package txn

import (
	"fmt"

	"github.com/specialistvlad/observedseq/internal/index"
)

// Kind identifies a change operation.
type Kind int

const (
	RowInsert Kind = iota
	RowDelete
	RowUpdate
	RowMove
	SectionInsert
	SectionDelete
)

var kindNames = [...]string{
	RowInsert:     "row_insert",
	RowDelete:     "row_delete",
	RowUpdate:     "row_update",
	RowMove:       "row_move",
	SectionInsert: "section_insert",
	SectionDelete: "section_delete",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Op is a single change notification. Path is used by row operations, To only
// by RowMove, Section only by section operations.
type Op struct {
	Kind    Kind
	Path    index.Path
	To      index.Path
	Section int
}

// Insert, Delete, Update, Move, InsertSection and DeleteSection build Ops.
func Insert(p index.Path) Op { return Op{Kind: RowInsert, Path: p} }
func Delete(p index.Path) Op { return Op{Kind: RowDelete, Path: p} }
func Update(p index.Path) Op { return Op{Kind: RowUpdate, Path: p} }
func Move(from, to index.Path) Op { return Op{Kind: RowMove, Path: from, To: to} }
func InsertSection(section int) Op { return Op{Kind: SectionInsert, Section: section} }
func DeleteSection(section int) Op { return Op{Kind: SectionDelete, Section: section} }

func (o Op) String() string {
	switch o.Kind {
	case RowMove:
		return fmt.Sprintf("%s(%s->%s)", o.Kind, o.Path, o.To)
	case SectionInsert, SectionDelete:
		return fmt.Sprintf("%s(%d)", o.Kind, o.Section)
	default:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Path)
	}
}
