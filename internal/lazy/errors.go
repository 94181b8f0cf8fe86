package lazy

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is matched by every *BoundsError.
	ErrOutOfRange = errors.New("index out of range")

	// ErrMalformedDiff is matched by every *DiffError.
	ErrMalformedDiff = errors.New("malformed diff")
)

// BoundsError reports an access outside [0, Count).
type BoundsError struct {
	Index int
	Count int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("lazy: index %d out of range [0, %d)", e.Index, e.Count)
}

func (e *BoundsError) Unwrap() error {
	return ErrOutOfRange
}

func checkIndex(i, count int) error {
	if i < 0 || i >= count {
		return &BoundsError{Index: i, Count: count}
	}
	return nil
}

// DiffKind classifies a rejected diff.
type DiffKind string

const (
	DiffDuplicate DiffKind = "duplicate"
	DiffRange     DiffKind = "range"
	DiffConflict  DiffKind = "conflict"
	DiffCount     DiffKind = "count"
)

// DiffError describes why a diff could not be applied. Nothing was mutated
// when it is returned.
type DiffError struct {
	Kind DiffKind
	// Op is "deletion", "insertion" or "update".
	Op    string
	Index int
	// Pre and Post are the element counts before and after the batch.
	Pre  int
	Post int
}

func (e *DiffError) Error() string {
	switch e.Kind {
	case DiffDuplicate:
		return fmt.Sprintf("lazy: duplicate %s at index %d", e.Op, e.Index)
	case DiffRange:
		limit := e.Pre
		if e.Op == "insertion" {
			limit = e.Post
		}
		return fmt.Sprintf("lazy: %s index %d out of range [0, %d)", e.Op, e.Index, limit)
	case DiffConflict:
		return fmt.Sprintf("lazy: index %d is both updated and deleted", e.Index)
	case DiffCount:
		return fmt.Sprintf("lazy: batch implies %d elements before it, cache last saw %d (post-batch count %d)", e.Index, e.Pre, e.Post)
	}
	return fmt.Sprintf("lazy: malformed diff (%s)", e.Kind)
}

func (e *DiffError) Unwrap() error {
	return ErrMalformedDiff
}
