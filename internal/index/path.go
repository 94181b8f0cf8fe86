package index

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Path addresses a single row inside a two-level sequence.
type Path struct {
	Section int
	Row     int
}

// P is shorthand for Path{Section: section, Row: row}.
func P(section, row int) Path {
	return Path{Section: section, Row: row}
}

// String serializes the Path into its canonical `section.row` form.
func (p Path) String() string {
	return strconv.Itoa(p.Section) + "." + strconv.Itoa(p.Row)
}

// MarshalText encodes the path in its `section.row` form, so paths travel
// as plain strings in JSON payloads and map keys.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses the `section.row` form.
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Compare orders paths by section first, then by row.
func (p Path) Compare(other Path) int {
	if c := cmp.Compare(p.Section, other.Section); c != 0 {
		return c
	}
	return cmp.Compare(p.Row, other.Row)
}

// Offset shifts the path by the given section and row deltas.
func (p Path) Offset(sections, rows int) Path {
	return Path{Section: p.Section + sections, Row: p.Row + rows}
}

// Parse creates a Path from its canonical string representation.
func Parse(raw string) (Path, error) {
	if raw == "" {
		return Path{}, fmt.Errorf("index path cannot be empty")
	}

	sectionStr, rowStr, ok := strings.Cut(raw, ".")
	if !ok {
		return Path{}, fmt.Errorf("invalid index path %q: expected section.row", raw)
	}

	section, err := parseComponent(sectionStr)
	if err != nil {
		return Path{}, fmt.Errorf("invalid section in index path %q: %w", raw, err)
	}
	row, err := parseComponent(rowStr)
	if err != nil {
		return Path{}, fmt.Errorf("invalid row in index path %q: %w", raw, err)
	}

	return Path{Section: section, Row: row}, nil
}

func parseComponent(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty component")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative component %d", n)
	}
	return n, nil
}

// SortPaths sorts paths in place by (section, row).
func SortPaths(paths []Path) {
	slices.SortFunc(paths, Path.Compare)
}

// Rows collects the row components of all paths that belong to section.
func Rows(paths []Path, section int) []int {
	var rows []int
	for _, p := range paths {
		if p.Section == section {
			rows = append(rows, p.Row)
		}
	}
	return rows
}
