package sqlwatch

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidQuery is returned for fetch parameters that cannot be turned
// into SQL.
var ErrInvalidQuery = errors.New("invalid query")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Query describes the watched result set.
type Query struct {
	// Table is the table to read from.
	Table string
	// Key is the column that identifies a row across fetches.
	Key string
	// Section is the column whose value groups rows into sections. Rows must
	// be ordered by it first. Empty puts every row in one section.
	Section string
	// OrderBy lists the ordering columns, each optionally suffixed with
	// " DESC".
	OrderBy []string
	// Where is an optional SQL condition with ? placeholders bound to Args.
	Where string
	Args  []any
}

// Validate checks every identifier in q.
func (q Query) Validate() error {
	for name, v := range map[string]string{"table": q.Table, "key": q.Key, "section": q.Section} {
		if name == "section" && v == "" {
			continue
		}
		if !identifier.MatchString(v) {
			return fmt.Errorf("%w: %s %q is not an identifier", ErrInvalidQuery, name, v)
		}
	}
	if len(q.OrderBy) == 0 {
		return fmt.Errorf("%w: order_by is required", ErrInvalidQuery)
	}
	for _, col := range q.OrderBy {
		if _, err := orderTerm(col); err != nil {
			return err
		}
	}
	return nil
}

// SQL renders the SELECT statement for q.
func (q Query) SQL() (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}
	terms := make([]string, len(q.OrderBy))
	for i, col := range q.OrderBy {
		terms[i], _ = orderTerm(col)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s", q.Table)
	if q.Where != "" {
		fmt.Fprintf(&b, " WHERE %s", q.Where)
	}
	fmt.Fprintf(&b, " ORDER BY %s, %s", strings.Join(terms, ", "), q.Key)
	return b.String(), nil
}

func orderTerm(col string) (string, error) {
	name, dir, _ := strings.Cut(strings.TrimSpace(col), " ")
	dir = strings.ToUpper(strings.TrimSpace(dir))
	if !identifier.MatchString(name) || (dir != "" && dir != "ASC" && dir != "DESC") {
		return "", fmt.Errorf("%w: order_by term %q", ErrInvalidQuery, col)
	}
	if dir == "" {
		return name, nil
	}
	return name + " " + dir, nil
}
