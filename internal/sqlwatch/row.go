package sqlwatch

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/observedseq/internal/snapshot"
)

// scanRows reads every row as a cty object keyed by column name.
func scanRows(rows *sql.Rows, q Query) ([]snapshot.Row[cty.Value], error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []snapshot.Row[cty.Value]
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		attrs := make(map[string]cty.Value, len(cols))
		var key string
		for i, col := range cols {
			attrs[col] = toCty(raw[i])
			if col == q.Key {
				key = fmt.Sprint(text(raw[i]))
			}
		}
		if _, ok := attrs[q.Section]; !ok && q.Section != "" {
			return nil, fmt.Errorf("%w: section column %q not in result", ErrInvalidQuery, q.Section)
		}
		if key == "" {
			return nil, fmt.Errorf("%w: empty key in column %q", ErrInvalidQuery, q.Key)
		}
		out = append(out, snapshot.Row[cty.Value]{Key: key, Value: cty.ObjectVal(attrs)})
	}
	return out, rows.Err()
}

func text(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// toCty converts a value produced by the sqlite3 driver.
func toCty(v any) cty.Value {
	switch v := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case int64:
		return cty.NumberIntVal(v)
	case float64:
		return cty.NumberFloatVal(v)
	case bool:
		return cty.BoolVal(v)
	case []byte:
		return cty.StringVal(string(v))
	case string:
		return cty.StringVal(v)
	case time.Time:
		return cty.StringVal(v.UTC().Format(time.RFC3339Nano))
	default:
		return cty.StringVal(fmt.Sprint(v))
	}
}

// sectionKey renders the section attribute of a row as a grouping key.
func sectionKey(column string) func(cty.Value) string {
	return func(v cty.Value) string {
		if column == "" {
			return ""
		}
		attr := v.GetAttr(column)
		if attr.IsNull() {
			return ""
		}
		switch attr.Type() {
		case cty.String:
			return attr.AsString()
		case cty.Number:
			return attr.AsBigFloat().Text('g', -1)
		case cty.Bool:
			return fmt.Sprint(attr.True())
		}
		return attr.GoString()
	}
}

func equalRows(a, b cty.Value) bool {
	return a.RawEquals(b)
}
