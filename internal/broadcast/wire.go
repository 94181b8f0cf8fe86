// Package broadcast mirrors an observed sequence to remote clients over
// socket.io.
//
// The Server subscribes to a sequence and emits one event per forwarded
// transaction. A Delta carries the transaction together with the values a
// client needs to replay it: every row inserted or updated, and the full
// contents of inserted sections. A client that connects, or that loses
// track, asks for a Frame holding the complete state.
//
// Payloads travel as JSON text. Paths are encoded as `section.row`.
package broadcast

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/txn"
)

// Event names shared by server and client.
const (
	EventSnapshot    = "snapshot"
	EventTransaction = "transaction"
	EventReload      = "reload"
)

// Frame is the complete state of a sequence.
type Frame struct {
	Sections [][]json.RawMessage `json:"sections"`
	Headers  []json.RawMessage   `json:"headers,omitempty"`
}

// Delta is one transaction plus the values needed to replay it.
type Delta struct {
	Transaction txn.Transaction `json:"transaction"`
	// Rows holds inserted and updated rows by post-batch path.
	Rows map[index.Path]json.RawMessage `json:"rows,omitempty"`
	// Sections holds the rows of every inserted section.
	Sections map[int][]json.RawMessage `json:"sections,omitempty"`
	// Headers replaces the header list. It is null when the sequence has
	// no header projection.
	Headers []json.RawMessage `json:"headers"`
}

// Encoder renders one value as JSON. Absent values are encoded as null by
// the caller.
type Encoder[T any] func(T) (json.RawMessage, error)

// EncodeCty renders a cty value with its implied JSON shape.
func EncodeCty(v cty.Value) (json.RawMessage, error) {
	return json.Marshal(ctyjson.SimpleJSONValue{Value: v})
}

// decodeCty is the inverse of EncodeCty. The type is implied from the JSON.
func decodeCty(raw json.RawMessage) (cty.Value, error) {
	if len(raw) == 0 {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	var v ctyjson.SimpleJSONValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return cty.NilVal, err
	}
	return v.Value, nil
}

func decodeAll(raws []json.RawMessage) ([]cty.Value, error) {
	out := make([]cty.Value, len(raws))
	for i, raw := range raws {
		v, err := decodeCty(raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// state is a client-side copy of a sequence.
type state struct {
	sections [][]cty.Value
	headers  []cty.Value
}

func decodeFrame(f Frame) (state, error) {
	st := state{sections: make([][]cty.Value, len(f.Sections))}
	for s, rows := range f.Sections {
		vals, err := decodeAll(rows)
		if err != nil {
			return state{}, fmt.Errorf("section %d: %w", s, err)
		}
		st.sections[s] = vals
	}
	headers, err := decodeAll(f.Headers)
	if err != nil {
		return state{}, fmt.Errorf("headers: %w", err)
	}
	st.headers = headers
	return st, nil
}

// apply returns the state after d. The receiver is not modified. Row
// operations inside deleted or inserted sections are ignored, matching how
// sequences apply transactions.
func (st state) apply(d Delta) (state, error) {
	tx := d.Transaction.Normalize()
	deletedSections := toSet(tx.SectionDeletions)
	insertedSections := toSet(tx.SectionInsertions)

	next := make([][]cty.Value, 0, len(st.sections))
	for s, rows := range st.sections {
		if _, gone := deletedSections[s]; gone {
			continue
		}
		deleted := toSet(index.Rows(tx.RowDeletions, s))
		for r := range deleted {
			if r < 0 || r >= len(rows) {
				return state{}, fmt.Errorf("row deletion %d.%d out of range", s, r)
			}
		}
		kept := make([]cty.Value, 0, len(rows))
		for r, v := range rows {
			if _, gone := deleted[r]; !gone {
				kept = append(kept, v)
			}
		}
		next = append(next, kept)
	}

	for _, s := range tx.SectionInsertions {
		if s < 0 || s > len(next) {
			return state{}, fmt.Errorf("section insertion %d out of range", s)
		}
		rows, err := decodeAll(d.Sections[s])
		if err != nil {
			return state{}, fmt.Errorf("section %d: %w", s, err)
		}
		next = slices.Insert(next, s, rows)
	}

	for _, p := range tx.RowInsertions {
		if _, inserted := insertedSections[p.Section]; inserted {
			continue
		}
		if p.Section < 0 || p.Section >= len(next) || p.Row < 0 || p.Row > len(next[p.Section]) {
			return state{}, fmt.Errorf("row insertion %s out of range", p)
		}
		v, err := decodeCty(d.Rows[p])
		if err != nil {
			return state{}, fmt.Errorf("row %s: %w", p, err)
		}
		next[p.Section] = slices.Insert(next[p.Section], p.Row, v)
	}

	remap := tx.Remap()
	for _, p := range tx.RowUpdates {
		np, ok := remap.Path(p)
		if !ok {
			continue
		}
		if _, inserted := insertedSections[np.Section]; inserted {
			continue
		}
		if np.Section >= len(next) || np.Row >= len(next[np.Section]) {
			return state{}, fmt.Errorf("row update %s out of range", p)
		}
		v, err := decodeCty(d.Rows[np])
		if err != nil {
			return state{}, fmt.Errorf("row %s: %w", np, err)
		}
		next[np.Section][np.Row] = v
	}

	headers, err := decodeAll(d.Headers)
	if err != nil {
		return state{}, fmt.Errorf("headers: %w", err)
	}
	return state{sections: next, headers: headers}, nil
}

func toSet(xs []int) map[int]struct{} {
	set := make(map[int]struct{}, len(xs))
	for _, x := range xs {
		set[x] = struct{}{}
	}
	return set
}
