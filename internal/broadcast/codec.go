package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/observed"
	"github.com/specialistvlad/observedseq/internal/txn"
)

// Codec reads a sequence into wire payloads.
type Codec[T any] struct {
	seq     *observed.Sequence[T]
	headers lazy.Seq[T]
	encode  Encoder[T]
}

// NewCodec creates a codec over seq. headers may be nil.
func NewCodec[T any](seq *observed.Sequence[T], headers lazy.Seq[T], encode Encoder[T]) *Codec[T] {
	return &Codec[T]{seq: seq, headers: headers, encode: encode}
}

// Frame encodes the complete current state.
func (c *Codec[T]) Frame() (Frame, error) {
	f := Frame{Sections: make([][]json.RawMessage, c.seq.SectionCount())}
	for section := range f.Sections {
		rows, err := c.section(section)
		if err != nil {
			return Frame{}, err
		}
		f.Sections[section] = rows
	}
	headers, err := c.encodeHeaders()
	if err != nil {
		return Frame{}, err
	}
	f.Headers = headers
	return f, nil
}

// Delta reads the post-batch values tx refers to.
func (c *Codec[T]) Delta(tx txn.Transaction) (Delta, error) {
	d := Delta{Transaction: tx}
	inserted := toSet(tx.SectionInsertions)

	for section := range inserted {
		rows, err := c.section(section)
		if err != nil {
			return Delta{}, err
		}
		if d.Sections == nil {
			d.Sections = make(map[int][]json.RawMessage)
		}
		d.Sections[section] = rows
	}

	put := func(p index.Path) error {
		raw, err := c.Value(p)
		if err != nil {
			return err
		}
		if d.Rows == nil {
			d.Rows = make(map[index.Path]json.RawMessage)
		}
		d.Rows[p] = raw
		return nil
	}
	for _, p := range tx.RowInsertions {
		if _, skip := inserted[p.Section]; skip {
			continue
		}
		if err := put(p); err != nil {
			return Delta{}, err
		}
	}
	remap := tx.Remap()
	for _, p := range tx.RowUpdates {
		np, ok := remap.Path(p)
		if !ok {
			continue
		}
		if _, skip := inserted[np.Section]; skip {
			continue
		}
		if err := put(np); err != nil {
			return Delta{}, err
		}
	}

	headers, err := c.encodeHeaders()
	if err != nil {
		return Delta{}, err
	}
	d.Headers = headers
	return d, nil
}

func (c *Codec[T]) section(section int) ([]json.RawMessage, error) {
	rows := make([]json.RawMessage, c.seq.RowCount(section))
	for r := range rows {
		raw, err := c.Value(index.P(section, r))
		if err != nil {
			return nil, err
		}
		rows[r] = raw
	}
	return rows, nil
}

// Value encodes the row at p. Absent rows encode as null.
func (c *Codec[T]) Value(p index.Path) (json.RawMessage, error) {
	v, ok, err := c.seq.Lookup(p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return json.RawMessage("null"), nil
	}
	raw, err := c.encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", p, err)
	}
	return raw, nil
}

func (c *Codec[T]) encodeHeaders() ([]json.RawMessage, error) {
	if c.headers == nil {
		return nil, nil
	}
	out := make([]json.RawMessage, c.headers.Count())
	for i := range out {
		v, ok := c.headers.Get(i)
		if !ok {
			out[i] = json.RawMessage("null")
			continue
		}
		raw, err := c.encode(v)
		if err != nil {
			return nil, fmt.Errorf("encode header %d: %w", i, err)
		}
		out[i] = raw
	}
	return out, nil
}
