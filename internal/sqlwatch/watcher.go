// Package sqlwatch follows a SQLite query result and publishes its changes
// to an observed sequence.
//
// A Watcher holds the last fetched result as a keyed snapshot. Writes made
// through the watcher run in a SQL transaction; once it commits the result is
// fetched again, diffed against the previous snapshot by key and delivered to
// the root sequence as one batch. Rows are exposed as cty object values with
// one attribute per column.
//
// The root sequence owns the watcher: it is closed when the last pipeline
// stage built on top of it is released. The watcher itself only refers to
// the root weakly.
package sqlwatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"weak"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/observedseq/internal/ctxlog"
	"github.com/specialistvlad/observedseq/internal/database"
	"github.com/specialistvlad/observedseq/internal/lifetime"
	"github.com/specialistvlad/observedseq/internal/observed"
	"github.com/specialistvlad/observedseq/internal/sections"
	"github.com/specialistvlad/observedseq/internal/snapshot"
)

var (
	// ErrNotFound is returned when a write addresses a key with no row.
	ErrNotFound = errors.New("row not found")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("watcher closed")
)

// Watcher follows the result of a Query. It is not safe for concurrent use.
type Watcher struct {
	db     *sql.DB
	query  Query
	snap   snapshot.Snapshot[cty.Value]
	root  weak.Pointer[observed.Sequence[cty.Value]]

	// mu guards closed and epoch. A root collected by the garbage collector
	// is released on the runtime's cleanup goroutine.
	mu     sync.Mutex
	closed bool
	// epoch counts the roots built by Observe; only the release of the
	// current root closes the watcher.
	epoch uint64
}

// New validates q and fetches the initial result.
func New(ctx context.Context, db *sql.DB, q Query) (*Watcher, error) {
	w := &Watcher{db: db, query: q}
	snap, err := w.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	w.snap = snap
	return w, nil
}

// Query returns the current fetch parameters.
func (w *Watcher) Query() Query {
	return w.query
}

// Snapshot returns the last fetched result.
func (w *Watcher) Snapshot() snapshot.Snapshot[cty.Value] {
	return w.snap
}

// Generator reads the last fetched result.
func (w *Watcher) Generator() sections.Generator[cty.Value] {
	return sections.Generator[cty.Value]{
		Sections: func() int { return w.snap.SectionCount() },
		Rows:     func(section int) int { return w.snap.RowCount(section) },
		Generate: func(section, row int) (cty.Value, bool) {
			r, ok := w.snap.At(section, row)
			return r.Value, ok
		},
	}
}

// Observe returns the root sequence following the watcher. Later calls
// return the same root while it is reachable. Once it has been released a
// new root is built and the watcher reopens.
func (w *Watcher) Observe(opts ...observed.Option) *observed.Sequence[cty.Value] {
	if root := w.target(); root != nil {
		return root
	}
	w.mu.Lock()
	w.epoch++
	epoch := w.epoch
	w.closed = false
	w.mu.Unlock()

	handle := lifetime.Own(w, func() { w.detach(epoch) })
	root := observed.New(w.Generator(), lifetime.NewChain(handle), opts...)
	w.root = weak.Make(root)
	return root
}

func (w *Watcher) target() *observed.Sequence[cty.Value] {
	root := w.root.Value()
	if root == nil || root.Released() {
		return nil
	}
	return root
}

// detach closes the watcher when the root of epoch is released, unless a
// newer root has been built since.
func (w *Watcher) detach(epoch uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.epoch == epoch {
		w.closed = true
	}
}

func (w *Watcher) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Refresh fetches the result again and publishes the difference.
func (w *Watcher) Refresh(ctx context.Context) error {
	if w.isClosed() {
		return ErrClosed
	}
	next, err := w.fetch(ctx, w.query)
	if err != nil {
		return err
	}
	return w.publish(ctx, next)
}

// SetQuery replaces the fetch parameters. Observers receive a full reload.
func (w *Watcher) SetQuery(ctx context.Context, q Query) error {
	if w.isClosed() {
		return ErrClosed
	}
	next, err := w.fetch(ctx, q)
	if err != nil {
		return err
	}
	w.query = q
	w.snap = next
	if root := w.target(); root != nil {
		root.FullReload()
	}
	ctxlog.FromContext(ctx).Info("Watcher query replaced.", "table", q.Table, "rows", next.Len())
	return nil
}

// Exec runs fn in a SQL transaction and publishes the resulting change.
func (w *Watcher) Exec(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if w.isClosed() {
		return ErrClosed
	}
	if err := database.WithTx(ctx, w.db, fn); err != nil {
		return err
	}
	return w.Refresh(ctx)
}

// Insert adds one row built from values.
func (w *Watcher) Insert(ctx context.Context, values map[string]any) error {
	cols, args, err := columns(values)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.query.Table, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	return w.Exec(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, stmt, args...)
		return err
	})
}

// Update sets values on the row with key.
func (w *Watcher) Update(ctx context.Context, key string, values map[string]any) error {
	cols, args, err := columns(values)
	if err != nil {
		return err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", w.query.Table, strings.Join(sets, ", "), w.query.Key)
	return w.Exec(ctx, func(tx *sql.Tx) error {
		return expectRow(tx.ExecContext(ctx, stmt, append(args, key)...))
	})
}

// Delete removes the row with key.
func (w *Watcher) Delete(ctx context.Context, key string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", w.query.Table, w.query.Key)
	return w.Exec(ctx, func(tx *sql.Tx) error {
		return expectRow(tx.ExecContext(ctx, stmt, key))
	})
}

// Close stops the watcher until the next root is built by Observe. The
// database is left open.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *Watcher) fetch(ctx context.Context, q Query) (snapshot.Snapshot[cty.Value], error) {
	stmt, err := q.SQL()
	if err != nil {
		return snapshot.Snapshot[cty.Value]{}, err
	}
	rows, err := w.db.QueryContext(ctx, stmt, q.Args...)
	if err != nil {
		return snapshot.Snapshot[cty.Value]{}, fmt.Errorf("fetch %s: %w", q.Table, err)
	}
	defer rows.Close()

	result, err := scanRows(rows, q)
	if err != nil {
		return snapshot.Snapshot[cty.Value]{}, fmt.Errorf("fetch %s: %w", q.Table, err)
	}
	return snapshot.Group(result, sectionKey(q.Section)), nil
}

func (w *Watcher) publish(ctx context.Context, next snapshot.Snapshot[cty.Value]) error {
	logger := ctxlog.FromContext(ctx)
	swap := func() { w.snap = next }

	root := w.target()
	if root == nil {
		swap()
		return nil
	}
	ops, ok := snapshot.Diff(w.snap, next, equalRows)
	if !ok {
		swap()
		logger.Debug("Change not expressible as operations, reloading.", "table", w.query.Table)
		root.FullReload()
		return nil
	}
	if len(ops) == 0 {
		swap()
		return nil
	}
	if err := snapshot.Publish(root, ops, swap); err != nil {
		logger.Error("Batch rejected, observers reloaded.", "table", w.query.Table, "error", err)
		return err
	}
	logger.Debug("Batch published.", "table", w.query.Table, "ops", len(ops), "rows", next.Len())
	return nil
}

func columns(values map[string]any) ([]string, []any, error) {
	if len(values) == 0 {
		return nil, nil, fmt.Errorf("%w: no columns", ErrInvalidQuery)
	}
	cols := make([]string, 0, len(values))
	for c := range values {
		if !identifier.MatchString(c) {
			return nil, nil, fmt.Errorf("%w: column %q is not an identifier", ErrInvalidQuery, c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	return cols, args, nil
}

func expectRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

