package sqlwatch

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/observedseq/internal/ctxlog"
	"github.com/specialistvlad/observedseq/internal/database"
	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/observed"
	"github.com/specialistvlad/observedseq/internal/testutil"
	"github.com/specialistvlad/observedseq/internal/txn"
)

func timestampsQuery() Query {
	return Query{
		Table:   "timestamps",
		Key:     "id",
		Section: "second",
		OrderBy: []string{"second", "time"},
		Where:   "deleted = ?",
		Args:    []any{0},
	}
}

func setup(t *testing.T, rows ...map[string]any) (context.Context, *sql.DB, *Watcher) {
	t.Helper()
	ctx := ctxlog.Discard(context.Background())
	db, err := database.Open(filepath.Join(t.TempDir(), "watch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO timestamps (id, time, second) VALUES (?, ?, ?)`, r["id"], r["time"], r["second"])
		require.NoError(t, err)
	}
	w, err := New(ctx, db, timestampsQuery())
	require.NoError(t, err)
	return ctx, db, w
}

func stamp(id string, time, second int) map[string]any {
	return map[string]any{"id": id, "time": time, "second": second}
}

func ids(t *testing.T, seq *observed.Sequence[cty.Value]) [][]string {
	t.Helper()
	var out [][]string
	for s := range seq.SectionCount() {
		var section []string
		for r := range seq.RowCount(s) {
			v, ok := seq.Get(index.P(s, r))
			require.True(t, ok)
			section = append(section, v.GetAttr("id").AsString())
		}
		out = append(out, section)
	}
	return out
}

func TestWatcher_InitialFetch(t *testing.T) {
	_, _, w := setup(t, stamp("b", 20, 1), stamp("a", 10, 1), stamp("c", 30, 2))
	root := w.Observe()

	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, ids(t, root))
	v, _ := root.Get(index.P(0, 0))
	assert.True(t, v.GetAttr("time").RawEquals(cty.NumberIntVal(10)))
	assert.Same(t, root, w.Observe())
}

func TestWatcher_Writes(t *testing.T) {
	testCases := []struct {
		name   string
		write  func(ctx context.Context, w *Watcher) error
		events []string
		want   [][]string
	}{
		{
			name:   "insert into an existing second",
			write:  func(ctx context.Context, w *Watcher) error { return w.Insert(ctx, stamp("x", 15, 1)) },
			events: []string{"begin", "row_insert(0.1)", "commit"},
			want:   [][]string{{"a", "x", "b"}, {"c"}},
		},
		{
			name:   "insert into a new second",
			write:  func(ctx context.Context, w *Watcher) error { return w.Insert(ctx, stamp("x", 5, 0)) },
			events: []string{"begin", "section_insert(0)", "commit"},
			want:   [][]string{{"x"}, {"a", "b"}, {"c"}},
		},
		{
			name:   "delete the last row of a second",
			write:  func(ctx context.Context, w *Watcher) error { return w.Delete(ctx, "c") },
			events: []string{"begin", "section_delete(1)", "commit"},
			want:   [][]string{{"a", "b"}},
		},
		{
			name: "soft delete through the where clause",
			write: func(ctx context.Context, w *Watcher) error {
				return w.Update(ctx, "a", map[string]any{"deleted": 1})
			},
			events: []string{"begin", "row_delete(0.0)", "commit"},
			want:   [][]string{{"b"}, {"c"}},
		},
		{
			name: "row moving to another second",
			write: func(ctx context.Context, w *Watcher) error {
				return w.Update(ctx, "a", map[string]any{"second": 2, "time": 40})
			},
			events: []string{"begin", "row_delete(0.0)", "row_insert(1.1)", "commit"},
			want:   [][]string{{"b"}, {"c", "a"}},
		},
		{
			name: "batch of writes in one transaction",
			write: func(ctx context.Context, w *Watcher) error {
				return w.Exec(ctx, func(tx *sql.Tx) error {
					if _, err := tx.ExecContext(ctx, `DELETE FROM timestamps WHERE id = 'b'`); err != nil {
						return err
					}
					_, err := tx.ExecContext(ctx, `INSERT INTO timestamps (id, time, second) VALUES ('y', 35, 2)`)
					return err
				})
			},
			events: []string{"begin", "row_delete(0.1)", "row_insert(1.1)", "commit"},
			want:   [][]string{{"a"}, {"c", "y"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			ctx, _, w := setup(t, stamp("a", 10, 1), stamp("b", 20, 1), stamp("c", 30, 2))
			root := w.Observe()
			ids(t, root)
			rec := &testutil.Recorder{}
			root.Subscribe(txn.Forward(rec))

			// --- Act ---
			err := tc.write(ctx, w)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, tc.events, rec.Events())
			assert.Equal(t, tc.want, ids(t, root))
		})
	}
}

func TestWatcher_WriteErrors(t *testing.T) {
	ctx, _, w := setup(t, stamp("a", 10, 1))
	root := w.Observe()
	rec := &testutil.Recorder{}
	root.Subscribe(rec)

	require.ErrorIs(t, w.Delete(ctx, "missing"), ErrNotFound)
	require.ErrorIs(t, w.Update(ctx, "missing", map[string]any{"time": 1}), ErrNotFound)
	require.ErrorIs(t, w.Insert(ctx, map[string]any{"bad column": 1}), ErrInvalidQuery)
	require.Error(t, w.Insert(ctx, stamp("a", 1, 1)), "duplicate primary key")

	assert.Empty(t, rec.Transactions())
	assert.Equal(t, [][]string{{"a"}}, ids(t, root))
}

func TestWatcher_SetQueryReloads(t *testing.T) {
	// --- Arrange ---
	ctx, _, w := setup(t, stamp("a", 10, 1), stamp("b", 20, 1))
	root := w.Observe()
	rec := &testutil.Recorder{}
	root.Subscribe(rec)
	ids(t, root)

	// --- Act ---
	q := timestampsQuery()
	q.OrderBy = []string{"second", "time DESC"}
	err := w.SetQuery(ctx, q)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Reloads())
	assert.Equal(t, [][]string{{"b", "a"}}, ids(t, root))
}

func TestWatcher_ReleasingRootClosesWatcher(t *testing.T) {
	ctx, _, w := setup(t, stamp("a", 10, 1))
	root := w.Observe()
	derived := observed.Map(root, func(v cty.Value) string { return v.GetAttr("id").AsString() }, true)

	root.Release()
	require.NoError(t, w.Refresh(ctx), "the derived stage still holds the watcher")

	derived.Release()
	require.ErrorIs(t, w.Refresh(ctx), ErrClosed)
}

func TestWatcher_ObserveAfterReleaseReopens(t *testing.T) {
	// --- Arrange ---
	ctx, db, w := setup(t, stamp("a", 10, 1))
	first := w.Observe()
	first.Release()
	require.ErrorIs(t, w.Refresh(ctx), ErrClosed)

	// --- Act ---
	root := w.Observe()
	_, err := db.Exec(`INSERT INTO timestamps (id, time, second) VALUES ('b', 20, 1)`)
	require.NoError(t, err)
	refreshErr := w.Refresh(ctx)

	// --- Assert ---
	require.NoError(t, refreshErr)
	assert.NotSame(t, first, root)
	assert.Equal(t, [][]string{{"a", "b"}}, ids(t, root))
}

func TestWatcher_LateReleaseOfOldRootKeepsWatcherOpen(t *testing.T) {
	ctx, _, w := setup(t, stamp("a", 10, 1))
	w.Observe().Release()
	stale := w.epoch
	root := w.Observe()

	done := make(chan struct{})
	go func() {
		w.detach(stale)
		close(done)
	}()
	<-done

	require.NoError(t, w.Refresh(ctx))
	assert.Equal(t, [][]string{{"a"}}, ids(t, root))
}

func TestWatcher_WithoutSectionColumn(t *testing.T) {
	// --- Arrange ---
	ctx, db, _ := setup(t, stamp("b", 20, 2), stamp("a", 10, 1))
	q := timestampsQuery()
	q.Section = ""
	q.OrderBy = []string{"time"}

	// --- Act ---
	w, err := New(ctx, db, q)

	// --- Assert ---
	require.NoError(t, err)
	root := w.Observe()
	assert.Equal(t, [][]string{{"a", "b"}}, ids(t, root))
	require.NoError(t, w.Insert(ctx, stamp("c", 30, 9)))
	assert.Equal(t, [][]string{{"a", "b", "c"}}, ids(t, root))
}

func TestQuery_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(q *Query)
		wantSQL string
		wantErr bool
	}{
		{
			name:    "valid",
			mutate:  func(q *Query) {},
			wantSQL: "SELECT * FROM timestamps WHERE deleted = ? ORDER BY second, time, id",
		},
		{
			name:    "descending order",
			mutate:  func(q *Query) { q.OrderBy = []string{"second desc"}; q.Where = "" },
			wantSQL: "SELECT * FROM timestamps ORDER BY second DESC, id",
		},
		{name: "injected table", mutate: func(q *Query) { q.Table = "t; DROP TABLE x" }, wantErr: true},
		{name: "bad direction", mutate: func(q *Query) { q.OrderBy = []string{"time sideways"} }, wantErr: true},
		{name: "missing order", mutate: func(q *Query) { q.OrderBy = nil }, wantErr: true},
		{name: "missing key", mutate: func(q *Query) { q.Key = "" }, wantErr: true},
		{
			name:    "no section column",
			mutate:  func(q *Query) { q.Section = ""; q.Where = "" },
			wantSQL: "SELECT * FROM timestamps ORDER BY second, time, id",
		},
		{name: "bad section column", mutate: func(q *Query) { q.Section = "sec ond" }, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := timestampsQuery()
			tc.mutate(&q)

			got, err := q.SQL()

			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidQuery)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, got)
		})
	}
}
