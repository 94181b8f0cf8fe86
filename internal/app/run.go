package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/observedseq/internal/ctxlog"
	"github.com/specialistvlad/observedseq/internal/database"
	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/observed"
	"github.com/specialistvlad/observedseq/internal/pipeline"
	"github.com/specialistvlad/observedseq/internal/sqlwatch"
)

// Run executes the configured mode until ctx is done or the mode exits.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "mode", a.config.Mode)

	var err error
	switch a.config.Mode {
	case ModeServe:
		err = a.serve(ctx)
	case ModeView:
		err = a.view(ctx)
	case ModeWatch:
		err = a.watch(ctx)
	default:
		err = fmt.Errorf("unknown mode %q", a.config.Mode)
	}

	a.logger.Debug("App.Run method finished.", "error", err)
	return err
}

// openWatcher opens the database, applies migrations and starts following
// the configured source.
func (a *App) openWatcher(ctx context.Context) (*sql.DB, *sqlwatch.Watcher, error) {
	if a.model == nil || a.model.Source == nil {
		return nil, nil, fmt.Errorf("no source configured")
	}
	db, err := database.Open(a.config.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, nil, err
	}

	src := a.model.Source
	w, err := sqlwatch.New(ctx, db, sqlwatch.Query{
		Table:   src.Table,
		Key:     src.Key,
		Section: src.Section,
		OrderBy: src.OrderBy,
		Where:   src.Where,
	})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("watch %s: %w", src.Table, err)
	}
	a.logger.Info("Watching source.", "table", src.Table, "rows", w.Snapshot().Len())
	return db, w, nil
}

// build observes w and maps it through the configured stages. Stage
// failures are counted and logged.
func (a *App) build(ctx context.Context, w *sqlwatch.Watcher) (*pipeline.Pipeline, error) {
	logger := ctxlog.FromContext(ctx)

	root := w.Observe(observed.WithCacheOptions(lazy.WithObserver(a.metrics.CacheObserver("root"))))
	root.Subscribe(a.metrics.Sink("root"))

	pipe, err := pipeline.Build(root, a.model.Stages, a.model.Headers,
		pipeline.WithErrorHandler(func(stage string, err error) {
			a.metrics.StageError(stage, err)
			logger.Warn("Stage evaluation failed.", "stage", stage, "error", err)
		}),
		pipeline.WithSequenceOptions(observed.WithCacheOptions(lazy.WithObserver(a.metrics.CacheObserver("stage")))),
	)
	if err != nil {
		root.Release()
		return nil, err
	}
	if len(pipe.Stages()) > 0 {
		pipe.Tail().Subscribe(a.metrics.Sink("tail"))
	}
	logger.Debug("Pipeline built.", "stages", pipe.Stages())
	return pipe, nil
}

// release drops the pipeline and its root, which closes the watcher.
func release(pipe *pipeline.Pipeline) {
	pipe.Release()
	pipe.Root().Release()
}

// headers returns the header projection as a sequence, keeping a missing
// projection a nil interface.
func headers(pipe *pipeline.Pipeline) lazy.Seq[cty.Value] {
	if h := pipe.Headers(); h != nil {
		return h
	}
	return nil
}
