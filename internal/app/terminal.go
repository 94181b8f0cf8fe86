package app

import (
	"context"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/specialistvlad/observedseq/internal/broadcast"
	"github.com/specialistvlad/observedseq/internal/ctxlog"
	"github.com/specialistvlad/observedseq/internal/server"
	"github.com/specialistvlad/observedseq/internal/viewer"
)

const (
	tickInterval  = time.Second
	remoteTimeout = 5 * time.Second
)

// timestampRow is the row the viewer inserts on every tick.
func timestampRow(now time.Time) map[string]any {
	return map[string]any{
		"id":     uuid.NewString(),
		"time":   now.UnixNano(),
		"second": now.Unix(),
	}
}

// view shows the local pipeline in the terminal. The bubbletea event loop
// owns the sequences while the program runs.
func (a *App) view(ctx context.Context) error {
	db, w, err := a.openWatcher(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	// the terminal is taken over; only the build logs above reach outW
	ctx = ctxlog.Discard(ctx)
	pipe, err := a.build(ctx, w)
	if err != nil {
		return err
	}
	defer release(pipe)

	m := viewer.New(ctx, pipe.Tail(), headers(pipe), w, viewer.Options{
		Title:    "observedseq: " + a.model.Source.Table,
		Interval: tickInterval,
		NewRow:   timestampRow,
	})
	defer m.Close()

	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return ignoreKilled(ctx, err)
}

// watch mirrors a remote server in the terminal. Writes go back to the
// server over HTTP.
func (a *App) watch(ctx context.Context) error {
	store, err := server.NewRemoteStore(a.config.URL, &http.Client{Timeout: remoteTimeout})
	if err != nil {
		return err
	}

	var program *tea.Program
	ready := make(chan struct{})
	schedule := func(fn func()) {
		<-ready
		if program != nil {
			program.Send(viewer.Exec(fn))
		}
	}

	client, err := broadcast.Dial(ctx, a.config.URL, schedule)
	if err != nil {
		close(ready)
		return err
	}
	a.logger.Info("Connected.", "url", a.config.URL)

	ctx = ctxlog.Discard(ctx)
	m := viewer.New(ctx, client.Sequence(), client.Headers(), store, viewer.Options{
		Title:    "observedseq: " + a.config.URL,
		Interval: tickInterval,
		NewRow:   timestampRow,
	})
	program = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	close(ready)

	_, err = program.Run()
	m.Close()
	client.Close()
	return ignoreKilled(ctx, err)
}

// ignoreKilled treats a program stopped by ctx as a clean exit.
func ignoreKilled(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
