package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/observedseq/internal/broadcast"
	"github.com/specialistvlad/observedseq/internal/ctxlog"
	"github.com/specialistvlad/observedseq/internal/pipeline"
	"github.com/specialistvlad/observedseq/internal/server"
	"github.com/specialistvlad/observedseq/internal/sqlwatch"
)

const shutdownTimeout = 5 * time.Second

// service is everything serve mode runs. It is built and torn down on the
// loop goroutine, or after the loop has exited.
type service struct {
	db      *sql.DB
	watcher *sqlwatch.Watcher
	pipe    *pipeline.Pipeline
	socket  *broadcast.Server[cty.Value]
	http    *server.Server
}

func (a *App) newService(ctx context.Context, loop *Loop) (*service, error) {
	db, w, err := a.openWatcher(ctx)
	if err != nil {
		return nil, err
	}
	pipe, err := a.build(ctx, w)
	if err != nil {
		db.Close()
		return nil, err
	}

	socket := broadcast.NewServer(ctx, pipe.Tail(), headers(pipe), broadcast.EncodeCty, loop.Go)
	httpServer := server.New(ctx, server.Deps{
		Runner:   loop,
		Reader:   socket.Codec(),
		Store:    w,
		Socket:   socket.Handler(),
		Gatherer: a.registry,
	})
	return &service{db: db, watcher: w, pipe: pipe, socket: socket, http: httpServer}, nil
}

// close releases the chain and the database. The loop must have exited.
func (s *service) close() {
	s.socket.Close()
	release(s.pipe)
	s.db.Close()
}

// serve runs the HTTP and socket.io surfaces until ctx is done.
func (a *App) serve(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := NewLoop(64)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return loop.Run(gctx) })

	var svc *service
	err := loop.Do(gctx, func() (err error) {
		svc, err = a.newService(gctx, loop)
		return err
	})
	if err != nil {
		cancel()
		_ = g.Wait()
		if svc != nil {
			svc.close()
		}
		if ctx.Err() != nil {
			// stopped before the service came up
			return nil
		}
		return err
	}

	addr := a.listen()
	g.Go(func() error { return svc.http.ListenAndServe(addr) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return svc.http.Shutdown(shutdownCtx)
	})
	if a.config.Refresh > 0 {
		g.Go(func() error { return poll(gctx, loop, svc.watcher, a.config.Refresh) })
	}
	logger.Info("🚀 Serving observed sequence.", "address", addr, "mode", ModeServe)

	err = g.Wait()
	svc.close()
	logger.Info("🏁 Server stopped.")
	return err
}

// poll refetches the source every interval so that writes made by other
// processes reach the observers.
func poll(ctx context.Context, loop *Loop, w *sqlwatch.Watcher, interval time.Duration) error {
	logger := ctxlog.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := loop.Do(ctx, func() error { return w.Refresh(ctx) })
			if err != nil && ctx.Err() == nil {
				logger.Warn("Refresh failed.", "error", err)
			}
		}
	}
}
