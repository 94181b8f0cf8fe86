package app

import (
	"context"
	"errors"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("loop stopped")

// Loop runs closures one at a time on the goroutine that called Run.
type Loop struct {
	tasks chan func()
	done  chan struct{}
}

// NewLoop creates a loop whose queue holds buffer pending closures.
func NewLoop(buffer int) *Loop {
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Run executes queued closures until ctx is done. It must be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Go queues fn without waiting for it. After the loop exits fn is dropped.
func (l *Loop) Go(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

// Do runs fn on the loop and returns its error. Calling Do from inside a
// loop closure deadlocks.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case l.tasks <- func() { errc <- fn() }:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrStopped
		}
	}
}
