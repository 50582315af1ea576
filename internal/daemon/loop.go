package daemon

import (
	"context"
	"errors"
)

// ErrStopped is returned by Call once the loop has exited.
var ErrStopped = errors.New("event loop stopped")

// Loop runs closures one at a time on a single goroutine. Every mutation of
// daemon state happens inside a closure on the loop.
type Loop struct {
	ch   chan func()
	done chan struct{}
}

// NewLoop returns a loop that has not started yet.
func NewLoop() *Loop {
	return &Loop{ch: make(chan func(), 64), done: make(chan struct{})}
}

// Run executes posted closures until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case f := <-l.ch:
			f()
		case <-ctx.Done():
			return
		}
	}
}

// Post queues f. Closures posted after the loop exits are dropped.
func (l *Loop) Post(f func()) {
	select {
	case l.ch <- f:
	case <-l.done:
	}
}

// Call runs f on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	select {
	case l.ch <- func() { f(); close(finished) }:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
