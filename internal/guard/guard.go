// Package guard runs foreground mutations of wallet state with the
// background synchronizer paused.
package guard

import (
	"context"
	"sync"
)

// Pauser is a background worker that can be held between units of work.
// Pause blocks until the worker is parked; Resume releases it.
type Pauser interface {
	Pause()
	Resume()
}

type heldKey struct{}

// Guard serializes foreground mutations and pauses the synchronizer for
// their duration.
type Guard struct {
	mu     sync.Mutex
	pauser Pauser
}

// New returns a guard for p.
func New(p Pauser) *Guard {
	return &Guard{pauser: p}
}

// Held reports whether ctx was passed down from inside PauseAndRun.
func Held(ctx context.Context) bool {
	held, _ := ctx.Value(heldKey{}).(*Guard)
	return held != nil
}

// PauseAndRun pauses the synchronizer, runs fn and resumes the synchronizer,
// whether fn returns an error or panics. Calls made with the ctx handed to
// fn run fn directly, so nesting does not deadlock.
func (g *Guard) PauseAndRun(ctx context.Context, fn func(ctx context.Context) error) error {
	if held, _ := ctx.Value(heldKey{}).(*Guard); held == g {
		return fn(ctx)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.pauser.Pause()
	defer g.pauser.Resume()

	return fn(context.WithValue(ctx, heldKey{}, g))
}

// Run is PauseAndRun for functions that return a value.
func Run[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.PauseAndRun(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
