package store

import "context"

// Updater is the completion of a deferred reduction. The engine applies it
// to whatever the live store state is at resolution time, which may differ
// from the state captured when the action was dispatched. Returning ok=false
// means "no change" and leaves the state untouched.
//
// Updaters run while the engine holds its internal lock, so they must be
// pure: no store accessors, no dispatching.
type Updater[S any] func(current S) (S, bool)

// Reduction is the result of an Action's Reduce hook. It is a tagged union
// with four variants, built through the package constructors:
//
//   - Update(s): a new state, applied synchronously
//   - NoChange: nothing happens (also the zero value)
//   - Fail(err): Reduce surfaced an error synchronously
//   - Deferred(run): the reduction continues asynchronously; run executes on
//     its own goroutine and its Updater is applied against the live state
//
// Which variant an action returns on a given run, not any declared property
// of the action, decides whether that dispatch is synchronous.
type Reduction[S any] struct {
	state *S
	err   error
	run   func(ctx context.Context) (Updater[S], error)
}

// Update returns a Reduction that replaces the store state with s before the
// dispatch call returns.
func Update[S any](s S) Reduction[S] {
	return Reduction[S]{state: &s}
}

// NoChange returns the no-op Reduction. Reduce may equivalently return the
// zero Reduction value.
func NoChange[S any]() Reduction[S] {
	return Reduction[S]{}
}

// Fail returns a Reduction carrying a synchronous reducer error. The error
// enters the wrap/observe pipeline exactly as a deferred failure would.
func Fail[S any](err error) Reduction[S] {
	return Reduction[S]{err: err}
}

// Deferred returns a Reduction whose work continues asynchronously. The
// dispatch call returns once run is scheduled; run's Updater (nil for no
// change) is applied to the live state when it completes.
func Deferred[S any](run func(ctx context.Context) (Updater[S], error)) Reduction[S] {
	return Reduction[S]{run: run}
}

// IsDeferred reports whether this Reduction takes the asynchronous path.
func (r Reduction[S]) IsDeferred() bool {
	return r.run != nil
}

// Effect is the result of an Action's Before hook: either already done
// (possibly with an error), or asynchronous work still to run. The zero
// Effect means "done, no error".
type Effect struct {
	err error
	run func(ctx context.Context) error
}

// Done returns a synchronous Effect. A non-nil err marks the attempt failed
// and skips Reduce.
func Done(err error) Effect {
	return Effect{err: err}
}

// Async returns an Effect whose work runs on its own goroutine before the
// rest of the lifecycle continues. Dispatching an action with an Async
// Before through DispatchSync fails with ErrMustBeSync.
func Async(run func(ctx context.Context) error) Effect {
	return Effect{run: run}
}

// IsDeferred reports whether this Effect takes the asynchronous path.
func (e Effect) IsDeferred() bool {
	return e.run != nil
}
