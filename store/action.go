package store

import (
	"reflect"
	"sync/atomic"
)

// Action is a self-contained unit of state-changing work. Concrete actions
// embed Base and implement Reduce; the remaining lifecycle hooks (Before,
// After, WrapError, AbortDispatch, AbortReduce, NonReentrant, RetryPolicy)
// are optional interfaces the engine detects by assertion.
//
// Actions are dispatched as pointers and each instance may be dispatched
// exactly once. A second dispatch of the same instance fails with
// ErrAlreadyDispatched.
type Action[S any] interface {
	// Reduce computes the action's effect on the state. See Reduction for
	// the synchronous and deferred variants.
	Reduce() Reduction[S]

	// anchor seals the interface: embedding Base is the only way to
	// implement it, which gives the engine a place for per-dispatch state.
	anchor() *anchor[S]
}

// BeforeHook runs first, before Reduce. A Done(err) Effect with non-nil err
// marks the attempt failed and skips Reduce; retry never applies to Before
// failures.
type BeforeHook interface {
	Before() Effect
}

// AfterHook always runs exactly once, success or failure, right before the
// dispatch resolves. It is synchronous; panics are logged and swallowed and
// never overwrite the status errors.
type AfterHook interface {
	After()
}

// ErrorWrapper lets an action transform errors surfaced by its Before or
// Reduce before the store-level wrap runs. Returning nil suppresses the
// error entirely: no rethrow, no failed-action registration, no dialog.
type ErrorWrapper interface {
	WrapError(err error) error
}

// DispatchAborter is consulted once, before Before runs. Returning true
// drops the whole dispatch silently: no hook runs and the action's status
// stays untouched.
type DispatchAborter interface {
	AbortDispatch() bool
}

// ReduceAborter is consulted once Reduce produced a candidate state, before
// it is applied. Returning true discards the candidate as if Reduce had
// returned NoChange; After still runs. The predicate executes under the
// engine lock and must not call back into the store.
type ReduceAborter[S any] interface {
	AbortReduce(candidate S) bool
}

// NonReentrant marks an action type that must not overlap itself: when an
// action of the exact same type is already in progress, the new dispatch is
// dropped silently before Before runs.
type NonReentrant interface {
	NonReentrant() bool
}

// Retrying opts an action into retry. The returned options are merged over
// the store's configured defaults at injection time; enabling retry makes
// the action asynchronous even when it succeeds on the first attempt.
type Retrying interface {
	RetryPolicy() RetryOptions
}

// anchor is the engine-owned, per-dispatch state of an action. It is
// allocated by embedding Base and populated at injection. All fields except
// dispatched and the post-close final/id are guarded by the store mutex.
type anchor[S any] struct {
	dispatched atomic.Bool

	store   *Store[S]
	id      string
	initial S
	status  Status
	order   int
	retry   *retryState
	removed bool

	// done closes exactly once per dispatch, aborts included, after final
	// holds the terminal status.
	done  chan struct{}
	final Status
}

// Base carries the engine-facing state of an action. Embed it by value in
// every concrete action type:
//
//	type Increment struct {
//		store.Base[AppState]
//		Amount int
//	}
//
//	func (a *Increment) Reduce() store.Reduction[AppState] {
//		s := a.State()
//		s.Count += a.Amount
//		return store.Update(s)
//	}
type Base[S any] struct {
	an anchor[S]
}

func (b *Base[S]) anchor() *anchor[S] {
	return &b.an
}

// Store returns the store this action was dispatched into. It panics with
// ErrNotDispatched before injection.
func (b *Base[S]) Store() *Store[S] {
	if b.an.store == nil {
		panic(ErrNotDispatched)
	}
	return b.an.store
}

// State returns the store's current state, read live. Inside a deferred
// reduction this may differ from InitialState if other actions interleaved.
func (b *Base[S]) State() S {
	return b.Store().State()
}

// InitialState returns the snapshot captured at the moment this action was
// injected into the store.
func (b *Base[S]) InitialState() S {
	if b.an.store == nil {
		panic(ErrNotDispatched)
	}
	return b.an.initial
}

// Status returns the action's current lifecycle snapshot. Before dispatch it
// is the zero Status.
func (b *Base[S]) Status() Status {
	st := b.an.store
	if st == nil {
		return Status{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return b.an.status
}

// Attempts returns how many reduce attempts have failed so far under retry.
// Zero when retry is off or no attempt failed yet.
func (b *Base[S]) Attempts() int {
	st := b.an.store
	if st == nil || b.an.retry == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return b.an.retry.attempts
}

// DispatchID returns the unique id assigned to this dispatch, or "" before
// injection. The id is surfaced in observability events.
func (b *Base[S]) DispatchID() string {
	return b.an.id
}

// ActionType returns the registry key for action type A: the reflect.Type
// of *A, the form actions take when dispatched. Instantiate it with the bare
// struct type, e.g. ActionType[SaveUser]().
func ActionType[A any]() reflect.Type {
	t := reflect.TypeOf((*A)(nil)).Elem()
	if t.Kind() != reflect.Pointer {
		t = reflect.PointerTo(t)
	}
	return t
}
