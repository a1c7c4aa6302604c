// Package store implements a typed application state container with an
// action dispatch engine. All state changes flow through dispatched actions;
// each action runs a fixed lifecycle (Before, Reduce, After) with engine-level
// error handling, retry, wait conditions, mock substitution, and a registry of
// failed actions.
//
// The state type S is treated as immutable: reducers receive a copy and
// return a new value, never mutate shared data in place. The store serializes
// all bookkeeping behind one mutex while user hooks run outside it, so
// synchronous actions observe strictly ordered state transitions and
// asynchronous actions interleave only at their deferred boundaries.
package store

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/stateloop/stateloop/observability"
)

// StateObserver is called once per applied state change with the previous and
// new state, and once per failed dispatch with prev == next and the original
// error. Dispatches whose reducer left the state untouched are not reported.
// It runs outside the engine lock and must not dispatch synchronously into
// the same store.
type StateObserver[S any] func(a Action[S], prev, next S, err error, dispatchCount int)

// ActionObserver is called when an action enters the lifecycle (starting =
// true) and again when it resolves (starting = false). Useful for spinners
// and dispatch tracing.
type ActionObserver[S any] func(a Action[S], dispatchCount int, starting bool)

// ErrorObserver decides what happens to a wrapped action error after it was
// recorded. Returning true surfaces the error to the dispatcher (or the log,
// for asynchronous actions); returning false swallows it. When no observer is
// installed the default is to surface everything except *UserError.
type ErrorObserver[S any] func(err error, a Action[S], st *Store[S]) bool

// WrapErrorFunc is the store-global error transform, applied after the
// action's own WrapError. Returning nil suppresses the error entirely.
type WrapErrorFunc[S any] func(err error, a Action[S]) error

// Persistence receives every applied state so it can be saved out-of-band.
// *persist.Process implements it.
type Persistence[S any] interface {
	Notify(state S)
}

// Store holds the application state and runs the dispatch lifecycle.
// Create one with New; the zero value is not usable.
type Store[S any] struct {
	mu    sync.Mutex
	state S

	// reduceMu serializes each synchronous reducer's state read with the
	// application of its candidate, so Update-style reducers are atomic
	// read-modify-write even when dispatches race across goroutines.
	// Deferred reductions do not hold it; their updaters run against the
	// live state under mu instead.
	reduceMu sync.Mutex

	cfg      Config
	observer observability.Observer
	logger   *slog.Logger

	inProgress    map[*anchor[S]]Action[S]
	dispatchCount int

	stateConds  []*stateCond[S]
	actionConds []*actionCond[S]

	failed *xsync.MapOf[reflect.Type, Action[S]]
	mocks  *xsync.MapOf[reflect.Type, MockFunc[S]]

	dialog dialogQueue

	persistence     Persistence[S]
	stateObserver   StateObserver[S]
	actionObserver  ActionObserver[S]
	errorObserver   ErrorObserver[S]
	globalWrapError WrapErrorFunc[S]
}

// Option configures a Store at construction time.
type Option[S any] func(*Store[S])

// WithConfig replaces the default Config.
func WithConfig[S any](cfg Config) Option[S] {
	return func(st *Store[S]) { st.cfg = cfg }
}

// WithObserver injects an observability observer directly, bypassing the
// named registry lookup driven by Config.Observer.
func WithObserver[S any](obs observability.Observer) Option[S] {
	return func(st *Store[S]) { st.observer = obs }
}

// WithLogger replaces the logger used for unhandled asynchronous errors and
// swallowed After panics. Defaults to slog.Default.
func WithLogger[S any](l *slog.Logger) Option[S] {
	return func(st *Store[S]) { st.logger = l }
}

// WithStateObserver installs the state observer.
func WithStateObserver[S any](f StateObserver[S]) Option[S] {
	return func(st *Store[S]) { st.stateObserver = f }
}

// WithActionObserver installs the action observer.
func WithActionObserver[S any](f ActionObserver[S]) Option[S] {
	return func(st *Store[S]) { st.actionObserver = f }
}

// WithErrorObserver installs the error observer.
func WithErrorObserver[S any](f ErrorObserver[S]) Option[S] {
	return func(st *Store[S]) { st.errorObserver = f }
}

// WithWrapError installs the store-global error transform.
func WithWrapError[S any](f WrapErrorFunc[S]) Option[S] {
	return func(st *Store[S]) { st.globalWrapError = f }
}

// WithUserErrorDialog installs the presenter for *UserError values carrying
// Dialog. Without one, dialog errors queue until SetUserErrorDialog
// installs a presenter.
func WithUserErrorDialog[S any](show UserErrorDialog) Option[S] {
	return func(st *Store[S]) { st.dialog.show = show }
}

// WithPersistence installs the persistence sink notified after every applied
// state change.
func WithPersistence[S any](p Persistence[S]) Option[S] {
	return func(st *Store[S]) { st.persistence = p }
}

// New creates a Store holding initial. When no observer is injected, the one
// named by Config.Observer is resolved from the observability registry,
// falling back to noop for unknown names.
func New[S any](initial S, opts ...Option[S]) *Store[S] {
	st := &Store[S]{
		state:      initial,
		cfg:        DefaultConfig(),
		inProgress: make(map[*anchor[S]]Action[S]),
		failed:     xsync.NewMapOf[reflect.Type, Action[S]](),
		mocks:      xsync.NewMapOf[reflect.Type, MockFunc[S]](),
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.logger == nil {
		st.logger = slog.Default()
	}
	if st.observer == nil {
		obs, err := observability.GetObserver(st.cfg.Observer)
		if err != nil {
			obs = observability.NoOpObserver{}
		}
		st.observer = obs
	}
	return st
}

// State returns the current state value.
func (st *Store[S]) State() S {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// DispatchCount returns how many dispatches passed their gates since the
// store was created.
func (st *Store[S]) DispatchCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dispatchCount
}

// ActionsInProgress returns a snapshot of the actions currently between
// dispatch and resolution. An action that already applied its state change
// but has not finished After is no longer in the set.
func (st *Store[S]) ActionsInProgress() []Action[S] {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.actionsLocked()
}

func (st *Store[S]) actionsLocked() []Action[S] {
	out := make([]Action[S], 0, len(st.inProgress))
	for _, a := range st.inProgress {
		out = append(out, a)
	}
	return out
}

// IsWaitingType reports whether any action of the given type is in progress.
func (st *Store[S]) IsWaitingType(t reflect.Type) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.typeInProgressLocked(t)
}

func (st *Store[S]) typeInProgressLocked(t reflect.Type) bool {
	for _, a := range st.inProgress {
		if reflect.TypeOf(a) == t {
			return true
		}
	}
	return false
}

// IsWaiting reports whether any action of type A is in progress.
func IsWaiting[A any, S any](st *Store[S]) bool {
	return st.IsWaitingType(ActionType[A]())
}

// SetUserErrorDialog replaces the dialog presenter at runtime. Errors queue
// whether or not a presenter is installed; installing one presents the
// backlog in arrival order. Passing nil pauses presentation without
// dropping the queue.
func (st *Store[S]) SetUserErrorDialog(show UserErrorDialog) {
	st.dialog.setShow(show)
}

// updateStatus applies a status transition under the engine lock, replacing
// the value wholesale.
func (st *Store[S]) updateStatus(an *anchor[S], f func(Status) Status) {
	st.mu.Lock()
	an.status = f(an.status)
	st.mu.Unlock()
}

// emit sends an observability event for a dispatched action, tagging it with
// the concrete action type and the dispatch id.
func (st *Store[S]) emit(t observability.EventType, lvl observability.Level, a Action[S], data map[string]any) {
	if data == nil {
		data = make(map[string]any, 2)
	}
	data["action"] = reflect.TypeOf(a).String()
	data["dispatch_id"] = a.anchor().id
	st.observer.OnEvent(context.Background(), observability.Event{
		Type:      t,
		Level:     lvl,
		Timestamp: time.Now(),
		Source:    "store",
		Data:      data,
	})
}

// emitDropped reports a dispatch short-circuited before the lifecycle began.
// a is nil when a mock substitution swallowed the dispatch.
func (st *Store[S]) emitDropped(a Action[S], reason string) {
	data := map[string]any{"reason": reason}
	if a != nil {
		data["action"] = reflect.TypeOf(a).String()
	}
	st.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventDispatchDropped,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "store",
		Data:      data,
	})
}
