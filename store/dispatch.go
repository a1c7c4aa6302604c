package store

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/stateloop/stateloop/observability"
)

// dispatchMode distinguishes the three entry points. The lifecycle itself is
// mode-agnostic; the mode only decides what happens when a deferred step is
// encountered and what the entry point returns.
type dispatchMode int

const (
	modeFire dispatchMode = iota // Dispatch: return after the synchronous prefix
	modeWait                     // DispatchAndWait: block until resolved
	modeSync                     // DispatchSync: fail if anything defers
)

// Dispatch submits an action for execution and returns once its synchronous
// prefix ran: for a fully synchronous action the state change is visible
// before Dispatch returns, for an asynchronous one the lifecycle continues
// in the background.
//
// The returned error is a contract violation (ErrAlreadyDispatched) or, for
// synchronously completed actions, the wrapped action error when the error
// pipeline decided to rethrow it. Errors surfacing after an asynchronous
// boundary are reported through the error observer, the failed-action
// registry, and the store logger instead.
func (st *Store[S]) Dispatch(a Action[S]) error {
	_, err := st.dispatch(context.Background(), a, modeFire)
	return err
}

// DispatchAndWait dispatches the action and blocks until its lifecycle
// resolves, After included, returning the terminal Status. Success and
// failure are reported through the Status; the error return is reserved for
// contract violations, context cancellation, and synchronously rethrown
// action errors.
//
// Cancelling ctx abandons the wait, not the action: dispatch itself has no
// cancellation primitive.
func (st *Store[S]) DispatchAndWait(ctx context.Context, a Action[S]) (Status, error) {
	return st.dispatch(ctx, a, modeWait)
}

// DispatchSync dispatches an action that must complete synchronously. If
// Before or Reduce defers, or retry is enabled (retry always implies an
// asynchronous boundary), it fails with ErrMustBeSync and the state is
// untouched.
func (st *Store[S]) DispatchSync(a Action[S]) (Status, error) {
	return st.dispatch(context.Background(), a, modeSync)
}

// run carries one dispatch through the lifecycle. Continuations after an
// asynchronous boundary reuse the same methods with async set, which flips
// rethrow handling from "return to caller" to "log".
type run[S any] struct {
	st    *Store[S]
	a     Action[S]
	an    *anchor[S]
	mode  dispatchMode
	async bool

	rethrow error // wrapped error to surface to a synchronous caller
	syncErr error // ErrMustBeSync detected mid-lifecycle
}

// dispatch validates and injects the action, applies the gates, then drives
// the state machine as far as it can on the caller's goroutine.
func (st *Store[S]) dispatch(ctx context.Context, a Action[S], mode dispatchMode) (Status, error) {
	a, ok := st.substituteMock(a)
	if !ok {
		st.emitDropped(nil, "mock")
		return Status{}, nil
	}

	an := a.anchor()
	if !an.dispatched.CompareAndSwap(false, true) {
		return Status{}, fmt.Errorf("%w: %s", ErrAlreadyDispatched, typeName(a))
	}

	// Retry wraps Reduce in at least one await, so a sync dispatch of a
	// retrying action fails before any side effect.
	if mode == modeSync {
		if _, retries := a.(Retrying); retries {
			return Status{}, fmt.Errorf("%w: %s has retry enabled", ErrMustBeSync, typeName(a))
		}
	}

	st.mu.Lock()
	an.store = st
	an.id = uuid.New().String()
	an.initial = st.state
	an.done = make(chan struct{})
	if r, retries := a.(Retrying); retries {
		an.retry = newRetryState(r.RetryPolicy(), st.cfg.Retry)
	}
	st.mu.Unlock()

	// Gates: either drops the dispatch with no status change at all.
	if ab, isAborter := a.(DispatchAborter); isAborter && ab.AbortDispatch() {
		st.resolveSkipped(an)
		st.emitDropped(a, "abort_dispatch")
		return an.final, nil
	}
	if nr, isNR := a.(NonReentrant); isNR && nr.NonReentrant() {
		t := reflect.TypeOf(a)
		st.mu.Lock()
		dup := st.typeInProgressLocked(t)
		st.mu.Unlock()
		if dup {
			st.resolveSkipped(an)
			st.emitDropped(a, "non_reentrant")
			return an.final, nil
		}
	}

	// The type's failed entry clears when a new dispatch of it starts.
	st.failed.Delete(reflect.TypeOf(a))

	st.mu.Lock()
	st.dispatchCount++
	an.order = st.dispatchCount
	an.status.Dispatched = true
	st.inProgress[an] = a
	st.checkActionCondsLocked(a)
	st.mu.Unlock()

	st.emit(EventDispatchStart, observability.LevelVerbose, a, nil)
	if st.actionObserver != nil {
		st.actionObserver(a, an.order, true)
	}

	r := &run[S]{st: st, a: a, an: an, mode: mode}
	r.beforePhase()

	if r.syncErr != nil {
		return r.statusNow(), r.syncErr
	}

	if mode == modeWait {
		select {
		case <-an.done:
			return an.final, r.rethrow
		case <-ctx.Done():
			return r.statusNow(), ctx.Err()
		}
	}

	select {
	case <-an.done:
		return an.final, r.rethrow
	default:
		return r.statusNow(), nil
	}
}

// beforePhase runs the optional Before hook and hands over to the reduce
// phase. An asynchronous Before moves the rest of the lifecycle onto its
// own goroutine.
func (r *run[S]) beforePhase() {
	bh, hasBefore := r.a.(BeforeHook)
	if !hasBefore {
		r.st.updateStatus(r.an, func(s Status) Status {
			s.FinishedBefore = true
			return s
		})
		r.reducePhase()
		return
	}

	eff := bh.Before()
	if eff.run != nil {
		if r.mode == modeSync {
			r.cancelSync("Before deferred")
			return
		}
		go func() {
			r.async = true
			err := eff.run(context.Background())
			r.afterBefore(err)
		}()
		return
	}
	r.afterBefore(eff.err)
}

func (r *run[S]) afterBefore(err error) {
	if err != nil {
		r.fail(err)
		r.afterPhase()
		return
	}
	r.st.updateStatus(r.an, func(s Status) Status {
		s.FinishedBefore = true
		return s
	})
	r.reducePhase()
}

// reducePhase evaluates Reduce. Retry forces the asynchronous path even
// when every attempt would have been synchronous; otherwise the Reduction
// variant actually returned decides the path.
//
// reduceMu is held from the Reduce call through the application of a
// synchronous candidate, so a reducer that reads the state, computes, and
// returns Update acts as one atomic step even when dispatches race. A
// deferred reduction releases it immediately; its updater runs against the
// live state under the engine lock instead.
func (r *run[S]) reducePhase() {
	if r.an.retry != nil {
		if r.async {
			r.retryLoop()
			return
		}
		go func() {
			r.async = true
			r.retryLoop()
		}()
		return
	}

	st := r.st
	st.reduceMu.Lock()
	red := r.a.Reduce()
	if red.run != nil {
		st.reduceMu.Unlock()
		if r.mode == modeSync {
			r.cancelSync("Reduce deferred")
			return
		}
		if r.async {
			u, err := red.run(context.Background())
			r.finishReduce(u, err)
			return
		}
		go func() {
			r.async = true
			u, err := red.run(context.Background())
			r.finishReduce(u, err)
		}()
		return
	}
	if red.err != nil {
		st.reduceMu.Unlock()
		r.fail(red.err)
		r.afterPhase()
		return
	}
	r.applyReduce(red.updater())
	st.reduceMu.Unlock()
	r.afterPhase()
}

// updater collapses the synchronous Reduction variants into the deferred
// shape so applyReduce handles a single form.
func (red Reduction[S]) updater() Updater[S] {
	if red.state == nil {
		return nil
	}
	s := *red.state
	return func(S) (S, bool) { return s, true }
}

// retryLoop re-invokes Reduce with exponential backoff until an attempt
// succeeds or the budget is spent. Intermediate errors only bump the
// attempt counter; the final error propagates normally. Always runs after
// an asynchronous boundary. Synchronous attempts hold reduceMu exactly as
// the non-retry path does.
func (r *run[S]) retryLoop() {
	st := r.st
	rs := r.an.retry
	for {
		st.reduceMu.Lock()
		red := r.a.Reduce()
		var err error
		if red.run != nil {
			st.reduceMu.Unlock()
			var u Updater[S]
			u, err = red.run(context.Background())
			if err == nil {
				r.finishReduce(u, nil)
				return
			}
		} else if red.err == nil {
			r.applyReduce(red.updater())
			st.reduceMu.Unlock()
			r.afterPhase()
			return
		} else {
			st.reduceMu.Unlock()
			err = red.err
		}

		st.mu.Lock()
		rs.attempts++
		exhausted := rs.exhausted()
		var delay time.Duration
		if !exhausted {
			delay = rs.nextDelay()
		}
		attempts := rs.attempts
		st.mu.Unlock()

		if exhausted {
			r.fail(err)
			r.afterPhase()
			return
		}

		st.emit(EventRetryWait, observability.LevelVerbose, r.a, map[string]any{
			"attempts": attempts,
			"delay":    delay.String(),
		})
		time.Sleep(delay)
	}
}

// finishReduce closes out a reduce attempt that resolved after an
// asynchronous boundary.
func (r *run[S]) finishReduce(u Updater[S], err error) {
	if err != nil {
		r.fail(err)
		r.afterPhase()
		return
	}
	r.applyReduce(u)
	r.afterPhase()
}

// applyReduce marks Reduce finished and applies the candidate state under
// the engine lock, with AbortReduce consulted on the final candidate.
//
// On a real state change the action leaves the in-progress set before After
// runs, so IsWaiting turns false the moment the new state is visible.
func (r *run[S]) applyReduce(u Updater[S]) {
	st := r.st
	st.mu.Lock()
	r.an.status.FinishedReduce = true

	var candidate *S
	if u != nil {
		if c, changed := u(st.state); changed {
			candidate = &c
		}
	}
	if candidate != nil {
		if ab, isAborter := r.a.(ReduceAborter[S]); isAborter && ab.AbortReduce(*candidate) {
			candidate = nil
		}
	}
	if candidate == nil {
		st.mu.Unlock()
		return
	}

	prev := st.state
	st.state = *candidate
	next := st.state
	delete(st.inProgress, r.an)
	r.an.removed = true
	st.checkActionCondsLocked(r.a)
	st.checkStateCondsLocked()
	order := r.an.order
	st.mu.Unlock()

	if st.persistence != nil {
		st.persistence.Notify(next)
	}
	if st.stateObserver != nil {
		st.stateObserver(r.a, prev, next, nil, order)
	}
	st.emit(EventStateChange, observability.LevelVerbose, r.a, nil)
}

// fail runs the error pipeline of a Before or Reduce error: record the
// original error, notify the state observer with an unchanged state, apply
// the action's own WrapError then the store's global wrap (nil suppresses
// everything), record the wrapped error, register the failure, queue a
// dialog when requested, and decide whether to rethrow.
func (r *run[S]) fail(err error) {
	st := r.st

	st.mu.Lock()
	r.an.status.OriginalError = err
	cur := st.state
	order := r.an.order
	st.mu.Unlock()

	if st.stateObserver != nil {
		st.stateObserver(r.a, cur, cur, err, order)
	}

	wrapped := err
	if w, wraps := r.a.(ErrorWrapper); wraps {
		wrapped = w.WrapError(wrapped)
	}
	if wrapped != nil && st.globalWrapError != nil {
		wrapped = st.globalWrapError(wrapped, r.a)
	}
	if wrapped == nil {
		return
	}

	st.mu.Lock()
	r.an.status.WrappedError = wrapped
	st.mu.Unlock()
	st.failed.Store(reflect.TypeOf(r.a), r.a)

	ue, isUser := AsUserError(wrapped)
	if isUser && ue.Dialog {
		st.dialog.enqueue(ue)
	}

	rethrow := !isUser
	if st.errorObserver != nil {
		rethrow = st.errorObserver(wrapped, r.a, st)
	}

	st.emit(EventActionError, observability.LevelWarning, r.a, map[string]any{
		"error":      wrapped.Error(),
		"user_error": isUser,
	})

	if !rethrow {
		return
	}
	if r.async {
		// The caller returned long ago; this is the Go analogue of an
		// unhandled rejection.
		st.logger.Error("unhandled dispatch error",
			"action", typeName(r.a),
			"dispatch_id", r.an.id,
			"err", wrapped)
		return
	}
	r.rethrow = wrapped
}

// afterPhase always runs exactly once per lifecycle: remove the action from
// the in-progress set if the early removal did not already, run After with
// panics logged and swallowed, freeze the status, notify, and resolve the
// completion handle.
func (r *run[S]) afterPhase() {
	st := r.st

	st.mu.Lock()
	if !r.an.removed {
		delete(st.inProgress, r.an)
		r.an.removed = true
		st.checkActionCondsLocked(r.a)
	}
	st.mu.Unlock()

	if ah, hasAfter := r.a.(AfterHook); hasAfter {
		func() {
			defer func() {
				if p := recover(); p != nil {
					st.logger.Error("after hook panicked",
						"action", typeName(r.a),
						"dispatch_id", r.an.id,
						"panic", p)
				}
			}()
			ah.After()
		}()
	}

	st.mu.Lock()
	r.an.status.FinishedAfter = true
	final := r.an.status
	order := r.an.order
	st.mu.Unlock()

	if st.actionObserver != nil {
		st.actionObserver(r.a, order, false)
	}
	st.emit(EventDispatchComplete, observability.LevelVerbose, r.a, map[string]any{
		"ok": final.IsCompletedOK(),
	})

	r.an.final = final
	close(r.an.done)
}

// cancelSync unwinds a DispatchSync that turned out asynchronous: the state
// is guaranteed untouched, the bookkeeping is rolled back, and the
// completion handle resolves so waiters never hang.
func (r *run[S]) cancelSync(what string) {
	st := r.st
	st.mu.Lock()
	if !r.an.removed {
		delete(st.inProgress, r.an)
		r.an.removed = true
		st.checkActionCondsLocked(r.a)
	}
	r.an.final = r.an.status
	st.mu.Unlock()
	close(r.an.done)
	r.syncErr = fmt.Errorf("%w: %s %s", ErrMustBeSync, typeName(r.a), what)
}

func (r *run[S]) statusNow() Status {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	return r.an.status
}

// resolveSkipped resolves the completion handle of a dispatch dropped by a
// gate. The status stays untouched: the action never reached any state.
func (st *Store[S]) resolveSkipped(an *anchor[S]) {
	st.mu.Lock()
	an.final = an.status
	st.mu.Unlock()
	close(an.done)
}

func typeName[S any](a Action[S]) string {
	return reflect.TypeOf(a).String()
}
