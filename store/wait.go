package store

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

// waitOptions resolve per call; the timeout default comes from Config and
// the already-true behaviour defaults differ per primitive (see
// WaitCondition and WaitActionCondition).
type waitOptions struct {
	timeout   time.Duration
	immediate bool
}

// WaitOption customizes a single wait call.
type WaitOption func(*waitOptions)

// WithTimeout overrides the store's configured wait deadline for one call.
func WithTimeout(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.timeout = d }
}

// CompletedImmediately makes a wait whose predicate is already true resolve
// immediately instead of failing with ErrConditionAlreadyMet.
func CompletedImmediately() WaitOption {
	return func(o *waitOptions) { o.immediate = true }
}

// RequirePending makes a wait whose predicate is already true fail with
// ErrConditionAlreadyMet instead of resolving immediately.
func RequirePending() WaitOption {
	return func(o *waitOptions) { o.immediate = false }
}

func (st *Store[S]) waitOpts(immediate bool, opts []WaitOption) waitOptions {
	o := waitOptions{timeout: st.cfg.WaitTimeout, immediate: immediate}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = defaultWaitTimeout
	}
	return o
}

// stateCond is a registered predicate over state snapshots. The channel is
// buffered so the engine never blocks resolving it; gone marks entries
// abandoned by a timed-out waiter for lazy removal.
type stateCond[S any] struct {
	pred func(S) bool
	ch   chan S
	gone bool
}

// actionCond is a registered predicate over the in-progress set. trigger is
// the action whose set transition caused the re-check, nil at registration.
type actionCond[S any] struct {
	pred func(actions []Action[S], trigger Action[S]) bool
	ch   chan struct{}
	gone bool
}

// checkStateCondsLocked re-evaluates every state condition against the
// current state, resolving and removing the satisfied ones. Runs under the
// store mutex immediately after each state application.
func (st *Store[S]) checkStateCondsLocked() {
	if len(st.stateConds) == 0 {
		return
	}
	kept := st.stateConds[:0]
	for _, e := range st.stateConds {
		if e.gone {
			continue
		}
		if e.pred(st.state) {
			e.ch <- st.state
			continue
		}
		kept = append(kept, e)
	}
	st.stateConds = kept
}

// checkActionCondsLocked re-evaluates every action condition against a
// snapshot of the in-progress set. Runs under the store mutex after every
// add to and remove from the set, early removals included.
func (st *Store[S]) checkActionCondsLocked(trigger Action[S]) {
	if len(st.actionConds) == 0 {
		return
	}
	snapshot := st.actionsLocked()
	kept := st.actionConds[:0]
	for _, e := range st.actionConds {
		if e.gone {
			continue
		}
		if e.pred(snapshot, trigger) {
			e.ch <- struct{}{}
			continue
		}
		kept = append(kept, e)
	}
	st.actionConds = kept
}

// WaitCondition blocks until a dispatched action makes pred(state) true and
// returns the state that satisfied it. When the predicate is already true it
// resolves immediately (override with RequirePending). The deadline is the
// store's configured wait timeout unless WithTimeout is given; on expiry it
// fails with ErrWaitTimeout. The predicate runs under the engine lock and
// must be pure.
func (st *Store[S]) WaitCondition(ctx context.Context, pred func(S) bool, opts ...WaitOption) (S, error) {
	var zero S
	o := st.waitOpts(true, opts)

	st.mu.Lock()
	if pred(st.state) {
		s := st.state
		st.mu.Unlock()
		if o.immediate {
			return s, nil
		}
		return zero, ErrConditionAlreadyMet
	}
	e := &stateCond[S]{pred: pred, ch: make(chan S, 1)}
	st.stateConds = append(st.stateConds, e)
	st.mu.Unlock()

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	select {
	case s := <-e.ch:
		return s, nil
	case <-ctx.Done():
		if s, ok := st.abandonStateCond(e); ok {
			return s, nil
		}
		return zero, ctx.Err()
	case <-timer.C:
		if s, ok := st.abandonStateCond(e); ok {
			return s, nil
		}
		return zero, fmt.Errorf("%w after %v", ErrWaitTimeout, o.timeout)
	}
}

// abandonStateCond marks the entry for removal and drains a resolution that
// raced with the timeout, so a satisfied condition is never reported as
// timed out.
func (st *Store[S]) abandonStateCond(e *stateCond[S]) (S, bool) {
	st.mu.Lock()
	e.gone = true
	st.mu.Unlock()
	select {
	case s := <-e.ch:
		return s, true
	default:
		var zero S
		return zero, false
	}
}

// WaitActionCondition blocks until a transition of the in-progress set makes
// the predicate true. The predicate receives a snapshot of the set and the
// action whose start or finish triggered the re-check (nil for the
// registration-time check). A predicate that is already true fails with
// ErrConditionAlreadyMet unless CompletedImmediately is given, since such a
// wait cannot usefully be awaited.
//
// The higher-level helpers (WaitAllActions, WaitActionType, WaitAnyOf) are
// all expressed through this primitive.
func (st *Store[S]) WaitActionCondition(ctx context.Context, pred func(actions []Action[S], trigger Action[S]) bool, opts ...WaitOption) error {
	o := st.waitOpts(false, opts)

	st.mu.Lock()
	if pred(st.actionsLocked(), nil) {
		st.mu.Unlock()
		if o.immediate {
			return nil
		}
		return ErrConditionAlreadyMet
	}
	e := &actionCond[S]{pred: pred, ch: make(chan struct{}, 1)}
	st.actionConds = append(st.actionConds, e)
	st.mu.Unlock()

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	select {
	case <-e.ch:
		return nil
	case <-ctx.Done():
		if st.abandonActionCond(e) {
			return nil
		}
		return ctx.Err()
	case <-timer.C:
		if st.abandonActionCond(e) {
			return nil
		}
		return fmt.Errorf("%w after %v", ErrWaitTimeout, o.timeout)
	}
}

func (st *Store[S]) abandonActionCond(e *actionCond[S]) bool {
	st.mu.Lock()
	e.gone = true
	st.mu.Unlock()
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// WaitAllActions blocks until none of the given action instances is in
// progress. With an empty slice it waits for the whole in-progress set to
// drain. Resolves immediately when already satisfied.
func (st *Store[S]) WaitAllActions(ctx context.Context, actions []Action[S], opts ...WaitOption) error {
	opts = append([]WaitOption{CompletedImmediately()}, opts...)
	return st.WaitActionCondition(ctx, func(inProgress []Action[S], _ Action[S]) bool {
		if len(actions) == 0 {
			return len(inProgress) == 0
		}
		for _, w := range actions {
			for _, p := range inProgress {
				if p == w {
					return false
				}
			}
		}
		return true
	}, opts...)
}

// WaitActionTypes blocks until no action of any of the given types is in
// progress. Resolves immediately when already satisfied.
func (st *Store[S]) WaitActionTypes(ctx context.Context, types []reflect.Type, opts ...WaitOption) error {
	opts = append([]WaitOption{CompletedImmediately()}, opts...)
	return st.WaitActionCondition(ctx, func(inProgress []Action[S], _ Action[S]) bool {
		for _, p := range inProgress {
			t := reflect.TypeOf(p)
			for _, w := range types {
				if t == w {
					return false
				}
			}
		}
		return true
	}, opts...)
}

// WaitAnyOf blocks until an action of any of the given types finishes at
// least once after this call. It never resolves at registration time: only
// a finish observed later satisfies it.
func (st *Store[S]) WaitAnyOf(ctx context.Context, types []reflect.Type, opts ...WaitOption) error {
	return st.WaitActionCondition(ctx, func(inProgress []Action[S], trigger Action[S]) bool {
		if trigger == nil {
			return false
		}
		t := reflect.TypeOf(trigger)
		match := false
		for _, w := range types {
			if t == w {
				match = true
				break
			}
		}
		if !match {
			return false
		}
		for _, p := range inProgress {
			if p == trigger {
				return false
			}
		}
		return true
	}, opts...)
}

// WaitActionType blocks until no action of type A is in progress.
func WaitActionType[A any, S any](ctx context.Context, st *Store[S], opts ...WaitOption) error {
	return st.WaitActionTypes(ctx, []reflect.Type{ActionType[A]()}, opts...)
}
