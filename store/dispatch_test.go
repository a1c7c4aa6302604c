package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stateloop/stateloop/store"
)

type counterState struct {
	Count int
	Label string
}

// addAction is the minimal synchronous action: no optional hooks.
type addAction struct {
	store.Base[counterState]
	N int
}

func (a *addAction) Reduce() store.Reduction[counterState] {
	s := a.State()
	s.Count += a.N
	return store.Update(s)
}

// asyncAdd reduces on its own goroutine after an optional delay.
type asyncAdd struct {
	store.Base[counterState]
	N     int
	Delay time.Duration
}

func (a *asyncAdd) Reduce() store.Reduction[counterState] {
	return store.Deferred(func(ctx context.Context) (store.Updater[counterState], error) {
		if a.Delay > 0 {
			time.Sleep(a.Delay)
		}
		return func(cur counterState) (counterState, bool) {
			cur.Count += a.N
			return cur, true
		}, nil
	})
}

// hookAction exposes every optional hook through configurable funcs so tests
// can exercise arbitrary lifecycle combinations.
type hookAction struct {
	store.Base[counterState]
	before        func() store.Effect
	reduce        func(a *hookAction) store.Reduction[counterState]
	after         func()
	abortDispatch bool
	nonReentrant  bool
	abortReduce   func(counterState) bool
	wrapErr       func(error) error
}

func (a *hookAction) Before() store.Effect {
	if a.before == nil {
		return store.Done(nil)
	}
	return a.before()
}

func (a *hookAction) Reduce() store.Reduction[counterState] {
	if a.reduce == nil {
		return store.NoChange[counterState]()
	}
	return a.reduce(a)
}

func (a *hookAction) After() {
	if a.after != nil {
		a.after()
	}
}

func (a *hookAction) AbortDispatch() bool { return a.abortDispatch }

func (a *hookAction) NonReentrant() bool { return a.nonReentrant }

func (a *hookAction) AbortReduce(candidate counterState) bool {
	if a.abortReduce == nil {
		return false
	}
	return a.abortReduce(candidate)
}

func (a *hookAction) WrapError(err error) error {
	if a.wrapErr == nil {
		return err
	}
	return a.wrapErr(err)
}

// recorder collects lifecycle checkpoints from concurrent goroutines.
type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

func TestDispatch_SyncActionAppliesBeforeReturn(t *testing.T) {
	st := store.New(counterState{})

	if err := st.Dispatch(&addAction{N: 5}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got := st.State().Count; got != 5 {
		t.Errorf("Count = %d, want 5", got)
	}
	if got := st.DispatchCount(); got != 1 {
		t.Errorf("DispatchCount = %d, want 1", got)
	}
}

func TestDispatch_SequentialSyncOrdering(t *testing.T) {
	st := store.New(counterState{})

	for i := 1; i <= 3; i++ {
		if err := st.Dispatch(&addAction{N: i}); err != nil {
			t.Fatalf("Dispatch %d failed: %v", i, err)
		}
	}
	if got := st.State().Count; got != 6 {
		t.Errorf("Count = %d, want 6", got)
	}
}

func TestDispatchAndWait_AsyncAction(t *testing.T) {
	st := store.New(counterState{})

	status, err := st.DispatchAndWait(context.Background(), &asyncAdd{N: 7, Delay: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("DispatchAndWait failed: %v", err)
	}
	if !status.IsCompletedOK() {
		t.Errorf("status = %+v, want completed OK", status)
	}
	if got := st.State().Count; got != 7 {
		t.Errorf("Count = %d, want 7", got)
	}
}

func TestDispatchAndWait_ContextCancelled(t *testing.T) {
	st := store.New(counterState{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.DispatchAndWait(ctx, &asyncAdd{N: 1, Delay: 50 * time.Millisecond})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	// The action keeps running; cancellation only abandoned the wait.
	if err := st.WaitAllActions(context.Background(), nil, store.WithTimeout(time.Second)); err != nil {
		t.Fatalf("WaitAllActions failed: %v", err)
	}
	if got := st.State().Count; got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}

func TestDispatch_SecondDispatchOfSameInstanceFails(t *testing.T) {
	st := store.New(counterState{})
	a := &addAction{N: 1}

	if err := st.Dispatch(a); err != nil {
		t.Fatalf("first Dispatch failed: %v", err)
	}
	if err := st.Dispatch(a); !errors.Is(err, store.ErrAlreadyDispatched) {
		t.Fatalf("second Dispatch err = %v, want ErrAlreadyDispatched", err)
	}
	if got := st.State().Count; got != 1 {
		t.Errorf("Count = %d, want 1 (second dispatch must not run)", got)
	}
}

func TestDispatch_LifecycleOrder(t *testing.T) {
	st := store.New(counterState{})
	rec := &recorder{}

	a := &hookAction{
		before: func() store.Effect {
			rec.add("before")
			return store.Done(nil)
		},
		reduce: func(a *hookAction) store.Reduction[counterState] {
			rec.add("reduce")
			s := a.State()
			s.Count++
			return store.Update(s)
		},
		after: func() { rec.add("after") },
	}

	status, err := st.DispatchAndWait(context.Background(), a)
	if err != nil {
		t.Fatalf("DispatchAndWait failed: %v", err)
	}

	want := []string{"before", "reduce", "after"}
	got := rec.get()
	if len(got) != len(want) {
		t.Fatalf("steps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("steps = %v, want %v", got, want)
		}
	}
	if !status.FinishedBefore || !status.FinishedReduce || !status.FinishedAfter {
		t.Errorf("status flags = %+v, want all finished", status)
	}
}

func TestDispatch_AsyncBefore(t *testing.T) {
	st := store.New(counterState{})
	rec := &recorder{}

	a := &hookAction{
		before: func() store.Effect {
			return store.Async(func(ctx context.Context) error {
				rec.add("before")
				return nil
			})
		},
		reduce: func(a *hookAction) store.Reduction[counterState] {
			rec.add("reduce")
			s := a.State()
			s.Count++
			return store.Update(s)
		},
	}

	if _, err := st.DispatchAndWait(context.Background(), a); err != nil {
		t.Fatalf("DispatchAndWait failed: %v", err)
	}
	got := rec.get()
	if len(got) != 2 || got[0] != "before" || got[1] != "reduce" {
		t.Fatalf("steps = %v, want [before reduce]", got)
	}
	if st.State().Count != 1 {
		t.Errorf("Count = %d, want 1", st.State().Count)
	}
}

func TestDispatch_AfterRunsOnFailure(t *testing.T) {
	st := store.New(counterState{}, store.WithErrorObserver[counterState](
		func(err error, a store.Action[counterState], s *store.Store[counterState]) bool {
			return false
		}))

	ran := false
	a := &hookAction{
		reduce: func(a *hookAction) store.Reduction[counterState] {
			return store.Fail[counterState](errors.New("boom"))
		},
		after: func() { ran = true },
	}

	status, err := st.DispatchAndWait(context.Background(), a)
	if err != nil {
		t.Fatalf("DispatchAndWait failed: %v", err)
	}
	if !ran {
		t.Error("After did not run on failure")
	}
	if !status.IsCompletedFailed() {
		t.Errorf("status = %+v, want completed failed", status)
	}
}

func TestDispatch_AbortDispatchDropsSilently(t *testing.T) {
	st := store.New(counterState{})

	a := &hookAction{
		abortDispatch: true,
		reduce: func(a *hookAction) store.Reduction[counterState] {
			t.Error("Reduce ran on aborted dispatch")
			return store.NoChange[counterState]()
		},
	}

	status, err := st.DispatchAndWait(context.Background(), a)
	if err != nil {
		t.Fatalf("DispatchAndWait failed: %v", err)
	}
	if status.Dispatched {
		t.Errorf("status = %+v, want untouched zero status", status)
	}
	if got := st.DispatchCount(); got != 0 {
		t.Errorf("DispatchCount = %d, want 0", got)
	}
}

func TestDispatch_NonReentrantDropsOverlap(t *testing.T) {
	st := store.New(counterState{})
	release := make(chan struct{})

	first := &hookAction{
		nonReentrant: true,
		reduce: func(a *hookAction) store.Reduction[counterState] {
			return store.Deferred(func(ctx context.Context) (store.Updater[counterState], error) {
				<-release
				return func(cur counterState) (counterState, bool) {
					cur.Count++
					return cur, true
				}, nil
			})
		},
	}
	if err := st.Dispatch(first); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	second := &hookAction{
		nonReentrant: true,
		reduce: func(a *hookAction) store.Reduction[counterState] {
			t.Error("overlapping non-reentrant action ran")
			return store.NoChange[counterState]()
		},
	}
	status, err := st.DispatchAndWait(context.Background(), second)
	if err != nil {
		t.Fatalf("DispatchAndWait failed: %v", err)
	}
	if status.Dispatched {
		t.Errorf("second dispatch status = %+v, want dropped", status)
	}

	close(release)
	if err := st.WaitAllActions(context.Background(), nil, store.WithTimeout(time.Second)); err != nil {
		t.Fatalf("WaitAllActions failed: %v", err)
	}
	if got := st.State().Count; got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}

func TestDispatch_AbortReduceDiscardsCandidate(t *testing.T) {
	st := store.New(counterState{})
	afterRan := false

	a := &hookAction{
		reduce: func(a *hookAction) store.Reduction[counterState] {
			s := a.State()
			s.Count = 99
			return store.Update(s)
		},
		abortReduce: func(candidate counterState) bool { return candidate.Count > 10 },
		after:       func() { afterRan = true },
	}

	status, err := st.DispatchAndWait(context.Background(), a)
	if err != nil {
		t.Fatalf("DispatchAndWait failed: %v", err)
	}
	if got := st.State().Count; got != 0 {
		t.Errorf("Count = %d, want 0 (candidate discarded)", got)
	}
	if !afterRan {
		t.Error("After skipped on aborted reduce")
	}
	if !status.IsCompletedOK() {
		t.Errorf("status = %+v, want completed OK", status)
	}
}

func TestDispatchSync_RejectsDeferredReduce(t *testing.T) {
	st := store.New(counterState{})

	_, err := st.DispatchSync(&asyncAdd{N: 1})
	if !errors.Is(err, store.ErrMustBeSync) {
		t.Fatalf("err = %v, want ErrMustBeSync", err)
	}
	if got := st.State().Count; got != 0 {
		t.Errorf("Count = %d, want 0 (state must stay untouched)", got)
	}
}

func TestDispatchSync_RejectsDeferredBefore(t *testing.T) {
	st := store.New(counterState{})

	a := &hookAction{
		before: func() store.Effect {
			return store.Async(func(ctx context.Context) error { return nil })
		},
	}
	if _, err := st.DispatchSync(a); !errors.Is(err, store.ErrMustBeSync) {
		t.Fatalf("err = %v, want ErrMustBeSync", err)
	}
}

func TestDispatchSync_SyncActionSucceeds(t *testing.T) {
	st := store.New(counterState{})

	status, err := st.DispatchSync(&addAction{N: 3})
	if err != nil {
		t.Fatalf("DispatchSync failed: %v", err)
	}
	if !status.IsCompletedOK() {
		t.Errorf("status = %+v, want completed OK", status)
	}
	if got := st.State().Count; got != 3 {
		t.Errorf("Count = %d, want 3", got)
	}
}

func TestDispatch_IsWaitingDuringAsyncAction(t *testing.T) {
	st := store.New(counterState{})
	release := make(chan struct{})

	blocked := &hookAction{
		reduce: func(a *hookAction) store.Reduction[counterState] {
			return store.Deferred(func(ctx context.Context) (store.Updater[counterState], error) {
				<-release
				return nil, nil
			})
		},
	}

	if err := st.Dispatch(blocked); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !store.IsWaiting[hookAction](st) {
		t.Error("IsWaiting = false, want true while action is in flight")
	}

	close(release)
	if err := st.WaitAllActions(context.Background(), nil, store.WithTimeout(time.Second)); err != nil {
		t.Fatalf("WaitAllActions failed: %v", err)
	}
	if store.IsWaiting[hookAction](st) {
		t.Error("IsWaiting = true after completion")
	}
}

func TestDispatch_StateObserverSeesTransition(t *testing.T) {
	type seen struct {
		prev, next counterState
		err        error
	}
	var (
		mu      sync.Mutex
		changes []seen
	)

	st := store.New(counterState{}, store.WithStateObserver[counterState](
		func(a store.Action[counterState], prev, next counterState, err error, n int) {
			mu.Lock()
			changes = append(changes, seen{prev, next, err})
			mu.Unlock()
		}))

	if err := st.Dispatch(&addAction{N: 4}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 {
		t.Fatalf("observer called %d times, want 1", len(changes))
	}
	if changes[0].prev.Count != 0 || changes[0].next.Count != 4 || changes[0].err != nil {
		t.Errorf("observer saw %+v, want 0 -> 4, nil err", changes[0])
	}
}

func TestDispatch_ActionObserverStartAndFinish(t *testing.T) {
	var (
		mu     sync.Mutex
		starts int
		ends   int
	)
	st := store.New(counterState{}, store.WithActionObserver[counterState](
		func(a store.Action[counterState], n int, starting bool) {
			mu.Lock()
			if starting {
				starts++
			} else {
				ends++
			}
			mu.Unlock()
		}))

	if _, err := st.DispatchAndWait(context.Background(), &addAction{N: 1}); err != nil {
		t.Fatalf("DispatchAndWait failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if starts != 1 || ends != 1 {
		t.Errorf("starts = %d, ends = %d, want 1 and 1", starts, ends)
	}
}

func TestDispatch_InitialStateSnapshot(t *testing.T) {
	st := store.New(counterState{Count: 10})

	var initial counterState
	a := &hookAction{
		reduce: func(a *hookAction) store.Reduction[counterState] {
			initial = a.InitialState()
			return store.NoChange[counterState]()
		},
	}
	if _, err := st.DispatchAndWait(context.Background(), a); err != nil {
		t.Fatalf("DispatchAndWait failed: %v", err)
	}
	if initial.Count != 10 {
		t.Errorf("InitialState.Count = %d, want 10", initial.Count)
	}
}

func TestBase_PanicsBeforeDispatch(t *testing.T) {
	a := &addAction{N: 1}

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, store.ErrNotDispatched) {
			t.Errorf("recovered %v, want ErrNotDispatched", r)
		}
	}()
	a.Store()
}

// slowAdd widens the window between reading the state and returning the
// candidate, so interleaved dispatches would lose increments if synchronous
// reducers were not serialized.
type slowAdd struct {
	store.Base[counterState]
}

func (a *slowAdd) Reduce() store.Reduction[counterState] {
	s := a.State()
	time.Sleep(time.Millisecond)
	s.Count++
	return store.Update(s)
}

func TestDispatch_ConcurrentSyncReducersDoNotLoseUpdates(t *testing.T) {
	st := store.New(counterState{})

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := st.Dispatch(&slowAdd{}); err != nil {
				t.Errorf("Dispatch failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := st.State().Count; got != n {
		t.Errorf("Count = %d, want %d (each read-modify-write must be atomic)", got, n)
	}
}

func TestDispatch_ConcurrentDispatches(t *testing.T) {
	st := store.New(counterState{})

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := st.Dispatch(&addAction{N: 1}); err != nil {
				t.Errorf("Dispatch failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := st.State().Count; got != n {
		t.Errorf("Count = %d, want %d", got, n)
	}
	if got := st.DispatchCount(); got != n {
		t.Errorf("DispatchCount = %d, want %d", got, n)
	}
}
