package store_test

import (
	"context"
	"testing"

	"github.com/stateloop/stateloop/store"
)

func TestMockAction_ReplacesDispatch(t *testing.T) {
	st := store.New(counterState{})

	store.MockAction[addAction](st, func(original store.Action[counterState]) store.Action[counterState] {
		orig := original.(*addAction)
		return &addAction{N: orig.N * 10}
	})

	if err := st.Dispatch(&addAction{N: 2}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got := st.State().Count; got != 20 {
		t.Errorf("Count = %d, want 20 (mock must run instead)", got)
	}
}

func TestMockAction_NilSwallowsDispatch(t *testing.T) {
	st := store.New(counterState{})

	store.MockAction[addAction](st, func(store.Action[counterState]) store.Action[counterState] {
		return nil
	})

	a := &addAction{N: 5}
	status, err := st.DispatchAndWait(context.Background(), a)
	if err != nil {
		t.Fatalf("DispatchAndWait failed: %v", err)
	}
	if status.Dispatched {
		t.Errorf("status = %+v, want zero status for a swallowed dispatch", status)
	}
	if got := st.State().Count; got != 0 {
		t.Errorf("Count = %d, want 0", got)
	}
	if got := st.DispatchCount(); got != 0 {
		t.Errorf("DispatchCount = %d, want 0", got)
	}
}

func TestMockAction_SwallowedInstanceCanRedispatchAfterClear(t *testing.T) {
	st := store.New(counterState{})

	store.MockAction[addAction](st, func(store.Action[counterState]) store.Action[counterState] {
		return nil
	})
	a := &addAction{N: 5}
	if err := st.Dispatch(a); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	// The swallowed instance was never marked dispatched, so it is still
	// usable once the mock is gone.
	store.ClearMock[addAction](st)
	if err := st.Dispatch(a); err != nil {
		t.Fatalf("redispatch failed: %v", err)
	}
	if got := st.State().Count; got != 5 {
		t.Errorf("Count = %d, want 5", got)
	}
}

func TestMockAction_ExactTypeOnly(t *testing.T) {
	st := store.New(counterState{})

	store.MockAction[addAction](st, func(store.Action[counterState]) store.Action[counterState] {
		return nil
	})

	// A different action type is untouched by the mock.
	if err := st.Dispatch(&hookAction{
		reduce: func(a *hookAction) store.Reduction[counterState] {
			s := a.State()
			s.Count = 7
			return store.Update(s)
		},
	}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got := st.State().Count; got != 7 {
		t.Errorf("Count = %d, want 7", got)
	}
}

func TestClearMocks_RemovesAll(t *testing.T) {
	st := store.New(counterState{})

	store.MockAction[addAction](st, func(store.Action[counterState]) store.Action[counterState] {
		return nil
	})
	store.MockAction[asyncAdd](st, func(store.Action[counterState]) store.Action[counterState] {
		return nil
	})
	st.ClearMocks()

	if err := st.Dispatch(&addAction{N: 1}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if got := st.State().Count; got != 1 {
		t.Errorf("Count = %d, want 1 after ClearMocks", got)
	}
}
