package store

import "reflect"

// MockFunc substitutes an action at dispatch time. Returning nil makes the
// dispatch a full no-op; returning a different action replaces the original
// for the entire lifecycle, its own abort gates included.
type MockFunc[S any] func(original Action[S]) Action[S]

// SetMockType registers a substitution for the given action type. All three
// dispatch entry points consult the registry before any lifecycle step.
func (st *Store[S]) SetMockType(t reflect.Type, fn MockFunc[S]) {
	st.mocks.Store(t, fn)
}

// ClearMockType removes the substitution for the given action type.
func (st *Store[S]) ClearMockType(t reflect.Type) {
	st.mocks.Delete(t)
}

// ClearMocks removes every registered substitution.
func (st *Store[S]) ClearMocks() {
	st.mocks.Clear()
}

// substituteMock applies the registered substitution for the action's exact
// type. ok=false means the dispatch is mocked away entirely.
func (st *Store[S]) substituteMock(a Action[S]) (Action[S], bool) {
	fn, found := st.mocks.Load(reflect.TypeOf(a))
	if !found {
		return a, true
	}
	replacement := fn(a)
	if replacement == nil {
		return nil, false
	}
	return replacement, true
}

// MockAction registers a substitution for action type A.
func MockAction[A any, S any](st *Store[S], fn MockFunc[S]) {
	st.SetMockType(ActionType[A](), fn)
}

// ClearMock removes the substitution for action type A.
func ClearMock[A any, S any](st *Store[S]) {
	st.ClearMockType(ActionType[A]())
}
