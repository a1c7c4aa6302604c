package store

import "reflect"

// The failed-action registry maps an action type (exact concrete type, never
// subtypes) to the most recent instance of that type whose dispatch ended
// with a non-nil wrapped error. Entries clear automatically the next time an
// action of the same type starts dispatching, or explicitly through
// ClearExceptionForType. Reads are lock-free (xsync map) so UI render paths
// can poll IsFailed cheaply.

// IsFailedType reports whether the most recent dispatch of the given action
// type ended with a non-nil wrapped error.
func (st *Store[S]) IsFailedType(t reflect.Type) bool {
	_, ok := st.failed.Load(t)
	return ok
}

// ExceptionForType returns the wrapped error recorded for the given action
// type, or nil when its last dispatch did not fail.
func (st *Store[S]) ExceptionForType(t reflect.Type) error {
	a, ok := st.failed.Load(t)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return a.anchor().status.WrappedError
}

// FailedActionForType returns the failed action instance itself, or nil.
func (st *Store[S]) FailedActionForType(t reflect.Type) Action[S] {
	a, ok := st.failed.Load(t)
	if !ok {
		return nil
	}
	return a
}

// ClearExceptionForType removes the failed-action entry for the given type.
func (st *Store[S]) ClearExceptionForType(t reflect.Type) {
	st.failed.Delete(t)
}

// IsFailed reports whether the most recent dispatch of action type A failed.
func IsFailed[A any, S any](st *Store[S]) bool {
	return st.IsFailedType(ActionType[A]())
}

// ExceptionFor returns the wrapped error recorded for action type A, or nil.
func ExceptionFor[A any, S any](st *Store[S]) error {
	return st.ExceptionForType(ActionType[A]())
}

// ClearExceptionFor removes the failed-action entry for action type A.
func ClearExceptionFor[A any, S any](st *Store[S]) {
	st.ClearExceptionForType(ActionType[A]())
}
