package store

import "context"

// OptimisticUpdate applies a new value to the state immediately, saves it to
// a backing service in the background, and rolls the state back when the save
// fails. Rollback prefers re-reading the authoritative value through Reload;
// without one it reverts to the value read from the state just before the
// optimistic apply.
//
// All four required fields must be set; Reload is optional. The value is
// applied and rolled back through internal synchronous dispatches, so state
// observers and wait conditions see both transitions.
type OptimisticUpdate[S, V any] struct {
	Base[S]

	// NewValue produces the value to apply and save.
	NewValue func() V

	// ValueFromState extracts the current value from a state snapshot; used
	// to capture the pre-update value for rollback.
	ValueFromState func(S) V

	// ApplyValue writes the value into a state snapshot.
	ApplyValue func(S, V) S

	// Save persists the value. An error triggers rollback and then surfaces
	// through the normal error pipeline.
	Save func(ctx context.Context, value V) error

	// Reload reads the authoritative value after a failed save. Optional;
	// when nil, or when it fails itself, rollback uses the captured value.
	Reload func(ctx context.Context) (V, error)
}

func (a *OptimisticUpdate[S, V]) Reduce() Reduction[S] {
	return Deferred(func(ctx context.Context) (Updater[S], error) {
		st := a.Store()
		value := a.NewValue()
		previous := a.ValueFromState(st.State())

		if err := st.Dispatch(&applyValue[S, V]{apply: a.ApplyValue, value: value}); err != nil {
			return nil, err
		}

		err := a.Save(ctx, value)
		if err == nil {
			return nil, nil
		}

		rollback := previous
		if a.Reload != nil {
			if v, rerr := a.Reload(ctx); rerr == nil {
				rollback = v
			}
		}
		if derr := st.Dispatch(&applyValue[S, V]{apply: a.ApplyValue, value: rollback}); derr != nil {
			return nil, derr
		}
		return nil, err
	})
}

// applyValue is the internal synchronous action OptimisticUpdate uses for
// both the optimistic apply and the rollback.
type applyValue[S, V any] struct {
	Base[S]
	apply func(S, V) S
	value V
}

func (a *applyValue[S, V]) Reduce() Reduction[S] {
	return Update(a.apply(a.State(), a.value))
}
