// Package persist saves store state out-of-band and restores it on startup.
//
// A Persistor knows how to read, write, and delete one persisted state.
// Process sits between a store and a Persistor: the store notifies it after
// every applied state change and Process throttles those into at most one
// write per interval, always persisting the latest state it has seen.
// Persistence failures are logged, never surfaced into dispatch outcomes.
package persist

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for persistor operations.
var (
	ErrLoadFailed = errors.New("load failed")
	ErrSaveFailed = errors.New("save failed")
)

// Persistor reads and writes one persisted state. Implementations must
// tolerate ReadState before any save: a nil state with a nil error means
// nothing was persisted yet.
type Persistor[S any] interface {
	// ReadState returns the persisted state, or nil when none exists.
	ReadState(ctx context.Context) (*S, error)

	// SaveInitialState writes the very first state, when ReadState found
	// nothing to restore.
	SaveInitialState(ctx context.Context, state S) error

	// PersistDifference persists a state change. lastPersisted is the state
	// the previous persist call wrote, nil when only the initial state was
	// saved so far; implementations free to persist full snapshots may
	// ignore it. Writes must be atomic: a crash mid-write leaves the
	// previous state readable, never a torn one.
	PersistDifference(ctx context.Context, lastPersisted *S, current S) error

	// DeleteState removes the persisted state. Deleting a non-existent
	// state is not an error.
	DeleteState(ctx context.Context) error

	// Throttle is the minimum interval this persistor wants between
	// PersistDifference calls. Zero defers to the Process default.
	Throttle() time.Duration
}
