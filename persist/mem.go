package persist

import (
	"context"
	"sync"
	"time"
)

// MemPersistor keeps the persisted state in memory. Intended for tests and
// for wiring a store together before a real backend exists.
type MemPersistor[S any] struct {
	mu       sync.Mutex
	state    *S
	initial  int
	diffs    int
	throttle time.Duration
	failWith error
}

// NewMemPersistor creates an empty in-memory persistor.
func NewMemPersistor[S any]() *MemPersistor[S] {
	return &MemPersistor[S]{}
}

func (p *MemPersistor[S]) ReadState(_ context.Context) (*S, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return nil, nil
	}
	s := *p.state
	return &s, nil
}

func (p *MemPersistor[S]) SaveInitialState(_ context.Context, state S) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.initial++
	p.state = &state
	return nil
}

func (p *MemPersistor[S]) PersistDifference(_ context.Context, _ *S, current S) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.diffs++
	p.state = &current
	return nil
}

func (p *MemPersistor[S]) DeleteState(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = nil
	return nil
}

func (p *MemPersistor[S]) Throttle() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.throttle
}

// SetThrottle sets the interval Throttle reports to the Process.
func (p *MemPersistor[S]) SetThrottle(d time.Duration) {
	p.mu.Lock()
	p.throttle = d
	p.mu.Unlock()
}

// Saves returns how many writes succeeded, initial save included.
func (p *MemPersistor[S]) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initial + p.diffs
}

// InitialSaves returns how many SaveInitialState calls succeeded.
func (p *MemPersistor[S]) InitialSaves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initial
}

// FailWith makes every subsequent write return err; nil restores normal
// operation.
func (p *MemPersistor[S]) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}
