package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultThrottle = 2 * time.Second

// Process throttles state notifications into persistor writes: however many
// changes arrive within one throttle window, at most one PersistDifference
// runs and it always writes the latest state. It satisfies the store's
// Persistence interface through Notify.
//
// Writes run on a single background goroutine, so a slow persistor delays
// later writes but never blocks the dispatcher.
type Process[S any] struct {
	p        Persistor[S]
	throttle time.Duration
	logger   *slog.Logger

	mu            sync.Mutex
	pending       *S
	lastPersisted *S

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// ProcessOption configures a Process.
type ProcessOption[S any] func(*Process[S])

// WithThrottle sets the minimum interval between writes, overriding both the
// persistor's Throttle and the 2 second default.
func WithThrottle[S any](d time.Duration) ProcessOption[S] {
	return func(pr *Process[S]) { pr.throttle = d }
}

// WithProcessLogger replaces the logger used for failed writes.
func WithProcessLogger[S any](l *slog.Logger) ProcessOption[S] {
	return func(pr *Process[S]) { pr.logger = l }
}

// NewProcess creates a Process around p and starts its writer goroutine.
// The throttle interval is the first non-zero of: the WithThrottle option,
// the persistor's Throttle, the 2 second default. Call Stop to flush and
// shut the Process down.
func NewProcess[S any](p Persistor[S], opts ...ProcessOption[S]) *Process[S] {
	pr := &Process[S]{
		p:      p,
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(pr)
	}
	if pr.throttle <= 0 {
		pr.throttle = p.Throttle()
	}
	if pr.throttle <= 0 {
		pr.throttle = defaultThrottle
	}
	go pr.loop()
	return pr
}

// ReadInitial restores the persisted state for seeding a new store. When
// nothing was persisted yet it saves fallback as the initial state and
// returns it.
func (pr *Process[S]) ReadInitial(ctx context.Context, fallback S) (S, error) {
	s, err := pr.p.ReadState(ctx)
	if err != nil {
		return fallback, err
	}
	if s == nil {
		if err := pr.p.SaveInitialState(ctx, fallback); err != nil {
			return fallback, err
		}
		pr.mu.Lock()
		pr.lastPersisted = &fallback
		pr.mu.Unlock()
		return fallback, nil
	}

	pr.mu.Lock()
	pr.lastPersisted = s
	pr.mu.Unlock()
	return *s, nil
}

// Notify records state as the latest version to persist and returns
// immediately.
func (pr *Process[S]) Notify(state S) {
	pr.mu.Lock()
	pr.pending = &state
	pr.mu.Unlock()

	select {
	case pr.wake <- struct{}{}:
	default:
	}
}

// Flush persists the pending state now, bypassing the throttle. A no-op
// when nothing changed since the last write.
func (pr *Process[S]) Flush(ctx context.Context) error {
	pr.mu.Lock()
	s := pr.pending
	last := pr.lastPersisted
	pr.pending = nil
	pr.mu.Unlock()

	if s == nil {
		return nil
	}
	if err := pr.p.PersistDifference(ctx, last, *s); err != nil {
		// Keep the state as pending so a later flush retries it, unless a
		// newer one already arrived.
		pr.mu.Lock()
		if pr.pending == nil {
			pr.pending = s
		}
		pr.mu.Unlock()
		return err
	}

	pr.mu.Lock()
	pr.lastPersisted = s
	pr.mu.Unlock()
	return nil
}

// Stop flushes the pending state and shuts the writer goroutine down. The
// Process must not be used afterwards.
func (pr *Process[S]) Stop(ctx context.Context) error {
	close(pr.stop)
	<-pr.done
	return pr.Flush(ctx)
}

func (pr *Process[S]) loop() {
	defer close(pr.done)
	for {
		select {
		case <-pr.stop:
			return
		case <-pr.wake:
		}

		if err := pr.Flush(context.Background()); err != nil {
			pr.logger.Error("state persist failed", "err", err)
		}

		select {
		case <-pr.stop:
			return
		case <-time.After(pr.throttle):
		}
	}
}
