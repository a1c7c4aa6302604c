package store

import "sync"

// UserErrorDialog presents a user-facing error. It receives the error, how
// many more errors are queued behind it, and a proceed callback that must be
// invoked once the presentation is dismissed so the next queued error can be
// shown. Never calling proceed blocks further presentations; calling it more
// than once is safe but wasteful.
type UserErrorDialog func(err *UserError, queued int, proceed func())

// dialogQueue is the FIFO of user-facing errors awaiting presentation, with
// a single "currently showing" flag. Errors are enqueued by the error
// pipeline when the wrapped error is a *UserError with Dialog set. Errors
// queue even without a presenter; installing one presents the backlog.
type dialogQueue struct {
	mu      sync.Mutex
	show    UserErrorDialog
	queue   []*UserError
	showing bool
}

func (q *dialogQueue) enqueue(err *UserError) {
	q.mu.Lock()
	q.queue = append(q.queue, err)
	q.advanceLocked()
}

func (q *dialogQueue) proceed() {
	q.mu.Lock()
	q.showing = false
	q.advanceLocked()
}

func (q *dialogQueue) setShow(show UserErrorDialog) {
	q.mu.Lock()
	q.show = show
	q.advanceLocked()
}

// advanceLocked pops and presents the next queued error when a presenter is
// installed and nothing is showing. Takes q.mu locked and releases it; the
// presenter runs outside the lock.
func (q *dialogQueue) advanceLocked() {
	if q.show == nil || q.showing || len(q.queue) == 0 {
		q.mu.Unlock()
		return
	}
	next := q.queue[0]
	q.queue = q.queue[1:]
	q.showing = true
	queued := len(q.queue)
	show := q.show
	q.mu.Unlock()

	show(next, queued, q.proceed)
}
