package store

// Status is an immutable snapshot of a single action's lifecycle.
//
// The engine never mutates a Status in place: every transition replaces the
// action's current Status with a copy carrying the updated fields. The four
// booleans are monotonic (false to true, never reset), and once FinishedAfter
// is true no field changes again.
//
// OriginalError is the error surfaced by Before or Reduce, before any
// wrapping. WrappedError is the error after the action's own WrapError and
// the store's global wrap ran; nil when the action succeeded or the error
// was suppressed by a wrapper.
type Status struct {
	Dispatched     bool
	FinishedBefore bool
	FinishedReduce bool
	FinishedAfter  bool
	OriginalError  error
	WrappedError   error
}

// IsCompleted reports whether the action ran its whole lifecycle, After
// included. Aborted dispatches never complete.
func (s Status) IsCompleted() bool {
	return s.FinishedAfter
}

// IsCompletedOK reports whether the action completed without Before or
// Reduce surfacing an error.
func (s Status) IsCompletedOK() bool {
	return s.FinishedAfter && s.OriginalError == nil
}

// IsCompletedFailed reports whether the action completed and Before or
// Reduce surfaced an error, whether or not wrapping later suppressed it.
func (s Status) IsCompletedFailed() bool {
	return s.FinishedAfter && s.OriginalError != nil
}
