package store

import "errors"

// Contract errors: programmer misuse of the dispatch surface. These are
// never swallowed, never retried, and never enter the wrap pipeline.
var (
	// ErrAlreadyDispatched is returned when the same action instance is
	// dispatched a second time. Each dispatch needs a fresh instance.
	ErrAlreadyDispatched = errors.New("action already dispatched")

	// ErrMustBeSync is returned by DispatchSync when the action turns out to
	// be asynchronous: Before or Reduce deferred, or retry is enabled.
	ErrMustBeSync = errors.New("action is not synchronous")

	// ErrNotDispatched is raised when an action accesses store state before
	// it has been injected by a dispatch.
	ErrNotDispatched = errors.New("action not yet dispatched")
)

// Wait errors.
var (
	// ErrWaitTimeout is returned by wait primitives whose deadline elapsed
	// before the condition became true.
	ErrWaitTimeout = errors.New("wait condition timed out")

	// ErrConditionAlreadyMet is returned by WaitActionCondition when the
	// predicate is already true at registration and CompletedImmediately was
	// not requested; such a wait cannot usefully be awaited.
	ErrConditionAlreadyMet = errors.New("wait condition already met")
)

// UserError is an expected, recoverable failure meant to be shown to the end
// user rather than treated as a bug. When Dialog is set, the wrapped error
// is queued on the store's presentation queue after the wrap pipeline runs.
type UserError struct {
	// Msg is the display text.
	Msg string

	// Title is an optional dialog title.
	Title string

	// Dialog requests presentation through the store's UserErrorDialog.
	Dialog bool

	// Cause is an optional underlying error.
	Cause error
}

func (e *UserError) Error() string {
	if e.Title != "" {
		return e.Title + ": " + e.Msg
	}
	return e.Msg
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

// AsUserError extracts a *UserError from err's chain.
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
