package store

import "github.com/stateloop/stateloop/observability"

// Observability event types emitted by the dispatch engine. Data payloads
// carry the concrete action type, the dispatch id, and the dispatch counter.
const (
	// EventDispatchStart fires once an action passed its gates and entered
	// the in-progress set.
	EventDispatchStart observability.EventType = "store.dispatch.start"

	// EventDispatchComplete fires when a dispatch resolves, After included.
	EventDispatchComplete observability.EventType = "store.dispatch.complete"

	// EventDispatchDropped fires for dispatches short-circuited before the
	// lifecycle began: AbortDispatch, a non-reentrancy collision, or a mock
	// substitution returning nil.
	EventDispatchDropped observability.EventType = "store.dispatch.dropped"

	// EventStateChange fires after a reduced state was applied.
	EventStateChange observability.EventType = "store.state.change"

	// EventActionError fires when Before or Reduce surfaced an error, after
	// the wrap pipeline ran.
	EventActionError observability.EventType = "store.action.error"

	// EventRetryWait fires before each backoff delay inside the retry loop.
	EventRetryWait observability.EventType = "store.retry.wait"
)
