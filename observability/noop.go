package observability

import "context"

// NoOpObserver discards every event. It is the registry default and what an
// unconfigured store falls back to.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}
