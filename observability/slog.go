package observability

import (
	"context"
	"log/slog"
	"time"
)

// SlogObserver emits events through a slog.Logger. The event type becomes
// the log message, Level maps through SlogLevel, the event's own timestamp
// is preserved on the record, and Source plus the Data keys become
// top-level attributes.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver that emits to the given logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	level := event.Level.SlogLevel()
	if !o.logger.Enabled(ctx, level) {
		return
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := slog.NewRecord(ts, level, string(event.Type), 0)
	rec.AddAttrs(slog.String("source", event.Source))
	for k, v := range event.Data {
		rec.AddAttrs(slog.Any(k, v))
	}
	_ = o.logger.Handler().Handle(ctx, rec)
}
