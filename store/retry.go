package store

import "time"

// Retry defaults, applied wherever an action's RetryPolicy or the store
// Config leaves a field zero.
const (
	defaultRetryInitialDelay = 350 * time.Millisecond
	defaultRetryMultiplier   = 2.0
	defaultRetryMaxRetries   = 3
	defaultRetryMaxDelay     = 5 * time.Second

	// UnlimitedRetries as a MaxRetries value retries forever.
	UnlimitedRetries = -1
)

// RetryOptions configures the exponential backoff wrapped around Reduce for
// actions implementing Retrying. The delay starts at InitialDelay and is
// multiplied by Multiplier after each failed attempt, clamped to MaxDelay.
// MaxRetries counts retries after the first attempt, so MaxRetries = 3 runs
// the reducer at most 4 times; UnlimitedRetries (-1) never gives up.
//
// Retry wraps only Reduce: Before failures are not retried, and only the
// final attempt's error is surfaced.
type RetryOptions struct {
	InitialDelay time.Duration `json:"initial_delay,omitempty" env:"INITIAL_DELAY"`
	Multiplier   float64       `json:"multiplier,omitempty" env:"MULTIPLIER"`
	MaxRetries   int           `json:"max_retries,omitempty" env:"MAX_RETRIES"`
	MaxDelay     time.Duration `json:"max_delay,omitempty" env:"MAX_DELAY"`

	// Unlimited is shorthand for MaxRetries = UnlimitedRetries.
	Unlimited bool `json:"unlimited,omitempty" env:"UNLIMITED"`
}

// withDefaults fills zero fields from fallback, then hard defaults.
func (o RetryOptions) withDefaults(fallback RetryOptions) RetryOptions {
	if o.InitialDelay == 0 {
		o.InitialDelay = fallback.InitialDelay
	}
	if o.Multiplier == 0 {
		o.Multiplier = fallback.Multiplier
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = fallback.MaxRetries
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = fallback.MaxDelay
	}
	if o.Unlimited || fallback.Unlimited {
		o.MaxRetries = UnlimitedRetries
	}
	if o.InitialDelay == 0 {
		o.InitialDelay = defaultRetryInitialDelay
	}
	if o.Multiplier == 0 {
		o.Multiplier = defaultRetryMultiplier
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = defaultRetryMaxRetries
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = defaultRetryMaxDelay
	}
	return o
}

// retryState is the per-dispatch retry bookkeeping, mutated only by the
// retry loop inside the reduce phase.
type retryState struct {
	opts         RetryOptions
	attempts     int
	currentDelay time.Duration
}

func newRetryState(opts, fallback RetryOptions) *retryState {
	return &retryState{opts: opts.withDefaults(fallback)}
}

// exhausted reports whether the failure budget is spent.
func (r *retryState) exhausted() bool {
	return r.opts.MaxRetries >= 0 && r.attempts > r.opts.MaxRetries
}

// nextDelay advances the backoff: InitialDelay on the first failure, then
// the previous delay times Multiplier. Every delay, the first included, is
// clamped to MaxDelay.
func (r *retryState) nextDelay() time.Duration {
	if r.currentDelay == 0 {
		r.currentDelay = min(r.opts.InitialDelay, r.opts.MaxDelay)
	} else {
		r.currentDelay = min(time.Duration(float64(r.currentDelay)*r.opts.Multiplier), r.opts.MaxDelay)
	}
	return r.currentDelay
}
