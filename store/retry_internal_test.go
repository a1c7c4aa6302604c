package store

import (
	"testing"
	"time"
)

func TestRetryOptions_WithDefaults(t *testing.T) {
	tests := []struct {
		name     string
		opts     RetryOptions
		fallback RetryOptions
		want     RetryOptions
	}{
		{
			name: "zero takes hard defaults",
			want: RetryOptions{
				InitialDelay: defaultRetryInitialDelay,
				Multiplier:   defaultRetryMultiplier,
				MaxRetries:   defaultRetryMaxRetries,
				MaxDelay:     defaultRetryMaxDelay,
			},
		},
		{
			name:     "fallback fills zero fields",
			fallback: RetryOptions{InitialDelay: time.Second, MaxRetries: 7},
			want: RetryOptions{
				InitialDelay: time.Second,
				Multiplier:   defaultRetryMultiplier,
				MaxRetries:   7,
				MaxDelay:     defaultRetryMaxDelay,
			},
		},
		{
			name:     "own values win over fallback",
			opts:     RetryOptions{InitialDelay: 10 * time.Millisecond, Multiplier: 3},
			fallback: RetryOptions{InitialDelay: time.Second, Multiplier: 5},
			want: RetryOptions{
				InitialDelay: 10 * time.Millisecond,
				Multiplier:   3,
				MaxRetries:   defaultRetryMaxRetries,
				MaxDelay:     defaultRetryMaxDelay,
			},
		},
		{
			name: "unlimited flag maps to sentinel",
			opts: RetryOptions{Unlimited: true},
			want: RetryOptions{
				InitialDelay: defaultRetryInitialDelay,
				Multiplier:   defaultRetryMultiplier,
				MaxRetries:   UnlimitedRetries,
				MaxDelay:     defaultRetryMaxDelay,
				Unlimited:    true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.withDefaults(tt.fallback); got != tt.want {
				t.Errorf("withDefaults = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRetryState_NextDelayBackoff(t *testing.T) {
	rs := newRetryState(RetryOptions{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     350 * time.Millisecond,
	}, RetryOptions{})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		350 * time.Millisecond, // clamped from 400
		350 * time.Millisecond,
	}
	for i, w := range want {
		if got := rs.nextDelay(); got != w {
			t.Errorf("delay %d = %v, want %v", i, got, w)
		}
	}
}

func TestRetryState_FirstDelayClampedToMaxDelay(t *testing.T) {
	rs := newRetryState(RetryOptions{
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     50 * time.Millisecond,
	}, RetryOptions{})

	if got := rs.nextDelay(); got != 50*time.Millisecond {
		t.Errorf("first delay = %v, want the 50ms cap", got)
	}
	if got := rs.nextDelay(); got != 50*time.Millisecond {
		t.Errorf("second delay = %v, want the 50ms cap", got)
	}
}

func TestRetryState_Exhausted(t *testing.T) {
	rs := newRetryState(RetryOptions{MaxRetries: 2}, RetryOptions{})

	for attempts, want := range map[int]bool{0: false, 1: false, 2: false, 3: true} {
		rs.attempts = attempts
		if got := rs.exhausted(); got != want {
			t.Errorf("exhausted at %d attempts = %v, want %v", attempts, got, want)
		}
	}

	unlimited := newRetryState(RetryOptions{Unlimited: true}, RetryOptions{})
	unlimited.attempts = 1000
	if unlimited.exhausted() {
		t.Error("unlimited retry reported exhausted")
	}
}
